// Package avstor is a single-file embedded hierarchical key-value store.
//
// A data file holds a tree of named nodes: key nodes carry two child
// collections (subkeys and values) while value nodes hold a typed payload
// (int32, int64, double, short string, short binary, or a link to another
// node). Every child collection is an AVL tree whose links are file offsets,
// stored inside slotted 4 KiB pages. Pages move between disk and memory
// through a set-associative page cache; durability is explicit via Commit.
//
// Key features:
//   - Self-describing, per-page checksummed single-file format
//   - Set-associative page cache with LRU eviction and dirty tracking
//   - Balanced (AVL) index for every child collection
//   - Single writer, multiple readers within one process
//   - Commit/rollback atomicity at the granularity of a public call
//
// Basic usage:
//
//	db, err := avstor.Open("data.avs", 1024, avstor.OpenReadWrite|avstor.OpenCreate)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	var root, cfg avstor.Node
//	db.NodeInit(&root)
//
//	if err := root.CreateKey(avstor.NewKey("config"), &cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.CreateInt32(avstor.NewKey("retries"), 5, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := db.Commit(true); err != nil {
//	    log.Fatal(err)
//	}
package avstor
