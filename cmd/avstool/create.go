package main

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/obseedian/avstor"
)

// intKey encodes a sequential integer name. The record is compared
// numerically, not byte-wise.
func intKey(k int32, data int64) *avstor.Key {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf, uint32(k))
	binary.LittleEndian.PutUint64(buf[4:], uint64(data))
	return &avstor.Key{
		Buf: buf,
		Compare: func(a, b []byte) int {
			ka := int32(binary.LittleEndian.Uint32(a))
			kb := int32(binary.LittleEndian.Uint32(b))
			switch {
			case ka > kb:
				return 1
			case ka < kb:
				return -1
			}
			return 0
		},
	}
}

// stElem is one level of the depth-first creation walk: the tree being
// filled and the next sequential key to create in it.
type stElem struct {
	node    avstor.Node
	nextKey int32
}

// createTree fills the store with a uniform hierarchy: childCount[l] keys
// at each level l, children created before siblings. Returns the number
// of keys created.
func createTree(db *avstor.Store, childCount []int32) (int64, error) {
	st := make([]stElem, len(childCount))
	level := 0
	top := &st[0]
	db.NodeInit(&top.node)

	var total int64
	for {
		if top.nextKey == childCount[level] {
			// finished this subtree, move back up to the parent
			top.node.Destroy()
			level--
			if level < 0 {
				return total, nil
			}
			top = &st[level]
			continue
		}

		key := intKey(top.nextKey, total)
		var child avstor.Node
		var out *avstor.Node
		if level < len(childCount)-1 {
			out = &child
		}
		if err := top.node.CreateKey(key, out); err != nil {
			return total, errors.Wrapf(err, "create key %d at level %d", top.nextKey, level)
		}
		total++
		top.nextKey++

		if out != nil {
			// create children before siblings
			level++
			top = &st[level]
			top.node = child
			top.nextKey = 0
		}
	}
}

func newCreateCmd() *cobra.Command {
	var (
		cacheKiB uint
		levels   []int32
		autosave bool
		direct   bool
	)
	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Create a data file populated with a uniform key hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oflags := avstor.OpenReadWrite | avstor.OpenCreate
			if autosave {
				oflags |= avstor.OpenAutosave
			}

			var db *avstor.Store
			var err error
			if direct {
				f, err := avstor.OpenFileDirect(args[0], oflags)
				if err != nil {
					return errors.Wrap(err, "open direct")
				}
				db, err = avstor.OpenWith(f, cacheKiB, oflags)
				if err != nil {
					f.Close()
					return errors.Wrap(err, "open store")
				}
			} else {
				db, err = avstor.Open(args[0], cacheKiB, oflags)
				if err != nil {
					return errors.Wrap(err, "open store")
				}
			}
			defer db.Close()

			total, err := createTree(db, levels)
			if err != nil {
				return err
			}
			if err := db.Commit(true); err != nil {
				return errors.Wrap(err, "commit")
			}
			log.WithField("keys", total).Info("database created")
			return nil
		},
	}
	cmd.Flags().UintVar(&cacheKiB, "cache", 4096, "page cache size in KiB")
	cmd.Flags().Int32SliceVar(&levels, "levels", []int32{16, 16, 16}, "keys per level of the hierarchy")
	cmd.Flags().BoolVar(&autosave, "autosave", true, "allow dirty page writeback during operations")
	cmd.Flags().BoolVar(&direct, "direct", false, "open the file with O_DIRECT")
	return cmd
}
