package avstor

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/btree"
)

// TestModelAgainstOrderedMap drives a random workload against both the
// store and an in-memory ordered map, then compares contents, iteration
// order and lookups.
func TestModelAgainstOrderedMap(t *testing.T) {
	db := openMemStore(t)
	var root, parent Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("model"), &parent))

	var oracle btree.Map[string, int32]
	rng := rand.New(rand.NewSource(1))
	names := make([]string, 400)
	for i := range names {
		names[i] = fmt.Sprintf("name-%03d", i)
	}

	for op := 0; op < 10000; op++ {
		name := names[rng.Intn(len(names))]
		switch rng.Intn(4) {
		case 0: // create
			v := int32(rng.Intn(1 << 20))
			err := parent.CreateInt32(NewKey(name), v, nil)
			if _, ok := oracle.Get(name); ok {
				require.Equal(t, ErrExists, Code(err), "create %q", name)
			} else {
				require.NoError(t, err, "create %q", name)
				oracle.Set(name, v)
			}
		case 1: // update
			v := int32(rng.Intn(1 << 20))
			var n Node
			err := parent.Find(NewKey(name), Values, &n)
			if _, ok := oracle.Get(name); ok {
				require.NoError(t, err)
				require.NoError(t, n.UpdateInt32(v))
				oracle.Set(name, v)
			} else {
				require.Equal(t, ErrNotFound, Code(err))
			}
		case 2: // delete
			err := parent.Delete(Values, NewKey(name))
			if _, ok := oracle.Get(name); ok {
				require.NoError(t, err, "delete %q", name)
				oracle.Delete(name)
			} else {
				require.Equal(t, ErrNotFound, Code(err))
			}
		case 3: // read
			var n Node
			err := parent.Find(NewKey(name), Values, &n)
			if want, ok := oracle.Get(name); ok {
				require.NoError(t, err)
				got, gerr := n.GetInt32()
				require.NoError(t, gerr)
				require.Equal(t, want, got)
			} else {
				require.Equal(t, ErrNotFound, Code(err))
			}
		}
	}

	// full comparison in iteration order
	type pair struct {
		name string
		v    int32
	}
	var want []pair
	oracle.Scan(func(k string, v int32) bool {
		want = append(want, pair{k, v})
		return true
	})

	var st Inorder
	var cur Node
	var got []pair
	err := parent.InorderFirst(&st, nil, Values|Ascending, &cur)
	for err == nil {
		name, nerr := cur.GetName()
		require.NoError(t, nerr)
		v, verr := cur.GetInt32()
		require.NoError(t, verr)
		got = append(got, pair{string(name), v})
		err = st.Next(&cur)
	}
	require.Equal(t, ErrNotFound, Code(err))
	require.Equal(t, want, got)

	require.NoError(t, db.CheckCacheConsistency())
	checkAllCachedPages(t, db)
	treeShape(t, db, userTreeRoot(db))
}
