package avstor

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func seqKey(i uint64) *Key {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return NewBinaryKey(buf)
}

func TestInorderAscendingSequential(t *testing.T) {
	db := openMemStore(t)
	var root, k Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("numbers"), &k))

	const n = 10000
	for i := uint64(0); i < n; i++ {
		require.NoError(t, k.CreateInt32(seqKey(i), int32(i), nil))
	}

	var st Inorder
	var cur Node
	var count, sum int64
	var prev uint64
	err := k.InorderFirst(&st, nil, Values|Ascending, &cur)
	for err == nil {
		name, nerr := cur.GetName()
		require.NoError(t, nerr)
		id := binary.BigEndian.Uint64(name)
		if count > 0 {
			require.Greater(t, id, prev, "ascending order violated")
		}
		prev = id
		v, verr := cur.GetInt32()
		require.NoError(t, verr)
		sum += int64(v)
		count++
		err = st.Next(&cur)
	}
	require.Equal(t, ErrNotFound, Code(err))
	require.Equal(t, int64(n), count)
	require.Equal(t, int64(n)*(n-1)/2, sum)
	require.NoError(t, db.CheckCacheConsistency())
}

func TestInorderDescending(t *testing.T) {
	db := openMemStore(t)
	var root, k Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("numbers"), &k))
	for i := uint64(0); i < 100; i++ {
		require.NoError(t, k.CreateInt32(seqKey(i), int32(i), nil))
	}

	var st Inorder
	var cur Node
	want := int64(99)
	err := k.InorderFirst(&st, nil, Values|Descending, &cur)
	for err == nil {
		v, verr := cur.GetInt32()
		require.NoError(t, verr)
		require.Equal(t, int32(want), v)
		want--
		err = st.Next(&cur)
	}
	require.Equal(t, ErrNotFound, Code(err))
	require.Equal(t, int64(-1), want)
}

func TestInorderSeekExact(t *testing.T) {
	db := openMemStore(t)
	var root, k Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("numbers"), &k))
	for i := uint64(0); i < 100; i += 2 {
		require.NoError(t, k.CreateInt32(seqKey(i), int32(i), nil))
	}

	var st Inorder
	var cur Node
	require.NoError(t, k.InorderFirst(&st, seqKey(40), Values|Ascending, &cur))
	v, err := cur.GetInt32()
	require.NoError(t, err)
	require.Equal(t, int32(40), v)

	require.NoError(t, st.Next(&cur))
	v, err = cur.GetInt32()
	require.NoError(t, err)
	require.Equal(t, int32(42), v)
}

func TestInorderSeekMissingResumesAtSuccessor(t *testing.T) {
	db := openMemStore(t)
	var root, k Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("numbers"), &k))
	for i := uint64(0); i < 100; i += 2 {
		require.NoError(t, k.CreateInt32(seqKey(i), int32(i), nil))
	}

	// 41 is absent; ascending starts at 42
	var st Inorder
	var cur Node
	require.NoError(t, k.InorderFirst(&st, seqKey(41), Values|Ascending, &cur))
	v, err := cur.GetInt32()
	require.NoError(t, err)
	require.Equal(t, int32(42), v)

	// descending resumes at the predecessor instead
	require.NoError(t, k.InorderFirst(&st, seqKey(41), Values|Descending, &cur))
	v, err = cur.GetInt32()
	require.NoError(t, err)
	require.Equal(t, int32(40), v)

	// past the end there is nothing
	require.Equal(t, ErrNotFound, Code(k.InorderFirst(&st, seqKey(1000), Values|Ascending, &cur)))
}

func TestInorderEmptyCollection(t *testing.T) {
	db := openMemStore(t)
	var root, k Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("empty"), &k))

	var st Inorder
	var cur Node
	require.Equal(t, ErrNotFound, Code(k.InorderFirst(&st, nil, Values, &cur)))
	require.Equal(t, ErrNotFound, Code(k.InorderFirst(&st, nil, Keys, &cur)))
	require.Equal(t, ErrNotFound, Code(st.Next(&cur)))
}

func TestInorderFlagValidation(t *testing.T) {
	db := openMemStore(t)
	var root Node
	db.NodeInit(&root)

	var st Inorder
	var cur Node
	// the root sentinel has no value collection
	require.Equal(t, ErrParam, Code(root.InorderFirst(&st, nil, Values, &cur)))
}
