package avstor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testCacheKiB = 1024

func openMemStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenWith(NewMemFile(), testCacheKiB, OpenReadWrite|OpenCreate|OpenAutosave)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// checkAllCachedPages runs the slotted-page invariants over every
// resident data page.
func checkAllCachedPages(t *testing.T, s *Store) {
	t.Helper()
	for r := range s.cache.rows {
		row := &s.cache.rows[r]
		for c := range row.items {
			item := &row.items[c]
			if item.page == nil {
				break
			}
			if item.offset == 0 {
				continue
			}
			require.NoError(t, checkPage(item.page), "page at offset %d", item.offset)
		}
	}
}

func TestOpenFlagValidation(t *testing.T) {
	_, err := OpenWith(NewMemFile(), testCacheKiB, OpenCreate|OpenReadOnly)
	require.Equal(t, ErrParam, Code(err))

	_, err = OpenWith(NewMemFile(), testCacheKiB, OpenCreate)
	require.Equal(t, ErrParam, Code(err))

	_, err = OpenWith(NewMemFile(), 32, OpenReadWrite|OpenCreate)
	require.Equal(t, ErrParam, Code(err))

	// cache size rounds down to a power of two; 100 KiB -> 64 KiB is fine
	db, err := OpenWith(NewMemFile(), 100, OpenReadWrite|OpenCreate)
	require.NoError(t, err)
	db.Close()
}

func TestOpenMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "nope.avs"), testCacheKiB, OpenReadWrite)
	require.Equal(t, ErrIO, Code(err))
}

func TestCreateCommitReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.avs")

	db, err := Open(path, testCacheKiB, OpenReadWrite|OpenCreate)
	require.NoError(t, err)

	var root, a, n Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("a"), &a))
	require.NoError(t, a.CreateInt32(NewKey("n"), 42, &n))
	require.NoError(t, db.Commit(true))
	require.NoError(t, db.CheckCacheConsistency())
	require.NoError(t, db.Close())

	// the file holds at least the header and one data page
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, fi.Size(), int64(2*PageSize))

	db, err = Open(path, testCacheKiB, OpenReadWrite)
	require.NoError(t, err)
	defer db.Close()

	db.NodeInit(&root)
	require.NoError(t, root.Find(NewKey("a"), Keys, &a))
	require.NoError(t, a.Find(NewKey("n"), Values, &n))
	v, err := n.GetInt32()
	require.NoError(t, err)
	require.Equal(t, int32(42), v)
}

func TestUncommittedChangesAreNotDurable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.avs")

	db, err := Open(path, testCacheKiB, OpenReadWrite|OpenCreate)
	require.NoError(t, err)

	var root, a Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("committed"), nil))
	require.NoError(t, db.Commit(true))
	require.NoError(t, root.CreateKey(NewKey("lost"), nil))
	require.NoError(t, db.Close())

	db, err = Open(path, testCacheKiB, OpenReadWrite)
	require.NoError(t, err)
	defer db.Close()
	db.NodeInit(&root)
	require.NoError(t, root.Find(NewKey("committed"), Keys, &a))
	require.Equal(t, ErrNotFound, Code(root.Find(NewKey("lost"), Keys, &a)))
}

func TestCreateExistingKeyKeepsValue(t *testing.T) {
	db := openMemStore(t)

	var root, k, x Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("k"), &k))
	require.NoError(t, k.CreateInt32(NewKey("x"), 1, nil))

	err := k.CreateInt32(NewKey("x"), 2, nil)
	require.Equal(t, ErrExists, Code(err))

	require.NoError(t, k.Find(NewKey("x"), Values, &x))
	v, err := x.GetInt32()
	require.NoError(t, err)
	require.Equal(t, int32(1), v)

	// CreateKey reports the existing node through out
	var dup Node
	err = root.CreateKey(NewKey("k"), &dup)
	require.Equal(t, ErrExists, Code(err))
	require.False(t, dup.IsRoot())
	typ, err := dup.GetType()
	require.NoError(t, err)
	require.Equal(t, TypeKey, typ)
}

func TestDirtyEvictionAbortsWithoutAutosave(t *testing.T) {
	mf := NewMemFile()
	db, err := OpenWith(mf, MinCacheKiB, OpenReadWrite|OpenCreate)
	require.NoError(t, err)
	defer db.Close()

	committedLen := len(mf.Bytes())

	var root Node
	db.NodeInit(&root)
	name := make([]byte, 64)
	var failed error
	for i := 0; i < 100000 && failed == nil; i++ {
		for j := range name {
			name[j] = byte('a' + (i>>uint(4*(j%4)))&0xF)
		}
		key := NewBinaryKey(append(name[:0:0], name...))
		key.Buf = append(key.Buf, byte(i), byte(i>>8), byte(i>>16))
		failed = root.CreateKey(key, nil)
	}
	require.Error(t, failed, "a 64 KiB cache must run out of evictable pages")
	require.Equal(t, ErrAbort, Code(failed))

	// rollback left the file exactly as the last commit wrote it
	require.Equal(t, committedLen, len(mf.Bytes()))
	require.NoError(t, db.CheckCacheConsistency())

	// and the cache was restored to the committed (empty) tree
	var out Node
	require.Equal(t, ErrNotFound, Code(root.Find(NewKey("anything"), Keys, &out)))
}

func TestAutosaveAllowsDirtyEviction(t *testing.T) {
	mf := NewMemFile()
	db, err := OpenWith(mf, MinCacheKiB, OpenReadWrite|OpenCreate|OpenAutosave)
	require.NoError(t, err)
	defer db.Close()

	var root Node
	db.NodeInit(&root)
	for i := 0; i < 3000; i++ {
		key := NewBinaryKey([]byte{byte(i), byte(i >> 8), 'k', 'e', 'y'})
		require.NoError(t, root.CreateKey(key, nil))
	}
	require.NoError(t, db.Commit(true))
	require.NoError(t, db.CheckCacheConsistency())
	checkAllCachedPages(t, db)
}

func TestCorruptPageDetected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.avs")

	db, err := Open(path, testCacheKiB, OpenReadWrite|OpenCreate)
	require.NoError(t, err)
	var root, a Node
	db.NodeInit(&root)
	require.NoError(t, root.CreateKey(NewKey("victim"), &a))
	require.NoError(t, a.CreateInt32(NewKey("v"), 7, nil))
	require.NoError(t, db.Commit(true))
	require.NoError(t, db.Close())

	// flip one byte inside the first data page
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, PageSize+100)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, PageSize+100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db, err = Open(path, testCacheKiB, OpenReadWrite)
	require.NoError(t, err) // the header page itself is intact
	defer db.Close()
	db.NodeInit(&root)
	err = root.Find(NewKey("victim"), Keys, &a)
	require.Equal(t, ErrCorrupt, Code(err))
	require.NotEmpty(t, db.LastError())
}

func TestCorruptHeaderDetectedAtOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.avs")

	db, err := Open(path, testCacheKiB, OpenReadWrite|OpenCreate)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xAA}, 200)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, testCacheKiB, OpenReadWrite)
	require.Equal(t, ErrCorrupt, Code(err))
}

func TestLastErrorSlot(t *testing.T) {
	db := openMemStore(t)
	var root, out Node
	db.NodeInit(&root)

	require.Equal(t, ErrNotFound, Code(root.Find(NewKey("missing"), Keys, &out)))
	require.NotEmpty(t, db.LastError())

	require.NoError(t, root.CreateKey(NewKey("present"), nil))
	require.Empty(t, db.LastError())
}
