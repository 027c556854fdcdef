package avstor

import (
	"io"
	"os"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"
)

// File is the I/O port the engine reads and writes pages through.
// All access is positioned and byte-accurate; the engine never seeks.
// A read past EOF must return 0 bytes; a read shorter than requested is
// treated as a corruption signal by the caller.
//
// Thread safety is a property of the port: the engine may issue reads
// from concurrent readers. os.File satisfies this on every supported
// platform (pread/pwrite).
type File interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// openDataFile opens an existing data file according to the open flags.
func openDataFile(path string, oflags int) (File, error) {
	mode := os.O_RDWR
	if oflags&OpenReadOnly != 0 {
		mode = os.O_RDONLY
	}
	return os.OpenFile(path, mode, 0)
}

// createDataFile creates (truncating) a data file.
func createDataFile(path string) (File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
}

// OpenFileDirect opens a data file with the platform's direct-I/O flag,
// bypassing the OS page cache. Page frames come from aligned slabs, so
// every transfer satisfies direct-I/O alignment requirements. The returned
// File can be handed to OpenWith.
func OpenFileDirect(path string, oflags int) (File, error) {
	mode := os.O_RDWR
	if oflags&OpenReadOnly != 0 {
		mode = os.O_RDONLY
	}
	if oflags&OpenCreate != 0 {
		mode = os.O_CREATE | os.O_TRUNC | os.O_RDWR
	}
	return directio.OpenFile(path, mode, 0o644)
}

// MemFile is an in-memory File, useful for tests and ephemeral stores.
type MemFile struct {
	*memfile.File
}

// NewMemFile returns an empty in-memory data file.
func NewMemFile() *MemFile {
	return &MemFile{memfile.New(nil)}
}

// Sync is a no-op for memory files.
func (f *MemFile) Sync() error { return nil }

// Close is a no-op for memory files.
func (f *MemFile) Close() error { return nil }

// Bytes exposes the current file contents.
func (f *MemFile) Bytes() []byte { return f.File.Bytes() }
