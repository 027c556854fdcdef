package avstor

import (
	"io"
	"sync/atomic"

	"github.com/obseedian/avstor/bufpool"
)

// Store is an open data file together with its page cache. All public
// operations are bracketed by a store-wide reader/writer lock: reads take
// it shared, mutations exclusive. A mutating operation either returns nil
// and leaves its writes in dirty cache state, or fails. Resource, storage
// and invariant failures roll the cache back to the last committed
// contents; caller-misuse and state errors (ErrParam, ErrMismatch,
// ErrExists, ErrNotFound, ErrInvOper) are detected before any change and
// leave the cache as it was. Durability requires Commit.
type Store struct {
	global  rwLock
	file    File
	oflags  int
	pool    *bufpool.Pool
	cache   pageCache
	lastErr atomic.Pointer[string]
}

// Open opens or creates the store at path. szcacheKiB is the page cache
// size in KiB, rounded down to a power of two; at least MinCacheKiB is
// required. oflags must include at least one of OpenReadWrite/OpenReadOnly
// (with both, the file is opened read-only);
// OpenCreate truncates and initializes the file and is incompatible with
// OpenReadOnly.
func Open(path string, szcacheKiB uint, oflags int) (*Store, error) {
	if err := checkOpenFlags(oflags); err != nil {
		return nil, err
	}
	var f File
	var err error
	if oflags&OpenCreate != 0 {
		f, err = createDataFile(path)
	} else {
		f, err = openDataFile(path, oflags)
	}
	if err != nil {
		return nil, WrapError(ErrIO, err)
	}
	s, err := openWith(f, szcacheKiB, oflags)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// OpenWith is like Open but uses a caller-supplied I/O port (for example
// a MemFile, or a file from OpenFileDirect). The store takes ownership of
// the file and closes it on Close.
func OpenWith(f File, szcacheKiB uint, oflags int) (*Store, error) {
	if err := checkOpenFlags(oflags); err != nil {
		return nil, err
	}
	return openWith(f, szcacheKiB, oflags)
}

func checkOpenFlags(oflags int) error {
	if oflags&OpenCreate != 0 && oflags&OpenReadOnly != 0 {
		return NewErrorMsg(ErrParam, "invalid flags combination")
	}
	if oflags&OpenReadWrite == 0 && oflags&OpenReadOnly == 0 {
		return NewErrorMsg(ErrParam, "invalid flags combination")
	}
	return nil
}

func openWith(f File, szcacheKiB uint, oflags int) (*Store, error) {
	szcache := floorPowerOfTwo(szcacheKiB)
	if szcache < MinCacheKiB {
		return nil, NewErrorMsg(ErrParam, "cache size below minimum")
	}

	s, err := newStore(szcache)
	if err != nil {
		return nil, err
	}
	s.file = f
	s.oflags = oflags

	if oflags&OpenCreate != 0 {
		err = s.initNewFile()
	} else {
		err = s.loadHeader()
	}
	if err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

// newStore builds the cache geometry for a (power of two) cache size.
func newStore(szcacheKiB uint) (*Store, error) {
	s := &Store{}
	s.global.init()

	pool, err := bufpool.New()
	if err != nil {
		return nil, WrapError(ErrNoMem, err)
	}
	s.pool = pool

	rows := int(szcacheKiB) / ((PageSize / 1024) * cacheAssoc)
	s.cache.rows = make([]cacheRow, rows)
	s.cache.mask = uint32(rows - 1)
	for i := range s.cache.rows {
		row := &s.cache.rows[i]
		row.lock.init()
		row.loadCount = 1
		row.items = make([]cacheItem, cacheAssoc)
	}

	hdrFrame, err := s.pool.Get()
	if err != nil {
		s.pool.Close()
		return nil, WrapError(ErrNoMem, err)
	}
	oldFrame, err := s.pool.Get()
	if err != nil {
		s.pool.Close()
		return nil, WrapError(ErrNoMem, err)
	}
	s.cache.header = &page{data: hdrFrame}
	s.cache.oldHeader = &page{data: oldFrame}
	return s, nil
}

// initNewFile writes a fresh header and commits it.
func (s *Store) initNewFile() error {
	hdr := s.cache.header
	zeroRange(hdr.data)
	hdr.setOffset(0)
	hdr.data[pageOffType] = pageTypeHeader
	hdr.setDirty()
	hdr.setPageCount(1)
	putUint32LE(hdr.data[hdrOffPageSize:], PageSize)
	if file64 {
		hdr.setHeaderFlags(FileFlag64Bit)
	}
	if err := s.Commit(true); err != nil {
		return err
	}
	return nil
}

// loadHeader reads and validates the header page of an existing file.
func (s *Store) loadHeader() error {
	hdr := s.cache.header
	if err := s.readPage(0, hdr); err != nil {
		return err
	}
	if hdr.headerPageSize() != PageSize {
		return NewErrorMsg(ErrCorrupt, "invalid page size in header")
	}
	if hdr.headerFlags()&FileFlagBigEndian != 0 {
		return NewErrorMsg(ErrCorrupt, "big-endian data file not supported")
	}
	if (hdr.headerFlags()&FileFlag64Bit != 0) != file64 {
		return NewErrorMsg(ErrCorrupt, "file reference width does not match this build")
	}
	copy(s.cache.oldHeader.data, hdr.data)
	s.cache.oldHeader.lockCount.Store(0)
	return nil
}

// Close closes the store and releases every page buffer. Uncommitted
// changes are discarded; call Commit first for durability.
func (s *Store) Close() error {
	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
	}
	s.destroy()
	return err
}

func (s *Store) destroy() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.cache.rows = nil
	s.cache.header = nil
	s.cache.oldHeader = nil
}

// Commit writes every dirty page and the header to the file. With flush,
// the I/O port's sync is called so the bytes reach stable storage. On
// success the header is snapshotted as the new rollback anchor.
func (s *Store) Commit(flush bool) error {
	s.clearLastError()
	s.global.lockExclusive()
	defer s.global.release()

	commit := func() error {
		for r := range s.cache.rows {
			row := &s.cache.rows[r]
			for c := range row.items {
				p := row.items[c].page
				if p == nil {
					break
				}
				if err := s.writePage(p); err != nil {
					return err
				}
			}
		}
		if err := s.writePage(s.cache.header); err != nil {
			return err
		}
		if flush {
			if err := s.file.Sync(); err != nil {
				return WrapError(ErrIO, err)
			}
		}
		// save header for rollback purposes
		copy(s.cache.oldHeader.data, s.cache.header.data)
		return nil
	}

	if err := commit(); err != nil {
		s.setLastError(err)
		return err
	}
	debugLog("commit complete", "pages", s.cache.header.pageCount(), "flush", flush)
	return nil
}

// rollback restores the cache to the last committed state: every dirty
// cached page is invalidated (to be reloaded from disk on next access),
// abandoned page locks are cleared, and the saved header is copied back.
// Called with the global lock held at least shared.
func (s *Store) rollback() {
	s.global.upgradeOrLockExclusive()

	for r := range s.cache.rows {
		row := &s.cache.rows[r]
		for c := range row.items {
			p := row.items[c].page
			if p == nil || p.offset() == 0 {
				continue
			}
			if p.isDirty() {
				row.items[c].offset = 0
				p.setClean()
			}
			if p.lockCount.Load() != 0 {
				p.lockCount.Store(0)
			}
		}
	}

	copy(s.cache.header.data, s.cache.oldHeader.data)
	s.cache.header.lockCount.Store(0)
	debugLog("rollback complete")
}

// fail records the error, rolls back unconditionally and returns the
// error. The public operations report failures through failMut and
// failRead instead.
func (s *Store) fail(err error) error {
	s.setLastError(err)
	s.rollback()
	return err
}

// readPage reads and checksum-verifies one page into p's frame.
func (s *Store) readPage(pageOfs uint64, p *page) error {
	n, err := s.file.ReadAt(p.data, int64(pageOfs))
	if n == PageSize {
		err = nil
	} else if err == io.EOF || err == nil {
		if n == 0 {
			return NewErrorMsg(ErrIO, "page offset beyond end of file")
		}
		return NewErrorMsg(ErrCorrupt, "short page read")
	} else {
		return WrapError(ErrIO, err)
	}
	if !p.verifyChecksum() {
		debugLog("page checksum mismatch", "offset", pageOfs)
		return NewErrorMsg(ErrCorrupt, "page checksum error")
	}
	return nil
}

// writePage writes p back if dirty. The page must be unlocked; a dirty
// page with a nonzero lock count would mean a caller abandoned it.
func (s *Store) writePage(p *page) error {
	if p.lockCount.Load() != 0 {
		panic("avstor: write of locked page")
	}
	if !p.isDirty() {
		return nil
	}
	p.setClean()
	p.updateChecksum()
	n, err := s.file.WriteAt(p.data, int64(p.offset()))
	if err != nil || n < PageSize {
		p.setDirty()
		if err != nil {
			return WrapError(ErrIO, err)
		}
		return NewErrorMsg(ErrIO, "short page write")
	}
	return nil
}

// createPage appends a fresh data page to the file image.
func (s *Store) createPage() (*page, error) {
	hdr := s.cache.header
	if hdr.pageCount() >= maxFilePages {
		return nil, NewErrorMsg(ErrInvOper, "maximum allowable file size exceeded")
	}
	pageOfs := uint64(hdr.pageCount()) * PageSize
	p, err := s.cacheLookup(pageOfs, false)
	if err != nil {
		return nil, err
	}
	p.initData()
	hdr.setPageCount(hdr.pageCount() + 1)
	hdr.setDirty()
	return p, nil
}

// Page lock count discipline: a caller that obtains a page holds it until
// an explicit unlock; eviction is forbidden while the count is nonzero.

func lockPage(p *page) {
	if p.lockCount.Add(1) <= 0 {
		panic("avstor: page lock count underflow")
	}
}

func unlockPage(p *page) {
	if p.lockCount.Add(-1) < 0 {
		panic("avstor: page unlock without lock")
	}
}

// Advisory last-error slot. The error code returned by each operation is
// authoritative; this message only names the most recent failure.

func (s *Store) clearLastError() {
	s.lastErr.Store(nil)
}

func (s *Store) setLastError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	s.lastErr.Store(&msg)
}

// LastError returns the message of the most recent failed operation, or
// the empty string if the last operation succeeded. A call rejected for a
// nil key, target, traversal or output argument returns ErrParam without
// clearing or setting this slot.
func (s *Store) LastError() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// floorPowerOfTwo rounds x down to a power of two (0 stays 0).
func floorPowerOfTwo(x uint) uint {
	if x == 0 {
		return 0
	}
	cnt := 0
	for v := x; v > 0; v >>= 1 {
		cnt++
	}
	return 1 << (cnt - 1)
}
