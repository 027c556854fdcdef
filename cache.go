package avstor

// Set-associative page cache. Rows are selected by hashing the page
// offset; within a row a linear scan finds the entry. Eviction is LRU
// within the row over entries whose page lock count is zero.

// cacheItem binds a page frame to a file offset. offset 0 marks an unused
// (or invalidated) entry; a nil page marks a never-used entry, and entries
// fill a row front to back so the scan may stop at the first nil page.
type cacheItem struct {
	page     *page
	offset   uint64
	loadTime uint32
}

type cacheRow struct {
	lock      rwLock
	loadCount uint32
	items     []cacheItem
}

type pageCache struct {
	rows      []cacheRow
	header    *page
	oldHeader *page
	mask      uint32
}

// rowFor hashes a page offset to its cache row.
// The multiplier is from L'Ecuyer's tables of LCG constants.
func (c *pageCache) rowFor(pageOfs uint64) *cacheRow {
	h := (uint32(pageOfs/PageSize) * 1597334677) >> 3
	return &c.rows[h&c.mask]
}

// scanRow looks for pageOfs in the row. On a miss it reports a usable
// entry: the first never-used slot, or failing that an invalidated one.
func scanRow(row *cacheRow, pageOfs uint64) (hit, avail *cacheItem) {
	for i := range row.items {
		item := &row.items[i]
		if item.page == nil {
			return nil, item
		}
		if item.offset == 0 {
			if avail == nil {
				avail = item
			}
		} else if item.offset == pageOfs {
			return item, nil
		}
	}
	return nil, avail
}

type evictResult int

const (
	evictSuccess evictResult = iota
	evictFail
	evictIOError
	evictMustFlush
)

// evict chooses the least recently used unlocked entry in the row and
// releases it. Dirty victims are written out under OpenAutosave; without
// it a dirty victim aborts the whole operation.
func (s *Store) evict(row *cacheRow) (*cacheItem, evictResult) {
	var oldest *cacheItem
	minAge := row.loadCount
	autoSave := s.oflags&OpenAutosave != 0

	for i := range row.items {
		item := &row.items[i]
		if item.page == nil {
			break
		}
		if item.offset != 0 && item.loadTime < minAge && item.page.lockCount.Load() == 0 {
			minAge = item.loadTime
			oldest = item
		}
	}

	if oldest == nil {
		return nil, evictFail
	}
	if oldest.page.isDirty() {
		if !autoSave {
			return nil, evictMustFlush
		}
		debugLog("evicting dirty page", "offset", oldest.offset)
		if err := s.writePage(oldest.page); err != nil {
			return nil, evictIOError
		}
	}
	oldest.offset = 0
	return oldest, evictSuccess
}

// growRow extends a fully locked row by a few entries and binds a fresh
// frame to the first new one.
func (s *Store) growRow(row *cacheRow) *cacheItem {
	oldLen := len(row.items)
	row.items = append(row.items, make([]cacheItem, cacheRowGrowth)...)
	item := &row.items[oldLen]
	frame, err := s.pool.Get()
	if err != nil {
		return nil
	}
	item.page = &page{data: frame}
	return item
}

// cacheLookup returns the page at pageOfs with its lock count raised.
// For an existing page a cache miss reads and checksum-verifies it from
// the file; otherwise the frame is zeroed and bound to the offset.
func (s *Store) cacheLookup(pageOfs uint64, isExisting bool) (*page, error) {
	row := s.cache.rowFor(pageOfs)

	var item, avail *cacheItem
	for {
		row.lock.lockShared()
		item, avail = scanRow(row, pageOfs)
		if item != nil {
			// Safe while the row is share-locked: eviction needs the
			// row exclusively, so the page cannot be recycled under us.
			lockPage(item.page)
			row.lock.release()
			return item.page, nil
		}
		if row.lock.upgradeOrRelease() {
			break
		}
		// lost the upgrade race; retry the lookup from scratch
	}

	// the row is locked exclusively
	if avail != nil {
		item = avail
		if item.page == nil {
			frame, err := s.pool.Get()
			if err != nil {
				row.lock.release()
				return nil, WrapError(ErrNoMem, err)
			}
			item.page = &page{data: frame}
		}
	} else {
		var res evictResult
		item, res = s.evict(row)
		switch res {
		case evictSuccess:
		case evictFail:
			// every resident page is locked; should almost never happen
			if item = s.growRow(row); item == nil {
				row.lock.release()
				return nil, NewErrorMsg(ErrNoMem, "cache row growth failed: out of memory")
			}
		case evictIOError:
			row.lock.release()
			return nil, NewErrorMsg(ErrIO, "i/o error during cache page flush")
		case evictMustFlush:
			row.lock.release()
			return nil, NewErrorMsg(ErrAbort, "dirty page eviction requires flush but autosave is off")
		}
	}

	p := item.page
	if isExisting {
		if err := s.readPage(pageOfs, p); err != nil {
			row.lock.release()
			return nil, err
		}
		item.loadTime = row.loadCount
		row.loadCount++
	} else {
		zeroRange(p.data)
		p.setOffset(pageOfs)
		item.loadTime = 0
	}
	item.offset = pageOfs
	p.lockCount.Store(1)
	row.lock.release()
	return p, nil
}

// getPage loads an existing page and locks it.
func (s *Store) getPage(pageOfs uint64) (*page, error) {
	return s.cacheLookup(pageOfs, true)
}
