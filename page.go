package avstor

import "sync/atomic"

// Page layout. Every page is PageSize bytes; page 0 is the file header and
// all other pages are slotted data pages.
//
// Common prefix (little-endian):
//
//	Offset  Size  Field
//	0       4     checksum (computed with this field zeroed)
//	4       4     lock count slot (in-memory only, zero on disk)
//	8       8     page offset (u32 + pad, or u64 with -tags avstor64)
//	16      1     status (bit 0x80 = dirty)
//	17      1     type (0 = header, 1 = data)
//	18      2     reserved
//
// Data page body:
//
//	Offset  Size  Field
//	20      2     top (lowest occupied byte; nodes fill top..PageSize)
//	22      2     slot freelist head (invalidIndex terminates)
//	24      2     slot count
//	26      2*n   slot array, each entry the byte offset of a live node,
//	              or a link to the next free slot entry
//
// Header page body:
//
//	Offset  Size  Field
//	20      4     page count
//	24      4     page size (always 4096)
//	28      8     root reference of the user tree
//	36      8     root reference of the back-link tree
//	44      4     file flags
//	48      1024  page-hint pool (256 x u32 page numbers)
const (
	pageOffChecksum = 0
	pageOffPageNo   = 8
	pageOffStatus   = 16
	pageOffType     = 17

	pageOffTop      = 20
	pageOffFreelist = 22
	pageOffSlotCnt  = 24
	pageSlotBase    = 26

	hdrOffPageCount = 20
	hdrOffPageSize  = 24
	hdrOffRoot      = 28
	hdrOffRootLinks = 36
	hdrOffFlags     = 44
	hdrOffPagePool  = 48

	// hdrPagePoolLen is the number of page-hint entries in the header
	hdrPagePoolLen = 256

	// backlinkPool is the hint-pool bucket reserved for the back-link tree.
	// Bucket 255 is unused but kept for file compatibility.
	backlinkPool = 254
)

// page is a PageSize buffer from the buffer pool bound to a file offset.
// The lock count lives outside the data so the on-disk image always carries
// zeroes in its lock slot.
type page struct {
	data      []byte
	lockCount atomic.Int32
}

func (p *page) offset() uint64 {
	return getUint64LE(p.data[pageOffPageNo:])
}

func (p *page) setOffset(off uint64) {
	putUint64LE(p.data[pageOffPageNo:], off)
}

func (p *page) pageType() byte {
	return p.data[pageOffType]
}

func (p *page) isDirty() bool {
	return p.data[pageOffStatus]&pageDirty != 0
}

func (p *page) setDirty() {
	p.data[pageOffStatus] |= pageDirty
}

func (p *page) setClean() {
	p.data[pageOffStatus] &^= pageDirty
}

func (p *page) checksum() uint32 {
	return getUint32LE(p.data[pageOffChecksum:])
}

func (p *page) setChecksum(sum uint32) {
	putUint32LE(p.data[pageOffChecksum:], sum)
}

// updateChecksum recomputes the checksum over the page with the checksum
// field zeroed, then stores it.
func (p *page) updateChecksum() {
	p.setChecksum(0)
	p.setChecksum(computePageChecksum(p.data))
}

// verifyChecksum checks the stored checksum against a recomputation.
func (p *page) verifyChecksum() bool {
	stored := p.checksum()
	p.setChecksum(0)
	ok := stored == computePageChecksum(p.data)
	p.setChecksum(stored)
	return ok
}

// Data page field access.

func (p *page) top() int {
	return int(getUint16LE(p.data[pageOffTop:]))
}

func (p *page) setTop(top int) {
	putUint16LE(p.data[pageOffTop:], uint16(top))
}

func (p *page) freelist() uint16 {
	return getUint16LE(p.data[pageOffFreelist:])
}

func (p *page) setFreelist(head uint16) {
	putUint16LE(p.data[pageOffFreelist:], head)
}

func (p *page) slotCount() int {
	return int(getUint16LE(p.data[pageOffSlotCnt:]))
}

func (p *page) setSlotCount(n int) {
	putUint16LE(p.data[pageOffSlotCnt:], uint16(n))
}

// slot reads the slot entry at the given byte offset.
func (p *page) slot(slotOfs int) uint16 {
	return getUint16LE(p.data[slotOfs:])
}

func (p *page) setSlot(slotOfs int, v uint16) {
	putUint16LE(p.data[slotOfs:], v)
}

// initData initializes a freshly bound buffer as an empty data page.
// The buffer must already be zeroed and its offset set.
func (p *page) initData() {
	p.data[pageOffType] = pageTypeData
	p.setTop(PageSize)
	p.setFreelist(invalidIndex)
	p.setDirty()
}

// freeSpace estimates the usable bytes between the slot array and the node
// area. When the freelist is empty, two extra bytes are reserved for the
// slot entry a new allocation would have to append.
func (p *page) freeSpace() int {
	top := p.top()
	bottom := pageSlotBase + 2*p.slotCount()
	if p.freelist() == invalidIndex {
		bottom += 2
	}
	bottom = alignNode(bottom)
	if top <= bottom {
		return 0
	}
	return top - bottom
}

// nodeAt resolves a slot entry to the node it references. A cleared slot,
// or one holding a freelist link (which points below top, into the slot
// array), means the node has been deleted out from under the caller.
func (p *page) nodeAt(slotOfs int) (int, error) {
	nodeOfs := p.slot(slotOfs)
	if nodeOfs == invalidIndex || int(nodeOfs) < p.top() {
		return 0, NewErrorMsg(ErrInvOper, "node has been deleted")
	}
	return int(nodeOfs), nil
}

// insertNode carves a node of the given aligned size out of the page.
// It pops a slot from the freelist (or appends one), lowers top and binds
// the slot to the new node. The caller has verified freeSpace() >= size.
// Returns the byte offset of the new node.
func (p *page) insertNode(size int) (int, error) {
	var slotOfs int
	next := p.freelist()
	if next == invalidIndex {
		slotOfs = pageSlotBase + 2*p.slotCount()
		p.setSlotCount(p.slotCount() + 1)
	} else {
		slotOfs = int(next)
		p.setFreelist(p.slot(slotOfs))
	}

	newTop := p.top() - size
	p.setTop(newTop)
	p.setSlot(slotOfs, uint16(newTop))

	// check that the node area has not grown into the slot array
	if newTop < pageSlotBase+2*p.slotCount() {
		return 0, NewErrorMsg(ErrInternal, "page corrupted")
	}

	nodeSetSlotOfs(p, newTop, slotOfs)
	nodeSetSize(p, newTop, size)
	return newTop, nil
}

// resizeNode changes a node's size in place, sliding every node between
// top and the resized node by the size delta and fixing their slot
// back-pointers. A newSize of zero frees the node and reclaims its slot.
// Returns the node's byte offset after the move.
//
// Growth never exceeds freeSpace(); the caller checks first. The resize
// never spills to another page.
func (p *page) resizeNode(nodeOfs, newSize int) (int, error) {
	oldSize := nodeSize(p, nodeOfs)
	if newSize == oldSize {
		return nodeOfs, nil
	}
	if newSize > oldSize && newSize-oldSize > p.freeSpace() {
		return 0, NewErrorMsg(ErrInternal, "no space in page for node resize")
	}

	top := p.top()
	newTop := top + oldSize - newSize
	next := nodeOfs + oldSize

	if newSize == 0 {
		// free the node: reclaim its slot entry
		slotOfs := nodeSlotOfs(p, nodeOfs)
		if slotOfs == pageSlotBase-2+2*p.slotCount() {
			// freeing the highest slot: shrink the array
			p.setSlot(slotOfs, 0)
			p.setSlotCount(p.slotCount() - 1)
		} else {
			// push onto the slot freelist
			p.setSlot(slotOfs, p.freelist())
			p.setFreelist(uint16(slotOfs))
		}
	}

	moved := nodeOfs - top // bytes of nodes packed above the resized one
	if newSize < oldSize {
		copy(p.data[newTop:], p.data[top:top+moved+newSize])
		zeroRange(p.data[top:newTop])
	} else {
		copy(p.data[newTop:], p.data[top:top+moved+oldSize])
		// the node grew: clear the fresh tail bytes
		grownOfs := nodeOfs - (newSize - oldSize)
		zeroRange(p.data[grownOfs+oldSize : grownOfs+newSize])
	}
	if newSize != 0 {
		nodeSetSize(p, nodeOfs+oldSize-newSize, newSize)
	}

	// walk the moved nodes and rebind their slots
	cur := newTop
	delta := oldSize - newSize
	for cur < next {
		slotOfs := nodeSlotOfs(p, cur)
		p.setSlot(slotOfs, uint16(int(p.slot(slotOfs))+delta))
		cur += nodeSize(p, cur)
	}
	p.setTop(newTop)
	return nodeOfs + delta, nil
}

// freeNode releases a node's bytes and slot.
func (p *page) freeNode(nodeOfs int) {
	_, _ = p.resizeNode(nodeOfs, 0)
}

func zeroRange(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Header page field access.

func (p *page) pageCount() uint32 {
	return getUint32LE(p.data[hdrOffPageCount:])
}

func (p *page) setPageCount(n uint32) {
	putUint32LE(p.data[hdrOffPageCount:], n)
}

func (p *page) headerPageSize() uint32 {
	return getUint32LE(p.data[hdrOffPageSize:])
}

func (p *page) headerFlags() uint32 {
	return getUint32LE(p.data[hdrOffFlags:])
}

func (p *page) setHeaderFlags(flags uint32) {
	putUint32LE(p.data[hdrOffFlags:], flags)
}

// pagePoolHint returns the hinted page number for an allocation bucket.
func (p *page) pagePoolHint(bucket int) uint32 {
	return getUint32LE(p.data[hdrOffPagePool+4*bucket:])
}

func (p *page) setPagePoolHint(bucket int, pageNum uint32) {
	putUint32LE(p.data[hdrOffPagePool+4*bucket:], pageNum)
}
