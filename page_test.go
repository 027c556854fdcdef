package avstor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDataPage(t *testing.T) *page {
	t.Helper()
	p := &page{data: make([]byte, PageSize)}
	p.setOffset(PageSize)
	p.initData()
	return p
}

// insertTestNode carves a node with the given name and payload capacity
// and fills in the fields insertNode leaves to the caller.
func insertTestNode(t *testing.T, p *page, name string, payload int) int {
	t.Helper()
	size := alignNode(alignNode(nodeHdrSize+len(name)) + payload)
	require.GreaterOrEqual(t, p.freeSpace(), size)
	ofs, err := p.insertNode(size)
	require.NoError(t, err)
	nodeSetType(p, ofs, TypeBinary)
	putRef(p.data[ofs+nodeOffLeft:], 0)
	putRef(p.data[ofs+nodeOffRight:], 0)
	nodeSetNameLen(p, ofs, len(name))
	copy(p.data[ofs+nodeHdrSize:], name)
	return ofs
}

func TestPageInsertAndFreeSpace(t *testing.T) {
	p := newTestDataPage(t)
	require.Equal(t, PageSize, p.top())
	require.Equal(t, 0, p.slotCount())

	free := p.freeSpace()
	ofs := insertTestNode(t, p, "alpha", 8)
	size := nodeSize(p, ofs)

	// one slot entry plus the node itself were consumed
	require.Equal(t, PageSize-size, p.top())
	require.Equal(t, 1, p.slotCount())
	require.Less(t, p.freeSpace(), free)
	require.NoError(t, checkPage(p))

	// the free-space equation: top minus the aligned end of the slot
	// array, with one entry reserved while the freelist is empty
	bottom := alignNode(pageSlotBase + 2*p.slotCount() + 2)
	require.Equal(t, p.top()-bottom, p.freeSpace())
}

func TestPageSlotReuse(t *testing.T) {
	p := newTestDataPage(t)
	a := insertTestNode(t, p, "a", 4)
	insertTestNode(t, p, "b", 4)
	insertTestNode(t, p, "c", 4)
	require.Equal(t, 3, p.slotCount())
	require.NoError(t, checkPage(p))

	// freeing a non-last node pushes its slot onto the freelist
	slotA := nodeSlotOfs(p, a)
	p.freeNode(a)
	require.Equal(t, 3, p.slotCount())
	require.Equal(t, uint16(slotA), p.freelist())
	require.NoError(t, checkPage(p))

	// the next insert pops that slot instead of appending
	d := insertTestNode(t, p, "d", 4)
	require.Equal(t, slotA, nodeSlotOfs(p, d))
	require.Equal(t, 3, p.slotCount())
	require.Equal(t, uint16(invalidIndex), p.freelist())
	require.NoError(t, checkPage(p))
}

func TestPageFreeLastSlotShrinksArray(t *testing.T) {
	p := newTestDataPage(t)
	insertTestNode(t, p, "a", 4)
	b := insertTestNode(t, p, "b", 4)
	require.Equal(t, 2, p.slotCount())

	p.freeNode(b)
	require.Equal(t, 1, p.slotCount())
	require.Equal(t, uint16(invalidIndex), p.freelist())
	require.NoError(t, checkPage(p))
}

func TestPageFreeCompactsNodeArea(t *testing.T) {
	p := newTestDataPage(t)
	a := insertTestNode(t, p, "aaaa", 16)
	b := insertTestNode(t, p, "bbbb", 16)
	insertTestNode(t, p, "cccc", 16)
	total := PageSize - p.top()

	// freeing the middle node slides everything above it down
	bSize := nodeSize(p, b)
	p.freeNode(b)
	require.Equal(t, PageSize-(total-bSize), p.top())
	require.NoError(t, checkPage(p))

	// survivors keep their names, reachable through their slots
	aOfs, err := p.nodeAt(nodeSlotOfs(p, a))
	require.NoError(t, err)
	require.Equal(t, "aaaa", string(nodeName(p, aOfs)))
	// the lowest node moved up into the freed space
	require.Equal(t, "cccc", string(nodeName(p, p.top())))
}

func TestPageResizeGrowAndShrink(t *testing.T) {
	p := newTestDataPage(t)
	a := insertTestNode(t, p, "first", 8)
	v := insertTestNode(t, p, "var", 8)
	nodeSetVarLen(p, v, 4)
	copy(p.data[nodeDataOfs(p, v)+1:], "wxyz")

	// grow the variable node
	newSize := alignNode(alignNode(nodeHdrSize+3) + 1 + 100)
	moved, err := p.resizeNode(v, newSize)
	require.NoError(t, err)
	require.Equal(t, newSize, nodeSize(p, moved))
	require.Equal(t, "var", string(nodeName(p, moved)))
	require.NoError(t, checkPage(p))

	// the neighbor below was not moved and is still reachable
	aOfs, err := p.nodeAt(nodeSlotOfs(p, a))
	require.NoError(t, err)
	require.Equal(t, "first", string(nodeName(p, aOfs)))

	// shrink it back
	oldSize := alignNode(alignNode(nodeHdrSize+3) + 1 + 8)
	back, err := p.resizeNode(moved, oldSize)
	require.NoError(t, err)
	require.Equal(t, oldSize, nodeSize(p, back))
	require.Equal(t, "var", string(nodeName(p, back)))
	require.NoError(t, checkPage(p))
}

func TestPageResizeRejectsOversizedGrowth(t *testing.T) {
	p := newTestDataPage(t)
	v := insertTestNode(t, p, "v", 8)
	_, err := p.resizeNode(v, alignNode(PageSize))
	require.Error(t, err)
	require.Equal(t, ErrInternal, Code(err))
}

func TestPageChecksumRoundTrip(t *testing.T) {
	p := newTestDataPage(t)
	insertTestNode(t, p, "payload", 32)
	p.updateChecksum()
	require.True(t, p.verifyChecksum())

	p.data[2000] ^= 0x01
	require.False(t, p.verifyChecksum())
	p.data[2000] ^= 0x01
	require.True(t, p.verifyChecksum())
}

func TestChecksumMatchesRollingDefinition(t *testing.T) {
	// a(0)=1, b(0)=0; after bytes 1,2: a=4, b=6 -> (6<<16)|4
	data := make([]byte, PageSize)
	data[0] = 1
	data[1] = 2
	var a, b uint32 = 1, 0
	for _, c := range data {
		a += uint32(c)
		b += a
	}
	require.Equal(t, (b%modAdler)<<16|(a%modAdler), computePageChecksum(data))
}
