package avstor

// Node layout. Nodes live inside data pages, 4-byte aligned, and are
// addressed through their page's slot array.
//
// Layout (little-endian, ref = 4 or 8 bytes depending on build):
//
//	Offset        Size  Field
//	0             2     header: bits 0..1 balance factor (+1 bias),
//	                    bits 2..5 type, bits 6..15 size/4
//	2             2     slot back-pointer (byte offset of the owning slot)
//	4             ref   left child reference
//	4+ref         ref   right child reference
//	4+2*ref       1     name length
//	5+2*ref       n     name bytes, padded to 4-byte alignment
//	(aligned)     ...   typed payload
//
// Typed payloads:
//
//	key         subkey root ref | value root ref | level u16 | pad u16
//	int32       i32
//	int64       8 bytes, 4-byte aligned
//	double      8 bytes (IEEE-754 bit pattern), 4-byte aligned
//	string      length u8 | bytes
//	binary      length u8 | bytes
//	longstring  length u32 | chunk root ref (chunk format reserved)
//	longbinary  length u32 | chunk root ref (chunk format reserved)
//	link        target ref
const (
	nodeOffSlot    = 2
	nodeOffLeft    = 4
	nodeOffRight   = 4 + refSize
	nodeOffNameLen = 4 + 2*refSize

	// nodeHdrSize is the fixed prefix before the name bytes
	nodeHdrSize = 5 + 2*refSize
)

// nodeFlagVar marks types with a variable-length inline payload;
// nodeFlagLongVar marks the long envelope types.
const (
	nodeFlagVar     = 1
	nodeFlagLongVar = 2
)

// nodeClass describes the fixed payload of each node type.
type nodeClass struct {
	szdata int
	flags  int
}

var nodeClasses = [16]nodeClass{
	TypeKey:        {2*refSize + 4, 0},
	TypeInt32:      {4, 0},
	TypeInt64:      {8, 0},
	TypeDouble:     {8, 0},
	TypeString:     {1, nodeFlagVar},
	TypeBinary:     {1, nodeFlagVar},
	TypeLongString: {4 + refSize, nodeFlagLongVar},
	TypeLongBinary: {4 + refSize, nodeFlagLongVar},
	TypeLink:       {refSize, 0},
}

func nodeHdr(p *page, n int) uint16 {
	return getUint16LE(p.data[n:])
}

func nodeSetHdr(p *page, n int, hdr uint16) {
	putUint16LE(p.data[n:], hdr)
}

// nodeBF returns the stored balance factor (-1, 0 or +1).
func nodeBF(p *page, n int) int {
	return int(nodeHdr(p, n)&nodeBFMask) - 1
}

func nodeSetBF(p *page, n, bf int) {
	nodeSetHdr(p, n, nodeHdr(p, n)&^nodeBFMask|uint16(bf+1))
}

func nodeType(p *page, n int) int {
	return int(nodeHdr(p, n)&nodeTypeMask) >> 2
}

func nodeSetType(p *page, n, typ int) {
	nodeSetHdr(p, n, nodeHdr(p, n)&^uint16(nodeTypeMask)|uint16(typ<<2))
}

// nodeSize returns the node's aligned size in bytes.
func nodeSize(p *page, n int) int {
	return int(nodeHdr(p, n)&nodeSizeMask) >> 4
}

func nodeSetSize(p *page, n, size int) {
	nodeSetHdr(p, n, nodeHdr(p, n)&^uint16(nodeSizeMask)|uint16(size<<4))
}

func nodeSlotOfs(p *page, n int) int {
	return int(getUint16LE(p.data[n+nodeOffSlot:]))
}

func nodeSetSlotOfs(p *page, n, slotOfs int) {
	putUint16LE(p.data[n+nodeOffSlot:], uint16(slotOfs))
}

func nodeLeft(p *page, n int) uint64 {
	return getRef(p.data[n+nodeOffLeft:])
}

func nodeRight(p *page, n int) uint64 {
	return getRef(p.data[n+nodeOffRight:])
}

func nodeNameLen(p *page, n int) int {
	return int(p.data[n+nodeOffNameLen])
}

func nodeSetNameLen(p *page, n, szname int) {
	p.data[n+nodeOffNameLen] = byte(szname)
}

func nodeName(p *page, n int) []byte {
	sz := nodeNameLen(p, n)
	return p.data[n+nodeHdrSize : n+nodeHdrSize+sz]
}

// nodeDataOfs returns the byte offset of the node's typed payload.
func nodeDataOfs(p *page, n int) int {
	return n + alignNode(nodeHdrSize+nodeNameLen(p, n))
}

// nodeRefOfs returns the node's file reference: the containing page's
// offset combined with the node's slot-entry offset.
func nodeRefOfs(p *page, n int) uint64 {
	return p.offset() + uint64(nodeSlotOfs(p, n))
}

// Key payload.

func keySubkeyRootOfs(p *page, n int) int {
	return nodeDataOfs(p, n)
}

func keyValueRootOfs(p *page, n int) int {
	return nodeDataOfs(p, n) + refSize
}

func keyLevel(p *page, n int) int {
	return int(getUint16LE(p.data[nodeDataOfs(p, n)+2*refSize:]))
}

func keySetLevel(p *page, n, level int) {
	putUint16LE(p.data[nodeDataOfs(p, n)+2*refSize:], uint16(level))
}

// Fixed payloads.

func nodeInt32(p *page, n int) int32 {
	return int32(getUint32LE(p.data[nodeDataOfs(p, n):]))
}

func nodeSetInt32(p *page, n int, v int32) {
	putUint32LE(p.data[nodeDataOfs(p, n):], uint32(v))
}

func nodeUint64(p *page, n int) uint64 {
	return getUint64LE(p.data[nodeDataOfs(p, n):])
}

func nodeSetUint64(p *page, n int, v uint64) {
	putUint64LE(p.data[nodeDataOfs(p, n):], v)
}

// Variable payloads (string, binary): one length byte then the bytes.

func nodeVarLen(p *page, n int) int {
	return int(p.data[nodeDataOfs(p, n)])
}

func nodeSetVarLen(p *page, n, length int) {
	p.data[nodeDataOfs(p, n)] = byte(length)
}

func nodeVarBytes(p *page, n int) []byte {
	d := nodeDataOfs(p, n)
	return p.data[d+1 : d+1+nodeVarLen(p, n)]
}

// Long payload envelope: u32 length then a chunk-tree root reference.
// The chunk format itself is reserved.

func nodeLongLen(p *page, n int) uint32 {
	return getUint32LE(p.data[nodeDataOfs(p, n):])
}

// Link payload.

func nodeLinkTarget(p *page, n int) uint64 {
	return getRef(p.data[nodeDataOfs(p, n):])
}

func nodeSetLinkTarget(p *page, n int, target uint64) {
	putRef(p.data[nodeDataOfs(p, n):], target)
}
