//go:build avstor64

package avstor

// 64-bit node references. The reference is stored as two 32-bit halves
// (low first) so that node structures keep 4-byte alignment inside pages;
// on a little-endian file that is byte-identical to a little-endian uint64.

const (
	// file64 reports whether this build reads and writes 64-bit references
	file64 = true

	// refSize is the on-disk size of a node reference inside a node
	refSize = 8

	// maxFilePages bounds the page count for this reference width
	maxFilePages = 0xFFFFFFFF
)

func getRef(b []byte) uint64 {
	return getUint64LE(b)
}

func putRef(b []byte, v uint64) {
	putUint64LE(b, v)
}
