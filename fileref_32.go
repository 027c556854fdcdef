//go:build !avstor64

package avstor

// 32-bit node references (the default file format). Files are limited to
// 2 GiB. Build with -tags avstor64 for 64-bit references.

const (
	// file64 reports whether this build reads and writes 64-bit references
	file64 = false

	// refSize is the on-disk size of a node reference inside a node
	refSize = 4

	// maxFilePages bounds the page count for this reference width
	maxFilePages = 0x80000000/PageSize - 1
)

func getRef(b []byte) uint64 {
	return uint64(getUint32LE(b))
}

func putRef(b []byte, v uint64) {
	putUint32LE(b, uint32(v))
}
