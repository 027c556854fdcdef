//go:build unix

package bufpool

import "golang.org/x/sys/unix"

// Anonymous mappings are page-aligned by construction, which also keeps
// the frames usable with O_DIRECT files.

func allocSlab(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
}

func freeSlab(slab []byte) error {
	return unix.Munmap(slab)
}
