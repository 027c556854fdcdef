//go:build !unix

package bufpool

import "github.com/ncw/directio"

// directio.AlignedBlock returns memory aligned to the direct-I/O block
// size (4096), which matches FrameSize.

func allocSlab(size int) ([]byte, error) {
	return directio.AlignedBlock(size), nil
}

func freeSlab(slab []byte) error {
	return nil // garbage collected
}
