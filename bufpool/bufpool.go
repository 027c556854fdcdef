// Package bufpool provides page-aligned page frames for the cache.
//
// Frames are carved out of 64 KiB slabs obtained from the platform's
// aligned allocator (anonymous mmap on unix, direct-I/O aligned blocks
// elsewhere), so every frame is aligned to its own size. Frames are never
// returned individually; the whole pool is released on Close.
package bufpool

import "sync"

const (
	// FrameSize is the size (and alignment) of every frame
	FrameSize = 4096

	// slabSize is the allocation granule
	slabSize = 64 * 1024

	framesPerSlab = slabSize / FrameSize
)

// Pool hands out page-aligned FrameSize buffers.
type Pool struct {
	mu        sync.Mutex
	slabs     [][]byte
	nextFrame int // next unused frame in the last slab
}

// New creates a pool with one slab pre-allocated.
func New() (*Pool, error) {
	slab, err := allocSlab(slabSize)
	if err != nil {
		return nil, err
	}
	return &Pool{slabs: [][]byte{slab}}, nil
}

// Get returns the next free frame, growing the pool by a slab when the
// current one is exhausted.
func (p *Pool) Get() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nextFrame >= framesPerSlab {
		slab, err := allocSlab(slabSize)
		if err != nil {
			return nil, err
		}
		p.slabs = append(p.slabs, slab)
		p.nextFrame = 0
	}
	slab := p.slabs[len(p.slabs)-1]
	frame := slab[p.nextFrame*FrameSize : (p.nextFrame+1)*FrameSize : (p.nextFrame+1)*FrameSize]
	p.nextFrame++
	return frame, nil
}

// Close releases every slab. All frames become invalid.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, slab := range p.slabs {
		if err := freeSlab(slab); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.slabs = nil
	p.nextFrame = framesPerSlab
	return firstErr
}
