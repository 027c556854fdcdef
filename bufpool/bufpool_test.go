package bufpool

import (
	"testing"
	"unsafe"
)

func TestGetReturnsAlignedFrames(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	seen := map[uintptr]bool{}
	for i := 0; i < 3*framesPerSlab; i++ {
		frame, err := p.Get()
		if err != nil {
			t.Fatal(err)
		}
		if len(frame) != FrameSize {
			t.Fatalf("frame %d has size %d", i, len(frame))
		}
		addr := uintptr(unsafe.Pointer(&frame[0]))
		if addr%FrameSize != 0 {
			t.Fatalf("frame %d not page-aligned: %#x", i, addr)
		}
		if seen[addr] {
			t.Fatalf("frame %d reuses address %#x", i, addr)
		}
		seen[addr] = true

		// frames must not share backing storage
		frame[0] = byte(i)
		frame[FrameSize-1] = byte(i)
	}
}

func TestFramesAreZeroed(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	frame, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range frame {
		if b != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}
}
