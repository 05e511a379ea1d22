// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"math"

	"kaviz/kernel/mem"
)

// Frame identifies a physical page by index rather than address: frame N
// covers the physical bytes [N*PageSize, (N+1)*PageSize).
type Frame uint64

// InvalidFrame is the sentinel a FrameAllocator returns alongside an error
// when it has no frame to give out.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// PageOrder returns the page order of this frame. The page order is encoded in the
// 8 MSB of the frame number.
func (f Frame) PageOrder() mem.PageOrder {
	return mem.PageOrder((f >> 56) & 0xFF)
}

// Size returns the size of this frame.
func (f Frame) Size() mem.Size {
	return mem.PageSize << ((f >> 56) & 0xFF)
}
