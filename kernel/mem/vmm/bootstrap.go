package vmm

import (
	"kaviz/kernel"
	"kaviz/kernel/mem"
)

const (
	// earlyPoolBase is the first virtual address of the VMM's bootstrap
	// byte pool, used to back data structures that must exist before
	// kmalloc is available (the bitmap frame allocator's own pool and
	// free-bitmap slices, in particular). It sits in PML4 slot 510 at PDPT
	// entry 508, apart from the recursive mapping (PML4 slot 511) and the
	// temporary mapping window (slot 510, PDPT entry 511), so it can never
	// alias either.
	earlyPoolBase = uintptr(0xffffff7f00000000)

	// earlyPoolPages sizes the pool at 32 pages (128 KiB), comfortably
	// above the "≥ 16 pages" floor required by spec §4.2.
	earlyPoolPages = 32
	earlyPoolSize  = uintptr(earlyPoolPages) * uintptr(mem.PageSize)
)

var (
	// earlyPoolNext is the bump cursor for the bootstrap pool. This pool
	// never frees: it exists solely to get the kernel through the window
	// between "paging is live" and "kmalloc is live".
	earlyPoolNext = earlyPoolBase

	errEarlyPoolExhausted = &kernel.Error{Module: "vmm", Message: "bootstrap byte pool exhausted"}
)

// EarlyReserveRegion carves out size bytes of virtual address space from the
// VMM's fixed bootstrap byte pool and returns its starting address. It does
// not back the region with physical frames; callers that need the region
// populated must map it themselves via Map, using whatever frame allocator
// is available at the time (see allocator.BitmapAllocator.setupPoolBitmaps).
//
// The pool has a fixed, compile-time size and never grows, so it can be relied upon
// before the kernel heap exists. It never frees.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	const alignMask = 7 // 8-byte alignment, matching the kernel heap's guarantee

	aligned := (uintptr(size) + alignMask) &^ alignMask
	if earlyPoolNext+aligned > earlyPoolBase+earlyPoolSize {
		return 0, errEarlyPoolExhausted
	}

	addr := earlyPoolNext
	earlyPoolNext += aligned
	return addr, nil
}
