package vmm

import (
	"unsafe"

	"kaviz/kernel/mem"
)

// ptePtrFn returns a pointer to the supplied entry address. It is used by
// tests to override the generated page table entry pointers so walk() can
// be exercised without a real MMU.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker is a function that can be passed to walk. The function
// receives the current page level and page table entry as its arguments.
// If the function returns false, the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address, invoking
// walkFn with the page table entry that corresponds to each page level in
// turn. If walkFn returns false, the walk stops early.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
		ok                               bool
	)

	// tableAddr starts out as the recursively-mapped virtual address of the
	// top-most page table; dereferencing it lets the MMU itself walk us
	// down to whichever table each successive level actually names.
	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if ok = walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		// Shift left by this level's bit-width to obtain the virtual
		// address of the table that entryAddr's entry points to.
		entryAddr <<= pageLevelBits[level]
	}
}
