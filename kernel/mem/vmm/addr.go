package vmm

import (
	"kaviz/kernel"
	"kaviz/kernel/cpu"
	"kaviz/kernel/mem"
)

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (f Page) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(mem.PageSize - 1))) >> mem.PageShift)
}

// Translate walks the currently active page tables and returns the physical
// address that corresponds to the supplied virtual address, or
// ErrInvalidMapping if the virtual address is not currently mapped.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	pageOffset := virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
	return pte.Frame().Address() + pageOffset, nil
}

// flushTLBEntry flushes the TLB entry caching the translation for virtAddr.
func flushTLBEntry(virtAddr uintptr) {
	cpu.FlushTLBEntry(virtAddr)
}

// switchPDT points CR3 at the page table rooted at pdtPhysAddr, flushing the
// entire TLB in the process.
func switchPDT(pdtPhysAddr uintptr) {
	cpu.SwitchPDT(pdtPhysAddr)
}

// activePDT returns the physical address currently loaded into CR3.
func activePDT() uintptr {
	return cpu.ActivePDT()
}
