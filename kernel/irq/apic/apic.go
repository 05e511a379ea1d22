// Package apic enables the single local APIC present on this machine and
// programs the I/O APIC to route the two legacy IRQ lines the kernel cares
// about (timer and keyboard) to fixed vectors. There is no SMP support and
// no ACPI MADT parsing (spec §1, §9 open question #2): the I/O APIC base
// address is the architectural default used whenever ACPI discovery is
// skipped.
package apic

import (
	"unsafe"

	"kaviz/kernel"
	"kaviz/kernel/kfmt/early"
	"kaviz/kernel/mem"
	"kaviz/kernel/mem/pmm"
	"kaviz/kernel/mem/pmm/allocator"
	"kaviz/kernel/mem/vmm"

	"kaviz/kernel/cpu"
)

const (
	// ia32APICBaseMSR holds the LAPIC's physical base address (bits
	// 12-51) plus enable/BSP flags.
	ia32APICBaseMSR = 0x1B
	apicGlobalEnable = 1 << 11

	// lapicDefaultPhysAddr is used only as a fallback if the MSR somehow
	// reports zero; in practice every amd64 part since the P6 reports the
	// architectural 0xFEE00000 base here.
	lapicDefaultPhysAddr = 0xFEE00000

	// ioapicPhysAddr is the memory-mapped I/O APIC base used in the
	// absence of ACPI MADT discovery (spec §4.4 step 4, §6).
	ioapicPhysAddr = 0xFEC00000

	// mmioWindowBase anchors a 2-page virtual window the VMM reserves for
	// the LAPIC and I/O APIC MMIO regions; it sits in PML4 slot 510 at its
	// own PDPT entry (500), clear of the heap, bootstrap pool and
	// recursive/temporary mappings.
	mmioWindowBase = uintptr(0xffffff7d00000000)
)

// LAPIC register offsets (32-bit registers, 16-byte aligned).
const (
	regID       = 0x020
	regVersion  = 0x030
	regTPR      = 0x080
	regEOI      = 0x0B0
	regSVR      = 0x0F0
	regLVTTimer = 0x320
	regTimerInitCount = 0x380
	regTimerCurCount  = 0x390
	regTimerDivide    = 0x3E0
)

// I/O APIC registers, accessed indirectly through an index/data pair.
const (
	ioregSel = 0x00
	ioregWin = 0x10

	ioapicRedTblBase = 0x10 // each entry is 2 32-bit registers, 2 per IRQ
)

var (
	lapicBase  uintptr
	ioapicBase uintptr

	errNoMemory = &kernel.Error{Module: "apic", Message: "failed to map LAPIC/IOAPIC MMIO window"}
)

// Init enables the local APIC (reading IA32_APIC_BASE, setting the enable
// bit, arming the spurious-interrupt vector and zeroing the task-priority
// register) and programs the I/O APIC to redirect IRQ0 to vector
// timerVector and IRQ1 to vector keyboardVector, both to the BSP.
func Init(timerVector, keyboardVector uint8) *kernel.Error {
	base := cpu.ReadMSR(ia32APICBaseMSR)
	physAddr := uintptr(base &^ 0xFFF)
	if physAddr == 0 {
		physAddr = lapicDefaultPhysAddr
	}

	var err *kernel.Error
	if lapicBase, err = mapMMIO(0, physAddr); err != nil {
		return err
	}
	if ioapicBase, err = mapMMIO(1, ioapicPhysAddr); err != nil {
		return err
	}

	cpu.WriteMSR(ia32APICBaseMSR, base|apicGlobalEnable)

	writeLAPIC(regSVR, (1<<8)|0xFF) // software-enable, spurious vector 0xFF
	writeLAPIC(regTPR, 0)

	ioapicRedirect(0, timerVector)
	ioapicRedirect(1, keyboardVector)

	early.Printf("[apic] lapic id=0x%x ver=0x%x, ioapic programmed\n", readLAPIC(regID), readLAPIC(regVersion))
	return nil
}

// mapMMIO maps a single 4 KiB uncached page at physAddr into slot (0 or 1)
// of the reserved MMIO window and returns its virtual address.
func mapMMIO(slot int, physAddr uintptr) (uintptr, *kernel.Error) {
	vaddr := mmioWindowBase + uintptr(slot)*uintptr(mem.PageSize)
	frame := pmm.Frame(physAddr >> mem.PageShift)
	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagDoNotCache
	if err := vmm.Map(vmm.PageFromAddress(vaddr), frame, flags, allocator.FrameAllocator.AllocFrame); err != nil {
		return 0, errNoMemory
	}
	return vaddr, nil
}

func readLAPIC(reg uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(lapicBase + reg))
}

func writeLAPIC(reg uintptr, value uint32) {
	*(*uint32)(unsafe.Pointer(lapicBase + reg)) = value
}

func readIOAPIC(reg uint32) uint32 {
	*(*uint32)(unsafe.Pointer(ioapicBase + ioregSel)) = reg
	return *(*uint32)(unsafe.Pointer(ioapicBase + ioregWin))
}

func writeIOAPIC(reg uint32, value uint32) {
	*(*uint32)(unsafe.Pointer(ioapicBase + ioregSel)) = reg
	*(*uint32)(unsafe.Pointer(ioapicBase + ioregWin)) = value
}

// ioapicRedirect points irq at vector, delivered to the BSP (destination 0)
// in fixed, unmasked mode.
func ioapicRedirect(irq uint8, vector uint8) {
	low := ioapicRedTblBase + uint32(irq)*2
	high := low + 1

	writeIOAPIC(high, 0) // destination APIC ID 0 (BSP)
	writeIOAPIC(low, uint32(vector))
}

// SendEOI acknowledges the interrupt currently being serviced. It must be
// the last operation an APIC-routed interrupt handler performs.
func SendEOI() {
	writeLAPIC(regEOI, 0)
}

// ProgramTimer arms the LAPIC timer in periodic mode at divide-by-16,
// vectored at vector, with the given initial count.
func ProgramTimer(vector uint8, initialCount uint32) {
	const (
		divideBy16 = 0x3
		periodic   = 1 << 17
	)
	writeLAPIC(regTimerDivide, divideBy16)
	writeLAPIC(regLVTTimer, periodic|uint32(vector))
	writeLAPIC(regTimerInitCount, initialCount)
}
