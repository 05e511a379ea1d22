// Package cpu exposes the small set of architecture primitives that cannot
// be expressed in portable Go: control register access, port I/O, model
// specific registers and the handful of instructions (lidt, hlt, sti, cli,
// invlpg) that the rest of the kernel treats as opaque building blocks.
//
// Every exported function here is a thin wrapper around exactly one
// instruction, or a very small fixed sequence of them. The assembly bodies
// live in cpu_amd64.s; the only other assembly in the kernel is
// kernel/irq's interrupt entry stubs (stubs_amd64.s).
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// Pause executes the PAUSE instruction, a hint to the CPU that the current
// code is in a spin-wait loop. It reduces power use and the penalty a spinning
// core imposes on its sibling's memory-order misprediction recovery.
func Pause()

// Reschedule raises the software-only interrupt gate that kernel/sched
// installs its schedule() routine on (irq.RescheduleVector, vector 0x81).
// Routing voluntary yield()/sleep() through INT rather than a hand-written
// assembly context switch means the scheduler only has to reason about one
// context-switch shape: the register/stack snapshot the CPU already builds
// for every interrupt.
func Reschedule()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the faulting linear address recorded by the CPU for the
// most recently delivered page fault.
func ReadCR2() uintptr

// Segment selectors installed in the GDT by the rt0 boot stub before Kmain
// ever runs (spec §6). Kernel code always runs at selector KernelCodeSelector
// / KernelDataSelector; the user selectors are reserved for the process
// layer's eventual ring-3 support.
const (
	KernelCodeSelector = 0x08
	KernelDataSelector = 0x10
	UserCodeSelector    = 0x18 | 3 // RPL 3
	UserDataSelector    = 0x20 | 3 // RPL 3
)

func readMSR(msr uint64) uint64
func writeMSR(msr, value uint64)

// ReadMSR returns the 64-bit value of the model-specific register msr.
func ReadMSR(msr uint32) uint64 {
	return readMSR(uint64(msr))
}

// WriteMSR stores value into the model-specific register msr.
func WriteMSR(msr uint32, value uint64) {
	writeMSR(uint64(msr), value)
}

func loadIDT(idtrAddr uint64)

// LoadIDT executes LIDT against the IDTR image (a packed
// {limit uint16; base uint64} record) stored at idtrAddr.
func LoadIDT(idtrAddr uintptr) {
	loadIDT(uint64(idtrAddr))
}
