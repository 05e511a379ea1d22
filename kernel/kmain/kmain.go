package kmain

import (
	"kaviz/kernel"
	"kaviz/kernel/driver/keyboard"
	"kaviz/kernel/hal"
	"kaviz/kernel/hal/multiboot"
	"kaviz/kernel/heap"
	"kaviz/kernel/irq"
	"kaviz/kernel/mem/pmm/allocator"
	"kaviz/kernel/mem/vmm"
	"kaviz/kernel/proc"
	"kaviz/kernel/sched"
	"kaviz/kernel/timer"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the boot-info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain brings the kernel up in the order mandated by the boot data-flow:
// console, physical memory, virtual memory, heap, interrupts, timer,
// scheduler. It then enables interrupts and falls into the idle loop.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	var err *kernel.Error
	if err = allocator.Init(kernelStart, kernelEnd); err != nil {
		panic(err)
	} else if err = vmm.Init(); err != nil {
		panic(err)
	} else if err = heap.Init(); err != nil {
		panic(err)
	}

	irq.Init()
	keyboard.Init()
	timer.Init()
	sched.Init()

	if _, err = proc.Create("init", 0, initTask, false); err != nil {
		panic(err)
	}

	irq.EnableInterrupts()

	sched.IdleLoop()

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// initTask is PID 1's entry point: the first real task above the idle loop
// (slot 0 of the scheduler's task table). It is a placeholder until a real
// ELF64 loader and VFS lookup exist to exec a user-mode init program; for
// now it just yields forever so the scheduler has a second Ready task to
// round-robin with during development and testing.
func initTask() {
	for {
		sched.Yield()
	}
}
