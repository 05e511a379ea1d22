// Package sched owns the kernel's task table and implements round-robin
// scheduling with cooperative sleep and timer-driven preemption (spec
// §4.6). Every context switch — whether triggered by the timer's quantum
// or a voluntary Yield/Sleep — flows through the same mechanism: the CPU's
// own interrupt-frame snapshot. A voluntary reschedule raises
// irq.RescheduleVector via cpu.Reschedule so the hardware builds an
// interrupt frame for it exactly as it would for a real IRQ, and
// schedule() never has to know which case it is handling.
package sched

import (
	"reflect"

	"kaviz/kernel"
	"kaviz/kernel/cpu"
	"kaviz/kernel/irq"
	"kaviz/kernel/kfmt/early"
	"kaviz/kernel/mem"
	"kaviz/kernel/mem/pmm/allocator"
	"kaviz/kernel/mem/vmm"
	"kaviz/kernel/sync"
	"kaviz/kernel/timer"
)

const (
	// maxTasks bounds the fixed-size task table (spec §3: "allocated in a
	// fixed-size slot array").
	maxTasks = 64

	// idleSlot is the reserved TCB for the implementation-provided idle
	// task (spec §4.6): it is whatever was executing (IdleLoop's hlt
	// loop) the first time a tick ever finds nothing else ready.
	idleSlot = 0

	// kernelStackPages sizes every task's kernel stack at 64 KiB (spec
	// §4.6).
	kernelStackPages = 16
	kernelStackSize  = mem.Size(kernelStackPages) * mem.PageSize

	// kernelStackRegionBase anchors per-task kernel stacks in PML4 slot
	// 510 at their own PDPT entry (496). Each slot reserves one extra guard page below the
	// mapped range so a stack overflow faults instead of silently
	// corrupting the next task's stack.
	kernelStackRegionBase = uintptr(0xffffff7c00000000)
	kernelStackSlotStride = uintptr(kernelStackSize) + uintptr(mem.PageSize)

	// initialRFlags sets IF=1 (so a freshly dispatched task runs with
	// interrupts enabled) and bit 1, which the architecture always
	// requires to be set (spec §4.6).
	initialRFlags = uint64(0x202)
)

var (
	tasks      [maxTasks]TCB
	currentIdx int
	nextTaskID uint32 = 1

	errNoFreeSlot = &kernel.Error{Module: "sched", Message: "task table is full"}
)

// Init installs the idle task in slot 0 as the initially running task and
// wires schedule() to both the timer's quantum tick and the voluntary
// reschedule gate. It must run after irq.Init and timer.Init.
func Init() {
	tasks[idleSlot] = TCB{
		ID:     0,
		State:  StateRunning,
		inUse:  true,
		CS:     cpu.KernelCodeSelector,
		SS:     cpu.KernelDataSelector,
		DS:     cpu.KernelDataSelector,
		ES:     cpu.KernelDataSelector,
		FS:     cpu.KernelDataSelector,
		GS:     cpu.KernelDataSelector,
		RFlags: initialRFlags,
	}
	currentIdx = idleSlot

	timer.OnQuantum(schedule)
	irq.HandleReschedule(schedule)
	sync.SetYieldFunc(Yield)

	early.Printf("[sched] task table ready (%d slots)\n", maxTasks)
}

// AddTask allocates a free slot, seeds its initial register state so it
// starts executing at entry with a fresh 64 KiB kernel stack, and places it
// in Ready (spec §4.6). entry must be a plain function value with no
// captured environment: its code address is resolved once, at creation
// time, via reflection rather than a genuine indirect call, so a closure
// that relies on its captured variables would not see them.
func AddTask(entry func()) (*TCB, *kernel.Error) {
	cpu.DisableInterrupts()
	defer cpu.EnableInterrupts()

	slot := -1
	for i := range tasks {
		if !tasks[i].inUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, errNoFreeSlot
	}

	stackTop, err := allocKernelStack(slot)
	if err != nil {
		return nil, err
	}

	id := nextTaskID
	nextTaskID++

	tasks[slot] = TCB{
		ID:     id,
		State:  StateReady,
		inUse:  true,
		RIP:    uint64(reflect.ValueOf(entry).Pointer()),
		RSP:    uint64(stackTop),
		RFlags: initialRFlags,
		CS:     cpu.KernelCodeSelector,
		SS:     cpu.KernelDataSelector,
		DS:     cpu.KernelDataSelector,
		ES:     cpu.KernelDataSelector,
		FS:     cpu.KernelDataSelector,
		GS:     cpu.KernelDataSelector,
	}

	return &tasks[slot], nil
}

// allocKernelStack maps a fresh 64 KiB kernel stack for task slot and
// returns its top (stacks grow down, so execution starts at the highest
// mapped address).
func allocKernelStack(slot int) (uintptr, *kernel.Error) {
	base := kernelStackRegionBase + uintptr(slot)*kernelStackSlotStride

	for i := 0; i < kernelStackPages; i++ {
		frame, err := allocator.FrameAllocator.AllocFrame()
		if err != nil {
			return 0, err
		}

		page := vmm.PageFromAddress(base + uintptr(i)*uintptr(mem.PageSize))
		if err := vmm.Map(page, frame, vmm.FlagPresent|vmm.FlagRW, allocator.FrameAllocator.AllocFrame); err != nil {
			return 0, err
		}
	}

	return base + uintptr(kernelStackSize), nil
}

// Yield performs a voluntary reschedule.
func Yield() {
	cpu.Reschedule()
}

// Sleep marks the current task Sleeping for the given number of ticks and
// reschedules. It must not be called from interrupt context.
func Sleep(ticks uint64) {
	cpu.DisableInterrupts()
	tasks[currentIdx].State = StateSleeping
	tasks[currentIdx].SleepTicksRemaining = ticks
	cpu.EnableInterrupts()

	cpu.Reschedule()
}

// Current returns the TCB of the currently running task.
func Current() *TCB {
	return &tasks[currentIdx]
}

// IdleLoop is the body of the implementation-provided idle task: it simply
// halts until the next interrupt. Kmain falls into this after enabling
// interrupts; the first timer tick that finds no other Ready task resumes
// right back here.
func IdleLoop() {
	for {
		cpu.Halt()
	}
}

// schedule is installed both as the timer's quantum callback and as the
// RescheduleVector handler, so every switch — preemptive or voluntary —
// goes through identical logic: save the outgoing task's state out of the
// live interrupt snapshot, pick the next Ready task with a circular scan
// that also ages every Sleeping task it passes over, and load that task's
// state into the same snapshot so the shared IRETQ path resumes it.
func schedule(frame *irq.Frame, regs *irq.Regs) {
	cur := &tasks[currentIdx]
	cur.saveFrom(frame, regs)
	if cur.State == StateRunning {
		cur.State = StateReady
	}

	next := pickNext()
	tasks[next].State = StateRunning
	currentIdx = next
	tasks[next].loadInto(frame, regs)
}

// pickNext implements the circular scan of spec §4.6: starting right after
// the current task, it visits every slot exactly once, decrementing
// SleepTicksRemaining for every Sleeping task it passes and promoting any
// that reach zero back to Ready. It returns the first Ready task found, or
// idleSlot if the full circle turns up nothing. A Zombie task (spec §3:
// "Running → Zombie on exit") is never a candidate: it falls through both
// branches below and is simply skipped, the same as a Blocked one.
func pickNext() int {
	n := len(tasks)
	for i := 1; i <= n; i++ {
		idx := (currentIdx + i) % n
		t := &tasks[idx]
		if !t.inUse || t.State == StateZombie {
			continue
		}

		if t.State == StateSleeping {
			if t.SleepTicksRemaining > 0 {
				t.SleepTicksRemaining--
			}
			if t.SleepTicksRemaining == 0 {
				t.State = StateReady
			}
		}

		if t.State == StateReady {
			return idx
		}
	}

	return idleSlot
}
