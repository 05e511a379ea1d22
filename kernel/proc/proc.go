// Package proc implements the thin process layer spec §4.7 describes on top
// of kernel/sched's TCBs: identity (PID), parent/child bookkeeping, a
// per-process heap range and a user-mode stack mapped with the User flag,
// in addition to the kernel stack kernel/sched already allocates for every
// task. Like sched's own task table, processes live in a fixed-size slot
// array (spec §3, "allocated in a fixed-size slot array").
package proc

import (
	"kaviz/kernel"
	"kaviz/kernel/cpu"
	"kaviz/kernel/mem"
	"kaviz/kernel/mem/pmm/allocator"
	"kaviz/kernel/mem/vmm"
	"kaviz/kernel/sched"
)

// State mirrors the owning TCB's lifecycle but adds Terminated, a value the
// TCB alone cannot express: a task can be Zombie while its process slot is
// still waiting to be reaped by its parent (SPEC_FULL.md supplemented
// feature, resolving spec §3's silence on slot reuse timing).
type State uint8

const (
	StateEmbryo State = iota
	StateRunning
	StateSleeping
	StateZombie
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateEmbryo:
		return "embryo"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateZombie:
		return "zombie"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	maxProcs = 64

	// userStackPages sizes the ring-3 stack every process gets in addition
	// to the kernel stack kernel/sched already maps for its TCB.
	userStackPages = 4
	userStackSize  = mem.Size(userStackPages) * mem.PageSize

	userStackRegionBase  = uintptr(0xffffff7e00000000)
	userStackSlotStride  = uintptr(userStackSize) + uintptr(mem.PageSize)

	// userHeapRegionBase anchors each process's private [start, end, max)
	// heap range (spec §3 Process fields); max bounds how far BRK-style
	// growth is allowed to go without colliding with the next slot.
	userHeapRegionBase = uintptr(0xffffff7f00000000)
	userHeapSlotStride = uintptr(0x40000000) // 1 GiB per process, plenty of slack
	userHeapMaxSize    = mem.Size(0x10000000)
)

// HeapRange tracks a process's private heap as spec §3 lists it:
// {start, end, max}. Start and Max never change after Create; End grows (or
// shrinks) as the process's own brk-equivalent syscalls run.
type HeapRange struct {
	Start uintptr
	End    uintptr
	Max    uintptr
}

// Process is the spec §4.7 wrapper around a kernel/sched task: PID, state,
// the page-table root it runs under, its two stacks, its heap range, a name
// and parent/child bookkeeping.
type Process struct {
	PID   uint32
	State State
	Name  string

	PageTableRoot uintptr
	UserStackTop  uintptr
	Heap          HeapRange

	Task *sched.TCB

	ParentPID  uint32
	ChildCount uint32

	inUse bool
}

var (
	procs      [maxProcs]Process
	nextPID    uint32 = 1

	errNoFreeSlot = &kernel.Error{Module: "proc", Message: "process table is full"}
	errNotFound   = &kernel.Error{Module: "proc", Message: "no such process"}
)

// Create allocates a process slot, maps a user-mode stack and a zero-length
// heap range, spawns the backing kernel task and wires it to run entry
// either in kernel mode (user=false) or ring 3 (user=true, CS/SS taken from
// the TCB per spec §4.7). It returns the new process.
func Create(name string, parentPID uint32, entry func(), user bool) (*Process, *kernel.Error) {
	slot := -1
	for i := range procs {
		if !procs[i].inUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, errNoFreeSlot
	}

	task, err := sched.AddTask(entry)
	if err != nil {
		return nil, err
	}

	if user {
		task.CS = cpu.UserCodeSelector
		task.SS = cpu.UserDataSelector
	}

	stackTop, err := mapUserStack(slot)
	if err != nil {
		return nil, err
	}

	heapBase := userHeapRegionBase + uintptr(slot)*userHeapSlotStride

	pid := nextPID
	nextPID++

	procs[slot] = Process{
		PID:           pid,
		State:         StateRunning,
		Name:          name,
		PageTableRoot: cpu.ActivePDT(),
		UserStackTop:  stackTop,
		Heap: HeapRange{
			Start: heapBase,
			End:   heapBase,
			Max:   heapBase + uintptr(userHeapMaxSize),
		},
		Task:      task,
		ParentPID: parentPID,
		inUse:     true,
	}

	if parent := lookupLocked(parentPID); parent != nil {
		parent.ChildCount++
	}

	return &procs[slot], nil
}

// mapUserStack maps a fresh ring-3-accessible stack for process slot and
// returns its top.
func mapUserStack(slot int) (uintptr, *kernel.Error) {
	base := userStackRegionBase + uintptr(slot)*userStackSlotStride

	for i := 0; i < userStackPages; i++ {
		frame, err := allocator.FrameAllocator.AllocFrame()
		if err != nil {
			return 0, err
		}

		page := vmm.PageFromAddress(base + uintptr(i)*uintptr(mem.PageSize))
		flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible
		if err := vmm.Map(page, frame, flags, allocator.FrameAllocator.AllocFrame); err != nil {
			return 0, err
		}
	}

	return base + uintptr(userStackSize), nil
}

// Lookup returns the process with the given PID, or nil.
func Lookup(pid uint32) *Process {
	return lookupLocked(pid)
}

func lookupLocked(pid uint32) *Process {
	for i := range procs {
		if procs[i].inUse && procs[i].PID == pid {
			return &procs[i]
		}
	}
	return nil
}

// Exit transitions p's task to Zombie and marks the process itself Zombie;
// the slot is not reusable until Reap runs (spec §4.7, "termination marks
// the slot reusable"). The underlying TCB must be marked Zombie too, not
// just the Process wrapper: schedule() only ever demotes a Running task
// back to Ready, so without this the caller's own task would be handed the
// CPU again by the very next reschedule, resuming right past its exit()
// call (spec §3's "Running → Zombie on exit" invariant).
func Exit(p *Process) {
	p.State = StateZombie
	if p.Task != nil {
		p.Task.State = sched.StateZombie
	}
}

// Reap reclaims a Zombie process's slot once its parent has observed its
// exit (e.g. via a future wait() syscall), decrementing the parent's
// ChildCount per spec §4.7.
func Reap(p *Process) *kernel.Error {
	if p.State != StateZombie {
		return errNotFound
	}

	if parent := lookupLocked(p.ParentPID); parent != nil && parent.ChildCount > 0 {
		parent.ChildCount--
	}

	p.State = StateTerminated
	p.inUse = false
	return nil
}
