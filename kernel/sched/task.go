package sched

import "kaviz/kernel/irq"

// State describes where a task sits in its lifecycle (spec §3 TCB).
type State uint8

const (
	// StateReady means the task is runnable but not currently on the CPU.
	StateReady State = iota

	// StateRunning is held by exactly one task at any instant.
	StateRunning

	// StateBlocked is reserved for a future blocking primitive (e.g. a
	// wait queue); nothing in this kernel transitions a task here yet.
	StateBlocked

	// StateSleeping is entered via Sleep and left once SleepTicksRemaining
	// reaches zero.
	StateSleeping

	// StateZombie is entered on task exit; the slot is not reusable until
	// whatever owns the TCB (the process layer) reaps it.
	StateZombie
)

// String renders a State for diagnostics.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSleeping:
		return "sleeping"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// TCB is a task control block: everything the scheduler needs to suspend a
// task and later resume it exactly where it left off (spec §3). The
// general-purpose registers are captured verbatim from the interrupt
// snapshot; RIP/CS/RFlags/RSP/SS mirror the matching irq.Frame fields and
// DS/ES/FS/GS are tracked separately since the CPU does not push them as
// part of an interrupt frame.
type TCB struct {
	ID                  uint32
	State               State
	Priority            uint8
	Ticks               uint64
	SleepTicksRemaining uint64

	Regs irq.Regs

	RIP, RSP, RFlags   uint64
	CS, DS, ES, FS, GS, SS uint64

	inUse     bool
	stackBase uintptr
}

// saveFrom copies the interrupted task's register/frame snapshot into the
// TCB. Called with interrupts already masked (interrupt-gate semantics).
func (t *TCB) saveFrom(frame *irq.Frame, regs *irq.Regs) {
	t.Regs = *regs
	t.RIP = frame.RIP
	t.CS = frame.CS
	t.RFlags = frame.RFlags
	t.RSP = frame.RSP
	t.SS = frame.SS
}

// loadInto overwrites the live register/frame snapshot with this TCB's
// saved state, so that the interrupt return path resumes this task.
func (t *TCB) loadInto(frame *irq.Frame, regs *irq.Regs) {
	*regs = t.Regs
	frame.RIP = t.RIP
	frame.CS = t.CS
	frame.RFlags = t.RFlags
	frame.RSP = t.RSP
	frame.SS = t.SS
}
