package proc

import (
	"testing"

	"kaviz/kernel/sched"
)

// resetProcs clears the package-level process table between tests, mirroring
// the reset-the-package-state pattern used throughout this codebase's tests
// (e.g. heap.resetArena).
func resetProcs(t *testing.T) {
	t.Helper()
	procs = [maxProcs]Process{}
	nextPID = 1
	t.Cleanup(func() { procs = [maxProcs]Process{}; nextPID = 1 })
}

func TestExitMarksZombie(t *testing.T) {
	resetProcs(t)

	procs[0] = Process{PID: 1, State: StateRunning, inUse: true}
	p := &procs[0]

	Exit(p)

	if p.State != StateZombie {
		t.Fatalf("expected StateZombie, got %v", p.State)
	}
}

// TestExitMarksUnderlyingTaskZombie guards against the task table handing
// an "exited" task the CPU again: schedule() only ever demotes a Running
// task back to Ready, so Exit must push the TCB itself into StateZombie,
// not just the Process wrapper around it.
func TestExitMarksUnderlyingTaskZombie(t *testing.T) {
	resetProcs(t)

	task := &sched.TCB{State: sched.StateRunning}
	procs[0] = Process{PID: 1, State: StateRunning, inUse: true, Task: task}
	p := &procs[0]

	Exit(p)

	if task.State != sched.StateZombie {
		t.Fatalf("expected underlying task to be StateZombie, got %v", task.State)
	}
}

func TestReapRequiresZombie(t *testing.T) {
	resetProcs(t)

	procs[0] = Process{PID: 1, State: StateRunning, inUse: true}
	p := &procs[0]

	if err := Reap(p); err == nil {
		t.Fatal("expected error reaping a non-zombie process")
	}
}

func TestReapDecrementsParentChildCount(t *testing.T) {
	resetProcs(t)

	procs[0] = Process{PID: 1, State: StateRunning, inUse: true, ChildCount: 1}
	procs[1] = Process{PID: 2, State: StateZombie, inUse: true, ParentPID: 1}

	child := &procs[1]

	if err := Reap(child); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if procs[0].ChildCount != 0 {
		t.Fatalf("expected parent ChildCount 0, got %d", procs[0].ChildCount)
	}
	if child.inUse {
		t.Fatal("expected slot to be freed after reap")
	}
	if child.State != StateTerminated {
		t.Fatalf("expected StateTerminated, got %v", child.State)
	}
}

func TestLookupFindsByPID(t *testing.T) {
	resetProcs(t)

	procs[3] = Process{PID: 42, State: StateRunning, inUse: true}

	if got := Lookup(42); got == nil || got.PID != 42 {
		t.Fatalf("expected to find PID 42, got %+v", got)
	}

	if got := Lookup(99); got != nil {
		t.Fatalf("expected nil for unknown PID, got %+v", got)
	}
}
