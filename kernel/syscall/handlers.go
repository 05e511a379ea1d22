package syscall

import (
	"kaviz/kernel/proc"
	"kaviz/kernel/sched"
)

// sysExit implements exit(status): it marks the caller's process Zombie and
// reschedules away from it. The caller's kernel task never runs again; its
// slot is reclaimed later by a wait() once that syscall is wired in.
func sysExit(caller *proc.Process, status, _, _, _, _, _ uint64) uint64 {
	if caller != nil {
		proc.Exit(caller)
	}
	sched.Yield()
	return status
}

// sysGetpid implements getpid().
func sysGetpid(caller *proc.Process, _, _, _, _, _, _ uint64) uint64 {
	if caller == nil {
		return ErrUnimplemented
	}
	return uint64(caller.PID)
}

// sysSleep implements sleep(ticks); spec §6 leaves units to the
// implementation and SPEC_FULL.md resolves them to ticks (§9 open question
// 4), matching kernel/timer.SleepMS and kernel/sched.Sleep.
func sysSleep(_ *proc.Process, ticks, _, _, _, _, _ uint64) uint64 {
	sched.Sleep(ticks)
	return 0
}

// sysYield implements yield().
func sysYield(_ *proc.Process, _, _, _, _, _, _ uint64) uint64 {
	sched.Yield()
	return 0
}
