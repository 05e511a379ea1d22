// Package syscall holds the numeric system-call table spec §6 defines.
// There is no user-mode transport yet (no SYSCALL/SYSRET entry stub, no
// ring-3 trampoline) — handlers are reached by a direct call from kernel
// code, exactly as spec §2 row 10 describes ("no transport yet"). Wiring a
// real ring-3 entry point is future work for the ELF loader and process
// layer once they support launching user binaries.
package syscall

import "kaviz/kernel/proc"

// Number identifies a system call in the dispatcher's table (spec §6).
type Number uint64

const (
	Exit Number = iota
	Write
	Read
	Open
	Close
	Fork
	Exec
	Wait
	Sleep
	Getpid
	Yield
)

// ErrUnimplemented is the return value of any syscall number whose handler
// has not been wired up yet (spec §6: "unimplemented handlers return -1").
const ErrUnimplemented = ^uint64(0) // -1 as uint64

// Handler receives the six 64-bit arguments spec §6 specifies (unused
// trailing ones are simply ignored) and returns a single 64-bit result.
type Handler func(caller *proc.Process, a1, a2, a3, a4, a5, a6 uint64) uint64

// table is indexed by Number; an absent entry falls back to the
// unimplemented handler.
var table = map[Number]Handler{
	Exit:   sysExit,
	Getpid: sysGetpid,
	Sleep:  sysSleep,
	Yield:  sysYield,
}

// Register installs (or replaces) the handler for num. It exists so the
// out-of-core collaborators (the VFS dispatcher, the ELF loader, the ATA/FAT
// stack) can wire Write/Read/Open/Close/Fork/Exec/Wait once they exist,
// without this package importing any of them.
func Register(num Number, h Handler) {
	table[num] = h
}

// Dispatch looks up num's handler and invokes it with the given arguments,
// or returns ErrUnimplemented if none is registered (spec §6).
func Dispatch(caller *proc.Process, num Number, a1, a2, a3, a4, a5, a6 uint64) uint64 {
	h, ok := table[num]
	if !ok {
		return ErrUnimplemented
	}
	return h(caller, a1, a2, a3, a4, a5, a6)
}
