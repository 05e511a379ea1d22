package kernel

import (
	"kaviz/kernel/cpu"
	"kaviz/kernel/kfmt/early"
)

var (
	// cpuHaltFn is mocked by tests.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic reports the supplied error (if not nil) to the console and halts
// the CPU. It never returns, and also serves as the redirection target for
// calls to the builtin panic() (resolved via runtime.gopanic), since there
// is no way to unwind a kernel stack safely once something has gone wrong
// this early.
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	err := asError(e)

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

// asError normalizes whatever was passed to panic()/Panic() into an *Error,
// reusing errRuntimePanic for inputs that did not already carry one.
func asError(e interface{}) *Error {
	switch t := e.(type) {
	case *Error:
		return t
	case string:
		errRuntimePanic.Message = t
	case error:
		errRuntimePanic.Message = t.Error()
	default:
		return nil
	}
	return errRuntimePanic
}
