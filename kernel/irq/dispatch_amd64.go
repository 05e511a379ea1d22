package irq

import (
	"kaviz/kernel/cpu"
	"kaviz/kernel/kfmt/early"
)

// dispatch is invoked by the common assembly entry stub (see
// stubs_amd64.s) for every interrupt, exception and syscall gate. vector
// identifies which IDT slot fired; errCode is either the CPU-pushed error
// code or 0 for vectors that do not push one. vector is widened to uint64
// (rather than the more natural uint8) so the assembly trampoline can lay
// out the call's stack arguments without alignment padding between it and
// errCode.
//
//go:noinline
func dispatch(vector uint64, errCode uint64, regs *Regs, frame *Frame) {
	switch {
	case vector < 32:
		dispatchException(ExceptionNum(vector), errCode, regs, frame)
	case vector == SyscallVector:
		if syscallHandlerFn != nil {
			syscallHandlerFn(regs)
		}
	case vector == RescheduleVector:
		if rescheduleHandlerFn != nil {
			rescheduleHandlerFn(frame, regs)
		}
	case vector >= vectorBase && vector < vectorBase+16:
		irqNum := IRQNum(vector - vectorBase)
		if handler := irqHandlers[irqNum]; handler != nil {
			handler(frame, regs)
		}
		sendEOI(irqNum)
	default:
		early.Printf("\nspurious interrupt: vector 0x%x\n", vector)
	}
}

func dispatchException(num ExceptionNum, errCode uint64, regs *Regs, frame *Frame) {
	if errCodeExceptions[num] {
		if handler := exceptionHandlersWithCode[num]; handler != nil {
			handler(errCode, frame, regs)
			return
		}
	} else if handler := exceptionHandlers[num]; handler != nil {
		handler(frame, regs)
		return
	}

	early.Printf("\nunhandled exception %d (error code: 0x%x)\n", num, errCode)
	regs.Print()
	frame.Print()
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}
