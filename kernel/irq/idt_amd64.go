package irq

import (
	"reflect"
	"unsafe"

	"kaviz/kernel/cpu"
)

const (
	idtEntries = 256

	// gateTypeAttr marks every installed gate present, DPL 0, 64-bit
	// interrupt gate (type 0xE).
	gateTypeAttr = 0x8E
)

// idtGate is the 16-byte gate record the CPU indexes on every interrupt,
// exception or INT instruction.
type idtGate struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// idt holds all 256 gate slots. Entries that are never installed keep their
// zero value, which leaves typeAttr's present bit clear.
var idt [idtEntries]idtGate

// idtr is the packed {limit, base} descriptor consumed by LIDT.
var idtr struct {
	limit uint16
	base  uint64
}

// stubFns lists the entry trampolines for vectors 0-47, in order. Vector 0x80
// (the syscall gate) is installed separately since it sits far outside this
// contiguous run.
var stubFns = [48]func(){
	intStub0, intStub1, intStub2, intStub3, intStub4, intStub5, intStub6, intStub7,
	intStub8, intStub9, intStub10, intStub11, intStub12, intStub13, intStub14, intStub15,
	intStub16, intStub17, intStub18, intStub19, intStub20, intStub21, intStub22, intStub23,
	intStub24, intStub25, intStub26, intStub27, intStub28, intStub29, intStub30, intStub31,
	intStub32, intStub33, intStub34, intStub35, intStub36, intStub37, intStub38, intStub39,
	intStub40, intStub41, intStub42, intStub43, intStub44, intStub45, intStub46, intStub47,
}

// stubAddr resolves the code address of the entry trampoline installed for
// vector. Go gives no portable way to take the address of a named function
// as a compile-time constant, so this takes each stub's entry point at run
// time from reflect.Value.Pointer on the stub's func value.
func stubAddr(vector int) uintptr {
	switch vector {
	case SyscallVector:
		return reflect.ValueOf(intStub128).Pointer()
	case RescheduleVector:
		return reflect.ValueOf(intStub129).Pointer()
	default:
		return reflect.ValueOf(stubFns[vector]).Pointer()
	}
}

// setGate installs a present, DPL-0, 64-bit interrupt gate at vector that
// transfers control to handlerAddr on the kernel code segment.
func setGate(vector int, handlerAddr uintptr) {
	g := &idt[vector]
	g.offsetLow = uint16(handlerAddr)
	g.selector = cpu.KernelCodeSelector
	g.ist = 0
	g.typeAttr = gateTypeAttr
	g.offsetMid = uint16(handlerAddr >> 16)
	g.offsetHigh = uint32(handlerAddr >> 32)
	g.reserved = 0
}

// installIDT populates every exception and IRQ gate (vectors 0-47) plus the
// syscall and reschedule gates, then loads the table with LIDT. Everything else is left
// non-present.
func installIDT() {
	for v := 0; v < len(stubFns); v++ {
		setGate(v, stubAddr(v))
	}
	setGate(SyscallVector, stubAddr(SyscallVector))
	setGate(RescheduleVector, stubAddr(RescheduleVector))

	idtr.limit = uint16(unsafe.Sizeof(idt) - 1)
	idtr.base = uint64(uintptr(unsafe.Pointer(&idt[0])))
	cpu.LoadIDT(uintptr(unsafe.Pointer(&idtr)))
}
