package irq

import (
	"kaviz/kernel"
	"kaviz/kernel/cpu"
	"kaviz/kernel/irq/apic"
)

// Init brings up the entire interrupt delivery path in the order spec §4.4
// mandates: build the IDT, silence the legacy PIC, enable the LAPIC and
// program the I/O APIC. It does not enable interrupts; call
// EnableInterrupts once the scheduler and timer are ready to receive them.
func Init() {
	installIDT()
	remapPIC()

	timerVector := uint8(vectorBase + IRQTimer)
	keyboardVector := uint8(vectorBase + IRQKeyboard)
	if err := apic.Init(timerVector, keyboardVector); err != nil {
		kernel.Panic(err)
	}
}

// EnableInterrupts executes STI. It is a thin re-export of cpu.EnableInterrupts
// kept in this package so callers that only need to deal with the interrupt
// subsystem do not need to import kernel/cpu directly.
func EnableInterrupts() {
	cpu.EnableInterrupts()
}

// sendEOI acknowledges the interrupt currently being serviced by the LAPIC.
// Per §4.4's ordering guarantee this must run only after a handler has
// finished talking to the device that raised the IRQ.
func sendEOI(IRQNum) {
	apic.SendEOI()
}
