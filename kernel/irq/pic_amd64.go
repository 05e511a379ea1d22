package irq

import "kaviz/kernel/cpu"

// Legacy 8259 PIC ports (spec §6).
const (
	picMasterCmd  = 0x20
	picMasterData = 0x21
	picSlaveCmd   = 0xA0
	picSlaveData  = 0xA1

	icw1Init = 0x11 // cascade mode, ICW4 present
	icw4Mode = 0x01 // 8086/88 mode
)

// remapPIC reprograms the legacy PIC so master IRQs land on vectors
// 0x20-0x27 and slave IRQs on 0x28-0x2F, then masks every line. The
// LAPIC/IOAPIC pair is the interrupt source of record from here on; the PIC
// is left wired but silent so a spurious vector never collides with a CPU
// exception.
func remapPIC() {
	cpu.Outb(picMasterCmd, icw1Init)
	cpu.IOWait()
	cpu.Outb(picSlaveCmd, icw1Init)
	cpu.IOWait()

	cpu.Outb(picMasterData, vectorBase) // master offset
	cpu.IOWait()
	cpu.Outb(picSlaveData, vectorBase+8) // slave offset
	cpu.IOWait()

	cpu.Outb(picMasterData, 4) // tell master a slave sits on IRQ2
	cpu.IOWait()
	cpu.Outb(picSlaveData, 2) // tell slave its cascade identity
	cpu.IOWait()

	cpu.Outb(picMasterData, icw4Mode)
	cpu.IOWait()
	cpu.Outb(picSlaveData, icw4Mode)
	cpu.IOWait()

	cpu.Outb(picMasterData, 0xFF)
	cpu.Outb(picSlaveData, 0xFF)
}
