// Package keyboard drives the PS/2 keyboard controller: it decodes raw
// scancodes delivered on IRQ1 into ASCII and buffers them for whatever
// console/tty layer above wants to read them (spec §2 row 11, an
// out-of-core collaborator; grounded on
// original_source/kernel/drivers/keyboard.c).
package keyboard

import (
	"kaviz/kernel/cpu"
	"kaviz/kernel/irq"
	"kaviz/kernel/kfmt/early"
)

const (
	dataPort = 0x60

	bufferSize = 256
)

// scancodeToASCII is the US-layout set-1 scancode table the original
// keyboard.c ships (simplified: no shift/caps-lock state tracking).
var scancodeToASCII = [...]byte{
	0, 0, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b',
	'\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n',
	0, 'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`', 0,
	'\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/', 0, '*', 0, ' ',
}

var (
	buffer             [bufferSize]byte
	head, tail         uint32
)

// Init registers the IRQ1 handler. It must run after irq.Init.
func Init() {
	irq.HandleIRQ(irq.IRQKeyboard, handleIRQ)
	early.Printf("[keyboard] ready\n")
}

// HasInput reports whether a decoded character is waiting to be read.
func HasInput() bool {
	return head != tail
}

// GetChar pops the oldest buffered character, or 0 if the buffer is empty.
func GetChar() byte {
	if !HasInput() {
		return 0
	}
	c := buffer[tail]
	tail = (tail + 1) % bufferSize
	return c
}

// handleIRQ reads the raw scancode off the data port, decodes key-press
// events (the top bit of a set-1 scancode marks a release) and pushes the
// ASCII result into the ring buffer, dropping it silently if the buffer is
// full. EOI is sent by the caller (kernel/irq's dispatcher) after this
// returns, matching spec §4.4's ordering guarantee.
func handleIRQ(_ *irq.Frame, _ *irq.Regs) {
	scancode := cpu.Inb(dataPort)
	if scancode&0x80 != 0 {
		return // key release, ignored
	}
	if int(scancode) >= len(scancodeToASCII) {
		return
	}
	c := scancodeToASCII[scancode]
	if c == 0 {
		return
	}

	next := (head + 1) % bufferSize
	if next == tail {
		return // buffer full, drop
	}
	buffer[head] = c
	head = next
}
