package hal

import (
	"kaviz/kernel/driver/tty"
	"kaviz/kernel/driver/video/console"
)

// vgaWidth, vgaHeight and vgaPhysAddr are spec §6's fixed VGA text-mode
// contract, not something the boot-info block carries: unlike a
// multiboot2 loader, the loader behind spec §6's boot-info block does no
// VBE/framebuffer negotiation, so there is nothing to query at boot time.
const (
	vgaWidth    = 80
	vgaHeight   = 25
	vgaPhysAddr = uintptr(0xB8000)
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some output
// till everything is properly setup
func InitTerminal() {
	egaConsole.Init(vgaWidth, vgaHeight, vgaPhysAddr)
	ActiveTerminal.AttachTo(egaConsole)
}
