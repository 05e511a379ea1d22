package main

import "kaviz/kernel/kmain"

// These are populated by the rt0 assembly stub before main is called: the
// physical address of the boot-info block handed to us by the bootloader,
// and the physical start/end addresses of the loaded kernel image (so the
// PMM bootstrap allocator can exclude those frames from the free pool).
var (
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
)

// main is the only Go symbol that is visible (exported) from the rt0
// initialization code. It works as a trampoline for calling the actual
// kernel entrypoint (kmain.Kmain) and is intentionally defined to prevent
// the Go compiler from optimizing away the kernel code, as it is not aware
// of the presence of the rt0 code.
//
// main is invoked by the rt0 assembly code after setting up the GDT and a
// minimal g0 struct that allows Go code to run on the 4K stack allocated by
// the assembly code.
//
// main is not expected to return. If it does, the rt0 code will halt the
// CPU.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
