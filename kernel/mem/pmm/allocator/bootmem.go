package allocator

import (
	"kaviz/kernel"
	"kaviz/kernel/hal/multiboot"
	"kaviz/kernel/kfmt/early"
	"kaviz/kernel/mem"
	"kaviz/kernel/mem/pmm"
)

var (
	// earlyAllocator is the process-wide bump allocator used to bootstrap
	// the kernel before the bitmap allocator can take over. Its cursor is
	// seeded at KERNEL_END so the kernel image is never handed out as a
	// free frame (spec §4.1).
	earlyAllocator bootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator implements the rudimentary bump-cursor physical memory
// allocator used to bootstrap the kernel. It consults the memory region
// information provided by the bootloader and returns the next available
// free frame at or after the kernel image.
//
// The source (§9, open question) does not support freeing allocated
// frames: once the kernel is properly initialized, the frames it has
// doled out are handed over to BitmapAllocator, which does support
// freeing.
type bootMemAllocator struct {
	// allocCount tracks the total number of allocated frames. A count of
	// zero means AllocFrame has never been called and lastAllocFrame is
	// not yet meaningful.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame.
	lastAllocFrame pmm.Frame

	// kernelStartFrame and kernelEndFrame bound the frames occupied by
	// the loaded kernel image; they must never be handed out.
	kernelStartFrame pmm.Frame
	kernelEndFrame   pmm.Frame
}

// init records the frame range occupied by the kernel image so AllocFrame
// can skip it.
func (alloc *bootMemAllocator) init(kernelStart, kernelEnd uintptr) {
	alloc.kernelStartFrame = pmm.Frame(kernelStart >> mem.PageShift)
	alloc.kernelEndFrame = pmm.Frame(kernelEnd >> mem.PageShift)
	alloc.allocCount = 0
	alloc.lastAllocFrame = alloc.kernelEndFrame
}

// AllocFrame scans the system memory regions reported by the bootloader and
// reserves the next available free frame after the kernel image.
//
// AllocFrame returns errBootAllocOutOfMemory once no more memory is left to
// allocate.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	var (
		found               bool
		next                pmm.Frame
		pageSizeMinus1      = uint64(mem.PageSize - 1)
	)

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.EntryRAM {
			return true
		}

		regionStartFrame := pmm.Frame(((region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((region.PhysAddress+region.Length) &^ pageSizeMinus1)>>mem.PageShift) - 1

		// Never hand out a frame before the kernel image or before a
		// frame we have already allocated.
		if regionEndFrame < alloc.kernelEndFrame {
			return true
		}
		if regionStartFrame < alloc.kernelEndFrame {
			regionStartFrame = alloc.kernelEndFrame
		}

		if alloc.allocCount > 0 && alloc.lastAllocFrame >= regionEndFrame {
			// This region has already been exhausted.
			return true
		}

		if alloc.allocCount > 0 && alloc.lastAllocFrame >= regionStartFrame {
			next = alloc.lastAllocFrame + 1
		} else {
			next = regionStartFrame
		}
		found = true
		return false
	})

	if !found {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocFrame = next
	return next, nil
}

// printMemoryMap dumps the memory regions reported by the bootloader and the
// frame range reserved for the kernel image to the active console.
func (alloc *bootMemAllocator) printMemoryMap() {
	early.Printf("[boot_mem_alloc] system memory map:\n")

	if !multiboot.Valid() {
		early.Printf("[boot_mem_alloc] boot-info signature invalid; no memory map available\n")
		return
	}

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		return true
	})
	early.Printf("[boot_mem_alloc] available memory: %dKb, total memory: %dKb\n", uint64(FreeBytes()/mem.Kb), uint64(TotalBytes()/mem.Kb))
	early.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", alloc.kernelStartFrame.Address(), alloc.kernelEndFrame.Address())
}

// oneMiB is the boundary spec §3 uses to define free_bytes: memory below it
// is reserved for legacy BIOS/real-mode structures and the kernel's own
// load address, so it never counts as free even when the firmware reports
// it as RAM.
const oneMiB = 1 << 20

// TotalBytes returns the sum of the length of every RAM region the
// boot-info memory map reports, regardless of position (spec §3's
// total_bytes).
func TotalBytes() mem.Size {
	var total mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type == multiboot.EntryRAM {
			total += mem.Size(region.Length)
		}
		return true
	})
	return total
}

// FreeBytes returns the portion of RAM at or above the 1 MiB mark (spec
// §3's free_bytes). A region straddling the boundary is clipped so only
// its portion above 1 MiB counts.
func FreeBytes() mem.Size {
	var free mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.EntryRAM {
			return true
		}

		start := region.PhysAddress
		end := region.PhysAddress + region.Length
		if end <= oneMiB {
			return true
		}
		if start < oneMiB {
			start = oneMiB
		}
		free += mem.Size(end - start)
		return true
	})
	return free
}
