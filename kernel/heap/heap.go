// Package heap implements the kernel's dynamic memory allocator (kmalloc and
// kfree). It maintains a single, address-ordered, singly-linked list of
// blocks carved out of a VMM-backed arena and satisfies requests using a
// best-fit search.
package heap

import (
	"unsafe"

	"kaviz/kernel"
	"kaviz/kernel/kfmt/early"
	"kaviz/kernel/mem"
	"kaviz/kernel/mem/pmm/allocator"
	"kaviz/kernel/mem/vmm"
	"kaviz/kernel/sync"
)

const (
	// heapStartAddr anchors the heap arena in its own PML4 slot, well clear
	// of the VMM's recursive mapping, temporary mapping window and
	// bootstrap byte pool.
	heapStartAddr = uintptr(0xfffffe8000000000)

	// initialHeapPages seeds the arena at 4MiB, matching the size the
	// kernel is expected to need before it can grow the heap on demand.
	initialHeapPages = 1024

	// growthPages is how many additional pages Alloc maps in when a
	// best-fit search comes up empty (spec §4.3: "on miss, the arena is
	// extended by mapping additional pages and appending a free block").
	// A request larger than one growth step simply grows by as many
	// steps as it takes to fit.
	growthPages = 256

	// heapMaxPages bounds how far the arena may grow (spec §3's
	// heap_max); it shares the PML4 slot heapStartAddr anchors and leaves
	// the rest of that slot untouched.
	heapMaxPages = 262144

	// minSplitSize is the smallest remainder worth splitting off into its
	// own free block; smaller remainders are left attached to the
	// allocation to avoid fragmenting the list with slivers.
	minSplitSize = 16

	allocatedFlag = uint64(1) << 63
)

// blockHeader precedes every block (free or allocated) in the arena. The top
// bit of sizeAndFlag marks the block as allocated; the remaining bits store
// the block size, header included.
type blockHeader struct {
	sizeAndFlag uint64
	next        *blockHeader
}

var headerSize = unsafe.Sizeof(blockHeader{})

func (b *blockHeader) allocated() bool { return b.sizeAndFlag&allocatedFlag != 0 }
func (b *blockHeader) size() uint64    { return b.sizeAndFlag &^ allocatedFlag }

var (
	head     *blockHeader
	arenaEnd uintptr
	lock     sync.Spinlock

	// growArenaFn is swapped out by tests, which have no live VMM or frame
	// allocator to exercise growArena's real page-mapping path against.
	growArenaFn = growArena

	errOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}
)

// Init reserves and maps the initial heap arena and prepares it as a single
// free block. It must run after vmm.Init so a frame allocator is already
// registered with the VMM.
func Init() *kernel.Error {
	for i := 0; i < initialHeapPages; i++ {
		frame, err := allocator.FrameAllocator.AllocFrame()
		if err != nil {
			return err
		}

		page := vmm.PageFromAddress(heapStartAddr + uintptr(i)*uintptr(mem.PageSize))
		if err := vmm.Map(page, frame, vmm.FlagPresent|vmm.FlagRW, allocator.FrameAllocator.AllocFrame); err != nil {
			return err
		}
	}

	head = (*blockHeader)(unsafe.Pointer(heapStartAddr))
	head.sizeAndFlag = uint64(initialHeapPages) * uint64(mem.PageSize)
	head.next = nil
	arenaEnd = heapStartAddr + uintptr(initialHeapPages)*uintptr(mem.PageSize)

	early.Printf("[heap] arena ready: %dKB at 0x%x\n", (initialHeapPages*int(mem.PageSize))/1024, heapStartAddr)
	return nil
}

// Alloc reserves at least size bytes from the heap and returns a pointer to
// an 8-byte-aligned region. When no free block is large enough it grows the
// arena first, and returns nil only if that growth fails.
func Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	lock.Acquire()
	defer lock.Release()

	const alignment = 8
	aligned := (uint64(size) + alignment - 1) &^ (alignment - 1)
	need := uint64(headerSize) + aligned

	best := bestFit(need)
	if best == nil {
		var err *kernel.Error
		best, err = growArenaFn(need)
		if err != nil {
			return nil
		}
	}

	if best.size()-need >= minSplitSize {
		newAddr := uintptr(unsafe.Pointer(best)) + uintptr(need)
		newBlock := (*blockHeader)(unsafe.Pointer(newAddr))
		newBlock.sizeAndFlag = best.size() - need
		newBlock.next = best.next

		best.next = newBlock
		best.sizeAndFlag = need
	}

	best.sizeAndFlag |= allocatedFlag
	return unsafe.Pointer(uintptr(unsafe.Pointer(best)) + headerSize)
}

// bestFit scans the free list for the smallest free block that still
// satisfies need, or nil if none does.
func bestFit(need uint64) *blockHeader {
	var best *blockHeader
	for b := head; b != nil; b = b.next {
		if b.allocated() || b.size() < need {
			continue
		}
		if best == nil || b.size() < best.size() {
			best = b
		}
	}
	return best
}

// growArena extends the arena by mapping enough additional pages to satisfy
// need (rounded up to a whole number of growthPages-sized steps) and
// appends the new space as a free block — or, if the arena's current tail
// block happens to already be free, extends that block in place instead of
// growing the list. It returns errOutOfMemory if growing would cross
// heapMaxPages or if the underlying frame allocator is exhausted.
func growArena(need uint64) (*blockHeader, *kernel.Error) {
	growBytes := uint64(growthPages) * uint64(mem.PageSize)
	for growBytes < need {
		growBytes += uint64(growthPages) * uint64(mem.PageSize)
	}

	if arenaEnd+uintptr(growBytes) > heapStartAddr+uintptr(heapMaxPages)*uintptr(mem.PageSize) {
		return nil, errOutOfMemory
	}

	growFrom := arenaEnd
	for mapped := uint64(0); mapped < growBytes; mapped += uint64(mem.PageSize) {
		frame, err := allocator.FrameAllocator.AllocFrame()
		if err != nil {
			return nil, err
		}

		page := vmm.PageFromAddress(growFrom + uintptr(mapped))
		if err := vmm.Map(page, frame, vmm.FlagPresent|vmm.FlagRW, allocator.FrameAllocator.AllocFrame); err != nil {
			return nil, err
		}
	}

	tail := head
	for tail.next != nil {
		tail = tail.next
	}

	var grown *blockHeader
	if !tail.allocated() {
		tail.sizeAndFlag = tail.size() + growBytes
		grown = tail
	} else {
		newBlock := (*blockHeader)(unsafe.Pointer(growFrom))
		newBlock.sizeAndFlag = growBytes
		newBlock.next = nil
		tail.next = newBlock
		grown = newBlock
	}

	arenaEnd += uintptr(growBytes)
	early.Printf("[heap] arena grown to %dKB\n", uint64(arenaEnd-heapStartAddr)/1024)
	return grown, nil
}

// Free releases a block previously returned by Alloc. Freeing nil is a
// no-op. Free first coalesces ptr's block with however many
// immediately-following blocks are also free, then walks the list from
// head to find the block whose next is ptr's block and, if that
// predecessor is itself free, merges it in too. Locating the predecessor
// by a forward scan (rather than a back-pointer) is the technique the
// arena's singly-linked list forces; it does not mean merging is
// forward-only — both directions are coalesced before Free returns, so no
// two adjacent blocks are ever left free (spec §3 invariant (b)).
func Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	lock.Acquire()
	defer lock.Release()

	hdrAddr := uintptr(ptr) - headerSize
	b := (*blockHeader)(unsafe.Pointer(hdrAddr))
	b.sizeAndFlag &^= allocatedFlag

	for b.next != nil && !b.next.allocated() {
		merged := b.size() + b.next.size()
		b.next = b.next.next
		b.sizeAndFlag = merged
	}

	var prev *blockHeader
	for p := head; p != nil; p = p.next {
		if p.next == b {
			prev = p
			break
		}
	}
	if prev != nil && !prev.allocated() {
		prev.sizeAndFlag = prev.size() + b.size()
		prev.next = b.next
	}
}
