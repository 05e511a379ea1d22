// Package elf parses a 64-bit little-endian ELF executable image (the only
// class/encoding/type this kernel ever loads: ELFCLASS64, ELFDATA2LSB,
// ET_EXEC) and maps its PT_LOAD segments into a process's address space
// (spec §2 row 11, an out-of-core collaborator; grounded on
// original_source/kernel/elf.{h,c}). There is no dynamic linking
// (PT_DYNAMIC is ignored) and no relocation processing — only the subset
// the original loader itself implements.
package elf

import (
	"unsafe"

	"kaviz/kernel"
	"kaviz/kernel/mem"
	"kaviz/kernel/mem/pmm/allocator"
	"kaviz/kernel/mem/vmm"
)

const (
	magic0, magic1, magic2, magic3 = 0x7F, 'E', 'L', 'F'

	classELF64  = 2
	dataLSB     = 1
	typeExec    = 2

	ptLoad = 1

	pfExecute = 1 << 0
	pfWrite   = 1 << 1
)

var (
	errTooShort    = &kernel.Error{Module: "elf", Message: "image shorter than an ELF64 header"}
	errBadMagic    = &kernel.Error{Module: "elf", Message: "missing 0x7F 'E' 'L' 'F' magic"}
	errUnsupported = &kernel.Error{Module: "elf", Message: "only ELFCLASS64/ELFDATA2LSB/ET_EXEC images are supported"}
)

// Header is the subset of Elf64_Ehdr this loader needs.
type Header struct {
	Entry   uint64
	PhOff   uint64
	PhEntSz uint16
	PhNum   uint16
}

// ProgramHeader is the subset of Elf64_Phdr this loader needs.
type ProgramHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	FileSz uint64
	MemSz  uint64
}

// ParseHeader validates and decodes the ELF64 header at the start of
// image.
func ParseHeader(image []byte) (Header, *kernel.Error) {
	if len(image) < 64 {
		return Header{}, errTooShort
	}
	if image[0] != magic0 || image[1] != magic1 || image[2] != magic2 || image[3] != magic3 {
		return Header{}, errBadMagic
	}
	if image[4] != classELF64 || image[5] != dataLSB {
		return Header{}, errUnsupported
	}
	if le16(image[16:]) != typeExec {
		return Header{}, errUnsupported
	}

	return Header{
		Entry:   le64(image[24:]),
		PhOff:   le64(image[32:]),
		PhEntSz: le16(image[54:]),
		PhNum:   le16(image[56:]),
	}, nil
}

// ProgramHeaders decodes all of h's program header table entries out of
// image.
func ProgramHeaders(image []byte, h Header) []ProgramHeader {
	out := make([]ProgramHeader, 0, h.PhNum)
	for i := uint16(0); i < h.PhNum; i++ {
		off := h.PhOff + uint64(i)*uint64(h.PhEntSz)
		raw := image[off:]
		out = append(out, ProgramHeader{
			Type:   le32(raw[0:]),
			Flags:  le32(raw[4:]),
			Offset: le64(raw[8:]),
			VAddr:  le64(raw[16:]),
			FileSz: le64(raw[32:]),
			MemSz:  le64(raw[40:]),
		})
	}
	return out
}

// Load maps every PT_LOAD segment of image into the currently active page
// table: pages are allocated from the PMM, zero-filled, the segment's file
// bytes copied in and the remainder (MemSz - FileSz, e.g. .bss) left
// zeroed. It returns the entry point to resume at.
func Load(image []byte) (entry uintptr, err *kernel.Error) {
	h, err := ParseHeader(image)
	if err != nil {
		return 0, err
	}

	for _, ph := range ProgramHeaders(image, h) {
		if ph.Type != ptLoad {
			continue
		}
		if err := loadSegment(image, ph); err != nil {
			return 0, err
		}
	}

	return uintptr(h.Entry), nil
}

func loadSegment(image []byte, ph ProgramHeader) *kernel.Error {
	flags := vmm.FlagPresent | vmm.FlagUserAccessible
	if ph.Flags&pfWrite != 0 {
		flags |= vmm.FlagRW
	}
	if ph.Flags&pfExecute == 0 {
		flags |= vmm.FlagNoExecute
	}

	startPage := uintptr(ph.VAddr) &^ (uintptr(mem.PageSize) - 1)
	endAddr := uintptr(ph.VAddr + ph.MemSz)
	for page := startPage; page < endAddr; page += uintptr(mem.PageSize) {
		frame, err := allocator.FrameAllocator.AllocFrame()
		if err != nil {
			return err
		}
		if err := vmm.Map(vmm.PageFromAddress(page), frame, flags, allocator.FrameAllocator.AllocFrame); err != nil {
			return err
		}
		mem.Memset(page, 0, mem.PageSize)
	}

	copyFileBytes(image, ph)
	return nil
}

// copyFileBytes writes the segment's on-disk bytes to its now-mapped
// virtual address; memory beyond FileSz up to MemSz was already zeroed by
// the Memset in loadSegment (the source image for .bss has no file bytes).
func copyFileBytes(image []byte, ph ProgramHeader) {
	if ph.FileSz == 0 {
		return
	}
	src := image[ph.Offset : ph.Offset+ph.FileSz]
	n := int(ph.FileSz)
	dst := (*[1 << 30]byte)(unsafe.Pointer(uintptr(ph.VAddr)))[:n:n]
	copy(dst, src)
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	return uint64(le32(b)) | uint64(le32(b[4:]))<<32
}
