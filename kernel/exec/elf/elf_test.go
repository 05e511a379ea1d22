package elf

import "testing"

// buildImage assembles a minimal valid ELF64 executable image with one
// program header per phdrs entry (possibly none), for tests that don't need real file
// contents beyond the header and program header table.
func buildImage(phdrs ...ProgramHeader) []byte {
	const ehdrSize = 64
	const phentSize = 56

	buf := make([]byte, ehdrSize+phentSize*len(phdrs))

	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, magic2, magic3
	buf[4] = classELF64
	buf[5] = dataLSB
	putLE16(buf[16:], typeExec)
	putLE64(buf[24:], 0x401000) // e_entry
	putLE64(buf[32:], ehdrSize) // e_phoff
	putLE16(buf[54:], phentSize)
	putLE16(buf[56:], uint16(len(phdrs)))

	for i, ph := range phdrs {
		off := ehdrSize + i*phentSize
		raw := buf[off:]
		putLE32(raw[0:], ph.Type)
		putLE32(raw[4:], ph.Flags)
		putLE64(raw[8:], ph.Offset)
		putLE64(raw[16:], ph.VAddr)
		putLE64(raw[32:], ph.FileSz)
		putLE64(raw[40:], ph.MemSz)
	}

	return buf
}

func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLE64(b []byte, v uint64) {
	putLE32(b, uint32(v))
	putLE32(b[4:], uint32(v>>32))
}

func TestParseHeaderRejectsShortImage(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short image")
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	img := buildImage()
	img[0] = 0x00
	if _, err := ParseHeader(img); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestParseHeaderRejectsWrongClass(t *testing.T) {
	img := buildImage()
	img[4] = 1 // ELFCLASS32
	if _, err := ParseHeader(img); err == nil {
		t.Fatal("expected error for non-64-bit class")
	}
}

func TestParseHeaderDecodesEntryAndPhdrInfo(t *testing.T) {
	img := buildImage(ProgramHeader{Type: ptLoad, VAddr: 0x401000, FileSz: 0x100, MemSz: 0x100})

	h, err := ParseHeader(img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Entry != 0x401000 {
		t.Errorf("expected entry 0x401000, got %#x", h.Entry)
	}
	if h.PhNum != 1 {
		t.Errorf("expected 1 program header, got %d", h.PhNum)
	}
}

func TestProgramHeadersRoundTrip(t *testing.T) {
	want := ProgramHeader{Type: ptLoad, Flags: pfExecute, Offset: 64, VAddr: 0x401000, FileSz: 0x200, MemSz: 0x300}
	img := buildImage(want)

	h, err := ParseHeader(img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	phdrs := ProgramHeaders(img, h)
	if len(phdrs) != 1 {
		t.Fatalf("expected 1 program header, got %d", len(phdrs))
	}
	if phdrs[0] != want {
		t.Errorf("expected %+v, got %+v", want, phdrs[0])
	}
}
