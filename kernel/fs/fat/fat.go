// Package fat reads FAT12/16/32 volumes off an ATA drive: boot-sector
// parsing, cluster-chain walking and flat directory listing (spec §2 row
// 11, an out-of-core collaborator; grounded on
// original_source/kernel/fs/fat.{h,c}). There is no write support and no
// long-filename (VFAT) decoding — only 8.3 short names, matching what the
// original implementation actually reads.
package fat

import (
	"kaviz/kernel"
	"kaviz/kernel/driver/ata"
)

// Type identifies which FAT width a mounted Volume uses.
type Type uint8

const (
	Type12 Type = iota
	Type16
	Type32
)

const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	// Directory marks a directory entry (spec-visible via Dirent.IsDir).
	Directory = 0x10
	attrArchive  = 0x20
	attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	eocFAT32 = 0x0FFFFFF8
	eocFAT16 = 0xFFF8
	eocFAT12 = 0xFF8
)

var (
	errBadBootSector = &kernel.Error{Module: "fat", Message: "boot sector signature 0x55AA missing"}
	errIsDirectory   = &kernel.Error{Module: "fat", Message: "entry is a directory, not a file"}
	errIO            = &kernel.Error{Module: "fat", Message: "underlying ATA read failed"}
)

// Volume is a mounted FAT filesystem: the geometry derived from its boot
// sector plus enough state to walk cluster chains and read directories.
type Volume struct {
	Drive uint8
	Type  Type

	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntries       uint16
	fatSizeSectors    uint32
	totalSectors      uint32
	rootCluster       uint32 // FAT32 only; FAT12/16 use a fixed root region

	fatStartLBA   uint32
	dataStartLBA  uint32
	rootStartLBA  uint32 // FAT12/16 only
	rootSectors   uint32 // FAT12/16 only
}

// Dirent is a flattened 8.3 directory entry (no VFAT long-name chain).
type Dirent struct {
	Name        string
	Size        uint32
	Attr        uint8
	FirstCluster uint32
}

// IsDir reports whether this entry is a subdirectory.
func (d Dirent) IsDir() bool { return d.Attr&Directory != 0 }

// Mount reads the boot sector at LBA 0 of drive and derives the volume's
// geometry, classifying it as FAT12, FAT16 or FAT32 by cluster count the
// same way the reference FAT driver does.
func Mount(drive uint8) (*Volume, *kernel.Error) {
	var sector [ata.SectorSize]byte
	if err := ata.ReadSector(drive, 0, sector[:]); err != nil {
		return nil, errIO
	}

	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, errBadBootSector
	}

	v := &Volume{Drive: drive}
	v.bytesPerSector = le16(sector[11:])
	v.sectorsPerCluster = sector[13]
	v.reservedSectors = le16(sector[14:])
	v.numFATs = sector[16]
	v.rootEntries = le16(sector[17:])
	v.totalSectors = uint32(le16(sector[19:]))
	if v.totalSectors == 0 {
		v.totalSectors = le32(sector[32:])
	}

	v.fatSizeSectors = uint32(le16(sector[22:]))
	if v.fatSizeSectors == 0 {
		v.fatSizeSectors = le32(sector[36:]) // FAT32 BPB_FATSz32
		v.rootCluster = le32(sector[44:])
	}

	v.fatStartLBA = uint32(v.reservedSectors)
	v.rootSectors = (uint32(v.rootEntries)*32 + uint32(v.bytesPerSector) - 1) / uint32(v.bytesPerSector)
	v.rootStartLBA = v.fatStartLBA + uint32(v.numFATs)*v.fatSizeSectors
	v.dataStartLBA = v.rootStartLBA + v.rootSectors

	dataSectors := v.totalSectors - v.dataStartLBA
	clusterCount := dataSectors / uint32(v.sectorsPerCluster)
	switch {
	case clusterCount < 4085:
		v.Type = Type12
	case clusterCount < 65525:
		v.Type = Type16
	default:
		v.Type = Type32
	}

	return v, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// clusterToLBA converts a cluster number to its first sector's LBA.
func (v *Volume) clusterToLBA(cluster uint32) uint32 {
	return v.dataStartLBA + (cluster-2)*uint32(v.sectorsPerCluster)
}

// nextCluster follows the FAT chain for cluster, returning the next
// cluster number or one of the eocFATxx sentinels at the end of a chain.
func (v *Volume) nextCluster(cluster uint32) (uint32, *kernel.Error) {
	switch v.Type {
	case Type32:
		return v.fatEntry32(cluster)
	case Type16:
		return v.fatEntry16(cluster)
	default:
		return v.fatEntry12(cluster)
	}
}

func (v *Volume) fatEntry32(cluster uint32) (uint32, *kernel.Error) {
	offset := cluster * 4
	sector, sub := v.fatSectorFor(offset)
	var buf [ata.SectorSize]byte
	if err := ata.ReadSector(v.Drive, sector, buf[:]); err != nil {
		return 0, errIO
	}
	return le32(buf[sub:]) & 0x0FFFFFFF, nil
}

func (v *Volume) fatEntry16(cluster uint32) (uint32, *kernel.Error) {
	offset := cluster * 2
	sector, sub := v.fatSectorFor(offset)
	var buf [ata.SectorSize]byte
	if err := ata.ReadSector(v.Drive, sector, buf[:]); err != nil {
		return 0, errIO
	}
	return uint32(le16(buf[sub:])), nil
}

func (v *Volume) fatEntry12(cluster uint32) (uint32, *kernel.Error) {
	offset := cluster + cluster/2
	sector, sub := v.fatSectorFor(offset)
	var buf [ata.SectorSize]byte
	if err := ata.ReadSector(v.Drive, sector, buf[:]); err != nil {
		return 0, errIO
	}

	var raw uint16
	if sub == int(v.bytesPerSector)-1 {
		var next [ata.SectorSize]byte
		if err := ata.ReadSector(v.Drive, sector+1, next[:]); err != nil {
			return 0, errIO
		}
		raw = uint16(buf[sub]) | uint16(next[0])<<8
	} else {
		raw = le16(buf[sub:])
	}

	if cluster&1 != 0 {
		raw >>= 4
	} else {
		raw &= 0x0FFF
	}
	return uint32(raw), nil
}

func (v *Volume) fatSectorFor(byteOffset uint32) (sector uint32, sub int) {
	sector = v.fatStartLBA + byteOffset/uint32(v.bytesPerSector)
	sub = int(byteOffset % uint32(v.bytesPerSector))
	return
}

// isEOC reports whether cluster marks the end of a cluster chain for v's
// FAT width.
func (v *Volume) isEOC(cluster uint32) bool {
	switch v.Type {
	case Type32:
		return cluster >= eocFAT32
	case Type16:
		return cluster >= eocFAT16
	default:
		return cluster >= eocFAT12
	}
}

// ReadRoot lists the root directory's entries. For FAT12/16 this reads the
// fixed root region; for FAT32 it walks RootCluster's cluster chain like
// any other directory.
func (v *Volume) ReadRoot() ([]Dirent, *kernel.Error) {
	if v.Type == Type32 {
		return v.readDirChain(v.rootCluster)
	}
	return v.readFixedRoot()
}

func (v *Volume) readFixedRoot() ([]Dirent, *kernel.Error) {
	var entries []Dirent
	for s := uint32(0); s < v.rootSectors; s++ {
		var buf [ata.SectorSize]byte
		if err := ata.ReadSector(v.Drive, v.rootStartLBA+s, buf[:]); err != nil {
			return nil, errIO
		}
		entries = append(entries, parseDirSector(buf[:])...)
	}
	return entries, nil
}

func (v *Volume) readDirChain(startCluster uint32) ([]Dirent, *kernel.Error) {
	var entries []Dirent
	cluster := startCluster
	for !v.isEOC(cluster) && cluster != 0 {
		lba := v.clusterToLBA(cluster)
		for s := uint8(0); s < v.sectorsPerCluster; s++ {
			var buf [ata.SectorSize]byte
			if err := ata.ReadSector(v.Drive, lba+uint32(s), buf[:]); err != nil {
				return nil, errIO
			}
			entries = append(entries, parseDirSector(buf[:])...)
		}

		next, err := v.nextCluster(cluster)
		if err != nil {
			return nil, err
		}
		cluster = next
	}
	return entries, nil
}

// parseDirSector decodes every live 32-byte 8.3 directory entry in a
// sector, skipping deleted entries (first byte 0xE5), the end-of-directory
// marker (first byte 0x00) and VFAT long-name continuation entries.
func parseDirSector(buf []byte) []Dirent {
	var out []Dirent
	for off := 0; off+32 <= len(buf); off += 32 {
		raw := buf[off : off+32]
		if raw[0] == 0x00 {
			break
		}
		if raw[0] == 0xE5 {
			continue
		}
		if raw[11] == attrLongName {
			continue
		}

		out = append(out, Dirent{
			Name:         shortName(raw[:11]),
			Attr:         raw[11],
			FirstCluster: uint32(le16(raw[26:])) | uint32(le16(raw[20:]))<<16,
			Size:         le32(raw[28:]),
		})
	}
	return out
}

// shortName trims the space-padded 8.3 name/extension fields into
// "NAME.EXT" (or just "NAME" when there is no extension).
func shortName(raw []byte) string {
	name := trimSpaces(raw[0:8])
	ext := trimSpaces(raw[8:11])
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func trimSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

// ReadFile reads the entirety of d's data into a freshly allocated slice by
// walking its cluster chain.
func (v *Volume) ReadFile(d Dirent) ([]byte, *kernel.Error) {
	if d.IsDir() {
		return nil, errIsDirectory
	}

	out := make([]byte, 0, d.Size)
	remaining := d.Size
	cluster := d.FirstCluster

	for !v.isEOC(cluster) && cluster != 0 && remaining > 0 {
		lba := v.clusterToLBA(cluster)
		for s := uint8(0); s < v.sectorsPerCluster && remaining > 0; s++ {
			var buf [ata.SectorSize]byte
			if err := ata.ReadSector(v.Drive, lba+uint32(s), buf[:]); err != nil {
				return nil, errIO
			}
			n := uint32(len(buf))
			if n > remaining {
				n = remaining
			}
			out = append(out, buf[:n]...)
			remaining -= n
		}

		next, err := v.nextCluster(cluster)
		if err != nil {
			return nil, err
		}
		cluster = next
	}
	return out, nil
}
