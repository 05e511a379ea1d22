// Package vfs is the single-mount dispatcher that sits between the
// syscall table's open/read/close handlers and a concrete filesystem
// driver (spec §2 row 11, an out-of-core collaborator; grounded on
// original_source/kernel/fs/vfs.h). It is deliberately smaller than the
// original's mount-point linked list and per-filesystem-ops vtable: this
// kernel only ever has one FAT volume to mount, so Go's standard interface
// dispatch replaces the original's function-pointer struct without losing
// any capability a caller of this core actually uses.
package vfs

import "kaviz/kernel"

// Attribute bits mirror spec's FAT/VFS attribute byte.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDirectory = 0x10
	AttrArchive  = 0x20
)

// Dirent is a filesystem-agnostic directory entry.
type Dirent struct {
	Name  string
	Size  uint32
	Attr  uint32
}

// IsDir reports whether this entry is a directory.
func (d Dirent) IsDir() bool { return d.Attr&AttrDirectory != 0 }

// FileSystem is the minimal set of operations any concrete driver (today,
// only kernel/fs/fat) must implement to be mounted. It replaces the
// original's vfs_filesystem_ops function-pointer table.
type FileSystem interface {
	// ReadDir lists the entries of the directory at path ("/" for root).
	ReadDir(path string) ([]Dirent, *kernel.Error)

	// ReadFile returns the full contents of the file at path.
	ReadFile(path string) ([]byte, *kernel.Error)

	// Stat returns the Dirent describing path.
	Stat(path string) (Dirent, *kernel.Error)
}

var (
	mounted FileSystem

	errNoFS       = &kernel.Error{Module: "vfs", Message: "no filesystem mounted"}
	errAlreadyMounted = &kernel.Error{Module: "vfs", Message: "a filesystem is already mounted"}
)

// Mount installs fs as the single active filesystem. A second Mount call
// without an intervening Unmount fails rather than silently replacing it —
// there is exactly one mount point in this kernel (the whole tree is "/"),
// unlike the original's arbitrary mount-point list.
func Mount(fs FileSystem) *kernel.Error {
	if mounted != nil {
		return errAlreadyMounted
	}
	mounted = fs
	return nil
}

// Unmount clears the active filesystem.
func Unmount() {
	mounted = nil
}

// ReadDir lists path's entries on the mounted filesystem.
func ReadDir(path string) ([]Dirent, *kernel.Error) {
	if mounted == nil {
		return nil, errNoFS
	}
	return mounted.ReadDir(path)
}

// ReadFile returns the full contents of path on the mounted filesystem.
func ReadFile(path string) ([]byte, *kernel.Error) {
	if mounted == nil {
		return nil, errNoFS
	}
	return mounted.ReadFile(path)
}

// Stat returns the Dirent describing path on the mounted filesystem.
func Stat(path string) (Dirent, *kernel.Error) {
	if mounted == nil {
		return Dirent{}, errNoFS
	}
	return mounted.Stat(path)
}
