package fat

import (
	"kaviz/kernel"
	"kaviz/kernel/fs/vfs"
)

var (
	errNotFound = &kernel.Error{Module: "fat", Message: "no such file in root directory"}
)

// AsFileSystem adapts v to kernel/fs/vfs.FileSystem. Path resolution is
// root-only ("/NAME.EXT"): the original implementation's fat_dirent has no
// parent-directory backlink either, and a real hierarchical walk is future
// work for whoever wires a second mounted volume.
func (v *Volume) AsFileSystem() vfs.FileSystem {
	return fsAdapter{v}
}

type fsAdapter struct{ v *Volume }

func (a fsAdapter) ReadDir(path string) ([]vfs.Dirent, *kernel.Error) {
	if path != "/" && path != "" {
		return nil, errNotFound
	}

	entries, err := a.v.ReadRoot()
	if err != nil {
		return nil, err
	}

	out := make([]vfs.Dirent, 0, len(entries))
	for _, e := range entries {
		out = append(out, vfs.Dirent{Name: e.Name, Size: e.Size, Attr: uint32(e.Attr)})
	}
	return out, nil
}

func (a fsAdapter) ReadFile(path string) ([]byte, *kernel.Error) {
	d, err := a.findRoot(path)
	if err != nil {
		return nil, err
	}
	return a.v.ReadFile(d)
}

func (a fsAdapter) Stat(path string) (vfs.Dirent, *kernel.Error) {
	d, err := a.findRoot(path)
	if err != nil {
		return vfs.Dirent{}, err
	}
	return vfs.Dirent{Name: d.Name, Size: d.Size, Attr: uint32(d.Attr)}, nil
}

func (a fsAdapter) findRoot(path string) (Dirent, *kernel.Error) {
	name := path
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}

	entries, err := a.v.ReadRoot()
	if err != nil {
		return Dirent{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Dirent{}, errNotFound
}
