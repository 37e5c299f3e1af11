//go:build linux

package evdev

import (
	"path/filepath"
	"slices"
)

// InputDir is where the kernel exposes evdev nodes.
const InputDir = "/dev/input"

// Info describes an input device node.
type Info struct {
	Path string
	Name string
}

// List enumerates the event nodes under dir. Nodes that cannot be opened
// are listed without a name.
func List(dir string) ([]Info, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "event*"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	infos := make([]Info, 0, len(paths))
	for _, p := range paths {
		info := Info{Path: p}
		if d, err := OpenDevice(p); err == nil {
			info.Name, _ = d.Name()
			d.Close()
		}
		infos = append(infos, info)
	}
	return infos, nil
}
