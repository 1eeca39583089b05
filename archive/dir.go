package archive

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Dir is a directory-backed archive.
type Dir struct {
	fs afero.Fs
}

// NewDir creates an archive over fsys. Entry names are paths relative to the
// root of fsys.
func NewDir(fsys afero.Fs) *Dir {
	return &Dir{fs: fsys}
}

// OpenDir creates an archive rooted at the directory path on disk.
func OpenDir(path string) *Dir {
	return NewDir(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), path)))
}

// Has reports whether name exists. Names ending in "/" match directories,
// other names match regular files.
func (d *Dir) Has(name string) bool {
	name = Clean(name)
	if strings.HasSuffix(name, "/") || name == "" {
		ok, err := afero.IsDir(d.fs, "/"+name)
		return err == nil && ok
	}
	info, err := d.fs.Stat("/" + name)
	return err == nil && !info.IsDir()
}

// Get returns the content of the file entry name.
func (d *Dir) Get(name string) ([]byte, bool) {
	name = Clean(name)
	if name == "" || strings.HasSuffix(name, "/") {
		return nil, false
	}
	data, err := afero.ReadFile(d.fs, "/"+name)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Names lists every regular file below the root, sorted.
func (d *Dir) Names() []string {
	var names []string
	_ = afero.Walk(d.fs, "/", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			names = append(names, Clean(filepath.ToSlash(path)))
		}
		return nil
	})
	sort.Strings(names)
	return names
}
