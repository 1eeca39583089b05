package archive

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/wippyai/modrun/errors"
)

// Entry is one item of a container. Directory markers have a name ending in
// "/" and no data.
type Entry struct {
	Name string
	Data []byte
}

// IsDir reports whether the entry is a directory marker.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Encode serializes entries, in order, into a zip container. File entries are
// deflated, directory markers are stored.
func Encode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes the zip container for entries to w.
func EncodeTo(w io.Writer, entries []Entry) (err error) {
	zw := zip.NewWriter(w)
	defer func() {
		if cerr := zw.Close(); cerr != nil && err == nil {
			err = errors.Wrap(errors.PhaseArchive, errors.KindInvalidData, cerr, "finalize container")
		}
	}()

	for _, e := range entries {
		header := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		if e.IsDir() {
			header.Method = zip.Store
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return errors.Wrap(errors.PhaseArchive, errors.KindInvalidData, err, "create entry "+e.Name)
		}
		if e.IsDir() {
			continue
		}
		if _, err := fw.Write(e.Data); err != nil {
			return errors.Wrap(errors.PhaseArchive, errors.KindInvalidData, err, "write entry "+e.Name)
		}
	}
	return nil
}

// Container is a zip-backed archive.
type Container struct {
	files  map[string]*zip.File
	dirs   map[string]struct{}
	closer io.Closer
}

func newContainer(r io.ReaderAt, size int64) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidData, err, "read container")
	}

	c := &Container{
		files: make(map[string]*zip.File, len(zr.File)),
		dirs:  map[string]struct{}{"": {}},
	}
	for _, f := range zr.File {
		name := Clean(f.Name)
		if strings.HasSuffix(name, "/") {
			c.dirs[name] = struct{}{}
		} else {
			c.files[name] = f
		}
		for _, d := range Dirs(name) {
			c.dirs[d] = struct{}{}
		}
	}
	return c, nil
}

// Has reports whether a file or directory named name exists.
func (c *Container) Has(name string) bool {
	name = Clean(name)
	if strings.HasSuffix(name, "/") || name == "" {
		_, ok := c.dirs[name]
		return ok
	}
	_, ok := c.files[name]
	return ok
}

// Get decompresses and returns the file entry name.
func (c *Container) Get(name string) ([]byte, bool) {
	f, ok := c.files[Clean(name)]
	if !ok {
		return nil, false
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Names lists every file entry, sorted.
func (c *Container) Names() []string {
	names := make([]string, 0, len(c.files))
	for n := range c.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close releases the underlying file, if any.
func (c *Container) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
