package archive

import (
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/wippyai/modrun/errors"
)

// TempFiles adds the FileProvider capability to an archive. Entries are
// written once under Dir, named by the sha256 of their content, and reused
// on later calls.
type TempFiles struct {
	Archive
	dir   string
	mu    sync.Mutex
	paths map[string]string
}

// WithTempFiles decorates a. An empty dir selects os.TempDir()/modrun.
func WithTempFiles(a Archive, dir string) *TempFiles {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "modrun")
	}
	return &TempFiles{Archive: a, dir: dir, paths: make(map[string]string)}
}

// Unwrap returns the decorated archive.
func (t *TempFiles) Unwrap() Archive {
	return t.Archive
}

// File returns a filesystem path holding the content of entry name.
func (t *TempFiles) File(name string) (string, error) {
	name = Clean(name)

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.paths[name]; ok {
		return p, nil
	}

	data, ok := t.Archive.Get(name)
	if !ok {
		return "", errors.NotFound(errors.PhaseArchive, "entry", name)
	}

	target := filepath.Join(t.dir, digest.FromBytes(data).Encoded()+path.Ext(name))
	if info, err := os.Stat(target); err == nil && info.Size() == int64(len(data)) {
		t.paths[name] = target
		return target, nil
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, "create "+t.dir)
	}
	tmp, err := os.CreateTemp(t.dir, ".partial-*")
	if err != nil {
		return "", errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, "create temp file")
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), target)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, werr, "write "+target)
	}

	t.paths[name] = target
	return target, nil
}
