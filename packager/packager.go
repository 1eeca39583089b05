// Package packager turns the entries a run actually read into a new archive.
package packager

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/errors"
)

// Options configures Package.
type Options struct {
	// Include adds entries matching these doublestar patterns, for archives
	// that can list their names.
	Include []string
}

// Package serializes every entry a's recording decorator observed, plus the
// Include matches, into a zip container with one directory marker per path
// prefix. It returns nil, nil when a does not record accesses.
func Package(a archive.Archive, opts Options) ([]byte, error) {
	rec, ok := archive.Capability[archive.Recorder](a)
	if !ok {
		Logger().Debug("archive does not record accesses, nothing to package")
		return nil, nil
	}

	names := make(map[string]struct{})
	for _, name := range rec.Seen() {
		names[name] = struct{}{}
	}
	if err := include(a, opts.Include, names); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(names))
	for name := range names {
		files = append(files, name)
	}
	sort.Strings(files)

	dirs := make(map[string]struct{})
	var entries []archive.Entry
	for _, name := range files {
		for _, dir := range archive.Dirs(name) {
			if _, ok := dirs[dir]; ok {
				continue
			}
			dirs[dir] = struct{}{}
			entries = append(entries, archive.Entry{Name: dir})
		}
		data, ok := a.Get(name)
		if !ok {
			return nil, errors.NotFound(errors.PhasePackage, "entry", name)
		}
		entries = append(entries, archive.Entry{Name: name, Data: data})
	}

	out, err := archive.Encode(entries)
	if err != nil {
		return nil, errors.Wrap(errors.PhasePackage, errors.KindInvalidData, err, "encode archive")
	}
	Logger().Info("packaged archive",
		zap.Int("files", len(files)),
		zap.Int("dirs", len(dirs)),
		zap.Int("bytes", len(out)))
	return out, nil
}

func include(a archive.Archive, patterns []string, names map[string]struct{}) error {
	if len(patterns) == 0 {
		return nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return errors.InvalidInput(errors.PhasePackage, "invalid include pattern "+p)
		}
	}
	lister, ok := archive.Capability[archive.Lister](a)
	if !ok {
		return errors.InvalidInput(errors.PhasePackage, "archive cannot list its entries")
	}
	for _, name := range lister.Names() {
		for _, p := range patterns {
			if doublestar.MatchUnvalidated(p, name) {
				names[name] = struct{}{}
				break
			}
		}
	}
	return nil
}

// WriteFile writes data to path through a temporary file in the same
// directory, renamed into place once complete.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(errors.PhasePackage, errors.KindInvalidInput, err, "create "+path)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrap(errors.PhasePackage, errors.KindInvalidInput, err, "chmod "+path)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.PhasePackage, errors.KindInvalidInput, err, "write "+path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.PhasePackage, errors.KindInvalidInput, err, "write "+path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.PhasePackage, errors.KindInvalidInput, err, "rename to "+path)
	}
	return nil
}
