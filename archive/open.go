package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/modrun/errors"
)

// Options configures Open.
type Options struct {
	// TempDir is where natively-compiled entries are materialized.
	TempDir string
}

// Open selects a backend for path: a ".zip" file opens as a container, a
// directory opens as a recording directory archive. Both gain the
// FileProvider capability. The returned name is the base name of path
// without the ".zip" extension.
func Open(path string, opts Options) (Archive, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, "resolve "+path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", errors.Wrap(errors.PhaseArchive, errors.KindNotFound, err, "open "+path)
	}

	if info.IsDir() {
		return WithTempFiles(WithRecording(OpenDir(abs)), opts.TempDir), filepath.Base(abs), nil
	}

	if strings.EqualFold(filepath.Ext(abs), ".zip") {
		c, err := OpenZip(abs)
		if err != nil {
			return nil, "", err
		}
		name := filepath.Base(abs)
		return WithTempFiles(c, opts.TempDir), name[:len(name)-len(".zip")], nil
	}

	return nil, "", errors.InvalidInput(errors.PhaseArchive, "not a directory or .zip file: "+path)
}

// OpenEmbedded opens the archive that ships with the running executable. See
// OpenBeside.
func OpenEmbedded(opts Options) (Archive, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindNotFound, err, "locate executable")
	}
	return OpenBeside(exe, opts)
}

// OpenBeside opens the container appended to the executable at exe. When
// nothing is appended it falls back to the sibling zip named by SiblingZip.
func OpenBeside(exe string, opts Options) (Archive, error) {
	c, appendErr := openAppended(exe)
	if appendErr != nil {
		sibling := SiblingZip(exe)
		if _, err := os.Stat(sibling); err != nil {
			return nil, errors.New(errors.PhaseArchive, errors.KindNotFound).
				Identifier(exe).
				Detail("no archive appended to the executable and no %s beside it", filepath.Base(sibling)).
				Cause(appendErr).
				Build()
		}
		var err error
		if c, err = OpenZip(sibling); err != nil {
			return nil, err
		}
	}
	return WithTempFiles(c, opts.TempDir), nil
}

// ExecutableName is the archive name of the executable at exe: its base name
// without a ".exe" suffix.
func ExecutableName(exe string) string {
	return strings.TrimSuffix(filepath.Base(exe), ".exe")
}

// SiblingZip returns "<ExecutableName>.zip" in the directory of exe.
func SiblingZip(exe string) string {
	return filepath.Join(filepath.Dir(exe), ExecutableName(exe)+".zip")
}
