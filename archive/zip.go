package archive

import (
	"bytes"
	"os"

	"github.com/wippyai/modrun/errors"
)

// OpenZip opens a zip file on disk as a container-backed archive. The file
// stays open until Close.
func OpenZip(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindNotFound, err, "open "+path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, "stat "+path)
	}
	c, err := newContainer(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// NewBlob decodes an in-memory container.
func NewBlob(data []byte) (*Container, error) {
	return newContainer(bytes.NewReader(data), int64(len(data)))
}

// Decode is NewBlob under the codec's name.
func Decode(data []byte) (*Container, error) {
	return NewBlob(data)
}

// openAppended reads the container appended to the file at path. The zip
// reader locates the central directory from the end of the file, so any
// executable prefix is skipped.
func openAppended(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindNotFound, err, "read executable")
	}
	return NewBlob(data)
}
