package archive

import (
	"sort"
	"strings"
)

// Archive is a read-only named-entry byte store. Entry names are slash
// separated and relative to the archive root. Directory names end in "/".
type Archive interface {
	Has(name string) bool
	Get(name string) ([]byte, bool)
}

// FileProvider materializes an entry to a real filesystem path.
type FileProvider interface {
	File(name string) (string, error)
}

// Recorder reports the entry names whose content was fetched.
type Recorder interface {
	Seen() []string
}

// Lister enumerates every file entry of an archive.
type Lister interface {
	Names() []string
}

// Wrapper is implemented by decorators so capability lookups can reach the
// wrapped archive.
type Wrapper interface {
	Unwrap() Archive
}

// Capability returns the first archive in the decorator chain of a that
// implements T.
func Capability[T any](a Archive) (T, bool) {
	for a != nil {
		if c, ok := a.(T); ok {
			return c, true
		}
		w, ok := a.(Wrapper)
		if !ok {
			break
		}
		a = w.Unwrap()
	}
	var zero T
	return zero, false
}

// Close closes the first closable archive in the decorator chain of a.
func Close(a Archive) error {
	c, ok := Capability[interface{ Close() error }](a)
	if !ok {
		return nil
	}
	return c.Close()
}

// Dirs returns every proper directory prefix of name ("a/", "a/b/" for
// "a/b/c.js") in order.
func Dirs(name string) []string {
	var dirs []string
	for i := 0; i < len(name); i++ {
		if name[i] == '/' && i < len(name)-1 {
			dirs = append(dirs, name[:i+1])
		}
	}
	return dirs
}

// Clean normalizes an entry name: no leading slash, no "./" segments.
func Clean(name string) string {
	name = strings.TrimLeft(name, "/")
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return name
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
