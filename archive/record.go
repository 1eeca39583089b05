package archive

import "sync"

// Recording remembers the names of entries whose content was returned by Get.
// Has does not count as an access.
type Recording struct {
	Archive
	mu   sync.Mutex
	seen map[string]struct{}
}

// WithRecording decorates a with access recording.
func WithRecording(a Archive) *Recording {
	return &Recording{Archive: a, seen: make(map[string]struct{})}
}

// Unwrap returns the decorated archive.
func (r *Recording) Unwrap() Archive {
	return r.Archive
}

// Get fetches name and records it when present.
func (r *Recording) Get(name string) ([]byte, bool) {
	data, ok := r.Archive.Get(name)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	r.seen[Clean(name)] = struct{}{}
	r.mu.Unlock()
	return data, true
}

// Seen returns the recorded names, sorted.
func (r *Recording) Seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.seen)
}
