package linker

import (
	"context"
	"io"
	"sort"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/format"
	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

// Config holds what a Linker works against.
type Config struct {
	Context  context.Context
	VM       *goja.Runtime
	Archive  archive.Archive
	Resolver *resolve.Resolver
	Builtins builtin.Lookup
	// Formats defaults to format.NewRegistry().
	Formats *format.Registry
	// Stdout receives output of natively-compiled modules.
	Stdout io.Writer
}

// Linker owns the record cache of one run.
type Linker struct {
	vm       *goja.Runtime
	resolver *resolve.Resolver
	formats  *format.Registry
	env      *format.Env
	records  map[string]*module.Record
	failures map[string]error
	helpers  *helpers
}

// New creates a Linker.
func New(cfg Config) *Linker {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Formats == nil {
		cfg.Formats = format.NewRegistry()
	}
	l := &Linker{
		vm:       cfg.VM,
		resolver: cfg.Resolver,
		formats:  cfg.Formats,
		records:  make(map[string]*module.Record),
		failures: make(map[string]error),
	}
	l.env = &format.Env{
		Context:  cfg.Context,
		VM:       cfg.VM,
		Archive:  cfg.Archive,
		Resolver: cfg.Resolver,
		Builtins: cfg.Builtins,
		Loader:   l,
		Stdout:   cfg.Stdout,
	}
	return l
}

// VM returns the runtime records are created in.
func (l *Linker) VM() *goja.Runtime { return l.vm }

// Resolver returns the resolver specifiers go through.
func (l *Linker) Resolver() *resolve.Resolver { return l.resolver }

// Record returns the cached record for id.
func (l *Linker) Record(id string) (*module.Record, bool) {
	rec, ok := l.records[id]
	return rec, ok
}

// Records returns every cached record ordered by identifier.
func (l *Linker) Records() []*module.Record {
	ids := make([]string, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*module.Record, len(ids))
	for i, id := range ids {
		out[i] = l.records[id]
	}
	return out
}

// Materialize returns the record for id. On a cache miss the record is
// created by its format adapter and cached before its static requests are
// resolved and materialized.
func (l *Linker) Materialize(id string) (*module.Record, error) {
	if rec, ok := l.records[id]; ok {
		if rec.State == module.Failed {
			return rec, rec.Err
		}
		return rec, nil
	}
	if err, ok := l.failures[id]; ok {
		return nil, err
	}

	rec, err := l.formats.Materialize(l.env, id)
	if err != nil {
		l.failures[id] = err
		return nil, err
	}
	l.records[id] = rec

	for _, spec := range rec.Requests {
		depID, err := l.resolver.Resolve(spec, id)
		if err != nil {
			return rec, rec.Fail(err)
		}
		dep, err := l.Materialize(depID)
		if err != nil {
			return rec, rec.Fail(err)
		}
		rec.Deps[spec] = dep
	}
	return rec, nil
}

// Link wires rec and everything it depends on. Records already linked, or
// being linked further up the current traversal, are left alone.
func (l *Linker) Link(rec *module.Record) error {
	switch {
	case rec.State == module.Failed:
		return rec.Err
	case rec.State >= module.Linked, rec.State == module.Linking:
		return nil
	}

	rec.State = module.Linking
	for _, spec := range rec.Requests {
		dep := rec.Deps[spec]
		if dep == nil {
			continue
		}
		if err := l.Link(dep); err != nil {
			return rec.Fail(err)
		}
	}
	if err := rec.Body.Bind(rec); err != nil {
		return rec.Fail(evalError(rec, err))
	}
	rec.State = module.Linked
	Logger().Debug("linked", zap.String("id", rec.ID), zap.Int("exports", len(rec.Exports())))
	return nil
}

// Resolve maps specifier as seen from referrer.
func (l *Linker) Resolve(specifier, referrer string) (string, error) {
	return l.resolver.Resolve(specifier, referrer)
}
