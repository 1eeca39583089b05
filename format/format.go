// Package format turns archive entries into Module Records. One Adapter
// exists per source shape; the Registry picks it from the identifier's
// scheme or extension.
package format

import (
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

// Loader is the Graph Builder as seen by adapters. Adapters never resolve
// or evaluate nested dependencies themselves.
type Loader interface {
	// Materialize returns the cached record for id, creating it on a miss.
	Materialize(id string) (*module.Record, error)
	// Require is the synchronous bridge: resolve, link and evaluate, failing
	// if evaluation would suspend.
	Require(specifier, referrer string) (goja.Value, error)
	// Import resolves, links and evaluates, returning a promise for the
	// target namespace.
	Import(specifier, referrer string) goja.Value
}

// Env is what an adapter needs to build a record.
type Env struct {
	Context  context.Context
	VM       *goja.Runtime
	Archive  archive.Archive
	Resolver *resolve.Resolver
	Builtins builtin.Lookup
	Loader   Loader
	Stdout   io.Writer
}

// Read returns the bytes of the archive entry behind an identifier.
func (e *Env) Read(id string) ([]byte, error) {
	name, err := resolve.EntryName(id)
	if err != nil {
		return nil, err
	}
	data, ok := e.Archive.Get(name)
	if !ok {
		return nil, errors.Resolution(id, "", "not found")
	}
	return data, nil
}

// Adapter converts one identifier into an unlinked Module Record.
type Adapter interface {
	Materialize(env *Env, id string) (*module.Record, error)
}

// AdapterFunc adapts a plain function to Adapter.
type AdapterFunc func(env *Env, id string) (*module.Record, error)

func (f AdapterFunc) Materialize(env *Env, id string) (*module.Record, error) { return f(env, id) }

// Registry maps extensions to adapters.
type Registry struct {
	mu            sync.RWMutex
	byExt         map[string]Adapter
	builtins      Adapter
	shim          Adapter
	introspection Adapter
	closers       []io.Closer
}

// NewRegistry returns a registry with every built-in adapter registered.
func NewRegistry(opts ...Option) *Registry {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	wasm := NewWasm(cfg.wasmCacheDir)
	r := &Registry{
		byExt:         make(map[string]Adapter),
		builtins:      AdapterFunc(materializeBuiltin),
		shim:          AdapterFunc(materializeShim),
		introspection: AdapterFunc(materializeIntrospection),
		closers:       []io.Closer{wasm},
	}
	r.Register(".js", AdapterFunc(materializeScript))
	r.Register(".cjs", AdapterFunc(materializeDynamic))
	r.Register(".mjs", AdapterFunc(materializeDeclarative))
	r.Register(".json", dataAdapter(decodeJSON))
	r.Register(".yaml", dataAdapter(decodeYAML))
	r.Register(".yml", dataAdapter(decodeYAML))
	r.Register(".toml", dataAdapter(decodeTOML))
	r.Register(".cue", dataAdapter(decodeCUE))
	r.Register(".node", AdapterFunc(materializePlugin))
	r.Register(".wasm", wasm)
	return r
}

type config struct {
	wasmCacheDir string
}

// Option configures a Registry.
type Option func(*config)

// WithWasmCacheDir enables the on-disk wazero compilation cache.
func WithWasmCacheDir(dir string) Option {
	return func(c *config) { c.wasmCacheDir = dir }
}

// Register binds ext (with leading dot) to an adapter, replacing any
// previous one.
func (r *Registry) Register(ext string, a Adapter) {
	r.mu.Lock()
	r.byExt[ext] = a
	r.mu.Unlock()
}

// Lookup picks the adapter for id.
func (r *Registry) Lookup(id string) (Adapter, error) {
	switch {
	case resolve.IsBuiltin(id):
		return r.builtins, nil
	case resolve.IsIntrospection(id):
		return r.introspection, nil
	case resolve.IsPackage(id):
		return r.shim, nil
	}

	ext := resolve.Ext(id)
	r.mu.RLock()
	a, ok := r.byExt[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.UnsupportedFormat(id, ext)
	}
	return a, nil
}

// Materialize dispatches id to its adapter.
func (r *Registry) Materialize(env *Env, id string) (*module.Record, error) {
	a, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	rec, err := a.Materialize(env, id)
	if err != nil {
		return nil, err
	}
	Logger().Debug("materialized",
		zap.String("id", id),
		zap.String("format", string(rec.Format)),
		zap.Int("requests", len(rec.Requests)))
	return rec, nil
}

// Close releases adapter resources such as compiled WebAssembly modules.
func (r *Registry) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// throw raises err as a JavaScript exception carrying the Go error.
func throw(vm *goja.Runtime, err error) {
	panic(vm.NewGoError(err))
}

func syntaxError(msg string) error {
	return errors.InvalidInput(errors.PhaseLoad, msg)
}

func loadError(id string, err error) error {
	if e, ok := err.(*errors.Error); ok && e.Identifier == "" {
		e.Identifier = id
		return e
	}
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.New(errors.PhaseLoad, errors.KindInvalidData).Identifier(id).Cause(err).Build()
}

func itoa(n int) string { return strconv.Itoa(n) }
