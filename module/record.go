// Package module defines the Module Record: the graph node the linker caches
// per identifier, its lifecycle state and its export namespace.
package module

import (
	"github.com/dop251/goja"
)

// Format tags the source shape a record was built from.
type Format string

const (
	Dynamic       Format = "dynamic-export"
	Declarative   Format = "declarative-export"
	Data          Format = "data-document"
	Native        Format = "natively-compiled"
	Builtin       Format = "runtime-builtin"
	Shim          Format = "manifest-shim"
	Introspection Format = "introspection"
)

// State is the lifecycle state of a record.
type State int

const (
	Unlinked State = iota
	Linking
	Linked
	Evaluating
	Evaluated
	Failed
)

func (s State) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linking:
		return "linking"
	case Linked:
		return "linked"
	case Evaluating:
		return "evaluating"
	case Evaluated:
		return "evaluated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Body is the format-specific behavior of a record.
type Body interface {
	// Bind runs once every dependency has been linked.
	Bind(rec *Record) error
	// Run executes the module body. A returned promise means evaluation
	// completes when it settles.
	Run(rec *Record) (goja.Value, error)
}

// Record is one resolved, format-classified unit of code or data.
type Record struct {
	ID     string
	Format Format
	State  State
	Err    error

	// Requests lists the statically declared specifiers in source order.
	Requests []string
	// Deps maps each request to its record. Populated by the linker.
	Deps map[string]*Record

	// Namespace holds one accessor per export name.
	Namespace *goja.Object
	Body      Body

	// Interop marks formats whose require() value is the default export.
	Interop bool
	// Target is the entry module a shim forwards to.
	Target *Record
	// Pending is the evaluation promise while State is Evaluating and the
	// evaluation suspended.
	Pending goja.Value

	vm      *goja.Runtime
	exports []string
	defined map[string]bool
}

// New creates an unlinked record with an empty namespace.
func New(vm *goja.Runtime, id string, format Format) *Record {
	ns := vm.NewObject()
	_ = ns.SetSymbol(goja.SymToStringTag, "Module")
	return &Record{
		ID:        id,
		Format:    format,
		Deps:      make(map[string]*Record),
		Namespace: ns,
		vm:        vm,
		defined:   make(map[string]bool),
	}
}

// VM returns the runtime the record belongs to.
func (r *Record) VM() *goja.Runtime { return r.vm }

// Exports returns the export names in definition order.
func (r *Record) Exports() []string {
	out := make([]string, len(r.exports))
	copy(out, r.exports)
	return out
}

// HasExport reports whether name is exported.
func (r *Record) HasExport(name string) bool { return r.defined[name] }

// Define adds an export whose value is read through get on every access.
// Redefinitions are ignored and reported as false.
func (r *Record) Define(name string, get func() goja.Value) bool {
	if r.defined[name] {
		return false
	}
	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		v := get()
		if v == nil {
			return goja.Undefined()
		}
		return v
	})
	if err := r.Namespace.DefineAccessorProperty(name, getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return false
	}
	r.defined[name] = true
	r.exports = append(r.exports, name)
	return true
}

// DefineValue adds an export with a fixed value.
func (r *Record) DefineValue(name string, v goja.Value) bool {
	return r.Define(name, func() goja.Value { return v })
}

// Forward re-exports name of target under alias.
func (r *Record) Forward(alias string, target *Record, name string) bool {
	return r.Define(alias, func() goja.Value { return target.Namespace.Get(name) })
}

// Dep returns the record a static request resolved to.
func (r *Record) Dep(specifier string) *Record {
	return r.Deps[specifier]
}

// Value is what a synchronous require of the record yields: the default
// export for interop formats, the namespace otherwise.
func (r *Record) Value() goja.Value {
	if r.Target != nil {
		return r.Target.Value()
	}
	if r.Interop {
		if v := r.Namespace.Get("default"); v != nil {
			return v
		}
		return goja.Undefined()
	}
	return r.Namespace
}

// Fail moves the record to Failed. The first error wins.
func (r *Record) Fail(err error) error {
	if r.State != Failed {
		r.State = Failed
		r.Err = err
		r.Pending = nil
	}
	return r.Err
}
