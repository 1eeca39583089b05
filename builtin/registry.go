package builtin

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/dop251/goja"

	"github.com/wippyai/modrun/errors"
)

// Prefix is the scheme of builtin identifiers.
const Prefix = "node:"

// Lookup is the runtime builtin lookup consumed by the resolver and the
// builtin format adapter.
type Lookup interface {
	Has(name string) bool
	Get(vm *goja.Runtime, name string) (*goja.Object, error)
}

// Factory builds the namespace object of a builtin for one runtime.
type Factory func(vm *goja.Runtime) (*goja.Object, error)

// Host is the interface for struct-based builtins.
// All exported methods (except Namespace and Values) become functions with
// lowerCamel names.
type Host interface {
	// Namespace returns the builtin name (e.g., "path").
	Namespace() string
}

// ValueHost extends Host with plain properties.
type ValueHost interface {
	Host
	Values() map[string]any
}

// Registry maps builtin names to their implementations. Namespace objects
// are built once per runtime and cached.
type Registry struct {
	factories map[string]Factory
	funcs     map[string]map[string]any
	values    map[string]map[string]any
	instances map[*goja.Runtime]map[string]*goja.Object
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		funcs:     make(map[string]map[string]any),
		values:    make(map[string]map[string]any),
		instances: make(map[*goja.Runtime]map[string]*goja.Object),
	}
}

// Normalize strips the builtin scheme from name.
func Normalize(name string) string {
	return strings.TrimPrefix(name, Prefix)
}

// Register installs a factory for name, replacing any earlier one.
func (r *Registry) Register(name string, f Factory) error {
	name = Normalize(name)
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "builtin name cannot be empty")
	}
	if f == nil {
		return errors.Registration(name, errors.InvalidInput(errors.PhaseHost, "nil factory"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	return nil
}

// RegisterHost registers all exported methods of h as functions of the
// builtin h.Namespace(). Method names are converted from PascalCase to
// lowerCamel (ReadFile -> readFile).
func (r *Registry) RegisterHost(h Host) error {
	ns := Normalize(h.Namespace())
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]any)
	}
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" || method.Name == "Values" {
			continue
		}
		r.funcs[ns][toLowerCamel(method.Name)] = rv.Method(i).Interface()
	}

	if vh, ok := h.(ValueHost); ok {
		if r.values[ns] == nil {
			r.values[ns] = make(map[string]any)
		}
		for k, v := range vh.Values() {
			r.values[ns][k] = v
		}
	}
	return nil
}

// RegisterFunc registers a single function of the builtin namespace.
func (r *Registry) RegisterFunc(namespace, name string, fn any) error {
	namespace = Normalize(namespace)
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return errors.Registration(namespace+"."+name, errors.InvalidInput(errors.PhaseHost, "handler must be a function"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]any)
	}
	r.funcs[namespace][name] = fn
	return nil
}

// Has reports whether name (with or without scheme) is registered.
func (r *Registry) Has(name string) bool {
	name = Normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, f := r.factories[name]
	_, fn := r.funcs[name]
	_, v := r.values[name]
	return f || fn || v
}

// Names returns every registered builtin name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for n := range r.factories {
		seen[n] = true
	}
	for n := range r.funcs {
		seen[n] = true
	}
	for n := range r.values {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns the namespace object of name for vm, building it on first use.
func (r *Registry) Get(vm *goja.Runtime, name string) (*goja.Object, error) {
	name = Normalize(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if obj, ok := r.instances[vm][name]; ok {
		return obj, nil
	}

	factory, hasFactory := r.factories[name]
	funcs, hasFuncs := r.funcs[name]
	values, hasValues := r.values[name]
	if !hasFactory && !hasFuncs && !hasValues {
		return nil, errors.NotFound(errors.PhaseHost, "builtin", name)
	}

	var obj *goja.Object
	if hasFactory {
		var err error
		if obj, err = factory(vm); err != nil {
			return nil, errors.Registration(name, err)
		}
	} else {
		obj = vm.NewObject()
	}
	for k, v := range values {
		if err := obj.Set(k, v); err != nil {
			return nil, errors.Registration(name, err)
		}
	}
	for k, fn := range funcs {
		if err := obj.Set(k, fn); err != nil {
			return nil, errors.Registration(name, err)
		}
	}

	if r.instances[vm] == nil {
		r.instances[vm] = make(map[string]*goja.Object)
	}
	r.instances[vm][name] = obj
	return obj, nil
}

// Release drops the cached namespace objects of vm.
func (r *Registry) Release(vm *goja.Runtime) {
	r.mu.Lock()
	delete(r.instances, vm)
	r.mu.Unlock()
}

// toLowerCamel converts PascalCase to lowerCamel.
// Handles leading acronyms: URLPath -> urlPath, ID -> id
func toLowerCamel(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == 1 || n == len(runes):
		// single capital or all-caps word
	default:
		// last capital starts the next word
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
