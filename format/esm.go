package format

import (
	"github.com/dop251/goja"

	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

const esmHeader = "(async function (__export, __dep, __import, __meta) {"

// declarative is the body of a declarative-export module: the rewritten
// source compiled as an async function, plus the bindings its prologue
// registers.
type declarative struct {
	env      *Env
	source   *esmSource
	program  *goja.Program
	bindings map[string]goja.Callable
}

func materializeDeclarative(env *Env, id string) (*module.Record, error) {
	data, err := env.Read(id)
	if err != nil {
		return nil, err
	}
	return newDeclarative(env, id, string(data))
}

func newDeclarative(env *Env, id, src string) (*module.Record, error) {
	m, err := scanESM(src)
	if err != nil {
		return nil, loadError(id, err)
	}
	prog, err := goja.Compile(id, esmHeader+m.prologue()+m.Code+"\n})", true)
	if err != nil {
		return nil, loadError(id, err)
	}

	body := &declarative{
		env:      env,
		source:   m,
		program:  prog,
		bindings: make(map[string]goja.Callable),
	}
	rec := module.New(env.VM, id, module.Declarative)
	rec.Requests = m.Requests
	rec.Body = body

	for _, name := range m.Order {
		name := name
		rec.Define(name, func() goja.Value { return body.read(name) })
	}
	return rec, nil
}

// read returns the current value of an exported binding. Bindings still in
// their temporal dead zone read as undefined.
func (d *declarative) read(name string) goja.Value {
	get, ok := d.bindings[name]
	if !ok {
		return goja.Undefined()
	}
	v, err := get(goja.Undefined())
	if err != nil {
		return goja.Undefined()
	}
	return v
}

// Bind wires re-exports. Star exports skip default and names the module
// already exports.
func (d *declarative) Bind(rec *module.Record) error {
	for _, re := range d.source.ReExports {
		dep := rec.Dep(re.Specifier)
		if dep == nil {
			continue
		}
		if re.Imported == "*" {
			rec.DefineValue(re.Exported, dep.Namespace)
			continue
		}
		rec.Forward(re.Exported, dep, re.Imported)
	}
	for _, spec := range d.source.Stars {
		dep := rec.Dep(spec)
		if dep == nil {
			continue
		}
		for _, name := range dep.Exports() {
			if name == "default" || rec.HasExport(name) {
				continue
			}
			rec.Forward(name, dep, name)
		}
	}
	return nil
}

// Run starts the module body and returns its completion promise.
func (d *declarative) Run(rec *module.Record) (goja.Value, error) {
	vm := rec.VM()
	fnv, err := vm.RunProgram(d.program)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnv)
	if !ok {
		return nil, syntaxError("module wrapper is not callable")
	}

	register := func(call goja.FunctionCall) goja.Value {
		obj := call.Argument(0).ToObject(vm)
		for _, key := range obj.Keys() {
			if get, ok := goja.AssertFunction(obj.Get(key)); ok {
				d.bindings[key] = get
			}
		}
		return goja.Undefined()
	}
	dep := func(call goja.FunctionCall) goja.Value {
		target := rec.Dep(call.Argument(0).String())
		if target == nil {
			return goja.Undefined()
		}
		return target.Namespace
	}
	dynamic := func(call goja.FunctionCall) goja.Value {
		return d.env.Loader.Import(call.Argument(0).String(), rec.ID)
	}

	return fn(goja.Undefined(),
		vm.ToValue(register),
		vm.ToValue(dep),
		vm.ToValue(dynamic),
		d.meta(vm, rec.ID))
}

func (d *declarative) meta(vm *goja.Runtime, id string) goja.Value {
	meta := vm.NewObject()
	_ = meta.Set("url", id)
	_ = meta.Set("filename", id)
	_ = meta.Set("dirname", resolve.Dirname(id))
	_ = meta.Set("resolve", func(spec string) string {
		target, err := d.env.Resolver.Resolve(spec, id)
		if err != nil {
			throw(vm, err)
		}
		return target
	})
	return meta
}
