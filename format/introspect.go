package format

import (
	"path"
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

// materializeIntrospection builds the module behind the self-reference
// token: has(name) and get(name) over entries below one directory.
func materializeIntrospection(env *Env, id string) (*module.Record, error) {
	vm := env.VM
	dir := resolve.IntrospectionDir(id)
	scoped := func(name string) string {
		clean := strings.TrimPrefix(path.Clean("/"+name), "/")
		if strings.HasSuffix(name, "/") && clean != "" {
			clean += "/"
		}
		return dir + clean
	}

	has := vm.ToValue(func(name string) bool {
		return env.Archive.Has(scoped(name))
	})
	get := vm.ToValue(func(name string) goja.Value {
		data, ok := env.Archive.Get(scoped(name))
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(vm.NewArrayBuffer(data))
	})

	all := vm.NewObject()
	_ = all.Set("has", has)
	_ = all.Set("get", get)

	rec := module.New(vm, id, module.Introspection)
	rec.Body = static{}
	rec.DefineValue("has", has)
	rec.DefineValue("get", get)
	rec.DefineValue("default", all)
	return rec, nil
}
