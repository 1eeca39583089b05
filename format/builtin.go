package format

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
)

func materializeBuiltin(env *Env, id string) (*module.Record, error) {
	if env.Builtins == nil {
		return nil, errors.Resolution(id, "", "no builtins available")
	}
	obj, err := env.Builtins.Get(env.VM, strings.TrimPrefix(id, builtin.Prefix))
	if err != nil {
		return nil, err
	}
	return exposeObject(env.VM, id, module.Builtin, obj), nil
}

// exposeObject wraps a host namespace object: default is the object itself
// and every own property is forwarded live.
func exposeObject(vm *goja.Runtime, id string, format module.Format, obj *goja.Object) *module.Record {
	rec := module.New(vm, id, format)
	rec.Interop = true
	rec.Body = static{}
	rec.DefineValue("default", obj)
	for _, key := range obj.Keys() {
		key := key
		rec.Define(key, func() goja.Value { return obj.Get(key) })
	}
	return rec
}
