package format

import (
	"plugin"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

// ExportsSymbol is the symbol a native plugin provides its export table
// under: a map[string]any variable or a func() map[string]any.
const ExportsSymbol = "Exports"

// materializePlugin links a Go plugin entry. The archive must be able to
// put the entry on the filesystem.
func materializePlugin(env *Env, id string) (*module.Record, error) {
	files, ok := archive.Capability[archive.FileProvider](env.Archive)
	if !ok {
		return nil, errors.NativeLoad(id, errors.InvalidInput(errors.PhaseLoad, "archive cannot materialize files"))
	}
	name, err := resolve.EntryName(id)
	if err != nil {
		return nil, err
	}
	if !env.Archive.Has(name) {
		return nil, errors.Resolution(id, "", "not found")
	}
	path, err := files.File(name)
	if err != nil {
		return nil, errors.NativeLoad(id, err)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, errors.NativeLoad(id, err)
	}
	sym, err := p.Lookup(ExportsSymbol)
	if err != nil {
		return nil, errors.NativeLoad(id, err)
	}

	var table map[string]any
	switch v := sym.(type) {
	case *map[string]any:
		table = *v
	case func() map[string]any:
		table = v()
	default:
		return nil, errors.NativeLoad(id, errors.InvalidInput(errors.PhaseLoad, "Exports has unsupported type"))
	}

	obj := env.VM.NewObject()
	for k, v := range table {
		if err := obj.Set(k, v); err != nil {
			return nil, errors.NativeLoad(id, err)
		}
	}
	return exposeObject(env.VM, id, module.Native, obj), nil
}
