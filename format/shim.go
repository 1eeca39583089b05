package format

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/manifest"
	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

// shim re-exports a package's entry module. The entry is its only request,
// so it is linked and evaluated before the shim itself.
type shim struct {
	entry string
}

// materializeShim selects the package entry for the identifier's subpath.
// A package directory without a manifest behaves as if it had an empty one.
func materializeShim(env *Env, id string) (*module.Record, error) {
	dir, _, _ := strings.Cut(id, "#")
	manifestID := dir + manifest.FileName
	name, err := resolve.EntryName(manifestID)
	if err != nil {
		return nil, err
	}

	m := &manifest.Manifest{}
	if data, ok := env.Archive.Get(name); ok {
		if m, err = manifest.Parse(data); err != nil {
			return nil, loadError(manifestID, err)
		}
	}

	subpath := resolve.Subpath(id)
	entry, ok := m.Entry(subpath, env.Resolver.Conditions())
	if !ok {
		return nil, errors.New(errors.PhaseResolve, errors.KindResolution).
			Identifier(id).
			Detail("no entry for subpath %q", subpath).
			Cause(errors.Manifest(manifestID, "no matching export", nil)).
			Build()
	}
	if !strings.HasPrefix(entry, "./") && !strings.HasPrefix(entry, "../") {
		entry = "./" + strings.TrimPrefix(entry, "/")
	}

	Logger().Debug("package entry",
		zap.String("package", id),
		zap.String("entry", entry),
		zap.Bool("module", m.IsModule()))

	rec := module.New(env.VM, id, module.Shim)
	rec.Requests = []string{entry}
	rec.Interop = true
	rec.Body = &shim{entry: entry}
	return rec, nil
}

// Bind forwards every export of the entry, default included.
func (s *shim) Bind(rec *module.Record) error {
	target := rec.Dep(s.entry)
	if target == nil {
		return errors.Resolution(s.entry, rec.ID, "package entry not materialized")
	}
	rec.Target = target
	for _, name := range target.Exports() {
		rec.Forward(name, target, name)
	}
	return nil
}

func (s *shim) Run(rec *module.Record) (goja.Value, error) {
	if t := rec.Target; t != nil {
		for _, name := range t.Exports() {
			if !rec.HasExport(name) {
				rec.Forward(name, t, name)
			}
		}
	}
	return goja.Undefined(), nil
}
