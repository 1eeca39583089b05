package format

import (
	"github.com/dop251/goja"

	"github.com/wippyai/modrun/module"
)

// materializeScript picks the module format of a .js entry from its syntax.
// Sources without import or export declarations are dynamic, unless they
// only compile as a module body (top-level await).
func materializeScript(env *Env, id string) (*module.Record, error) {
	data, err := env.Read(id)
	if err != nil {
		return nil, err
	}
	src := string(data)
	if hasModuleSyntax(src) {
		return newDeclarative(env, id, src)
	}
	rec, err := newDynamic(env, id, src)
	if err == nil || !hasAwait(src) {
		return rec, err
	}
	if esm, esmErr := newDeclarative(env, id, src); esmErr == nil {
		return esm, nil
	}
	return nil, err
}

func hasAwait(src string) bool {
	for _, t := range lex(src).tokens {
		if t.is(tokIdent, "await") {
			return true
		}
	}
	return false
}

// static is the body of records whose exports exist as soon as they are
// materialized.
type static struct{}

func (static) Bind(*module.Record) error { return nil }

func (static) Run(*module.Record) (goja.Value, error) { return goja.Undefined(), nil }
