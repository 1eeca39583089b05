package format

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

const cjsHeader = "(function (require, module, exports, __dirname, __filename) {"

// dynamic is the body of a dynamic-export module. Its exports exist only
// after the body ran; the names found by scanning are defined up front as
// live views of module.exports.
type dynamic struct {
	env     *Env
	program *goja.Program
	module  *goja.Object
}

func materializeDynamic(env *Env, id string) (*module.Record, error) {
	data, err := env.Read(id)
	if err != nil {
		return nil, err
	}
	return newDynamic(env, id, string(data))
}

func newDynamic(env *Env, id, src string) (*module.Record, error) {
	lx := lex(src)
	code := src
	if strings.HasPrefix(src, "#!") {
		code = lx.stripComments()
	}
	prog, err := goja.Compile(id, cjsHeader+code+"\n})", false)
	if err != nil {
		return nil, loadError(id, err)
	}

	vm := env.VM
	mod := vm.NewObject()
	_ = mod.Set("exports", vm.NewObject())
	_ = mod.Set("id", id)
	_ = mod.Set("filename", id)
	_ = mod.Set("loaded", false)

	body := &dynamic{env: env, program: prog, module: mod}
	rec := module.New(vm, id, module.Dynamic)
	rec.Interop = true
	rec.Body = body

	rec.Define("default", body.exports)
	for _, name := range scanCJS(lx) {
		body.define(rec, name)
	}
	return rec, nil
}

func (d *dynamic) exports() goja.Value {
	return d.module.Get("exports")
}

func (d *dynamic) define(rec *module.Record, name string) {
	rec.Define(name, func() goja.Value {
		exp := d.exports()
		if exp == nil || goja.IsUndefined(exp) || goja.IsNull(exp) {
			return goja.Undefined()
		}
		return exp.ToObject(rec.VM()).Get(name)
	})
}

func (d *dynamic) Bind(*module.Record) error { return nil }

// Run executes the body synchronously. Names assigned to module.exports
// that the scan missed are added afterwards.
func (d *dynamic) Run(rec *module.Record) (goja.Value, error) {
	vm := rec.VM()
	fnv, err := vm.RunProgram(d.program)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnv)
	if !ok {
		return nil, syntaxError("module wrapper is not callable")
	}

	exports := d.exports()
	if _, err := fn(exports,
		d.require(vm, rec.ID),
		d.module,
		exports,
		vm.ToValue(resolve.Dirname(rec.ID)),
		vm.ToValue(rec.ID)); err != nil {
		return nil, err
	}
	_ = d.module.Set("loaded", true)

	if obj, ok := d.exports().(*goja.Object); ok {
		for _, key := range obj.Keys() {
			if key != "default" && !rec.HasExport(key) {
				d.define(rec, key)
			}
		}
	}
	return goja.Undefined(), nil
}

// require builds the module's bound require callback.
func (d *dynamic) require(vm *goja.Runtime, referrer string) goja.Value {
	req := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := d.env.Loader.Require(call.Argument(0).String(), referrer)
		if err != nil {
			throw(vm, err)
		}
		return v
	}).(*goja.Object)
	_ = req.Set("resolve", func(spec string) string {
		id, err := d.env.Resolver.Resolve(spec, referrer)
		if err != nil {
			throw(vm, err)
		}
		return id
	})
	return req
}

// scanCJS lists the export names a dynamic-export module assigns in ways
// visible without running it:
//
//	exports.name = ...           module.exports.name = ...
//	exports["name"] = ...        Object.defineProperty(exports, "name", ...)
//	module.exports = { name, other: ..., method() {} }
//
// Computed names and exports assembled elsewhere are not found.
func scanCJS(lx *lexer) []string {
	toks := lx.tokens
	var names []string
	seen := map[string]bool{"default": true, "__esModule": true}
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokIdent {
			continue
		}
		member := tokenAt(toks, i-1).is(tokPunct, ".")
		switch t.text {
		case "exports":
			if member && !isModuleExports(toks, i) {
				continue
			}
			next := tokenAt(toks, i+1)
			switch {
			case next.is(tokPunct, ".") && tokenAt(toks, i+2).kind == tokIdent && tokenAt(toks, i+3).is(tokPunct, "="):
				add(tokenAt(toks, i+2).text)
			case next.is(tokPunct, "[") && tokenAt(toks, i+2).kind == tokString &&
				tokenAt(toks, i+3).is(tokPunct, "]") && tokenAt(toks, i+4).is(tokPunct, "="):
				add(unquote(tokenAt(toks, i+2).text))
			case next.is(tokPunct, "=") && isModuleExports(toks, i) && tokenAt(toks, i+2).is(tokPunct, "{"):
				for _, name := range objectKeys(toks, i+2) {
					add(name)
				}
			}
		case "Object":
			if member || !tokenAt(toks, i+1).is(tokPunct, ".") || !tokenAt(toks, i+2).is(tokIdent, "defineProperty") ||
				!tokenAt(toks, i+3).is(tokPunct, "(") {
				continue
			}
			j := i + 4
			if tokenAt(toks, j).is(tokIdent, "module") && tokenAt(toks, j+1).is(tokPunct, ".") {
				j += 2
			}
			if tokenAt(toks, j).is(tokIdent, "exports") && tokenAt(toks, j+1).is(tokPunct, ",") &&
				tokenAt(toks, j+2).kind == tokString {
				add(unquote(tokenAt(toks, j+2).text))
			}
		}
	}
	return names
}

// isModuleExports reports whether the token at i is the exports of a
// module.exports expression.
func isModuleExports(toks []token, i int) bool {
	return tokenAt(toks, i).is(tokIdent, "exports") &&
		tokenAt(toks, i-1).is(tokPunct, ".") &&
		tokenAt(toks, i-2).is(tokIdent, "module") &&
		!tokenAt(toks, i-3).is(tokPunct, ".")
}

// objectKeys returns the property names of the object literal opening at
// toks[open].
func objectKeys(toks []token, open int) []string {
	depth := toks[open].depth + 1
	var keys []string
	expectKey := true
	for i := open + 1; i < len(toks); i++ {
		t := toks[i]
		if t.depth < depth {
			break
		}
		if t.depth != depth {
			continue
		}
		if t.is(tokPunct, ",") {
			expectKey = true
			continue
		}
		if !expectKey {
			continue
		}
		expectKey = false
		if t.is(tokPunct, "...") {
			continue
		}
		key := t
		if (t.is(tokIdent, "get") || t.is(tokIdent, "set") || t.is(tokIdent, "async")) &&
			(tokenAt(toks, i+1).kind == tokIdent || tokenAt(toks, i+1).kind == tokString) {
			key = tokenAt(toks, i+1)
		}
		switch key.kind {
		case tokIdent:
			keys = append(keys, key.text)
		case tokString:
			keys = append(keys, unquote(key.text))
		}
	}
	return keys
}
