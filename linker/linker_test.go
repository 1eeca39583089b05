package linker

import (
	"io"
	"testing"

	"github.com/dop251/goja"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/manifest"
	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

func newLinker(t *testing.T, files map[string]string, opts ...resolve.Option) *Linker {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, "/"+name, []byte(content), 0o644))
	}
	a := archive.NewDir(fs)
	b, err := builtin.Default(builtin.Options{Stdout: io.Discard, Stderr: io.Discard})
	require.NoError(t, err)

	l := New(Config{
		VM:       goja.New(),
		Archive:  a,
		Resolver: resolve.New("app", a, b, opts...),
		Builtins: b,
	})
	t.Cleanup(func() { _ = l.formats.Close() })
	return l
}

func id(name string) string { return "archive://app/" + name }

// evaluate materializes, links and evaluates name, expecting a settled
// evaluation.
func evaluate(t *testing.T, l *Linker, name string) *module.Record {
	t.Helper()
	rec, err := l.Materialize(id(name))
	require.NoError(t, err)
	require.NoError(t, l.Link(rec))
	pending, err := l.Evaluate(rec)
	require.NoError(t, err)
	require.Nil(t, pending)
	require.Equal(t, module.Evaluated, rec.State)
	return rec
}

func TestMaterialize_Identity(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs": `import { b } from "./b.mjs"; export const a = b;`,
		"b.mjs":    `export const b = 1;`,
	})

	first, err := l.Materialize(id("main.mjs"))
	require.NoError(t, err)
	second, err := l.Materialize(id("main.mjs"))
	require.NoError(t, err)
	assert.Same(t, first, second)

	dep, err := l.Materialize(id("b.mjs"))
	require.NoError(t, err)
	assert.Same(t, dep, first.Dep("./b.mjs"))
	assert.Len(t, l.Records(), 2)

	_, err = l.Materialize(id("missing.mjs"))
	require.ErrorIs(t, err, errors.ErrResolution)
	_, again := l.Materialize(id("missing.mjs"))
	assert.Same(t, err, again)
}

func TestLink_Idempotent(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs": `import { b } from "./b.mjs"; export const a = b;`,
		"b.mjs":    `export const b = 1;`,
	})
	rec, err := l.Materialize(id("main.mjs"))
	require.NoError(t, err)

	require.NoError(t, l.Link(rec))
	assert.Equal(t, module.Linked, rec.State)
	dep := rec.Dep("./b.mjs")
	assert.Equal(t, module.Linked, dep.State)

	dep.State = module.Unlinked
	require.NoError(t, l.Link(rec))
	assert.Equal(t, module.Unlinked, dep.State, "second link must not walk dependencies")
}

func TestCycle_Declarative(t *testing.T) {
	l := newLinker(t, map[string]string{
		"a.mjs": `import { b } from "./b.mjs"; export const a = "a"; export function peer() { return b; }`,
		"b.mjs": `import { a } from "./a.mjs"; export const b = "b"; export const seen = typeof a;`,
	})
	a, err := l.Materialize(id("a.mjs"))
	require.NoError(t, err)
	require.NoError(t, l.Link(a))

	b := a.Dep("./b.mjs")
	assert.Same(t, a, b.Dep("./a.mjs"))
	assert.Equal(t, module.Linked, a.State)
	assert.Equal(t, module.Linked, b.State)

	pending, err := l.Evaluate(a)
	require.NoError(t, err)
	assert.Nil(t, pending)
	assert.Equal(t, module.Evaluated, a.State)
	assert.Equal(t, module.Evaluated, b.State)
	assert.Equal(t, "undefined", b.Namespace.Get("seen").String())
	assert.Equal(t, "a", a.Namespace.Get("a").String())
}

func TestCycle_LiveBindings(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs": `import { late } from "./b.mjs"; export const value = 5; export default late();`,
		"b.mjs":    `import { value } from "./main.mjs"; export function late() { return value; }`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, int64(5), rec.Namespace.Get("default").ToInteger())
}

func TestLiveBindings_Reassigned(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs": `import { count, bump } from "./counter.mjs";
const before = count;
bump(); bump();
export default [before, count];`,
		"counter.mjs": `export let count = 0; export function bump() { count++; }`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, []any{int64(0), int64(2)}, rec.Namespace.Get("default").Export())
}

func TestDeclarative_RegexAfterStatementHead(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs": `const s = "{"; let ok = false; if (s) /[{]/.test(s) && (ok = true); export default ok;`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.True(t, rec.Namespace.Get("default").ToBoolean())
}

func TestRequire_SyncBridge(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		entry string
	}{
		{
			name: "suspended declarative target",
			files: map[string]string{
				"main.cjs": `module.exports = require("./slow.mjs");`,
				"slow.mjs": `await null; export const x = 1;`,
			},
			entry: "main.cjs",
		},
		{
			name: "pending dependency of the target",
			files: map[string]string{
				"main.cjs": `module.exports = require("./outer.mjs");`,
				"outer.mjs": `import { x } from "./slow.mjs"; export const y = x;`,
				"slow.mjs":  `await null; export const x = 1;`,
			},
			entry: "main.cjs",
		},
		{
			name: "synchronous cycle",
			files: map[string]string{
				"a.cjs": `module.exports = require("./b.cjs");`,
				"b.cjs": `module.exports = require("./a.cjs");`,
			},
			entry: "a.cjs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, tt.files)
			rec, err := l.Materialize(id(tt.entry))
			require.NoError(t, err)
			_, err = l.Evaluate(rec)
			require.ErrorIs(t, err, errors.ErrSyncBridge)
			assert.Equal(t, module.Failed, rec.State)
		})
	}
}

func TestRequire_EvaluatedDeclarative(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs":   `import "./slow.mjs"; import v from "./reader.cjs"; export default v;`,
		"slow.mjs":   `await null; export const x = 1;`,
		"reader.cjs": `module.exports = require("./slow.mjs").x + 1;`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, int64(2), rec.Namespace.Get("default").Export())
}

func TestShim_ConditionalExports(t *testing.T) {
	files := map[string]string{
		"node_modules/dual/package.json": `{"exports": {".": {"module": "./esm.js", "default": "./cjs.js"}}}`,
		"node_modules/dual/esm.js":       `export const kind = "esm";`,
		"node_modules/dual/cjs.js":       `exports.kind = "cjs";`,
		"main.mjs":                       `import { kind } from "dual"; export default kind;`,
	}

	tests := []struct {
		name  string
		conds manifest.Conditions
		want  string
	}{
		{"module condition", nil, "esm"},
		{"default fallback", manifest.Conditions{"require"}, "cjs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, files, resolve.WithConditions(tt.conds))
			rec := evaluate(t, l, "main.mjs")
			assert.Equal(t, tt.want, rec.Namespace.Get("default").String())

			shim, ok := l.Record(id("node_modules/dual/"))
			require.True(t, ok)
			assert.Equal(t, module.Shim, shim.Format)
			require.NotNil(t, shim.Target)
			assert.Equal(t, tt.want, shim.Namespace.Get("kind").String())
		})
	}
}

func TestHostFormats(t *testing.T) {
	l := newLinker(t, map[string]string{
		"conf.json": `{"name":"demo"}`,
		"main.mjs": `
import conf from "./conf.json";
import { join } from "path";
import self from "<archive>";
const data = self.get("conf.json");
export default [conf.name, join("a", "b"), self.has("conf.json"), data.byteLength];
`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, []interface{}{"demo", "a/b", true, int64(15)}, rec.Namespace.Get("default").Export())
}

// addWasm is a core module exporting add(i32, i32) i32.
const addWasm = "\x00asm\x01\x00\x00\x00" +
	"\x01\x07\x01\x60\x02\x7f\x7f\x01\x7f" +
	"\x03\x02\x01\x00" +
	"\x07\x07\x01\x03add\x00\x00" +
	"\x0a\x09\x01\x07\x00\x20\x00\x20\x01\x6a\x0b"

func TestWasmFormat(t *testing.T) {
	l := newLinker(t, map[string]string{
		"add.wasm": addWasm,
		"main.mjs": `import { add } from "./add.wasm"; import lib from "./add.wasm"; export default [add(2, 3), lib.add(-1, 1), typeof lib.memory];`,
		"main.cjs": `module.exports = require("./add.wasm").add(40, 2);`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, []interface{}{int64(5), int64(0), "undefined"}, rec.Namespace.Get("default").Export())

	wasm, ok := l.Record(id("add.wasm"))
	require.True(t, ok)
	assert.Equal(t, module.Native, wasm.Format)
	assert.Equal(t, []string{"add", "default"}, wasm.Exports())

	rec = evaluate(t, l, "main.cjs")
	assert.Equal(t, int64(42), rec.Value().Export())
}

func TestWasmFormat_Invalid(t *testing.T) {
	l := newLinker(t, map[string]string{"bad.wasm": "not wasm"})
	_, err := l.Materialize(id("bad.wasm"))
	assert.ErrorIs(t, err, errors.ErrNativeLoad)
}

func TestRequire_Interop(t *testing.T) {
	l := newLinker(t, map[string]string{
		"data.yaml": "dir: base\n",
		"main.cjs": `
const p = require("node:path");
const d = require("./data.yaml");
module.exports = p.join(d.dir, require.resolve("./data.yaml").endsWith("data.yaml") ? "x" : "y");
`,
	})
	rec := evaluate(t, l, "main.cjs")
	assert.Equal(t, "base/x", rec.Value().String())
}

func TestDynamicImport(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs": `const m = await import("./lazy.mjs"); export default m.value + import.meta.url.length;`,
		"lazy.mjs": `export const value = 7;`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, int64(7+len(id("main.mjs"))), rec.Namespace.Get("default").Export())

	lazy, ok := l.Record(id("lazy.mjs"))
	require.True(t, ok)
	assert.Equal(t, module.Evaluated, lazy.State)
}

func TestEvaluate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		kind  errors.Kind
		text  string
	}{
		{
			name:  "script exception",
			files: map[string]string{"main.mjs": `throw new Error("boom");`},
			kind:  errors.KindEvaluation,
			text:  "boom",
		},
		{
			name:  "unsupported dependency",
			files: map[string]string{"main.mjs": `import "./notes.txt";`, "notes.txt": "hi"},
			kind:  errors.KindUnsupportedFormat,
			text:  "notes.txt",
		},
		{
			name:  "missing require",
			files: map[string]string{"main.mjs": `import "./a.cjs";`, "a.cjs": `require("./gone.js");`},
			kind:  errors.KindResolution,
			text:  "gone.js",
		},
		{
			name: "failed dependency",
			files: map[string]string{
				"main.mjs": `import "./bad.mjs";`,
				"bad.mjs":  `throw new TypeError("nested");`,
			},
			kind: errors.KindEvaluation,
			text: "nested",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, tt.files)
			rec, err := l.Materialize(id("main.mjs"))
			if err == nil {
				_, err = l.Evaluate(rec)
			}
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Contains(t, err.Error(), tt.text)
			assert.Equal(t, module.Failed, rec.State)
		})
	}
}

func TestStarExports(t *testing.T) {
	l := newLinker(t, map[string]string{
		"main.mjs":  `import * as api from "./index.mjs"; export default Object.keys(api).sort().join(",");`,
		"index.mjs": `export * from "./a.mjs"; export * as b from "./b.mjs"; export { c as renamed } from "./b.mjs"; export const own = 1;`,
		"a.mjs":     `export const x = 1, y = 2; export default "skipped";`,
		"b.mjs":     `export const c = 3;`,
	})
	rec := evaluate(t, l, "main.mjs")
	assert.Equal(t, "b,own,renamed,x,y", rec.Namespace.Get("default").String())
}
