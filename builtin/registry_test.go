package builtin

import (
	"bytes"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/modrun/errors"
)

type mathHost struct{}

func (mathHost) Namespace() string  { return "node:mathx" }
func (mathHost) Add(a, b int) int   { return a + b }
func (mathHost) URLSafe() bool      { return true }
func (mathHost) Values() map[string]any {
	return map[string]any{"version": "1.0"}
}

func run(t *testing.T, vm *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v
}

func TestRegistry_RegisterHost(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHost(mathHost{}))

	assert.True(t, r.Has("mathx"))
	assert.True(t, r.Has("node:mathx"))
	assert.False(t, r.Has("fs"))

	vm := goja.New()
	obj, err := r.Get(vm, "node:mathx")
	require.NoError(t, err)
	require.NoError(t, vm.Set("m", obj))

	assert.Equal(t, int64(5), run(t, vm, "m.add(2, 3)").Export())
	assert.Equal(t, true, run(t, vm, "m.urlSafe()").Export())
	assert.Equal(t, "1.0", run(t, vm, "m.version").Export())
	assert.True(t, goja.IsUndefined(run(t, vm, "m.namespace")))

	again, err := r.Get(vm, "mathx")
	require.NoError(t, err)
	assert.Same(t, obj, again, "namespace objects are cached per runtime")

	other, err := r.Get(goja.New(), "mathx")
	require.NoError(t, err)
	assert.NotSame(t, obj, other)
}

func TestRegistry_RegisterFunc(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFunc("greet", "hello", func(name string) string { return "hi " + name }))

	err := r.RegisterFunc("greet", "bad", 42)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindRegistration})
	assert.Error(t, r.RegisterFunc("", "x", func() {}))
	assert.Error(t, r.RegisterFunc("greet", "", func() {}))

	vm := goja.New()
	obj, err := r.Get(vm, "greet")
	require.NoError(t, err)
	require.NoError(t, vm.Set("g", obj))
	assert.Equal(t, "hi bob", run(t, vm, `g.hello("bob")`).Export())
}

func TestRegistry_GetMissing(t *testing.T) {
	_, err := NewRegistry().Get(goja.New(), "nope")
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindNotFound})
}

func TestRegistry_Factory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("node:answer", func(vm *goja.Runtime) (*goja.Object, error) {
		o := vm.NewObject()
		return o, o.Set("value", 42)
	}))
	require.NoError(t, r.RegisterFunc("answer", "twice", func(x int) int { return 2 * x }))

	vm := goja.New()
	obj, err := r.Get(vm, "answer")
	require.NoError(t, err)
	require.NoError(t, vm.Set("a", obj))
	assert.Equal(t, int64(42), run(t, vm, "a.value").Export())
	assert.Equal(t, int64(8), run(t, vm, "a.twice(4)").Export())

	assert.Equal(t, []string{"answer"}, r.Names())
}

func TestToLowerCamel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Join", "join"},
		{"IsAbsolute", "isAbsolute"},
		{"URLPath", "urlPath"},
		{"ID", "id"},
		{"already", "already"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, toLowerCamel(tt.in))
		})
	}
}

func TestDefault(t *testing.T) {
	var out, errOut bytes.Buffer
	proc := &Process{Argv: []string{"modrun", "x"}, Env: map[string]string{"HOME": "/home/u"}, Dir: "/work"}
	r, err := Default(Options{Stdout: &out, Stderr: &errOut, Process: proc})
	require.NoError(t, err)

	assert.Equal(t, []string{"console", "path", "process", "util"}, r.Names())

	vm := goja.New()
	for _, name := range r.Names() {
		obj, err := r.Get(vm, name)
		require.NoError(t, err)
		require.NoError(t, vm.Set(name, obj))
	}

	run(t, vm, `console.log("n=%d", 3, {a: 1}); console.error("bad")`)
	assert.Equal(t, "n=3 {\"a\":1}\n", out.String())
	assert.Equal(t, "bad\n", errOut.String())

	assert.Equal(t, "a/c", run(t, vm, `path.join("a", "b", "..", "c")`).Export())
	assert.Equal(t, "/work/x", run(t, vm, `path.resolve("x")`).Export())
	assert.Equal(t, ".js", run(t, vm, `path.extname("/a/b.js")`).Export())
	assert.Equal(t, "b", run(t, vm, `path.basename("/a/b.js", ".js")`).Export())
	assert.Equal(t, "/a", run(t, vm, `path.dirname("/a/b.js")`).Export())
	assert.Equal(t, "../c", run(t, vm, `path.relative("/a/b", "/a/c")`).Export())
	assert.Equal(t, "/", run(t, vm, `path.sep`).Export())

	assert.Equal(t, "x", run(t, vm, `process.argv[1]`).Export())
	assert.Equal(t, "/home/u", run(t, vm, `process.env.HOME`).Export())
	assert.Equal(t, "/work", run(t, vm, `process.cwd()`).Export())
	assert.True(t, goja.IsUndefined(run(t, vm, `process.exitCode`)))

	run(t, vm, `process.exitCode = 3`)
	code, ok := proc.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 3, code)
	assert.Equal(t, int64(3), run(t, vm, `process.exitCode`).Export())

	assert.Equal(t, "a-1", run(t, vm, `util.format("%s-%i", "a", 1.7)`).Export())
}

func TestFormat(t *testing.T) {
	vm := goja.New()
	v := func(src string) goja.Value { return run(t, vm, src) }

	tests := []struct {
		name string
		args []goja.Value
		want string
	}{
		{"empty", nil, ""},
		{"plain", []goja.Value{v(`"a"`), v(`"b"`)}, "a b"},
		{"percent", []goja.Value{v(`"100%%"`)}, "100%"},
		{"missing arg", []goja.Value{v(`"%s and %s"`), v(`"x"`)}, "x and %s"},
		{"json", []goja.Value{v(`"%j"`), v(`[1,2]`)}, "[1,2]"},
		{"non-string first", []goja.Value{v(`1`), v(`"x"`)}, "1 x"},
		{"undefined", []goja.Value{v(`undefined`)}, "undefined"},
		{"function", []goja.Value{v(`(function foo() {})`)}, "[Function: foo]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.args...))
		})
	}
}
