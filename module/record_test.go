package module

import (
	"fmt"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Define(t *testing.T) {
	vm := goja.New()
	rec := New(vm, "archive://app/a.mjs", Declarative)

	n := 0
	assert.True(t, rec.Define("count", func() goja.Value {
		n++
		return vm.ToValue(n)
	}))
	assert.False(t, rec.Define("count", func() goja.Value { return nil }))
	assert.True(t, rec.DefineValue("fixed", vm.ToValue("v")))
	assert.True(t, rec.Define("missing", func() goja.Value { return nil }))

	assert.Equal(t, int64(1), rec.Namespace.Get("count").Export())
	assert.Equal(t, int64(2), rec.Namespace.Get("count").Export())
	assert.True(t, goja.IsUndefined(rec.Namespace.Get("missing")))
	assert.Equal(t, []string{"count", "fixed", "missing"}, rec.Exports())
	assert.True(t, rec.HasExport("fixed"))

	require.NoError(t, vm.Set("ns", rec.Namespace))
	v, err := vm.RunString(`Object.prototype.toString.call(ns) + ":" + Object.keys(ns).join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "[object Module]:count,fixed,missing", v.String())

	_, err = vm.RunString(`"use strict"; delete ns.fixed`)
	assert.Error(t, err, "exports are not configurable")
}

func TestRecord_Value(t *testing.T) {
	vm := goja.New()

	plain := New(vm, "archive://app/a.mjs", Declarative)
	plain.DefineValue("default", vm.ToValue(1))
	assert.Same(t, plain.Namespace, plain.Value())

	interop := New(vm, "archive://app/a.cjs", Dynamic)
	interop.Interop = true
	assert.True(t, goja.IsUndefined(interop.Value()))
	interop.DefineValue("default", vm.ToValue("exports"))
	assert.Equal(t, "exports", interop.Value().String())

	shim := New(vm, "archive://app/node_modules/a/", Shim)
	shim.Target = interop
	assert.Equal(t, "exports", shim.Value().String())

	fwd := New(vm, "archive://app/b.mjs", Declarative)
	fwd.Forward("alias", interop, "default")
	assert.Equal(t, "exports", fwd.Namespace.Get("alias").String())
}

func TestRecord_Fail(t *testing.T) {
	rec := New(goja.New(), "archive://app/a.mjs", Declarative)
	rec.State = Evaluating
	rec.Pending = goja.Undefined()

	first := fmt.Errorf("first")
	assert.Same(t, first, rec.Fail(first))
	assert.Same(t, first, rec.Fail(fmt.Errorf("second")))
	assert.Equal(t, Failed, rec.State)
	assert.Nil(t, rec.Pending)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unlinked, "unlinked"},
		{Linking, "linking"},
		{Linked, "linked"},
		{Evaluating, "evaluating"},
		{Evaluated, "evaluated"},
		{Failed, "failed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
