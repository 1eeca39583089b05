package format

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
)

const wasiModuleName = wasi_snapshot_preview1.ModuleName

// Wasm adapts WebAssembly entries. Modules are compiled when materialized
// and instantiated when evaluated; exported functions become callable
// exports and exported memory is exposed as memory.
type Wasm struct {
	cacheDir string

	mu       sync.Mutex
	runtime  wazero.Runtime
	wasiDone bool
}

// NewWasm creates the adapter. A non-empty cacheDir enables wazero's
// on-disk compilation cache.
func NewWasm(cacheDir string) *Wasm {
	return &Wasm{cacheDir: cacheDir}
}

func (w *Wasm) engine(ctx context.Context) wazero.Runtime {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runtime != nil {
		return w.runtime
	}
	cfg := wazero.NewRuntimeConfig()
	if w.cacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(w.cacheDir)
		if err != nil {
			Logger().Warn("wasm compilation cache disabled", zap.String("dir", w.cacheDir), zap.Error(err))
		} else {
			cfg = cfg.WithCompilationCache(cache)
		}
	}
	w.runtime = wazero.NewRuntimeWithConfig(ctx, cfg)
	return w.runtime
}

// initWASI instantiates wasi_snapshot_preview1 once per runtime.
func (w *Wasm) initWASI(ctx context.Context, rt wazero.Runtime) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wasiDone || rt.Module(wasiModuleName) != nil {
		w.wasiDone = true
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return err
	}
	w.wasiDone = true
	return nil
}

// Close releases the runtime and every module instantiated in it.
func (w *Wasm) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runtime == nil {
		return nil
	}
	err := w.runtime.Close(context.Background())
	w.runtime = nil
	w.wasiDone = false
	return err
}

// Materialize compiles the entry and declares one export per exported
// function, plus memory when the module exports one.
func (w *Wasm) Materialize(env *Env, id string) (*module.Record, error) {
	data, err := env.Read(id)
	if err != nil {
		return nil, err
	}
	ctx := env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	rt := w.engine(ctx)
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.NativeLoad(id, err)
	}

	body := &wasmBody{adapter: w, ctx: ctx, compiled: compiled, stdout: env.Stdout}
	rec := module.New(env.VM, id, module.Native)
	rec.Interop = true
	rec.Body = body

	exported := compiled.ExportedFunctions()
	names := make([]string, 0, len(exported))
	for name := range exported {
		names = append(names, name)
	}
	sort.Strings(names)

	table := env.VM.NewObject()
	for _, name := range names {
		def := exported[name]
		fn := env.VM.ToValue(func(call goja.FunctionCall) goja.Value {
			return body.call(env.VM, name, def, call.Arguments)
		})
		_ = table.Set(name, fn)
		rec.DefineValue(name, fn)
	}
	if _, ok := compiled.ExportedMemories()["memory"]; ok {
		memory := func() goja.Value { return body.memory(env.VM) }
		_ = table.DefineAccessorProperty("memory",
			env.VM.ToValue(func(goja.FunctionCall) goja.Value { return memory() }),
			nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
		rec.Define("memory", memory)
	}
	rec.DefineValue("default", table)
	return rec, nil
}

type wasmBody struct {
	adapter  *Wasm
	ctx      context.Context
	compiled wazero.CompiledModule
	stdout   io.Writer
	instance api.Module
}

func (b *wasmBody) Bind(*module.Record) error { return nil }

// Run instantiates the module, calling _initialize when the module is a
// WASI reactor.
func (b *wasmBody) Run(rec *module.Record) (goja.Value, error) {
	rt := b.adapter.engine(b.ctx)
	for _, def := range b.compiled.ImportedFunctions() {
		if mod, _, _ := def.Import(); mod == wasiModuleName {
			if err := b.adapter.initWASI(b.ctx, rt); err != nil {
				return nil, errors.NativeLoad(rec.ID, err)
			}
			break
		}
	}

	// Anonymous, so the same entry can be instantiated again by a later run.
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize")
	if b.stdout != nil {
		cfg = cfg.WithStdout(b.stdout)
	}
	inst, err := rt.InstantiateModule(b.ctx, b.compiled, cfg)
	if err != nil {
		return nil, errors.NativeLoad(rec.ID, err)
	}
	b.instance = inst
	return goja.Undefined(), nil
}

func (b *wasmBody) call(vm *goja.Runtime, name string, def api.FunctionDefinition, args []goja.Value) goja.Value {
	if b.instance == nil {
		panic(vm.NewTypeError("wasm export %s called before instantiation", name))
	}
	fn := b.instance.ExportedFunction(name)
	if fn == nil {
		panic(vm.NewTypeError("wasm export %s missing", name))
	}

	params := def.ParamTypes()
	in := make([]uint64, len(params))
	for i, t := range params {
		var arg goja.Value = goja.Undefined()
		if i < len(args) {
			arg = args[i]
		}
		in[i] = encodeValue(t, arg)
	}

	out, err := fn.Call(b.ctx, in...)
	if err != nil {
		throw(vm, err)
	}
	results := def.ResultTypes()
	switch len(out) {
	case 0:
		return goja.Undefined()
	case 1:
		return decodeValue(vm, results[0], out[0])
	}
	vals := make([]interface{}, len(out))
	for i, v := range out {
		vals[i] = decodeValue(vm, results[i], v)
	}
	return vm.NewArray(vals...)
}

func (b *wasmBody) memory(vm *goja.Runtime) goja.Value {
	if b.instance == nil || b.instance.Memory() == nil {
		return goja.Undefined()
	}
	mem := b.instance.Memory()
	data, ok := mem.Read(0, mem.Size())
	if !ok {
		return goja.Undefined()
	}
	return vm.ToValue(vm.NewArrayBuffer(data))
}

func encodeValue(t api.ValueType, v goja.Value) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v.ToInteger()))
	case api.ValueTypeI64:
		return api.EncodeI64(v.ToInteger())
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.ToFloat()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.ToFloat())
	}
	return uint64(v.ToInteger())
}

func decodeValue(vm *goja.Runtime, t api.ValueType, v uint64) goja.Value {
	switch t {
	case api.ValueTypeI32:
		return vm.ToValue(api.DecodeI32(v))
	case api.ValueTypeI64:
		return vm.ToValue(int64(v))
	case api.ValueTypeF32:
		return vm.ToValue(api.DecodeF32(v))
	case api.ValueTypeF64:
		return vm.ToValue(api.DecodeF64(v))
	}
	return vm.ToValue(v)
}
