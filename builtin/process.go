package builtin

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Process backs the process builtin. ExitCode is shared with scripts through
// the exitCode property.
type Process struct {
	Argv []string
	Env  map[string]string
	Dir  string

	mu       sync.Mutex
	exitCode *int
}

// NewProcess creates a Process from the current environment.
func NewProcess(argv []string) *Process {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	dir, _ := os.Getwd()
	return &Process{Argv: argv, Env: env, Dir: dir}
}

// ExitCode returns the code scripts assigned to process.exitCode.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode == nil {
		return 0, false
	}
	return *p.exitCode, true
}

// SetExitCode assigns process.exitCode.
func (p *Process) SetExitCode(code int) {
	p.mu.Lock()
	p.exitCode = &code
	p.mu.Unlock()
}

// Factory builds the namespace object of the process builtin.
func (p *Process) Factory(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()

	argv := make([]any, len(p.Argv))
	for i, a := range p.Argv {
		argv[i] = a
	}
	env := vm.NewObject()
	for k, v := range p.Env {
		if err := env.Set(k, v); err != nil {
			return nil, err
		}
	}

	props := map[string]any{
		"argv":     vm.NewArray(argv...),
		"env":      env,
		"platform": platform(),
		"arch":     runtime.GOARCH,
		"cwd":      func() string { return p.Dir },
	}
	for k, v := range props {
		if err := obj.Set(k, v); err != nil {
			return nil, err
		}
	}

	getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		if code, ok := p.ExitCode(); ok {
			return vm.ToValue(code)
		}
		return goja.Undefined()
	})
	setter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		v := call.Argument(0)
		if goja.IsUndefined(v) || goja.IsNull(v) {
			p.mu.Lock()
			p.exitCode = nil
			p.mu.Unlock()
			return goja.Undefined()
		}
		p.SetExitCode(int(v.ToInteger()))
		return goja.Undefined()
	})
	if err := obj.DefineAccessorProperty("exitCode", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	return obj, nil
}

func platform() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}
