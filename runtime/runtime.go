package runtime

import (
	"context"
	"io"
	"os"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/format"
	"github.com/wippyai/modrun/linker"
	"github.com/wippyai/modrun/manifest"
	"github.com/wippyai/modrun/module"
	"github.com/wippyai/modrun/resolve"
)

// Options configures a Runner.
type Options struct {
	// Conditions overrides the export condition precedence.
	Conditions manifest.Conditions
	Stdout     io.Writer
	Stderr     io.Writer
	// Diagnostics receives the report of a failed run. Defaults to Stderr.
	Diagnostics io.Writer
	// Env replaces the process environment seen by scripts.
	Env map[string]string
	// Dir is process.cwd(). Defaults to the working directory.
	Dir string
	// WasmCacheDir enables the on-disk WebAssembly compilation cache.
	WasmCacheDir string
}

// Outcome is the result of one run.
type Outcome struct {
	Err   error
	RunID string
	Code  int
}

// Runner executes the package root of one archive.
type Runner struct {
	archive  archive.Archive
	name     string
	opts     Options
	formats  *format.Registry
	register []func(*builtin.Registry) error
}

// New creates a Runner for the archive a known under name.
func New(a archive.Archive, name string, opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = opts.Stderr
	}
	var fopts []format.Option
	if opts.WasmCacheDir != "" {
		fopts = append(fopts, format.WithWasmCacheDir(opts.WasmCacheDir))
	}
	return &Runner{
		archive: a,
		name:    name,
		opts:    opts,
		formats: format.NewRegistry(fopts...),
	}
}

// Name returns the archive's logical name.
func (r *Runner) Name() string { return r.name }

// Formats returns the format registry, for registering further adapters.
func (r *Runner) Formats() *format.Registry { return r.formats }

// RegisterHost makes h available as a builtin in every run.
// Method names are converted from PascalCase to lowerCamel (GetValue -> getValue).
func (r *Runner) RegisterHost(h builtin.Host) {
	r.register = append(r.register, func(reg *builtin.Registry) error {
		return reg.RegisterHost(h)
	})
}

// RegisterFunc adds a single function to the builtin namespace.
func (r *Runner) RegisterFunc(namespace, name string, fn any) {
	r.register = append(r.register, func(reg *builtin.Registry) error {
		return reg.RegisterFunc(namespace, name, fn)
	})
}

// Close releases compiled native modules.
func (r *Runner) Close() error {
	return r.formats.Close()
}

func (r *Runner) builtins(proc *builtin.Process) (*builtin.Registry, error) {
	reg, err := builtin.Default(builtin.Options{
		Stdout:  r.opts.Stdout,
		Stderr:  r.opts.Stderr,
		Process: proc,
	})
	if err != nil {
		return nil, err
	}
	for _, fn := range r.register {
		if err := fn(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Runner) process(argv []string) *builtin.Process {
	proc := builtin.NewProcess(argv)
	if r.opts.Env != nil {
		proc.Env = r.opts.Env
	}
	if r.opts.Dir != "" {
		proc.Dir = r.opts.Dir
	}
	return proc
}

func (r *Runner) newLinker(ctx context.Context, vm *goja.Runtime, reg *builtin.Registry) *linker.Linker {
	res := resolve.New(r.name, r.archive, reg, resolve.WithConditions(r.opts.Conditions))
	return linker.New(linker.Config{
		Context:  ctx,
		VM:       vm,
		Archive:  r.archive,
		Resolver: res,
		Builtins: reg,
		Formats:  r.formats,
		Stdout:   r.opts.Stdout,
	})
}

// Run materializes, links and evaluates the archive's package root, then
// calls its default export with argv when it is a function. Synchronous
// and asynchronous roots are reported the same way: Run returns once the
// event loop has drained. Errors are reported once on the diagnostic
// writer and yield a non-zero code.
func (r *Runner) Run(ctx context.Context, argv []string) Outcome {
	runID := uuid.NewString()
	log := Logger().With(zap.String("run", runID), zap.String("archive", r.name))

	proc := r.process(argv)
	reg, err := r.builtins(proc)
	if err != nil {
		return r.finish(log, Outcome{RunID: runID, Code: 1, Err: err})
	}

	s := &session{runner: r, proc: proc, argv: argv}
	loop := eventloop.NewEventLoop()
	var stop func() bool
	loop.Run(func(vm *goja.Runtime) {
		stop = context.AfterFunc(ctx, func() {
			vm.Interrupt(ctx.Err())
			loop.StopNoWait()
		})
		defer reg.Release(vm)
		s.start(ctx, vm, reg)
	})
	if stop != nil {
		stop()
	}

	out := Outcome{RunID: runID}
	switch {
	case s.done:
		out.Code, out.Err = s.code, s.err
	case ctx.Err() != nil:
		out.Code, out.Err = s.failureCode(), errors.Wrap(errors.PhaseRun, errors.KindEvaluation, ctx.Err(), "run cancelled")
	default:
		out.Code, out.Err = s.failureCode(), errors.New(errors.PhaseRun, errors.KindEvaluation).
			Identifier(resolve.Root(r.name)).
			Detail("evaluation stalled").
			Build()
	}
	return r.finish(log, out)
}

func (r *Runner) finish(log *zap.Logger, out Outcome) Outcome {
	if out.Err != nil {
		report(r.opts.Diagnostics, out.RunID, out.Err)
		log.Error("run failed", zap.Int("code", out.Code), zap.Error(out.Err))
		return out
	}
	log.Info("run finished", zap.Int("code", out.Code))
	return out
}

// session is the state of one run inside the event loop.
type session struct {
	runner *Runner
	proc   *builtin.Process
	argv   []string
	root   *module.Record

	done bool
	code int
	err  error
}

func (s *session) start(ctx context.Context, vm *goja.Runtime, reg *builtin.Registry) {
	for _, name := range []string{"console", "process"} {
		obj, err := reg.Get(vm, name)
		if err != nil {
			s.fail(err)
			return
		}
		if err := vm.Set(name, obj); err != nil {
			s.fail(err)
			return
		}
	}

	l := s.runner.newLinker(ctx, vm, reg)
	rec, err := l.Materialize(l.Resolver().Root())
	if err != nil {
		s.fail(err)
		return
	}
	s.root = rec
	if err := l.Link(rec); err != nil {
		s.fail(err)
		return
	}

	pending, err := l.Evaluate(rec)
	if err != nil {
		s.fail(err)
		return
	}
	if pending == nil {
		s.invoke(vm)
		return
	}
	s.await(vm, pending, func(goja.Value) { s.invoke(vm) }, func(reason goja.Value) {
		if rec.State == module.Failed {
			s.fail(rec.Err)
			return
		}
		s.fail(linker.Rejected(rec, reason))
	})
}

// invoke calls the root's default export when it is a function.
func (s *session) invoke(vm *goja.Runtime) {
	fn, ok := goja.AssertFunction(s.root.Namespace.Get("default"))
	if !ok {
		s.exit(nil)
		return
	}

	args := make([]interface{}, len(s.argv))
	for i, a := range s.argv {
		args[i] = a
	}
	v, err := fn(goja.Undefined(), vm.NewArray(args...))
	if err != nil {
		s.fail(linker.Thrown(s.root, err))
		return
	}

	p, isPromise := v.Export().(*goja.Promise)
	switch {
	case !isPromise:
		s.exit(v)
	case p.State() == goja.PromiseStateFulfilled:
		s.exit(p.Result())
	case p.State() == goja.PromiseStateRejected:
		s.fail(linker.Rejected(s.root, p.Result()))
	default:
		s.await(vm, v, s.exit, func(reason goja.Value) {
			s.fail(linker.Rejected(s.root, reason))
		})
	}
}

func (s *session) await(vm *goja.Runtime, p goja.Value, ok, fail func(goja.Value)) {
	obj := p.ToObject(vm)
	then, isFn := goja.AssertFunction(obj.Get("then"))
	if !isFn {
		s.fail(errors.InvalidInput(errors.PhaseRun, "evaluation result is not a promise"))
		return
	}
	onOK := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		ok(call.Argument(0))
		return goja.Undefined()
	})
	onFail := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fail(call.Argument(0))
		return goja.Undefined()
	})
	if _, err := then(obj, onOK, onFail); err != nil {
		s.fail(err)
	}
}

// exit settles the run with the code v stands for: a number is the code,
// anything else defers to process.exitCode.
func (s *session) exit(v goja.Value) {
	if s.done {
		return
	}
	code, _ := s.proc.ExitCode()
	if v != nil {
		switch v.Export().(type) {
		case int64, float64:
			code = int(v.ToInteger())
		}
	}
	s.done, s.code = true, code
}

func (s *session) fail(err error) {
	if s.done {
		return
	}
	s.done, s.code, s.err = true, s.failureCode(), err
}

func (s *session) failureCode() int {
	if code, ok := s.proc.ExitCode(); ok && code != 0 {
		return code
	}
	return 1
}
