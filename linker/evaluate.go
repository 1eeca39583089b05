package linker

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
)

const helperSource = `({
	chain: function (waits, body) {
		return Promise.all(waits).then(function () { return body(); });
	},
	settle: function (p, ok, fail) {
		p.then(function () { ok(); }, function (e) { fail(e); });
	},
	after: function (p, value) {
		return p.then(function () { return value; });
	}
})`

// helpers are the promise combinators evaluation needs, compiled once per
// runtime.
type helpers struct {
	chain  goja.Callable
	settle goja.Callable
	after  goja.Callable
}

func (l *Linker) promises() (*helpers, error) {
	if l.helpers != nil {
		return l.helpers, nil
	}
	v, err := l.vm.RunString(helperSource)
	if err != nil {
		return nil, err
	}
	obj := v.ToObject(l.vm)
	h := &helpers{}
	for name, dst := range map[string]*goja.Callable{"chain": &h.chain, "settle": &h.settle, "after": &h.after} {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseEvaluate, "promise helper "+name+" is not callable")
		}
		*dst = fn
	}
	l.helpers = h
	return h, nil
}

// Evaluate runs rec after its static dependencies, depth first, each at
// most once. The returned value is rec's evaluation promise while it is
// still pending, nil once rec is evaluated. A dependency that is evaluating
// without a pending promise is part of a cycle through rec and is skipped.
func (l *Linker) Evaluate(rec *module.Record) (goja.Value, error) {
	switch rec.State {
	case module.Evaluated:
		return nil, nil
	case module.Failed:
		return nil, rec.Err
	case module.Evaluating:
		return rec.Pending, nil
	case module.Unlinked, module.Linking:
		if err := l.Link(rec); err != nil {
			return nil, err
		}
	}

	h, err := l.promises()
	if err != nil {
		return nil, rec.Fail(err)
	}

	rec.State = module.Evaluating
	Logger().Debug("evaluating", zap.String("id", rec.ID), zap.String("format", string(rec.Format)))

	var waits []interface{}
	for _, spec := range rec.Requests {
		dep := rec.Deps[spec]
		if dep == nil || dep.State == module.Evaluating && dep.Pending == nil {
			continue
		}
		pending, err := l.Evaluate(dep)
		if err != nil {
			return nil, rec.Fail(err)
		}
		if pending != nil {
			waits = append(waits, pending)
		}
	}

	if len(waits) == 0 {
		v, err := rec.Body.Run(rec)
		if err != nil {
			return nil, rec.Fail(evalError(rec, err))
		}
		return l.settle(h, rec, v)
	}

	body := l.vm.ToValue(func(goja.FunctionCall) goja.Value {
		v, err := rec.Body.Run(rec)
		if err != nil {
			panic(l.vm.NewGoError(evalError(rec, err)))
		}
		return v
	})
	p, err := h.chain(goja.Undefined(), l.vm.NewArray(waits...), body)
	if err != nil {
		return nil, rec.Fail(evalError(rec, err))
	}
	return l.settle(h, rec, p)
}

// settle moves rec to its final state when v is not a pending promise,
// and arranges for the transition otherwise.
func (l *Linker) settle(h *helpers, rec *module.Record, v goja.Value) (goja.Value, error) {
	var p *goja.Promise
	if v != nil {
		p, _ = v.Export().(*goja.Promise)
	}
	if p == nil {
		l.evaluated(rec)
		return nil, nil
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		l.evaluated(rec)
		return nil, nil
	case goja.PromiseStateRejected:
		return nil, rec.Fail(l.failure(rec, p.Result()))
	}

	rec.Pending = v
	ok := l.vm.ToValue(func(goja.FunctionCall) goja.Value {
		l.evaluated(rec)
		return goja.Undefined()
	})
	fail := l.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		rec.Fail(l.failure(rec, call.Argument(0)))
		Logger().Debug("evaluation failed", zap.String("id", rec.ID), zap.Error(rec.Err))
		return goja.Undefined()
	})
	if _, err := h.settle(goja.Undefined(), v, ok, fail); err != nil {
		return nil, rec.Fail(evalError(rec, err))
	}
	return v, nil
}

func (l *Linker) evaluated(rec *module.Record) {
	if rec.State != module.Evaluating {
		return
	}
	rec.State = module.Evaluated
	rec.Pending = nil
	Logger().Debug("evaluated", zap.String("id", rec.ID))
}

// failure picks the error for a rejected evaluation: a failed dependency's
// own error when there is one, the rejection reason otherwise.
func (l *Linker) failure(rec *module.Record, reason goja.Value) error {
	for _, spec := range rec.Requests {
		if dep := rec.Deps[spec]; dep != nil && dep.State == module.Failed {
			return dep.Err
		}
	}
	return rejection(rec, reason)
}

// Require is the synchronous bridge used by dynamic-export modules. The
// target is linked and evaluated on the spot; if it is already evaluating
// or its evaluation suspends, Require fails instead of waiting.
func (l *Linker) Require(specifier, referrer string) (goja.Value, error) {
	id, err := l.resolver.Resolve(specifier, referrer)
	if err != nil {
		return nil, err
	}
	rec, err := l.Materialize(id)
	if err != nil {
		return nil, err
	}
	if err := l.Link(rec); err != nil {
		return nil, err
	}

	switch rec.State {
	case module.Evaluated:
		return rec.Value(), nil
	case module.Failed:
		return nil, rec.Err
	case module.Evaluating:
		return nil, errors.SyncBridge(id, "required while still evaluating")
	}

	pending, err := l.Evaluate(rec)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, errors.SyncBridge(id, "evaluation suspended")
	}
	return rec.Value(), nil
}

// Import resolves, links and evaluates specifier and returns a promise for
// the target's namespace. Failures reject the promise.
func (l *Linker) Import(specifier, referrer string) goja.Value {
	ns, pending, err := l.load(specifier, referrer)
	if err != nil {
		p, _, reject := l.vm.NewPromise()
		_ = reject(l.vm.NewGoError(err))
		return l.vm.ToValue(p)
	}
	if pending != nil {
		h, err := l.promises()
		if err == nil {
			if v, err := h.after(goja.Undefined(), pending, ns); err == nil {
				return v
			}
		}
	}
	p, resolve, _ := l.vm.NewPromise()
	_ = resolve(ns)
	return l.vm.ToValue(p)
}

func (l *Linker) load(specifier, referrer string) (*goja.Object, goja.Value, error) {
	id, err := l.resolver.Resolve(specifier, referrer)
	if err != nil {
		return nil, nil, err
	}
	rec, err := l.Materialize(id)
	if err != nil {
		return nil, nil, err
	}
	if err := l.Link(rec); err != nil {
		return nil, nil, err
	}
	pending, err := l.Evaluate(rec)
	if err != nil {
		return nil, nil, err
	}
	return rec.Namespace, pending, nil
}
