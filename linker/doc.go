// Package linker builds and evaluates the module graph.
//
// # Main Types
//
//   - Linker: record cache, materialize/link/evaluate, sync bridge
//   - ScriptError: a script exception carried as a Go error
//
// # Lifecycle
//
// Every record moves through
//
//	unlinked -> linking -> linked -> evaluating -> evaluated
//
// and may fall into failed from any state. Materialize caches a record
// before its dependencies are materialized and Link marks it linking before
// its dependencies are linked, so cyclic graphs terminate.
//
// # Evaluation
//
// Declarative modules evaluate to a promise. Evaluate returns that promise
// only while it is pending; settled evaluations update the record state
// directly. Require, the callback handed to dynamic-export modules, never
// waits: a target that is still evaluating or suspends fails with
// errors.ErrSyncBridge.
//
// # Thread Safety
//
// A Linker belongs to one goja runtime and is NOT safe for concurrent use.
//
// # Example
//
//	l := linker.New(linker.Config{VM: vm, Archive: a, Resolver: r, Builtins: b})
//	rec, _ := l.Materialize(r.Root())
//	_ = l.Link(rec)
//	pending, err := l.Evaluate(rec)
package linker
