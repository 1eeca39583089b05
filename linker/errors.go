package linker

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
)

// ScriptError is an exception thrown by module code that did not carry a
// Go error.
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	switch {
	case e.Stack == "":
		return e.Message
	case strings.HasPrefix(e.Stack, e.Message):
		return e.Stack
	}
	return e.Message + "\n" + e.Stack
}

// scriptError converts a thrown or rejected value.
func scriptError(v goja.Value) *ScriptError {
	if v == nil {
		return &ScriptError{Message: "undefined"}
	}
	e := &ScriptError{Message: v.String()}
	if obj, ok := v.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			e.Stack = stack.String()
		}
	}
	return e
}

// goError extracts the Go error a script value carries, if any.
func goError(v goja.Value) (error, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	inner := obj.Get("value")
	if inner == nil {
		return nil, false
	}
	err, ok := inner.Export().(error)
	return err, ok
}

// evalError wraps an error returned from running a record's body.
// Structured errors keep their identity; script exceptions are attributed
// to rec.
func evalError(rec *module.Record, err error) error {
	if err == nil {
		return nil
	}
	if ex, ok := err.(*goja.Exception); ok {
		if inner := ex.Unwrap(); inner != nil {
			return evalError(rec, inner)
		}
		return errors.Evaluation(rec.ID, &ScriptError{Message: ex.Value().String(), Stack: ex.String()})
	}
	if e, ok := err.(*errors.Error); ok {
		return e
	}
	return errors.Evaluation(rec.ID, err)
}

// rejection converts a promise rejection reason into an error.
func rejection(rec *module.Record, reason goja.Value) error {
	if err, ok := goError(reason); ok {
		return evalError(rec, err)
	}
	return errors.Evaluation(rec.ID, scriptError(reason))
}

// Thrown converts an error returned from calling into rec's code, such as
// its default export.
func Thrown(rec *module.Record, err error) error {
	return evalError(rec, err)
}

// Rejected converts the rejection reason of a promise produced by rec.
func Rejected(rec *module.Record, reason goja.Value) error {
	return rejection(rec, reason)
}
