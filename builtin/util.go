package builtin

import "github.com/dop251/goja"

// Util implements the util builtin.
type Util struct{}

func (Util) Namespace() string { return "util" }

func (Util) Format(args ...goja.Value) string { return Format(args...) }

func (Util) Inspect(v goja.Value) string { return Inspect(v) }
