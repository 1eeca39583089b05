package builtin

import (
	"math"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Format renders args the way util.format does: a leading string is a
// template for %s %d %i %f %j %o %O and %%, remaining arguments are appended
// separated by spaces.
func Format(args ...goja.Value) string {
	if len(args) == 0 {
		return ""
	}

	var b strings.Builder
	rest := args
	if s, ok := args[0].Export().(string); ok {
		rest = args[1:]
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c != '%' || i+1 >= len(s) {
				b.WriteByte(c)
				continue
			}
			verb := s[i+1]
			if verb == '%' {
				b.WriteByte('%')
				i++
				continue
			}
			if !strings.ContainsRune("sdifjoO", rune(verb)) || len(rest) == 0 {
				b.WriteByte(c)
				continue
			}
			arg := rest[0]
			rest = rest[1:]
			i++
			switch verb {
			case 's':
				if str, ok := arg.Export().(string); ok {
					b.WriteString(str)
				} else {
					b.WriteString(Inspect(arg))
				}
			case 'd', 'i':
				f := arg.ToFloat()
				if math.IsNaN(f) {
					b.WriteString("NaN")
				} else if verb == 'i' || f == math.Trunc(f) {
					b.WriteString(strconv.FormatInt(int64(f), 10))
				} else {
					b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
				}
			case 'f':
				b.WriteString(strconv.FormatFloat(arg.ToFloat(), 'g', -1, 64))
			default:
				b.WriteString(Inspect(arg))
			}
		}
	} else {
		b.WriteString(Inspect(args[0]))
		rest = args[1:]
	}

	for _, a := range rest {
		b.WriteByte(' ')
		if s, ok := a.Export().(string); ok {
			b.WriteString(s)
		} else {
			b.WriteString(Inspect(a))
		}
	}
	return b.String()
}

// Inspect renders a single value for diagnostics.
func Inspect(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		if s, ok := v.Export().(string); ok {
			return strconv.Quote(s)
		}
		return v.String()
	}

	if _, ok := goja.AssertFunction(obj); ok {
		name := obj.Get("name")
		if name == nil || name.String() == "" {
			return "[Function (anonymous)]"
		}
		return "[Function: " + name.String() + "]"
	}
	if obj.ClassName() == "Error" {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return stack.String()
		}
		return obj.String()
	}
	if data, err := obj.MarshalJSON(); err == nil {
		return string(data)
	}
	return obj.String()
}
