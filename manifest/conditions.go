package manifest

import "strings"

// Conditions is the ordered list of export conditions the runtime matches.
// "default" is always tried last and need not be listed.
type Conditions []string

// DefaultConditions is the precedence used when none is configured.
var DefaultConditions = Conditions{"import", "module", "node"}

// ParseConditions splits a comma separated list, dropping blanks.
func ParseConditions(s string) Conditions {
	var out Conditions
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Select resolves an exports or imports value to a target path. Strings
// resolve to themselves, arrays to their first resolvable element, and
// condition objects to the first present condition in precedence order.
func (c Conditions) Select(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case []any:
		for _, item := range val {
			if s, ok := c.Select(item); ok {
				return s, true
			}
		}
	case map[string]any:
		for _, cond := range c {
			if inner, ok := val[cond]; ok && inner != nil {
				if s, ok := c.Select(inner); ok {
					return s, true
				}
			}
		}
		if inner, ok := val["default"]; ok && inner != nil {
			return c.Select(inner)
		}
	}
	return "", false
}
