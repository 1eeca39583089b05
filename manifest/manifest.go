// Package manifest parses package manifests and selects package entry points
// from conditional export and self-import maps.
package manifest

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/wippyai/modrun/errors"
)

// FileName is the manifest entry name inside a package directory.
const FileName = "package.json"

// DefaultMain is the entry of a package without "main" or "exports".
const DefaultMain = "./index.js"

// Manifest is the subset of a package manifest the loader consults.
type Manifest struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Main    string         `json:"main"`
	Exports any            `json:"exports"`
	Imports map[string]any `json:"imports"`
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Manifest("", "malformed manifest", err)
	}
	return &m, nil
}

// IsModule reports whether the package declares declarative-export sources.
func (m *Manifest) IsModule() bool {
	return m.Type == "module"
}

// MainEntry returns the declared main entry or DefaultMain.
func (m *Manifest) MainEntry() string {
	if m.Main == "" {
		return DefaultMain
	}
	if !strings.HasPrefix(m.Main, ".") && !strings.HasPrefix(m.Main, "/") {
		return "./" + m.Main
	}
	return m.Main
}

// Entry selects the file for an export subpath ("" is the package root).
// The result is relative to the manifest location.
func (m *Manifest) Entry(subpath string, conds Conditions) (string, bool) {
	subpath = strings.TrimPrefix(strings.TrimPrefix(subpath, "./"), "/")

	switch exp := m.Exports.(type) {
	case nil:
		if subpath == "" {
			return m.MainEntry(), true
		}
		return "./" + subpath, true

	case string:
		if subpath != "" {
			return "", false
		}
		return exp, true

	case []any:
		for _, item := range exp {
			s, ok := item.(string)
			if !ok {
				continue
			}
			s = strings.TrimPrefix(s, "./")
			if subpath == "" && (s == "." || s == "") {
				return m.MainEntry(), true
			}
			if s == subpath && subpath != "" {
				return "./" + subpath, true
			}
		}
		return "", false

	case map[string]any:
		if !hasSubpathKeys(exp) {
			if subpath != "" {
				return "", false
			}
			return conds.Select(exp)
		}
		key := "."
		if subpath != "" {
			key = "./" + subpath
		}
		if v, ok := exp[key]; ok {
			return conds.Select(v)
		}
		return matchPattern(exp, key, conds)
	}

	return "", false
}

// Import selects the target of a self-import specifier ("#name").
func (m *Manifest) Import(specifier string, conds Conditions) (string, bool) {
	v, ok := m.Imports[specifier]
	if ok {
		return conds.Select(v)
	}
	if len(m.Imports) == 0 {
		return "", false
	}
	return matchPattern(m.Imports, specifier, conds)
}

func hasSubpathKeys(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, ".") {
			return true
		}
	}
	return false
}

// matchPattern resolves key against single-"*" pattern keys, preferring the
// longest prefix.
func matchPattern(m map[string]any, key string, conds Conditions) (string, bool) {
	patterns := make([]string, 0, len(m))
	for k := range m {
		if strings.Count(k, "*") == 1 {
			patterns = append(patterns, k)
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		pi := strings.Index(patterns[i], "*")
		pj := strings.Index(patterns[j], "*")
		if pi != pj {
			return pi > pj
		}
		return len(patterns[i]) > len(patterns[j])
	})

	for _, p := range patterns {
		star := strings.Index(p, "*")
		prefix, suffix := p[:star], p[star+1:]
		if len(key) < len(prefix)+len(suffix) || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		match := key[len(prefix) : len(key)-len(suffix)]
		target, ok := conds.Select(m[p])
		if !ok {
			return "", false
		}
		return strings.ReplaceAll(target, "*", match), true
	}
	return "", false
}
