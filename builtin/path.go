package builtin

import (
	"path"
	"strings"
)

// Path implements the posix subset of the path builtin.
type Path struct {
	// Cwd anchors Resolve when no absolute segment is given.
	Cwd string
}

func (p *Path) Namespace() string { return "path" }

func (p *Path) Values() map[string]any {
	return map[string]any{"sep": "/", "delimiter": ":"}
}

func (p *Path) Join(parts ...string) string {
	joined := path.Join(parts...)
	if joined == "" {
		return "."
	}
	return joined
}

func (p *Path) Resolve(parts ...string) string {
	out := p.Cwd
	if out == "" {
		out = "/"
	}
	for _, s := range parts {
		if s == "" {
			continue
		}
		if strings.HasPrefix(s, "/") {
			out = s
		} else {
			out = out + "/" + s
		}
	}
	return path.Clean(out)
}

func (p *Path) Normalize(s string) string {
	if s == "" {
		return "."
	}
	out := path.Clean(s)
	if strings.HasSuffix(s, "/") && out != "/" {
		out += "/"
	}
	return out
}

func (p *Path) IsAbsolute(s string) bool { return strings.HasPrefix(s, "/") }

func (p *Path) Dirname(s string) string {
	if s == "" {
		return "."
	}
	return path.Dir(strings.TrimSuffix(s, "/"))
}

func (p *Path) Basename(s string, ext ...string) string {
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return ""
	}
	base := path.Base(s)
	if len(ext) > 0 && ext[0] != "" && ext[0] != base {
		base = strings.TrimSuffix(base, ext[0])
	}
	return base
}

func (p *Path) Extname(s string) string {
	base := p.Basename(s)
	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return ""
	}
	return path.Ext(base)
}

func (p *Path) Relative(from, to string) string {
	f := strings.Split(strings.Trim(p.Resolve(from), "/"), "/")
	t := strings.Split(strings.Trim(p.Resolve(to), "/"), "/")
	if len(f) == 1 && f[0] == "" {
		f = nil
	}
	if len(t) == 1 && t[0] == "" {
		t = nil
	}
	i := 0
	for i < len(f) && i < len(t) && f[i] == t[i] {
		i++
	}
	var out []string
	for range f[i:] {
		out = append(out, "..")
	}
	out = append(out, t[i:]...)
	return strings.Join(out, "/")
}
