package resolve

import (
	"net/url"
	"path"
	"strings"

	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/errors"
)

// Scheme is the scheme of archive identifiers.
const Scheme = "archive"

// SelfToken is the specifier that names the introspection module of the
// referrer's directory.
const SelfToken = "<archive>"

const introspectionMark = "#!"

// Root returns the identifier of the package root of the whole archive.
func Root(name string) string {
	return Scheme + "://" + name + "/"
}

// IsBuiltin reports whether id names a runtime builtin.
func IsBuiltin(id string) bool {
	return strings.HasPrefix(id, builtin.Prefix)
}

// IsIntrospection reports whether id names an introspection module.
func IsIntrospection(id string) bool {
	return strings.HasPrefix(id, Scheme+"://") && strings.Contains(id, introspectionMark)
}

// IsPackage reports whether id names a package root shim.
func IsPackage(id string) bool {
	if !strings.HasPrefix(id, Scheme+"://") || IsIntrospection(id) {
		return false
	}
	base, _, _ := strings.Cut(id, "#")
	return strings.HasSuffix(base, "/")
}

// Subpath returns the conditional export subpath of a package identifier.
func Subpath(id string) string {
	_, frag, _ := strings.Cut(id, "#")
	return frag
}

// IntrospectionDir returns the directory entry prefix an introspection
// identifier is scoped to ("" for the archive root, "lib/" otherwise).
func IntrospectionDir(id string) string {
	_, dir, _ := strings.Cut(id, introspectionMark)
	return strings.TrimPrefix(dir, "/")
}

// EntryName returns the archive entry name of an archive identifier. The
// fragment is dropped.
func EntryName(id string) (string, error) {
	u, err := url.Parse(id)
	if err != nil || u.Scheme != Scheme {
		return "", errors.Resolution(id, "", "outside the archive")
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}

// Ext returns the lower-case extension of an identifier's entry name.
func Ext(id string) string {
	base, _, _ := strings.Cut(id, "#")
	return strings.ToLower(path.Ext(base))
}

// Dirname returns the identifier of the directory containing id.
func Dirname(id string) string {
	base, _, _ := strings.Cut(id, "#")
	i := strings.LastIndexByte(base, '/')
	if i < 0 {
		return base
	}
	return base[:i+1]
}

// join resolves ref against base. Paths are joined unescaped and escaped
// once on the way out, so every spelling of a name yields one identifier.
func join(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		b = r
	}

	p := r.Path
	if !r.IsAbs() && !strings.HasPrefix(p, "/") {
		dir := "/"
		if i := strings.LastIndexByte(b.Path, '/'); i >= 0 {
			dir = b.Path[:i+1]
		}
		p = dir + p
	}
	clean := path.Clean("/" + p)
	if clean != "/" && (strings.HasSuffix(p, "/") || path.Base(p) == "." || path.Base(p) == "..") {
		clean += "/"
	}

	u := url.URL{Scheme: b.Scheme, Host: b.Host, Path: clean, Fragment: r.Fragment}
	return u.String(), nil
}
