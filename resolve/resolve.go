// Package resolve maps module specifiers to canonical module identifiers.
//
// Identifiers:
//
//	archive://<name>/<entry>         archive entry
//	archive://<name>/<dir>/[#sub]    package root shim, optional export subpath
//	archive://<name>#!/<dir>/        introspection module of a directory
//	node:<name>                      runtime builtin
//
// Resolution is pure given the archive contents: the only I/O is reading
// manifests while walking self-import maps.
package resolve

import (
	"strings"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/manifest"
)

// DependencyDir is the directory searched for bare package specifiers.
const DependencyDir = "node_modules"

const maxImportDepth = 32

// Builtins reports which builtin names exist.
type Builtins interface {
	Has(name string) bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConditions sets the export condition precedence.
func WithConditions(c manifest.Conditions) Option {
	return func(r *Resolver) {
		if len(c) > 0 {
			r.conditions = c
		}
	}
}

// Resolver implements specifier resolution for one archive.
type Resolver struct {
	archive    archive.Archive
	builtins   Builtins
	name       string
	conditions manifest.Conditions
}

// New creates a Resolver for the archive a known under name.
func New(name string, a archive.Archive, b Builtins, opts ...Option) *Resolver {
	r := &Resolver{
		archive:    a,
		builtins:   b,
		name:       name,
		conditions: manifest.DefaultConditions,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the archive's logical name.
func (r *Resolver) Name() string { return r.name }

// Root returns the identifier of the archive's package root.
func (r *Resolver) Root() string { return Root(r.name) }

// Conditions returns the export condition precedence.
func (r *Resolver) Conditions() manifest.Conditions { return r.conditions }

// Resolve maps specifier, as seen from referrer, to an identifier. An empty
// referrer stands for the archive root.
func (r *Resolver) Resolve(specifier, referrer string) (string, error) {
	return r.resolve(specifier, referrer, 0)
}

func (r *Resolver) resolve(specifier, referrer string, depth int) (string, error) {
	if specifier == "" {
		return "", errors.Resolution(specifier, referrer, "empty specifier")
	}

	switch {
	case specifier == SelfToken:
		return r.introspection(referrer), nil

	case strings.HasPrefix(specifier, r.Root()):
		return specifier, nil

	case strings.Contains(specifier, "://"):
		return "", errors.Resolution(specifier, referrer, "outside the archive")
	}

	if id, ok := r.builtin(specifier); ok {
		return id, nil
	}
	if IsBuiltin(specifier) {
		return "", errors.Resolution(specifier, referrer, "unknown builtin")
	}

	base := referrer
	if base == "" {
		base = r.Root()
	}

	switch specifier[0] {
	case '.', '/':
		id, err := join(base, specifier)
		if err != nil {
			return "", errors.New(errors.PhaseResolve, errors.KindResolution).
				Specifier(specifier).Identifier(referrer).Cause(err).Build()
		}
		return id, nil
	case '#':
		return r.selfImport(specifier, base, depth)
	}

	if referrer == "" {
		return "", errors.Resolution(specifier, referrer, "bare specifier without a referrer")
	}
	return r.findPackage(specifier, referrer)
}

func (r *Resolver) builtin(specifier string) (string, bool) {
	if r.builtins == nil {
		return "", false
	}
	name := strings.TrimPrefix(specifier, "node:")
	if !r.builtins.Has(name) {
		return "", false
	}
	return "node:" + name, true
}

func (r *Resolver) introspection(referrer string) string {
	dir := "/"
	if referrer != "" && strings.HasPrefix(referrer, r.Root()) {
		if name, err := EntryName(Dirname(referrer)); err == nil {
			dir = "/" + name
		}
	}
	return Scheme + "://" + r.name + introspectionMark + dir
}

// selfImport walks from the referrer's nearest manifest towards the archive
// root until a manifest declares specifier in its imports map.
func (r *Resolver) selfImport(specifier, referrer string, depth int) (string, error) {
	if depth >= maxImportDepth {
		return "", errors.Resolution(specifier, referrer, "self-import recursion limit reached")
	}

	at, err := join(referrer, manifest.FileName)
	if err != nil {
		return "", errors.Resolution(specifier, referrer, "malformed referrer")
	}

	for {
		name, err := EntryName(at)
		if err != nil {
			return "", errors.Resolution(specifier, referrer, "outside the archive")
		}

		if data, ok := r.archive.Get(name); ok {
			m, err := manifest.Parse(data)
			if err != nil {
				return "", errors.New(errors.PhaseResolve, errors.KindResolution).
					Specifier(specifier).Identifier(referrer).
					Detail("malformed manifest %s", at).
					Cause(err).
					Build()
			}
			if target, ok := m.Import(specifier, r.conditions); ok {
				if strings.HasPrefix(target, "#") && target == specifier {
					return "", errors.Resolution(specifier, referrer, "self-import maps to itself")
				}
				return r.resolve(target, at, depth+1)
			}
			if _, declared := m.Imports[specifier]; declared {
				return "", errors.Resolution(specifier, referrer, "malformed self-import in "+at)
			}
		}

		next, err := join(at, "../"+manifest.FileName)
		if err != nil || next == at {
			return "", errors.Resolution(specifier, referrer, "no manifest declares it")
		}
		at = next
	}
}

// findPackage searches upward from referrer for <dependency-dir>/<package>/.
func (r *Resolver) findPackage(specifier, referrer string) (string, error) {
	pkg, sub := SplitBare(specifier)
	if pkg == "" {
		return "", errors.Resolution(specifier, referrer, "malformed package specifier")
	}

	base := referrer
	for {
		candidate, err := join(base, DependencyDir+"/"+pkg+"/")
		if err != nil {
			return "", errors.New(errors.PhaseResolve, errors.KindResolution).
				Specifier(specifier).Identifier(referrer).Cause(err).Build()
		}
		if name, err := EntryName(candidate); err == nil && r.archive.Has(name) {
			if sub != "" {
				candidate += "#" + sub
			}
			return candidate, nil
		}

		next, err := join(base, "../")
		if err != nil || next == base {
			return "", errors.Resolution(specifier, referrer, "package not found")
		}
		base = next
	}
}

// SplitBare splits a bare specifier into its package name (one segment, two
// when scoped) and export subpath. A "#sub" suffix on a plain package name
// also selects a subpath.
func SplitBare(specifier string) (pkg, subpath string) {
	parts := strings.Split(specifier, "/")
	n := 1
	if strings.HasPrefix(parts[0], "@") {
		n = 2
	}
	if len(parts) < n {
		return "", ""
	}
	pkg = strings.Join(parts[:n], "/")
	subpath = strings.Join(parts[n:], "/")
	if subpath == "" {
		if p, frag, ok := strings.Cut(pkg, "#"); ok {
			pkg, subpath = p, frag
		}
	}
	if strings.HasPrefix(pkg, "@") && strings.HasSuffix(pkg, "/") {
		return "", ""
	}
	return pkg, subpath
}
