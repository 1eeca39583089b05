package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve  Phase = "resolve"  // specifier to identifier
	PhaseLoad     Phase = "load"     // archive read and format adaptation
	PhaseLink     Phase = "link"     // dependency wiring
	PhaseEvaluate Phase = "evaluate" // module body execution
	PhaseRun      Phase = "run"      // entry point invocation
	PhasePackage  Phase = "package"  // packaging of visited entries
	PhaseArchive  Phase = "archive"  // archive backend access
	PhaseHost     Phase = "host"     // builtin registration
)

// Kind categorizes the error
type Kind string

const (
	KindResolution        Kind = "resolution"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindSyncBridge        Kind = "sync_bridge"
	KindNativeLoad        Kind = "native_load"
	KindManifest          Kind = "manifest"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindEvaluation        Kind = "evaluation"
	KindRegistration      Kind = "registration"
)

// Sentinels for errors.Is. They match any error of the same Kind.
var (
	ErrResolution        = &Error{Kind: KindResolution}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrSyncBridge        = &Error{Kind: KindSyncBridge}
	ErrNativeLoad        = &Error{Kind: KindNativeLoad}
	ErrManifest          = &Error{Kind: KindManifest}
)

// Error is the structured error type used throughout the loader
type Error struct {
	Cause      error
	Phase      Phase
	Kind       Kind
	Identifier string
	Specifier  string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" via ")
		b.WriteString(strings.Join(e.Path, " -> "))
	}

	if e.Specifier != "" {
		b.WriteString(": ")
		fmt.Fprintf(&b, "%q", e.Specifier)
		if e.Identifier != "" {
			b.WriteString(" from ")
			b.WriteString(e.Identifier)
		}
	} else if e.Identifier != "" {
		b.WriteString(": ")
		b.WriteString(e.Identifier)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the chain of identifiers that led to the error
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Identifier sets the module identifier being processed
func (b *Builder) Identifier(id string) *Builder {
	b.err.Identifier = id
	return b
}

// Specifier sets the specifier being resolved
func (b *Builder) Specifier(s string) *Builder {
	b.err.Specifier = s
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the loader taxonomy

// Resolution creates a resolution error for a specifier that cannot be mapped
// to an identifier.
func Resolution(specifier, referrer, detail string) *Error {
	return &Error{
		Phase:      PhaseResolve,
		Kind:       KindResolution,
		Specifier:  specifier,
		Identifier: referrer,
		Detail:     detail,
	}
}

// UnsupportedFormat creates an error for an identifier no adapter accepts
func UnsupportedFormat(id, ext string) *Error {
	detail := "no adapter registered"
	if ext != "" {
		detail = fmt.Sprintf("no adapter registered for %q", ext)
	}
	return &Error{
		Phase:      PhaseLoad,
		Kind:       KindUnsupportedFormat,
		Identifier: id,
		Detail:     detail,
	}
}

// SyncBridge creates an error for a synchronous require that would have to
// wait on a suspended or in-progress evaluation.
func SyncBridge(id, detail string) *Error {
	return &Error{
		Phase:      PhaseEvaluate,
		Kind:       KindSyncBridge,
		Identifier: id,
		Detail:     detail,
	}
}

// NativeLoad creates an error for a natively-compiled entry that failed to link
func NativeLoad(id string, cause error) *Error {
	return &Error{
		Phase:      PhaseLoad,
		Kind:       KindNativeLoad,
		Identifier: id,
		Detail:     "dynamic link failed",
		Cause:      cause,
	}
}

// Manifest creates an error for a malformed manifest or a failed entry selection
func Manifest(id, detail string, cause error) *Error {
	return &Error{
		Phase:      PhaseLoad,
		Kind:       KindManifest,
		Identifier: id,
		Detail:     detail,
		Cause:      cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an error for content that could not be decoded
func InvalidData(phase Phase, id string, cause error) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindInvalidData,
		Identifier: id,
		Cause:      cause,
	}
}

// Evaluation wraps an exception raised while running a module body
func Evaluation(id string, cause error) *Error {
	return &Error{
		Phase:      PhaseEvaluate,
		Kind:       KindEvaluation,
		Identifier: id,
		Cause:      cause,
	}
}

// Registration creates a builtin registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register builtin %s", name),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
