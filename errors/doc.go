// Package errors provides structured error types for the module loader.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the identifier being processed, the specifier being
// resolved, the chain of identifiers that led there, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindResolution).
//		Specifier("#config").
//		Identifier("archive://app/src/main.js").
//		Detail("no ancestor manifest declares it").
//		Build()
//
// Or use convenience constructors for the loader taxonomy:
//
//	err := errors.SyncBridge(id, "evaluation suspended")
//	err := errors.UnsupportedFormat(id, ".coffee")
//
// All errors implement the standard error interface and support errors.Is/As.
// The ErrResolution, ErrSyncBridge, ... sentinels match on Kind alone.
package errors
