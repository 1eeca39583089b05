// Package modrun runs applications packaged as archives of mixed-format
// modules.
//
// An archive is a read-only store of named entries: a directory, a zip
// container, or a container appended to the running executable. Its package
// root is evaluated the way a module loader would evaluate an installed
// package, with dynamic (require/module.exports) and declarative
// (import/export) scripts, data documents, WebAssembly and Go plugins all
// importable from one another.
//
// # Architecture Overview
//
//	modrun/
//	├── archive/     Archive backends and capability decorators
//	├── manifest/    package.json parsing and conditional entry selection
//	├── resolve/     Specifier to identifier resolution
//	├── module/      Module Record, lifecycle state and export namespace
//	├── format/      Format adapters keyed by extension
//	├── builtin/     Runtime builtins (console, path, util, process, host)
//	├── linker/      Record cache, linking and evaluation
//	├── runtime/     Runner: root evaluation, entry invocation, exit code
//	├── packager/    Repackaging of the entries a run read
//	├── errors/      Structured error types
//	└── cmd/modrun/  Command line interface
//
// # Quick Start
//
//	a, name, err := archive.Open("./app", archive.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer archive.Close(a)
//
//	r := runtime.New(a, name, runtime.Options{})
//	defer r.Close()
//
//	out := r.Run(ctx, os.Args[1:])
//	if out.Code == 0 {
//	    data, _ := packager.Package(a, packager.Options{})
//	    _ = packager.WriteFile(name+".zip", data)
//	}
//	os.Exit(out.Code)
//
// # Formats
//
//	.js       declarative when it uses import/export syntax, dynamic otherwise
//	.cjs      dynamic
//	.mjs      declarative
//	.json .yaml .yml .toml .cue   data documents with a single default export
//	.wasm     WebAssembly module, exported functions become named exports
//	.node     Go plugin exposing an Exports symbol
//
// A dynamic module may require a declarative one only once its evaluation
// has completed. Requiring a module whose evaluation is suspended on an
// await fails with errors.ErrSyncBridge rather than blocking.
//
// # Error Handling
//
// Errors are *errors.Error values carrying the phase, kind, identifier and
// specifier involved:
//
//	out := r.Run(ctx, argv)
//	if errors.Is(out.Err, modrunerrors.ErrResolution) {
//	    // a specifier could not be mapped to an archive entry
//	}
package modrun
