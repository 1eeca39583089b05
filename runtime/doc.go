// Package runtime runs the package root of an archive.
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
//	os.Exit(out.Code)
//
// # Entry Point
//
// The root is archive://<name>/, the package shim of the whole archive, so
// the root manifest's exports or main select the entry file. After the root
// evaluated, a function default export is called with argv. Its result,
// awaited when it is a promise, is the exit code:
//
//	number            truncated to an int
//	undefined, null   process.exitCode, or 0
//	thrown, rejected  process.exitCode when non-zero, otherwise 1
//
// # Host Builtins
//
// Go code can add builtins before running:
//
//	r.RegisterHost(&Greeter{})          // import { hello } from "greeter"
//	r.RegisterFunc("env", "get", os.Getenv)
//
// # Graph
//
// Graph materializes and links without evaluating, for inspection tools.
package runtime
