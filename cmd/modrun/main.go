// Command modrun runs, inspects and repackages module archives.
//
//	modrun run ./app -- --port 8080
//	MODRUN_PACKAGE=true modrun run ./app
//	modrun graph -i ./app
//	modrun package ./app -o app.zip
package main

import (
	"context"
	"fmt"
	"os"
)

// exitCode is set by commands that report a script's outcome.
var exitCode int

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
