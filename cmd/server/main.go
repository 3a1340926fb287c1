// Command server runs the Dataverse metadata MCP server on stdio.
package main

import (
	"context"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := newRootCommand(a).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
