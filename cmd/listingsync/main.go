// cmd/listingsync/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	errs "github.com/valpere/listingsync/internal/errors"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code. Errors are
// printed in their user-facing form; --verbose adds technical details.
func execute(args []string, stdout, stderr io.Writer) int {
	opts := &cliOptions{}
	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return errs.ExitOK
	}

	errorService := errs.NewService().WithVerbose(opts.verbose)
	fmt.Fprint(stderr, errorService.FormatErrorForCLI(err))
	return errorService.GetExitCode(err)
}
