// Package main provides the convsync CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/convista/convsync/pkg/types"
)

// Exit codes: user errors are correctable at the command line, system errors
// mean the run itself failed and should alert.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode classifies an error into the process exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrBadDate),
		errors.Is(err, types.ErrUnknownDestination),
		errors.Is(err, types.ErrNotImplemented):
		return exitUserError
	}
	return exitSysError
}
