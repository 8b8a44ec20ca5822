// File: cmd/pagewright/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/pagewright/cmd"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	// Cancel in-flight browser work on SIGINT or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, cmd.ErrCheckFailed):
		return 2
	default:
		return 1
	}
}
