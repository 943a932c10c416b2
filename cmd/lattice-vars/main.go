// cmd/lattice-vars/main.go
//
// This is the entry point for the lattice-vars CLI.
// Run it from a project directory (or pass --project) to list, resolve and
// render the {{variables}} defined for that project.
//
// Flow:
// 1. Cancel the command context on SIGINT/SIGTERM
// 2. Hand the arguments to the cobra command tree in internal/cli

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/lattice-prompts/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cli.Execute(ctx)
}
