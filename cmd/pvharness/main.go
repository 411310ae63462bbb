package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robcohen/peervault-sub002/internal/commands"
)

const (
	errCommand = 1
	errSetup   = 2
)

func wantsHelp(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" || a == "help" || a == "completion" {
			return true
		}
	}
	return false
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := commands.NewRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errSetup)
	}

	// "run" is the default subcommand: `pvharness --suite vault` works.
	args := os.Args[1:]
	if cmd, _, findErr := root.Find(args); findErr == nil && cmd == root && !wantsHelp(args) {
		root.SetArgs(append([]string{"run"}, args...))
	}

	err = root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(errCommand)
	}
}
