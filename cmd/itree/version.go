package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

// VersionCommand represents a command for printing the build version.
type VersionCommand struct {
	Stdout io.Writer
}

// NewVersionCommand returns a new instance of VersionCommand.
func NewVersionCommand(stdout io.Writer) *VersionCommand {
	return &VersionCommand{Stdout: stdout}
}

// Run executes the "version" subcommand.
func (cmd *VersionCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("itree-version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() > 0 {
		return fmt.Errorf("too many arguments")
	}

	if Commit == "" {
		fmt.Fprintf(cmd.Stdout, "itree %s\n", Version)
	} else {
		fmt.Fprintf(cmd.Stdout, "itree %s (%s)\n", Version, Commit)
	}
	return nil
}
