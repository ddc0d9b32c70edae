package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
)

// Build information. Set by the linker.
var (
	Version = "(development build)"
	Commit  = ""
)

func main() {
	m := NewMain()
	if err := m.Run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(m.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewMain returns a new instance of Main attached to the standard streams.
func NewMain() *Main {
	return &Main{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the subcommand named by the first argument.
func (m *Main) Run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		m.usage()
		return flag.ErrHelp
	case "explore":
		return NewExploreCommand(m.Stdout, m.Stderr).Run(ctx, args)
	case "version":
		return NewVersionCommand(m.Stdout).Run(ctx, args)
	default:
		return fmt.Errorf(`itree %s: unknown command`, cmd)
	}
}

func (m *Main) usage() {
	fmt.Fprintln(m.Stderr, `
Itree explores Go functions symbolically and prunes paths using
interpolation.

Usage:

	itree <command> [arguments]

The commands are:

	explore     explore a function and report statistics
	version     print the version
	help        this screen
`[1:])
}
