package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ashmorer/wlee"
)

// SMT2Command represents a command for printing the path conditions of a program.
type SMT2Command struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewSMT2Command returns a new instance of SMT2Command.
func NewSMT2Command() *SMT2Command {
	return &SMT2Command{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the "smt2" subcommand. Infeasible paths are skipped unless -all is set.
func (cmd *SMT2Command) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wlee-smt2", flag.ContinueOnError)
	var opt execOptions
	opt.register(fs)
	all := fs.Bool("all", false, "")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program file required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many files specified")
	}

	r, err := execute(ctx, fs.Arg(0), &opt, cmd.Stderr)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, state := range r.states {
		if !*all && state.Status() == wlee.ExecutionStatusInfeasible {
			continue
		}

		s, err := state.SMTLIB2()
		if err != nil {
			return fmt.Errorf("state #%d: %w", state.ID(), err)
		}
		fmt.Fprintf(cmd.Stdout, "; state #%d %s\n", state.ID(), state.Status())
		if state.Reason() != "" {
			fmt.Fprintf(cmd.Stdout, "; %s\n", state.Reason())
		}
		fmt.Fprintln(cmd.Stdout, s)
	}

	return r.err()
}

func (cmd *SMT2Command) usage() {
	fmt.Fprintln(cmd.Stderr, `
usage: wlee smt2 [arguments] FILE

Prints the path condition of every terminal state as an SMT-LIB2 script.

Arguments:
`[1:]+execUsage+`
	-all
	    Include infeasible paths.
`)
}
