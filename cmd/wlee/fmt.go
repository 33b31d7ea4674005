package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ashmorer/wlee/ast"
	"github.com/ashmorer/wlee/parser"
)

// FmtCommand represents a command for printing a program in canonical form.
type FmtCommand struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewFmtCommand returns a new instance of FmtCommand.
func NewFmtCommand() *FmtCommand {
	return &FmtCommand{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the "fmt" subcommand.
func (cmd *FmtCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wlee-fmt", flag.ContinueOnError)
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program file required")
	}

	for _, path := range fs.Args() {
		prog, err := parser.ParseFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.Stdout, ast.Format(prog))
	}
	return nil
}

func (cmd *FmtCommand) usage() {
	fmt.Fprintln(cmd.Stderr, `
usage: wlee fmt FILE...

Parses each file and prints it in canonical form.
`[1:])
}
