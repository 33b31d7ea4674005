package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "run":
		return NewRunCommand().Run(ctx, args)
	case "smt2":
		return NewSMT2Command().Run(ctx, args)
	case "fmt":
		return NewFmtCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`wlee %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Wlee is a tool for symbolic execution of WLang programs.

Usage:

	wlee <command> [arguments]

The commands are:

	run         explore every path of a program
	smt2        print the path condition of every path in SMT-LIB2
	fmt         print a program in canonical form
	help        this screen
`[1:])
}
