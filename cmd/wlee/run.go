package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ashmorer/wlee"
	"github.com/ashmorer/wlee/parser"
	"github.com/ashmorer/wlee/z3"
)

// RunCommand represents a command for exploring the paths of a program.
type RunCommand struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunCommand returns a new instance of RunCommand.
func NewRunCommand() *RunCommand {
	return &RunCommand{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the "run" subcommand.
func (cmd *RunCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wlee-run", flag.ContinueOnError)
	var opt execOptions
	opt.register(fs)
	format := fs.String("format", "text", "output format (text or yaml)")
	concrete := fs.Bool("concrete", false, "")
	smt2 := fs.Bool("smt2", false, "")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program file required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many files specified")
	}

	// print_state output goes to stderr when stdout holds a document.
	var w reportWriter
	printTo := cmd.Stdout
	switch *format {
	case "text":
		w = &textReportWriter{color: isTerminal(cmd.Stdout)}
	case "yaml":
		w, printTo = &yamlReportWriter{}, cmd.Stderr
	default:
		return fmt.Errorf("unknown format: %q", *format)
	}

	path := fs.Arg(0)
	r, err := execute(ctx, path, &opt, printTo)
	if err != nil {
		return err
	}
	defer r.Close()

	report, err := newReport(path, r.states, reportOptions{Concrete: *concrete, SMTLIB2: *smt2})
	if err != nil {
		return err
	} else if err := w.WriteReport(cmd.Stdout, report); err != nil {
		return err
	}

	return r.err()
}

func (cmd *RunCommand) usage() {
	fmt.Fprintln(cmd.Stderr, `
usage: wlee run [arguments] FILE

Arguments:
`[1:]+execUsage+`
	-format FORMAT
	    Report format: "text" or "yaml". Defaults to "text".

	-concrete
	    Include one concrete assignment for every feasible path.

	-smt2
	    Include the path condition of every path in SMT-LIB2.
`)
}

// execOptions holds the flags shared by commands that execute a program.
type execOptions struct {
	verbose   bool
	maxUnroll int
	keepGoing bool
	strict    bool
	checkDiv  bool
	timeout   time.Duration
}

func (opt *execOptions) register(fs *flag.FlagSet) {
	fs.BoolVar(&opt.verbose, "v", false, "")
	fs.IntVar(&opt.maxUnroll, "max-unroll", wlee.DefaultMaxLoopUnroll, "")
	fs.BoolVar(&opt.keepGoing, "keep-going", false, "")
	fs.BoolVar(&opt.strict, "strict", false, "")
	fs.BoolVar(&opt.checkDiv, "check-div", false, "")
	fs.DurationVar(&opt.timeout, "timeout", 0, "")
}

const execUsage = `
	-v
	    Enable verbose logging.

	-max-unroll N
	    Number of times a loop is unrolled on a path. Defaults to 10.

	-keep-going
	    Report every failing path instead of stopping at the first.

	-strict
	    Reject variables that are read before being assigned.

	-check-div
	    Report divisions whose divisor may be zero.

	-timeout DURATION
	    Time limit for each solver check.
`

// execution holds the result of executing a program.
type execution struct {
	solver    *z3.Solver
	root      *wlee.ExecutionState
	states    []*wlee.ExecutionState
	violation *wlee.AssertionError
}

// Close releases every state & the solver. Violating states that were
// forked before terminating are not in states and are closed through their
// violation.
func (r *execution) Close() error {
	for _, state := range r.states {
		if v := state.Violation(); v != nil {
			v.State.Close()
		}
		state.Close()
	}
	r.root.Close()
	return r.solver.Close()
}

// err returns the violation that halted the run. With -keep-going it
// reports the number of distinct violations instead; a violating state
// carried through a branch appears on several states with one violation.
func (r *execution) err() error {
	if r.violation != nil {
		return r.violation
	}

	m := make(map[*wlee.AssertionError]struct{})
	for _, state := range r.states {
		if v := state.Violation(); v != nil {
			m[v] = struct{}{}
		}
	}
	if len(m) > 0 {
		return fmt.Errorf("%d violation(s) found", len(m))
	}
	return nil
}

// execute parses the program at path & runs it from an empty state. An
// assertion violation is returned on the execution, not as an error.
func execute(ctx context.Context, path string, opt *execOptions, stdout io.Writer) (*execution, error) {
	log.SetFlags(0)
	if !opt.verbose {
		log.SetOutput(io.Discard)
	}

	prog, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	solver := z3.NewSolver()
	solver.Timeout = opt.timeout

	e := wlee.NewExecutor(solver)
	e.MaxLoopUnroll = opt.maxUnroll
	e.KeepGoing = opt.keepGoing
	e.Strict = opt.strict
	e.CheckDivision = opt.checkDiv
	e.Stdout = stdout

	root, err := e.NewState()
	if err != nil {
		solver.Close()
		return nil, err
	}

	t := time.Now()
	states, err := e.Run(prog, root)

	r := &execution{solver: solver, root: root, states: states}
	if errors.As(err, &r.violation) {
		err = nil
	}
	if err != nil {
		r.Close()
		return nil, err
	}

	stats := solver.Stats()
	log.Printf("[stats] states=%d contexts=%d checks=%d solve=%s total=%s",
		len(states), stats.ContextN, stats.SolveN, stats.SolveTime, time.Since(t))
	return r, nil
}
