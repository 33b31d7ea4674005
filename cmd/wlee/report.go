package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ashmorer/wlee"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// Report represents the result of executing a program.
type Report struct {
	File   string         `yaml:"file"`
	States []*StateReport `yaml:"states"`
}

// StateReport represents a single terminal state.
type StateReport struct {
	ID        int              `yaml:"id"`
	Status    string           `yaml:"status"`
	Reason    string           `yaml:"reason,omitempty"`
	Env       []BindingReport  `yaml:"env"`
	PC        []string         `yaml:"pc"`
	Violation *ViolationReport `yaml:"violation,omitempty"`
	Concrete  map[string]int64 `yaml:"concrete,omitempty"`
	SMTLIB2   string           `yaml:"smt2,omitempty"`
}

// BindingReport represents a program variable & its symbolic value.
type BindingReport struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ViolationReport represents a check that may fail. Inputs & Env hold the
// counterexample.
type ViolationReport struct {
	Kind   string           `yaml:"kind"`
	Pos    string           `yaml:"pos"`
	Cond   string           `yaml:"cond"`
	Inputs map[string]int64 `yaml:"inputs,omitempty"`
	Env    map[string]int64 `yaml:"env,omitempty"`
}

type reportOptions struct {
	Concrete bool
	SMTLIB2  bool
}

// newReport builds a report from the terminal states of a run.
func newReport(path string, states []*wlee.ExecutionState, opt reportOptions) (*Report, error) {
	r := &Report{File: path}
	for _, state := range states {
		sr := &StateReport{
			ID:     state.ID(),
			Status: string(state.Status()),
			Reason: state.Reason(),
			PC:     make([]string, 0, len(state.Constraints())),
		}
		for _, b := range state.Env() {
			sr.Env = append(sr.Env, BindingReport{Name: b.Name, Value: b.Expr.String()})
		}
		for _, expr := range state.Constraints() {
			sr.PC = append(sr.PC, expr.String())
		}
		if v := state.Violation(); v != nil {
			sr.Violation = newViolationReport(v)
		}

		if opt.Concrete && state.Status() != wlee.ExecutionStatusInfeasible {
			cs, err := state.Concrete()
			if err != nil {
				return nil, fmt.Errorf("state #%d: %w", state.ID(), err)
			}
			sr.Concrete = constantValues(cs.Env)
		}
		if opt.SMTLIB2 {
			s, err := state.SMTLIB2()
			if err != nil {
				return nil, fmt.Errorf("state #%d: %w", state.ID(), err)
			}
			sr.SMTLIB2 = s
		}
		r.States = append(r.States, sr)
	}
	return r, nil
}

func newViolationReport(e *wlee.AssertionError) *ViolationReport {
	vr := &ViolationReport{
		Kind: e.Kind.String(),
		Pos:  e.Pos.String(),
		Cond: e.Cond.String(),
	}
	if cs := e.Counterexample; cs != nil {
		vr.Inputs = constantValues(cs.Inputs)
		vr.Env = constantValues(cs.Env)
	}
	return vr
}

func constantValues(m map[string]*wlee.ConstantExpr) map[string]int64 {
	other := make(map[string]int64, len(m))
	for k, v := range m {
		other[k] = v.Value
	}
	return other
}

// reportWriter encodes a report to a writer.
type reportWriter interface {
	WriteReport(w io.Writer, r *Report) error
}

// yamlReportWriter writes the report as a YAML document.
type yamlReportWriter struct{}

func (*yamlReportWriter) WriteReport(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// textReportWriter writes the report for a human reader. Statuses are
// colored when writing to a terminal.
type textReportWriter struct {
	color bool
}

func (tw *textReportWriter) WriteReport(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "found %d symbolic states\n", len(r.States))

	for _, s := range r.States {
		fmt.Fprintf(bw, "\nstate #%d %s\n", s.ID, tw.status(s.Status))
		if s.Reason != "" {
			fmt.Fprintf(bw, "  %s\n", s.Reason)
		}

		rows := make([][2]string, 0, len(s.Env)+4)
		for _, b := range s.Env {
			rows = append(rows, [2]string{b.Name, b.Value})
		}
		rows = append(rows, [2]string{"pc", "[" + strings.Join(s.PC, ", ") + "]"})
		if s.Concrete != nil {
			rows = append(rows, [2]string{"concrete", formatValues(s.Concrete)})
		}
		if v := s.Violation; v != nil && v.Env != nil {
			rows = append(rows,
				[2]string{"inputs", formatValues(v.Inputs)},
				[2]string{"values", formatValues(v.Env)},
			)
		}
		writeColumns(bw, rows)

		if s.SMTLIB2 != "" {
			for _, line := range strings.Split(strings.TrimRight(s.SMTLIB2, "\n"), "\n") {
				fmt.Fprintf(bw, "  | %s\n", line)
			}
		}
	}
	return bw.Flush()
}

func (tw *textReportWriter) status(s string) string {
	if !tw.color {
		return s
	}
	switch wlee.ExecutionStatus(s) {
	case wlee.ExecutionStatusRunning:
		return "\x1b[32m" + s + "\x1b[0m"
	case wlee.ExecutionStatusInfeasible:
		return "\x1b[90m" + s + "\x1b[0m"
	case wlee.ExecutionStatusBounded:
		return "\x1b[33m" + s + "\x1b[0m"
	default:
		return "\x1b[31m" + s + "\x1b[0m"
	}
}

// writeColumns writes name/value rows with the values aligned.
func writeColumns(w io.Writer, rows [][2]string) {
	var width int
	for _, row := range rows {
		if n := runewidth.StringWidth(row[0]); n > width {
			width = n
		}
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %s  %s\n", runewidth.FillRight(row[0], width), row[1])
	}
}

// formatValues returns "name=value" pairs sorted by name.
func formatValues(m map[string]int64) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	a := make([]string, len(names))
	for i, name := range names {
		a[i] = fmt.Sprintf("%s=%d", name, m[name])
	}
	return strings.Join(a, " ")
}

// isTerminal returns true if w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
