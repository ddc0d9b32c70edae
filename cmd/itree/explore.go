package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/benbjohnson/itree"
	"github.com/benbjohnson/itree/z3"
	"github.com/davecgh/go-spew/spew"
	"github.com/itchyny/timefmt-go"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// ExploreCommand represents a command for exploring a single function.
type ExploreCommand struct {
	Stdout io.Writer
	Stderr io.Writer

	// Output format of the tree: "dot", "text", "auto" or "" for none.
	Tree string

	// If true, the configuration and the subsumption table are dumped.
	Dump bool

	Config itree.Config
}

// NewExploreCommand returns a new instance of ExploreCommand.
func NewExploreCommand(stdout, stderr io.Writer) *ExploreCommand {
	return &ExploreCommand{
		Stdout: stdout,
		Stderr: stderr,
		Config: itree.NewConfig(),
	}
}

// Run executes the "explore" subcommand.
func (cmd *ExploreCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("itree-explore", flag.ContinueOnError)
	fs.SetOutput(cmd.Stderr)
	verbose := fs.Bool("v", false, "verbose")
	configPath := fs.String("config", "", "config path")
	timeout := fs.Duration("timeout", 0, "subsumption timeout")
	noInterpolation := fs.Bool("no-interpolation", false, "disable pruning")
	searcher := fs.String("searcher", "", "search strategy")
	maxStates := fs.Int("max-states", 0, "maximum states")
	minQueryTime := fs.Duration("solver-log", 0, "minimum logged query time")
	fs.StringVar(&cmd.Tree, "tree", "", "tree output format")
	fs.BoolVar(&cmd.Dump, "dump", false, "dump config and subsumption table")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() < 2 {
		return fmt.Errorf("package and function required")
	} else if fs.NArg() > 2 {
		return fmt.Errorf("too many arguments")
	}

	switch cmd.Tree {
	case "", "dot", "text", "auto":
	default:
		return fmt.Errorf("invalid tree format: %q", cmd.Tree)
	}

	// Read config file and apply flags set on the command line.
	if *configPath != "" {
		c, err := itree.ReadConfigFile(*configPath)
		if err != nil {
			return err
		}
		cmd.Config = c
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "timeout":
			cmd.Config.SubsumptionTimeout = *timeout
		case "no-interpolation":
			cmd.Config.Interpolation = !*noInterpolation
		case "searcher":
			cmd.Config.Searcher = *searcher
		case "max-states":
			cmd.Config.MaxStates = *maxStates
		case "solver-log":
			cmd.Config.SolverLog.MinQueryTime = *minQueryTime
		}
	})
	if cmd.Config.OutputTree && cmd.Tree == "" {
		cmd.Tree = "auto"
	}
	if err := cmd.Config.Validate(); err != nil {
		return err
	}

	log.SetFlags(0)
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	} else {
		log.SetOutput(cmd.Stderr)
	}

	if cmd.Dump {
		spew.Fdump(cmd.Stdout, cmd.Config)
	}

	fn, err := LoadFunction(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	return cmd.explore(ctx, fn)
}

// explore runs the executor over fn and writes the report.
func (cmd *ExploreCommand) explore(ctx context.Context, fn *ssa.Function) error {
	z3Solver := z3.NewSolver()
	defer z3Solver.Close()

	solver := itree.NewLoggingSolver(z3Solver)
	solver.MinQueryTime = cmd.Config.SolverLog.MinQueryTime
	solver.Logger = log.New(cmd.Stderr, "", 0)

	e := itree.NewExecutor(fn)
	e.Solver = solver
	if err := cmd.Config.Apply(e); err != nil {
		return err
	}
	if cmd.Tree != "" {
		e.Tree().EnableHistory()
	}

	var failures []*itree.ExecutionState
	e.OnTerminate = func(state *itree.ExecutionState) {
		switch state.Status() {
		case itree.ExecutionStatusFailed, itree.ExecutionStatusPanicked:
			failures = append(failures, state)
		}
	}

	start := time.Now()
	if err := e.Run(ctx); err != nil {
		return errors.Wrapf(err, "explore %s", fn)
	}
	elapsed := time.Since(start)

	fmt.Fprintf(cmd.Stdout, "%s  %s\n\n", fn, timefmt.Format(start, "%Y-%m-%d %H:%M:%S"))
	writeStats(cmd.Stdout, e, solver.Stats(), elapsed)

	for _, state := range failures {
		if err := cmd.writeFailure(state); err != nil {
			return err
		}
	}

	if cmd.Dump {
		fmt.Fprintln(cmd.Stdout)
		for _, pp := range e.Tree().ProgramPoints() {
			for _, entry := range e.Tree().Entries(pp) {
				entry.Dump(cmd.Stdout)
			}
		}
	}

	switch cmd.treeFormat() {
	case "dot":
		return itree.WriteDOT(cmd.Stdout, e.Tree().History())
	case "text":
		fmt.Fprintln(cmd.Stdout)
		return itree.WriteText(cmd.Stdout, e.Tree().History())
	}
	return nil
}

// treeFormat resolves "auto" to text on a terminal and DOT otherwise.
func (cmd *ExploreCommand) treeFormat() string {
	if cmd.Tree != "auto" {
		return cmd.Tree
	}
	if f, ok := cmd.Stdout.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "dot"
}

// writeFailure writes a failed state and inputs which reproduce it.
func (cmd *ExploreCommand) writeFailure(state *itree.ExecutionState) error {
	fmt.Fprintf(cmd.Stdout, "\nstate #%d %s: %s\n", state.ID(), state.Status(), state.Reason())

	arrays, values, err := state.Values()
	if err != nil {
		return errors.Wrapf(err, "solve state #%d", state.ID())
	}
	for i, array := range arrays {
		fmt.Fprintf(cmd.Stdout, "  %s => %x\n", array, values[i])
	}
	return nil
}

// writeStats writes execution statistics as an aligned table.
func writeStats(w io.Writer, e *itree.Executor, solverStats itree.SolverStats, elapsed time.Duration) {
	executorStats, treeStats := e.Stats(), e.Tree().Stats()

	rows := [][2]string{
		{"states", fmt.Sprint(executorStats.States)},
		{"finished", fmt.Sprint(executorStats.Statuses[itree.ExecutionStatusFinished])},
		{"failed", fmt.Sprint(executorStats.Statuses[itree.ExecutionStatusFailed])},
		{"panicked", fmt.Sprint(executorStats.Statuses[itree.ExecutionStatusPanicked])},
		{"subsumed", fmt.Sprint(executorStats.Statuses[itree.ExecutionStatusSubsumed])},
		{"tree nodes", fmt.Sprint(treeStats.Nodes)},
		{"table entries", fmt.Sprint(treeStats.Entries)},
		{"subsumption checks", fmt.Sprint(treeStats.Checks)},
		{"solver queries", fmt.Sprint(solverStats.SolveN + solverStats.EvaluateN)},
		{"solver time", (solverStats.SolveTime + solverStats.EvaluateTime).Round(time.Microsecond).String()},
		{"elapsed", elapsed.Round(time.Microsecond).String()},
	}

	var width int
	for _, row := range rows {
		if n := runewidth.StringWidth(row[0]); n > width {
			width = n
		}
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s  %s\n", runewidth.FillRight(row[0], width), row[1])
	}
}

// LoadFunction loads the package matching pattern and returns the function
// with the given name from its SSA form.
func LoadFunction(pattern, name string) (*ssa.Function, error) {
	initial, err := packages.Load(&packages.Config{
		Mode: packages.LoadAllSyntax,
	}, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "load packages")
	} else if packages.PrintErrors(initial) > 0 {
		return nil, fmt.Errorf("packages contain errors")
	} else if len(initial) != 1 {
		return nil, fmt.Errorf("pattern must match one package: %s", pattern)
	}

	// Build program in SSA form.
	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	if pkgs[0] == nil {
		return nil, fmt.Errorf("cannot build SSA for package %s", initial[0])
	}
	for _, pkg := range pkgs {
		if pkg != nil {
			pkg.SetDebugMode(true)
		}
	}
	prog.Build()

	fn, ok := pkgs[0].Members[name].(*ssa.Function)
	if !ok {
		return nil, fmt.Errorf("function not found: %s.%s", initial[0].PkgPath, name)
	}
	return fn, nil
}

func (cmd *ExploreCommand) usage() {
	fmt.Fprintln(cmd.Stderr, `
usage: itree explore [arguments] package function

Arguments:

	-v
	    Enable verbose logging.
	-config PATH
	    Read configuration from a YAML file.
	-timeout DURATION
	    Time limit of a subsumption query.
	-no-interpolation
	    Explore every path without pruning.
	-searcher NAME
	    Search strategy: dfs, bfs, random or a comma-separated list.
	-max-states N
	    Stop after executing N states.
	-solver-log DURATION
	    Log solver queries taking at least DURATION.
	-tree FORMAT
	    Write the tree as dot, text or auto.
	-dump
	    Dump the configuration and the subsumption table.
`[1:])
}
