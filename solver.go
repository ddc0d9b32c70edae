package itree

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Solver represents a logical constraint solver.
type Solver interface {
	// Returns the satisfiability of the set of constraints. If the formula
	// is satisfiable, a valid value is returned for each array passed in.
	Solve(constraints []Expr, arrays []*Array) (satisfiable bool, values [][]byte, err error)

	// Returns whether query is implied by the constraints (true), whether its
	// negation is (false), or neither. For a decided query, the core lists the
	// constraints needed to decide it. A zero timeout means no limit. Running
	// out of time is reported as ValidityUnknown, not as an error.
	Evaluate(constraints []Expr, query Expr, timeout time.Duration) (validity Validity, core []Expr, err error)
}

// Validity represents the result of evaluating a query.
type Validity int

const (
	ValidityUnknown = Validity(iota)
	ValidityTrue
	ValidityFalse
)

// String returns the string representation of the validity.
func (v Validity) String() string {
	switch v {
	case ValidityTrue:
		return "true"
	case ValidityFalse:
		return "false"
	case ValidityUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Validity<%d>", v)
	}
}

// Ensure logging solver implements interface.
var _ Solver = (*LoggingSolver)(nil)

// LoggingSolver wraps a solver and logs slow or undecided queries.
type LoggingSolver struct {
	solver Solver
	stats  SolverStats

	// Queries taking at least this long are logged. If negative, only
	// undecided queries are logged. If zero, nothing is logged.
	MinQueryTime time.Duration

	Logger *log.Logger
}

// NewLoggingSolver returns a new instance of LoggingSolver.
func NewLoggingSolver(solver Solver) *LoggingSolver {
	return &LoggingSolver{
		solver: solver,
		Logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Stats returns query statistics.
func (s *LoggingSolver) Stats() SolverStats { return s.stats }

// Solve passes the constraints to the underlying solver.
func (s *LoggingSolver) Solve(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	t := time.Now()
	satisfiable, values, err := s.solver.Solve(constraints, arrays)
	elapsed := time.Since(t)

	s.stats.SolveN++
	s.stats.SolveTime += elapsed

	if s.MinQueryTime > 0 && elapsed >= s.MinQueryTime {
		s.Logger.Printf("[solver] solve: n=%d sat=%v elapsed=%s", len(constraints), satisfiable, elapsed)
		s.logConstraints(constraints, nil)
	}
	return satisfiable, values, err
}

// Evaluate passes the query to the underlying solver.
func (s *LoggingSolver) Evaluate(constraints []Expr, query Expr, timeout time.Duration) (Validity, []Expr, error) {
	t := time.Now()
	validity, core, err := s.solver.Evaluate(constraints, query, timeout)
	elapsed := time.Since(t)

	s.stats.EvaluateN++
	s.stats.EvaluateTime += elapsed
	if err == nil && validity == ValidityUnknown {
		s.stats.UnknownN++
	}

	switch {
	case s.MinQueryTime < 0 && err == nil && validity == ValidityUnknown,
		s.MinQueryTime > 0 && elapsed >= s.MinQueryTime:
		s.Logger.Printf("[solver] evaluate: n=%d validity=%s core=%d elapsed=%s", len(constraints), validity, len(core), elapsed)
		s.logConstraints(constraints, query)
	}
	return validity, core, err
}

func (s *LoggingSolver) logConstraints(constraints []Expr, query Expr) {
	for i, c := range constraints {
		s.Logger.Printf("[solver]   %d. %s", i, c)
	}
	if query != nil {
		s.Logger.Printf("[solver]   query: %s", query)
	}
}

// SolverStats represents statistics collected by LoggingSolver.
type SolverStats struct {
	SolveN       int
	SolveTime    time.Duration
	EvaluateN    int
	EvaluateTime time.Duration
	UnknownN     int
}
