package itree_test

import (
	"fmt"
	"go/ast"
	"go/token"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/itree"
	"github.com/benbjohnson/itree/z3"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Executor wraps itree.Executor with the z3 solver it owns.
type Executor struct {
	*itree.Executor
	Solver *z3.Solver
}

// NewExecutor returns an executor for fn backed by a new z3 solver.
func NewExecutor(fn *ssa.Function) *Executor {
	s := z3.NewSolver()
	e := itree.NewExecutor(fn)
	e.Solver = s
	return &Executor{Executor: e, Solver: s}
}

// Close releases the solver.
func (e *Executor) Close() error { return e.Solver.Close() }

// MustBuildProgram loads the package at path and builds it in SSA form with
// debug references so variables can be found by name.
func MustBuildProgram(tb testing.TB, path string) *ssa.Program {
	tb.Helper()

	pkgs, err := packages.Load(&packages.Config{Mode: packages.LoadAllSyntax}, path)
	if err != nil {
		tb.Fatal(err)
	} else if n := packages.PrintErrors(pkgs); n > 0 {
		tb.Fatalf("load %s: %d package errors", path, n)
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.GlobalDebug)
	for i, pkg := range ssaPkgs {
		if pkg == nil {
			tb.Fatalf("no ssa for package: %s", pkgs[i].PkgPath)
		}
	}
	prog.Build()
	return prog
}

// MustFindFunction returns the function called name in the main package.
func MustFindFunction(tb testing.TB, prog *ssa.Program, name string) *ssa.Function {
	tb.Helper()

	for _, pkg := range prog.AllPackages() {
		if pkg.Pkg.Name() != "main" {
			continue
		} else if fn, ok := pkg.Members[name].(*ssa.Function); ok {
			return fn
		}
	}
	tb.Fatalf("function %q not found in main", name)
	return nil
}

// MustVarValue returns the SSA value that the source variable name refers
// to in fn. Panic if fn never references it.
func MustVarValue(fn *ssa.Function, name string) ssa.Value {
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			ref, ok := instr.(*ssa.DebugRef)
			if !ok {
				continue
			} else if ident, ok := ref.Expr.(*ast.Ident); ok && ident.Name == name {
				return ref.X
			}
		}
	}
	panic(fmt.Sprintf("no reference to %q in %s", name, fn.Name()))
}

// EvalVar returns the value of the source variable name in state under the
// given array assignment.
func EvalVar(state *itree.ExecutionState, arrays []*itree.Array, values [][]byte, fn *ssa.Function, name string) (*itree.ConstantExpr, error) {
	expr, ok := state.Eval(MustVarValue(fn, name)).(itree.Expr)
	if !ok {
		return nil, fmt.Errorf("%s: not bound to an expression", name)
	}
	return itree.NewExprEvaluator(arrays, values).Evaluate(expr)
}

// ShortPosition formats pos as "file:line" using the base file name.
func ShortPosition(pos token.Position) string {
	if !pos.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(pos.Filename), pos.Line)
}
