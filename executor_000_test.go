package itree_test

import (
	"encoding/hex"
	"testing"

	"github.com/benbjohnson/itree"
)

func TestExecutor_Pkg000_If(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/pkg000_if")

	t.Run("Simple", func(t *testing.T) {
		fn := MustFindFunction(t, prog, "simple")
		e := NewExecutor(fn)
		defer e.Close()

		// Initial state should create a symbolic 'x' value and stop at the 'if'.
		if state, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		} else if binding := state.Eval(MustVarValue(fn, "x")); binding == nil {
			t.Fatal("binding for 'x' not found")
		} else if got, exp := ShortPosition(state.Position()), `simple.go:9`; got != exp {
			t.Fatalf("unexpected position: %s", got)
		}

		// Next state holds the true condition ('x == 0xAABB').
		state, err := e.ExecuteNextState()
		if err != nil {
			t.Fatal(err)
		} else if got, exp := state.Status(), itree.ExecutionStatusFinished; got != exp {
			t.Fatalf("unexpected status: %s", got)
		} else if got, exp := len(state.Constraints()), 1; got != exp {
			t.Fatalf("len(ExecutionState.Constraints())=%d, expected %d", got, exp)
		} else if constraint, ok := state.Constraints()[0].(*itree.BinaryExpr); !ok || constraint.Op != itree.EQ {
			t.Fatalf("expected EQ constraint, got %s", state.Constraints()[0])
		}

		// Solve for 'x'.
		if arrays, values, err := state.Values(); err != nil {
			t.Fatal(err)
		} else if got, exp := len(arrays), 1; got != exp {
			t.Fatalf("len(arrays)=%d, expected %d", got, exp)
		} else if got, exp := hex.EncodeToString(values[0]), "bbaa000000000000"; got != exp { // 64-bit litte-endian
			t.Fatalf("values[0]=%s, expected %s", got, exp)
		}

		// Next state holds the false condition ('x != 0xAABB').
		state, err = e.ExecuteNextState()
		if err != nil {
			t.Fatal(err)
		} else if got, exp := state.Status(), itree.ExecutionStatusFinished; got != exp {
			t.Fatalf("unexpected status: %s", got)
		} else if got, exp := len(state.Constraints()), 1; got != exp {
			t.Fatalf("len(ExecutionState.Constraints())=%d, expected %d", got, exp)
		}

		// Solve for 'x'.
		if arrays, values, err := state.Values(); err != nil {
			t.Fatal(err)
		} else if got, exp := len(arrays), 1; got != exp {
			t.Fatalf("len(arrays)=%d, expected %d", got, exp)
		} else if got := hex.EncodeToString(values[0]); got == `bbaa000000000000` { // 64-bit litte-endian
			t.Fatalf("values[0]=%s, expected any other value", got)
		}

		if _, err := e.ExecuteNextState(); err != itree.ErrNoStateAvailable {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Tree", func(t *testing.T) {
		fn := MustFindFunction(t, prog, "simple")
		e := NewExecutor(fn)
		defer e.Close()
		e.Tree().EnableHistory()

		for {
			if _, err := e.ExecuteNextState(); err == itree.ErrNoStateAvailable {
				break
			} else if err != nil {
				t.Fatal(err)
			}
		}

		// Every node is removed once both branches finish.
		if root := e.Tree().Root(); root != nil {
			t.Fatalf("unexpected root: %s", root)
		} else if got, exp := len(e.Tree().History()), 3; got != exp {
			t.Fatalf("len(History())=%d, expected %d", got, exp)
		}
		for _, r := range e.Tree().History() {
			if !r.Removed {
				t.Fatalf("node #%d not removed", r.ID)
			} else if r.Subsumed {
				t.Fatalf("node #%d unexpectedly subsumed", r.ID)
			}
		}
		if got, exp := e.Stats().Statuses[itree.ExecutionStatusFinished], 2; got != exp {
			t.Fatalf("finished=%d, expected %d", got, exp)
		}
	})
}
