package itree_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/benbjohnson/itree"
)

func TestExecutor_Pkg003_Subsume(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/pkg003_subsume")

	// run explores fn to completion and returns the terminated states.
	run := func(t *testing.T, fn string, interpolation bool) (*Executor, []*itree.ExecutionState) {
		t.Helper()

		e := NewExecutor(MustFindFunction(t, prog, fn))
		e.Interpolation = interpolation
		e.Tree().EnableHistory()

		var states []*itree.ExecutionState
		e.OnTerminate = func(state *itree.ExecutionState) {
			states = append(states, state)
		}
		if err := e.Run(context.Background()); err != nil {
			e.Close()
			t.Fatal(err)
		}
		return e, states
	}

	t.Run("Guard", func(t *testing.T) {
		e, states := run(t, "guard", true)
		defer e.Close()

		// The y <= 0 path reaches both 'x > 10' branches in a state already
		// covered by the y > 0 path.
		if got, exp := len(states), 4; got != exp {
			t.Fatalf("len(states)=%d, expected %d", got, exp)
		} else if got, exp := e.Stats().Statuses[itree.ExecutionStatusFinished], 2; got != exp {
			t.Fatalf("finished=%d, expected %d", got, exp)
		} else if got, exp := e.Stats().Statuses[itree.ExecutionStatusSubsumed], 2; got != exp {
			t.Fatalf("subsumed=%d, expected %d", got, exp)
		} else if got, exp := e.Tree().Stats().Subsumed, 2; got != exp {
			t.Fatalf("Tree.Stats().Subsumed=%d, expected %d", got, exp)
		}

		// The pruned nodes are recorded but do not store entries.
		var n int
		for _, r := range e.Tree().History() {
			if r.Subsumed {
				n++
				if r.Interpolant != "" {
					t.Fatalf("unexpected interpolant on subsumed node #%d: %s", r.ID, r.Interpolant)
				}
			}
		}
		if n != 2 {
			t.Fatalf("subsumed records=%d, expected 2", n)
		}
	})

	t.Run("GuardNoInterpolation", func(t *testing.T) {
		e, _ := run(t, "guard", false)
		defer e.Close()

		if got, exp := e.Stats().Statuses[itree.ExecutionStatusFinished], 4; got != exp {
			t.Fatalf("finished=%d, expected %d", got, exp)
		} else if got, exp := e.Stats().Statuses[itree.ExecutionStatusSubsumed], 0; got != exp {
			t.Fatalf("subsumed=%d, expected %d", got, exp)
		} else if got, exp := e.Tree().Stats().Checks, 0; got != exp {
			t.Fatalf("Tree.Stats().Checks=%d, expected %d", got, exp)
		}
	})

	// The phi of 'n' differs between the two paths so the entry stored by
	// the b > 0 path must not prune the b <= 0 path.
	t.Run("Window", func(t *testing.T) {
		e, states := run(t, "window", true)
		defer e.Close()

		var failed []*itree.ExecutionState
		for _, state := range states {
			if state.Status() == itree.ExecutionStatusFailed {
				failed = append(failed, state)
			}
		}
		if got, exp := len(failed), 1; got != exp {
			t.Fatalf("failed=%d, expected %d", got, exp)
		} else if got, exp := failed[0].Reason(), "assertion failed"; got != exp {
			t.Fatalf("unexpected reason: %s", got)
		}

		// Solve for inputs that reproduce the failure.
		fn := MustFindFunction(t, prog, "window")
		arrays, values, err := failed[0].Values()
		if err != nil {
			t.Fatal(err)
		}
		a, err := EvalVar(failed[0], arrays, values, fn, "a")
		if err != nil {
			t.Fatal(err)
		}
		b, err := EvalVar(failed[0], arrays, values, fn, "b")
		if err != nil {
			t.Fatal(err)
		}
		if a, b := int64(a.Value), int64(b.Value); a <= 5 || a >= 10 || b > 0 {
			t.Fatalf("unexpected 'a' & 'b': %d, %d (%s)", a, b, hex.EncodeToString(values[0]))
		}
	})
}
