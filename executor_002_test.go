package itree_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/benbjohnson/itree"
)

func TestExecutor_Pkg002_Struct(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/pkg002_struct")

	// explore runs fn to completion and returns its terminated states.
	explore := func(t *testing.T, fn string, interpolation bool) (*Executor, []*itree.ExecutionState) {
		t.Helper()

		e := NewExecutor(MustFindFunction(t, prog, fn))
		e.Interpolation = interpolation

		var states []*itree.ExecutionState
		e.OnTerminate = func(state *itree.ExecutionState) { states = append(states, state) }
		if err := e.Run(context.Background()); err != nil {
			e.Close()
			t.Fatal(err)
		}
		return e, states
	}

	// Fields of different widths share one allocation. Only the symbolic
	// field decides the branch.
	t.Run("MixedWidthFields", func(t *testing.T) {
		e, states := explore(t, "overdrawn", true)
		defer e.Close()

		if got, exp := len(states), 2; got != exp {
			t.Fatalf("len(states)=%d, expected %d", got, exp)
		}

		var matched int
		for _, state := range states {
			if got, exp := state.Status(), itree.ExecutionStatusFinished; got != exp {
				t.Fatalf("unexpected status: %s", got)
			}
			_, values, err := state.Values()
			if err != nil {
				t.Fatal(err)
			} else if hex.EncodeToString(values[0]) == "6500000000000000" { // 101, little-endian
				matched++
			}
		}
		if matched != 1 {
			t.Fatalf("states solved to balance=101: %d, expected 1", matched)
		}
	})

	// A field written on one path only must not cause the other path to be
	// reported as failing, with or without pruning.
	t.Run("UnreadFieldWrite", func(t *testing.T) {
		finished := make(map[bool]int)
		for _, interpolation := range []bool{false, true} {
			e, states := explore(t, "bounded", interpolation)
			stats, treeStats := e.Stats(), e.Tree().Stats()
			e.Close()

			for _, state := range states {
				if state.Status() == itree.ExecutionStatusFailed {
					t.Fatalf("interpolation=%v: unexpected failure: %s", interpolation, state.Reason())
				}
			}
			if got, exp := stats.Statuses[itree.ExecutionStatusFinished]+stats.Statuses[itree.ExecutionStatusSubsumed], len(states); got != exp {
				t.Fatalf("interpolation=%v: finished+subsumed=%d, expected %d", interpolation, got, exp)
			} else if interpolation && treeStats.Entries == 0 {
				t.Fatal("expected subsumption entries")
			}
			finished[interpolation] = stats.Statuses[itree.ExecutionStatusFinished]
		}

		if finished[true] > finished[false] {
			t.Fatalf("interpolation finished more paths: %d > %d", finished[true], finished[false])
		}
	})
}
