package itree_test

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/benbjohnson/itree"
)

func TestExecutor_Pkg004_Slice(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/pkg004_slice")

	run := func(t *testing.T, fn string) (*Executor, []*itree.ExecutionState) {
		t.Helper()

		e := NewExecutor(MustFindFunction(t, prog, fn))
		var states []*itree.ExecutionState
		e.OnTerminate = func(state *itree.ExecutionState) { states = append(states, state) }
		if err := e.Run(context.Background()); err != nil {
			e.Close()
			t.Fatal(err)
		}
		return e, states
	}

	// failedValue returns the hex encoded input of the only failed state.
	failedValue := func(t *testing.T, states []*itree.ExecutionState) string {
		t.Helper()

		var value string
		var n int
		for _, state := range states {
			if state.Status() != itree.ExecutionStatusFailed {
				continue
			}
			_, values, err := state.Values()
			if err != nil {
				t.Fatal(err)
			}
			value, n = hex.EncodeToString(values[0]), n+1
		}
		if n != 1 {
			t.Fatalf("failed states=%d, expected 1", n)
		}
		return value
	}

	t.Run("Reslice", func(t *testing.T) {
		e, states := run(t, "lastByte")
		defer e.Close()

		// Length and capacity of the re-slice are constant so only the
		// element comparison forks.
		if got, exp := len(states), 2; got != exp {
			t.Fatalf("len(states)=%d, expected %d", got, exp)
		} else if got, exp := failedValue(t, states), "07"; got != exp {
			t.Fatalf("unexpected failing input: %s", got)
		}
	})

	t.Run("MakeSlice", func(t *testing.T) {
		e, states := run(t, "grow")
		defer e.Close()

		if got, exp := len(states), 2; got != exp {
			t.Fatalf("len(states)=%d, expected %d", got, exp)
		}

		// The zeroed element adds nothing so the input alone exceeds 100.
		value, err := hex.DecodeString(failedValue(t, states))
		if err != nil {
			t.Fatal(err)
		} else if got := int64(binary.LittleEndian.Uint64(value)); got <= 100 {
			t.Fatalf("unexpected failing input: %d", got)
		}
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		e, states := run(t, "overrun")
		defer e.Close()

		if got, exp := len(states), 1; got != exp {
			t.Fatalf("len(states)=%d, expected %d", got, exp)
		} else if got, exp := states[0].Status(), itree.ExecutionStatusPanicked; got != exp {
			t.Fatalf("unexpected status: %s", got)
		} else if got, exp := states[0].Reason(), "index out of range"; got != exp {
			t.Fatalf("unexpected reason: %s", got)
		}
	})
}
