package itree_test

import (
	"testing"

	"github.com/benbjohnson/itree"
)

func TestExecutor_Pkg001_Call(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/pkg001_call")

	t.Run("Simple", func(t *testing.T) {
		caller := MustFindFunction(t, prog, "caller")
		callee := MustFindFunction(t, prog, "callee")
		e := NewExecutor(caller)
		defer e.Close()

		// Initial state should run into callee() and stop at its 'if'.
		if state, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		} else if got, exp := ShortPosition(state.Position()), `simple.go:18`; got != exp {
			t.Fatalf("unexpected position: %s", got)
		} else if state.Frame().Fn() != callee {
			t.Fatalf("unexpected function: %s", state.Frame().Fn())
		}

		// Next state should run callee() true, return and stop at the caller() 'if'.
		if state, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		} else if got, exp := ShortPosition(state.Position()), `simple.go:11`; got != exp {
			t.Fatalf("unexpected position: %s", got)
		} else if state.Frame().Fn() != caller {
			t.Fatalf("unexpected function: %s", state.Frame().Fn())
		}

		// Next state should execute caller() 'if': true condition.
		if state, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		} else if got, exp := ShortPosition(state.Position()), `simple.go:12`; got != exp {
			t.Fatalf("unexpected position: %s", got)
		} else if arrays, values, err := state.Values(); err != nil {
			t.Fatal(err)
		} else if x, err := EvalVar(state, arrays, values, caller, "x"); err != nil {
			t.Fatal(err)
		} else if y, err := EvalVar(state, arrays, values, caller, "y"); err != nil {
			t.Fatal(err)
		} else if x8, y16 := int8(x.Value), int16(y.Value); int32(x8)*int32(y16)+1 != 0xAABB {
			t.Fatalf("unexpected 'x' & 'y': %d, %d", x8, y16)
		}

		// Next state should execute caller() false. Implicit return has no position.
		if state, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		} else if got, exp := ShortPosition(state.Position()), `-`; got != exp {
			t.Fatalf("unexpected position: %s", got)
		} else if arrays, values, err := state.Values(); err != nil {
			t.Fatal(err)
		} else if x, err := EvalVar(state, arrays, values, caller, "x"); err != nil {
			t.Fatal(err)
		} else if y, err := EvalVar(state, arrays, values, caller, "y"); err != nil {
			t.Fatal(err)
		} else if x8, y16 := int8(x.Value), int16(y.Value); int32(x8)*int32(y16)+1 == 0xAABB {
			t.Fatalf("unexpected 'x' & 'y': %d, %d", x8, y16)
		}

		// Next state should execute callee() false and return to caller(). The
		// caller() true condition is impossible so no fork occurs.
		if state, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		} else if got, exp := state.Status(), itree.ExecutionStatusFinished; got != exp {
			t.Fatalf("unexpected status: %s", got)
		} else if got, exp := ShortPosition(state.Position()), `-`; got != exp {
			t.Fatalf("unexpected position: %s", got)
		} else if arrays, values, err := state.Values(); err != nil {
			t.Fatal(err)
		} else if x, err := EvalVar(state, arrays, values, caller, "x"); err != nil {
			t.Fatal(err)
		} else if y, err := EvalVar(state, arrays, values, caller, "y"); err != nil {
			t.Fatal(err)
		} else if x8, y16 := int8(x.Value), int16(y.Value); int32(x8)*int32(y16) > 10 {
			t.Fatalf("unexpected 'x' & 'y': %d, %d", x8, y16)
		}

		if _, err := e.ExecuteNextState(); err != itree.ErrNoStateAvailable {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
