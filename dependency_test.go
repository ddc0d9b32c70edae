package itree_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/benbjohnson/itree"
	"github.com/google/go-cmp/cmp"
)

func TestDependency_Execute(t *testing.T) {
	t.Run("StoreLoad", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		x := itree.NewConstantExpr64(5)

		d.Execute(NewInstruction(itree.OpAlloca, V("p")), itree.NewConstantExpr64(0x1000))
		d.BindInput(V("x"), x)
		d.Execute(NewInstruction(itree.OpStore, nil, V("x"), V("p")), x)
		d.Execute(NewInstruction(itree.OpLoad, V("y"), V("p")), x)

		// The loaded value flows from the stored value through 'p'.
		y := d.LatestValue(V("y"))
		if y == nil {
			t.Fatal("expected value for 'y'")
		} else if sources := d.DirectFlowSources(y); len(sources) != 1 || sources[0] != d.LatestValue(V("x")) {
			t.Fatalf("unexpected sources: %v", sources)
		}

		a := d.LatestAllocation(V("p"))
		if a == nil {
			t.Fatal("expected allocation for 'p'")
		} else if got, exp := a.Kind(), itree.SingletonAllocation; got != exp {
			t.Fatalf("unexpected kind: %s", got)
		} else if stored := d.Stores(a); len(stored) != 1 || stored[0] != d.LatestValue(V("x")) {
			t.Fatalf("unexpected stores: %v", stored)
		}
	})

	t.Run("SingletonStoreReplaces", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		d.Execute(NewInstruction(itree.OpAlloca, V("p")), itree.NewConstantExpr64(0x1000))
		d.BindInput(V("x"), itree.NewConstantExpr64(1))
		d.BindInput(V("z"), itree.NewConstantExpr64(2))

		first := d.LatestAllocation(V("p"))
		d.Execute(NewInstruction(itree.OpStore, nil, V("x"), V("p")), itree.NewConstantExpr64(1))
		d.Execute(NewInstruction(itree.OpStore, nil, V("z"), V("p")), itree.NewConstantExpr64(2))

		a := d.LatestAllocation(V("p"))
		if a == first {
			t.Fatal("expected new allocation version")
		} else if stored := d.Stores(a); len(stored) != 1 || stored[0] != d.LatestValue(V("z")) {
			t.Fatalf("unexpected stores: %v", stored)
		}
	})

	t.Run("LoadAfterOverwrite", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		d.Execute(NewInstruction(itree.OpAlloca, V("p")), itree.NewConstantExpr64(0x1000))
		d.BindInput(V("a"), itree.NewConstantExpr64(3))
		d.BindInput(V("b"), itree.NewConstantExpr64(4))

		d.Execute(NewInstruction(itree.OpStore, nil, V("a"), V("p")), itree.NewConstantExpr64(3))
		first := d.LatestAllocation(V("p"))
		d.Execute(NewInstruction(itree.OpLoad, V("v1"), V("p")), itree.NewConstantExpr64(3))
		v1 := d.LatestValue(V("v1"))

		d.Execute(NewInstruction(itree.OpStore, nil, V("b"), V("p")), itree.NewConstantExpr64(4))
		d.Execute(NewInstruction(itree.OpLoad, V("v2"), V("p")), itree.NewConstantExpr64(4))
		v2 := d.LatestValue(V("v2"))

		// Each load reads the value stored in the version it resolved to.
		if sources := d.DirectFlowSources(v1); len(sources) != 1 || sources[0] != d.LatestValue(V("a")) {
			t.Fatalf("unexpected sources of v1: %v", sources)
		} else if sources := d.DirectFlowSources(v2); len(sources) != 1 || sources[0] != d.LatestValue(V("b")) {
			t.Fatalf("unexpected sources of v2: %v", sources)
		} else if diff := cmp.Diff(itree.NewConstantExpr64(4), v2.Expr()); diff != "" {
			t.Fatal(diff)
		}

		// The overwritten version keeps its value.
		if a := d.LatestAllocation(V("p")); a == first {
			t.Fatal("expected new allocation version")
		} else if stored := d.Stores(first); len(stored) != 1 || stored[0] != d.LatestValue(V("a")) {
			t.Fatalf("unexpected stores of first version: %v", stored)
		}
	})

	t.Run("CompositeStoreAccumulates", func(t *testing.T) {
		info := NewValueInfo()
		info.Composites[V("arr")] = true

		d := itree.NewDependency(nil, info)
		d.Execute(NewInstruction(itree.OpAlloca, V("arr")), itree.NewConstantExpr64(0x2000))
		d.BindInput(V("x"), itree.NewConstantExpr64(1))
		d.BindInput(V("z"), itree.NewConstantExpr64(2))

		first := d.LatestAllocation(V("arr"))
		d.Execute(NewInstruction(itree.OpStore, nil, V("x"), V("arr")), itree.NewConstantExpr64(1))

		// A child segment sees the parent's stores.
		child := itree.NewDependency(d, nil)
		child.Execute(NewInstruction(itree.OpStore, nil, V("z"), V("arr")), itree.NewConstantExpr64(2))

		if a := child.LatestAllocation(V("arr")); a != first {
			t.Fatal("expected composite allocation to be reused")
		} else if got, exp := len(child.Stores(a)), 2; got != exp {
			t.Fatalf("len(Stores())=%d, expected %d", got, exp)
		} else if got, exp := len(d.Stores(a)), 1; got != exp {
			t.Fatalf("parent len(Stores())=%d, expected %d", got, exp)
		}
	})

	t.Run("Binary", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		d.BindInput(V("x"), itree.NewConstantExpr64(1))
		d.BindInput(V("y"), itree.NewConstantExpr64(2))
		d.Execute(NewInstruction(itree.OpBinary, V("s"), V("x"), V("y")), itree.NewConstantExpr64(3))

		s := d.LatestValue(V("s"))
		if got, exp := len(d.DirectFlowSources(s)), 2; got != exp {
			t.Fatalf("len(DirectFlowSources())=%d, expected %d", got, exp)
		} else if got, exp := len(d.AllFlowSources(s)), 3; got != exp {
			t.Fatalf("len(AllFlowSources())=%d, expected %d", got, exp)
		} else if got, exp := len(d.AllFlowSourcesEnds(s)), 2; got != exp {
			t.Fatalf("len(AllFlowSourcesEnds())=%d, expected %d", got, exp)
		}
	})

	t.Run("BinaryUntracked", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		d.Execute(NewInstruction(itree.OpBinary, V("s"), V("k1"), V("k2")), itree.NewConstantExpr64(3))
		if v := d.LatestValue(V("s")); v != nil {
			t.Fatalf("unexpected value: %s", v)
		}
	})

	t.Run("PhiUntracked", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		d.Execute(NewInstruction(itree.OpPhi, V("n"), V("k1"), V("k2")), itree.NewConstantExpr64(10))
		if v := d.LatestValue(V("n")); v == nil {
			t.Fatal("expected value for phi")
		} else if sources := d.DirectFlowSources(v); len(sources) != 0 {
			t.Fatalf("unexpected sources: %v", sources)
		}
	})

	t.Run("PhiFirstTracked", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		d.BindInput(V("b"), itree.NewConstantExpr64(1))
		d.Execute(NewInstruction(itree.OpPhi, V("n"), V("k"), V("b")), itree.NewConstantExpr64(1))
		if sources := d.DirectFlowSources(d.LatestValue(V("n"))); len(sources) != 1 || sources[0] != d.LatestValue(V("b")) {
			t.Fatalf("unexpected sources: %v", sources)
		}
	})

	t.Run("ErrCallMustBeBound", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			} else if !strings.Contains(r.(string), "must be bound") {
				t.Fatalf("unexpected panic: %v", r)
			}
		}()
		d.Execute(NewInstruction(itree.OpCall, V("c")), nil)
	})
}

func TestDependency_BindCallArguments(t *testing.T) {
	d := itree.NewDependency(nil, NewValueInfo())
	d.BindInput(V("a"), itree.NewConstantExpr64(1))

	call := &Call{
		Instruction: NewInstruction(itree.OpCall, V("c"), V("a"), V("k")),
		params:      []itree.Value{V("p1"), V("p2")},
	}
	d.BindCallArguments(call, []itree.Expr{itree.NewConstantExpr64(1), itree.NewConstantExpr64(2)})

	if sources := d.DirectFlowSources(d.LatestValue(V("p1"))); len(sources) != 1 || sources[0] != d.LatestValue(V("a")) {
		t.Fatalf("unexpected p1 sources: %v", sources)
	}

	// Untracked arguments are not registered.
	if p2 := d.LatestValue(V("p2")); p2 == nil {
		t.Fatal("expected value for 'p2'")
	} else if sources := d.DirectFlowSources(p2); len(sources) != 1 {
		t.Fatalf("unexpected p2 sources: %v", sources)
	} else if d.LatestValue(V("k")) != nil {
		t.Fatal("unexpected value for 'k'")
	}

	t.Run("ReturnValue", func(t *testing.T) {
		d.Execute(NewInstruction(itree.OpBinary, V("r"), V("p1"), V("p2")), itree.NewConstantExpr64(3))
		d.BindReturnValue(call, &Return{Instruction: NewInstruction(itree.OpReturn, nil, V("r")), result: V("r")}, itree.NewConstantExpr64(3))

		if sources := d.DirectFlowSources(d.LatestValue(V("c"))); len(sources) != 1 || sources[0] != d.LatestValue(V("r")) {
			t.Fatalf("unexpected sources: %v", sources)
		}
	})

	t.Run("ConstantReturnValue", func(t *testing.T) {
		call := &Call{Instruction: NewInstruction(itree.OpCall, V("c2"))}
		d.BindReturnValue(call, &Return{Instruction: NewInstruction(itree.OpReturn, nil, V("k")), result: V("k")}, itree.NewConstantExpr64(7))

		if v := d.LatestValue(V("c2")); v == nil {
			t.Fatal("expected value for call result")
		} else if diff := cmp.Diff(itree.Expr(itree.NewConstantExpr64(7)), v.Expr()); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestDependency_MarkAllValues(t *testing.T) {
	d := itree.NewDependency(nil, NewValueInfo())
	d.Execute(NewInstruction(itree.OpAlloca, V("p")), itree.NewConstantExpr64(0x1000))
	d.BindInput(V("x"), itree.NewConstantExpr64(1))
	d.BindInput(V("y"), itree.NewConstantExpr64(2))
	d.Execute(NewInstruction(itree.OpStore, nil, V("x"), V("p")), itree.NewConstantExpr64(1))

	child := itree.NewDependency(d, nil)
	child.Execute(NewInstruction(itree.OpLoad, V("l"), V("p")), itree.NewConstantExpr64(1))
	child.Execute(NewInstruction(itree.OpCompare, V("c"), V("l"), V("k")), itree.NewBoolConstantExpr(true))

	g := itree.NewAllocationGraph()
	child.MarkAllValues(g, child.LatestValue(V("c")))

	if !child.LatestValue(V("x")).InInterpolant() {
		t.Fatal("expected 'x' in interpolant")
	} else if !child.LatestValue(V("l")).InInterpolant() {
		t.Fatal("expected 'l' in interpolant")
	} else if child.LatestValue(V("y")).InInterpolant() {
		t.Fatal("unexpected 'y' in interpolant")
	}

	t.Run("LatestCoreExpressions", func(t *testing.T) {
		m, arrays := child.LatestCoreExpressions(nil, true)
		if diff := cmp.Diff(map[itree.Value]itree.Expr{
			V("p"): itree.NewConstantExpr64(1),
			V("x"): itree.NewConstantExpr64(1),
			V("l"): itree.NewConstantExpr64(1),
			V("c"): itree.NewBoolConstantExpr(true),
		}, m); diff != "" {
			t.Fatal(diff)
		} else if len(arrays) != 0 {
			t.Fatalf("unexpected arrays: %v", arrays)
		}

		// Without the filter every register is returned.
		if m, _ := child.LatestCoreExpressions(nil, false); len(m) != 5 {
			t.Fatalf("unexpected map: %v", m)
		}
	})

	t.Run("Shadow", func(t *testing.T) {
		d := itree.NewDependency(nil, NewValueInfo())
		array := itree.NewArray(1, 8)
		d.BindInput(V("x"), array.Select(itree.NewConstantExpr64(0), 64, true))
		d.Execute(NewInstruction(itree.OpCompare, V("c"), V("x"), V("k")), itree.NewBoolConstantExpr(true))
		d.MarkAllValues(itree.NewAllocationGraph(), d.LatestValue(V("c")))

		m, arrays := d.LatestCoreExpressions(itree.NewShadowContext(), true)
		if got, exp := len(arrays), 1; got != exp {
			t.Fatalf("len(arrays)=%d, expected %d", got, exp)
		} else if arrays[0].ID < itree.ShadowArrayBase {
			t.Fatalf("expected shadow array: %d", arrays[0].ID)
		} else if got := itree.FindArrays(m[V("x")]); len(got) != 1 || got[0].ID != arrays[0].ID {
			t.Fatalf("unexpected arrays in expression: %v", got)
		}
	})
}

func TestDependency_Release(t *testing.T) {
	d := itree.NewDependency(nil, NewValueInfo())
	d.BindInput(V("x"), itree.NewConstantExpr64(1))
	d.Release()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	d.LatestValue(V("x"))
}

func TestDependency_Dump(t *testing.T) {
	d := itree.NewDependency(nil, NewValueInfo())
	d.Execute(NewInstruction(itree.OpAlloca, V("p")), itree.NewConstantExpr64(0x1000))
	d.BindInput(V("x"), itree.NewConstantExpr64(1))
	d.Execute(NewInstruction(itree.OpStore, nil, V("x"), V("p")), itree.NewConstantExpr64(1))

	var buf bytes.Buffer
	d.Dump(&buf)
	if s := buf.String(); !strings.Contains(s, "A[singleton p]") {
		t.Fatalf("unexpected dump: %s", s)
	}
}

// V is a named test value. Values with the same name are the same value.
type V string

func (v V) String() string { return string(v) }

// ValueInfo is a test implementation of itree.ValueInfo.
type ValueInfo struct {
	Constants   map[itree.Value]bool
	Composites  map[itree.Value]bool
	Environment itree.Value
}

func NewValueInfo() *ValueInfo {
	return &ValueInfo{
		Constants:  map[itree.Value]bool{V("k"): true, V("k1"): true, V("k2"): true},
		Composites: make(map[itree.Value]bool),
	}
}

func (i *ValueInfo) IsConstant(v itree.Value) bool { return i.Constants[v] }
func (i *ValueInfo) IsComposite(site itree.Value) bool { return i.Composites[site] }
func (i *ValueInfo) IsEnvironment(site itree.Value) bool { return i.Environment != nil && site == i.Environment }

// Instruction is a test implementation of itree.Instruction.
type Instruction struct {
	op       itree.Opcode
	value    itree.Value
	operands []itree.Value
}

// NewInstruction returns an instruction defining value from operands. A nil
// value is passed as an untyped nil interface.
func NewInstruction(op itree.Opcode, value itree.Value, operands ...itree.Value) *Instruction {
	return &Instruction{op: op, value: value, operands: operands}
}

func (i *Instruction) Opcode() itree.Opcode { return i.op }
func (i *Instruction) Value() itree.Value { return i.value }
func (i *Instruction) Operands() []itree.Value { return i.operands }

// Call is a test implementation of itree.CallInstruction.
type Call struct {
	*Instruction
	params []itree.Value
}

func (c *Call) Args() []itree.Value { return c.operands }
func (c *Call) Params() []itree.Value { return c.params }

// Return is a test implementation of itree.ReturnInstruction.
type Return struct {
	*Instruction
	result itree.Value
}

func (r *Return) Result() itree.Value { return r.result }
