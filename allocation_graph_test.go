package itree_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/benbjohnson/itree"
	"github.com/google/go-cmp/cmp"
)

func TestAllocationGraph(t *testing.T) {
	d := itree.NewDependency(nil, NewValueInfo())
	for _, site := range []V{"a", "b", "c"} {
		d.Execute(NewInstruction(itree.OpAlloca, site), itree.NewConstantExpr64(0))
	}
	a, b, c := d.LatestAllocation(V("a")), d.LatestAllocation(V("b")), d.LatestAllocation(V("c"))

	g := itree.NewAllocationGraph()
	if !g.AddNewEdge(a, b) {
		t.Fatal("expected new edge")
	} else if g.AddNewEdge(a, b) {
		t.Fatal("expected existing edge")
	} else if !g.IsSink(b) || g.IsSink(a) {
		t.Fatalf("unexpected sinks: %v", g.Sinks())
	}

	g.AddNewEdge(b, c)
	if diff := cmp.Diff([]*itree.Allocation{c}, g.Sinks(), cmp.Comparer(allocationEqual)); diff != "" {
		t.Fatal(diff)
	} else if diff := cmp.Diff([]*itree.Allocation{a, b, c}, g.Nodes(), cmp.Comparer(allocationEqual)); diff != "" {
		t.Fatal(diff)
	} else if diff := cmp.Diff([]*itree.Allocation{b}, g.Parents(c), cmp.Comparer(allocationEqual)); diff != "" {
		t.Fatal(diff)
	}

	t.Run("ConsumeSink", func(t *testing.T) {
		g.ConsumeSink(c)
		if diff := cmp.Diff([]*itree.Allocation{b}, g.Sinks(), cmp.Comparer(allocationEqual)); diff != "" {
			t.Fatal(diff)
		}

		// Consuming a non-sink is a no-op.
		g.ConsumeSink(a)
		if diff := cmp.Diff([]*itree.Allocation{b}, g.Sinks(), cmp.Comparer(allocationEqual)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ExistingTarget", func(t *testing.T) {
		g := itree.NewAllocationGraph()
		g.AddNewEdge(a, b)
		g.AddNewEdge(a, c)
		if !g.AddNewEdge(b, c) {
			t.Fatal("expected new edge")
		} else if diff := cmp.Diff([]*itree.Allocation{b, c}, g.Sinks(), cmp.Comparer(allocationEqual)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]*itree.Allocation{a, b}, g.Parents(c), cmp.Comparer(allocationEqual)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Dump", func(t *testing.T) {
		var buf bytes.Buffer
		g.Dump(&buf)
		if s := buf.String(); !strings.Contains(s, "[2] A[singleton c] <- A[singleton b]") {
			t.Fatalf("unexpected dump: %s", s)
		}
	})
}

func allocationEqual(a, b *itree.Allocation) bool { return a == b }
