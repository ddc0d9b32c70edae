package itree

import (
	"fmt"
	"io"
)

// AllocationGraph represents the allocations an interpolant depends on. An
// edge from a source to a target allocation means the target's content was
// derived from the source's. Sinks are nodes without outgoing edges.
type AllocationGraph struct {
	nodes []*allocationNode
	sinks []*allocationNode
}

type allocationNode struct {
	allocation *Allocation
	parents    []*allocationNode
	level      int
}

// NewAllocationGraph returns a new, empty graph.
func NewAllocationGraph() *AllocationGraph {
	return &AllocationGraph{}
}

func (g *AllocationGraph) node(a *Allocation) *allocationNode {
	for _, n := range g.nodes {
		if n.allocation == a {
			return n
		}
	}
	return nil
}

// Nodes returns every allocation in the graph in insertion order.
func (g *AllocationGraph) Nodes() []*Allocation {
	a := make([]*Allocation, len(g.nodes))
	for i, n := range g.nodes {
		a[i] = n.allocation
	}
	return a
}

// Sinks returns the allocations without outgoing edges.
func (g *AllocationGraph) Sinks() []*Allocation {
	a := make([]*Allocation, len(g.sinks))
	for i, n := range g.sinks {
		a[i] = n.allocation
	}
	return a
}

// IsSink returns true if a is a sink of the graph.
func (g *AllocationGraph) IsSink(a *Allocation) bool {
	for _, n := range g.sinks {
		if n.allocation == a {
			return true
		}
	}
	return false
}

// Parents returns the allocations with an edge into a.
func (g *AllocationGraph) Parents(a *Allocation) []*Allocation {
	n := g.node(a)
	if n == nil {
		return nil
	}
	other := make([]*Allocation, len(n.parents))
	for i, p := range n.parents {
		other[i] = p.allocation
	}
	return other
}

// AddNewEdge adds an edge from source to target, creating the nodes as
// needed. A new target becomes a sink and the source stops being one. An
// edge into an existing node leaves the sinks unchanged.
// Returns true if the edge did not exist.
func (g *AllocationGraph) AddNewEdge(source, target *Allocation) bool {
	src := g.node(source)
	if src == nil {
		src = &allocationNode{allocation: source}
		g.nodes = append(g.nodes, src)
	}

	// Only a new target takes over from the source as a sink.
	dst := g.node(target)
	if dst == nil {
		dst = &allocationNode{allocation: target}
		g.nodes = append(g.nodes, dst)
		g.sinks = append(g.sinks, dst)
		g.removeSink(src)
	}

	for _, p := range dst.parents {
		if p == src {
			return false
		}
	}

	dst.parents = append(dst.parents, src)
	if dst.level < src.level+1 {
		dst.level = src.level + 1
	}
	return true
}

// ConsumeSink replaces the sink a with its parents in the sink set.
func (g *AllocationGraph) ConsumeSink(a *Allocation) {
	n := g.node(a)
	if n == nil || !g.IsSink(a) {
		return
	}
	for _, p := range n.parents {
		if !g.IsSink(p.allocation) {
			g.sinks = append(g.sinks, p)
		}
	}
	g.removeSink(n)
}

func (g *AllocationGraph) removeSink(n *allocationNode) {
	for i, sink := range g.sinks {
		if sink == n {
			g.sinks = append(g.sinks[:i:i], g.sinks[i+1:]...)
			return
		}
	}
}

// Dump writes the edges of the graph to w, deepest nodes first.
func (g *AllocationGraph) Dump(w io.Writer) {
	fmt.Fprintln(w, "ALLOCATION GRAPH:")
	max := 0
	for _, n := range g.nodes {
		if n.level > max {
			max = n.level
		}
	}
	for level := max; level >= 0; level-- {
		for _, n := range g.nodes {
			if n.level != level {
				continue
			}
			for _, p := range n.parents {
				fmt.Fprintf(w, "[%d] %s <- %s\n", level, n.allocation, p.allocation)
			}
		}
	}
}
