package itree

import (
	"fmt"
)

// Node represents one segment of an explored path in the interpolation tree.
// A node has either no children or exactly two.
type Node struct {
	parent *Node
	left   *Node
	right  *Node

	location      uint64
	subsumed      bool
	pathCondition *PathCondition
	dependency    *Dependency
}

// newNode returns a new child of parent. The child shares the parent's path
// condition and records its own dependency segment on top of the parent's.
func newNode(parent *Node, info ValueInfo) *Node {
	n := &Node{parent: parent}
	if parent != nil {
		n.pathCondition = parent.pathCondition
		n.dependency = NewDependency(parent.dependency, nil)
	} else {
		n.dependency = NewDependency(nil, info)
	}
	return n
}

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Left returns the left child.
func (n *Node) Left() *Node { return n.left }

// Right returns the right child.
func (n *Node) Right() *Node { return n.right }

// IsLeaf returns true if the node has no children.
func (n *Node) IsLeaf() bool { return n.left == nil && n.right == nil }

// Location returns the program point where the node starts. Zero if unset.
func (n *Node) Location() uint64 { return n.location }

// SetLocation sets the program point of the node. Only the first call has
// an effect.
func (n *Node) SetLocation(pp uint64) {
	if n.location == 0 {
		n.location = pp
	}
}

// IsSubsumed returns true if the node was pruned by a table entry.
func (n *Node) IsSubsumed() bool { return n.subsumed }

// Dependency returns the dependency segment owned by the node.
func (n *Node) Dependency() *Dependency { return n.dependency }

// PathCondition returns the head of the node's constraint chain.
func (n *Node) PathCondition() *PathCondition { return n.pathCondition }

// Execute records the effect of instr on the node's dependency segment.
func (n *Node) Execute(instr Instruction, expr Expr) {
	n.dependency.Execute(instr, expr)
}

// AddConstraint prepends constraint to the node's path condition. The
// condition is the program value the constraint was derived from.
func (n *Node) AddConstraint(constraint Expr, condition Value) {
	n.pathCondition = NewPathCondition(constraint, n.dependency, condition, n.pathCondition)
}

// BindCallArguments binds call arguments to the callee's parameters.
func (n *Node) BindCallArguments(call CallInstruction, args []Expr) {
	n.dependency.BindCallArguments(call, args)
}

// BindInput registers v as an input of the program, such as a parameter of
// the entry function.
func (n *Node) BindInput(v Value, expr Expr) {
	n.dependency.BindInput(v, expr)
}

// PopAbstractDependencyFrame binds the returned value to the call site when
// leaving a function.
func (n *Node) PopAbstractDependencyFrame(call CallInstruction, ret ReturnInstruction, expr Expr) {
	n.dependency.BindReturnValue(call, ret, expr)
}

// Interpolant returns the packed interpolant of the node's path condition.
func (n *Node) Interpolant(shadow *ShadowContext) (Expr, []*Array) {
	if n.pathCondition == nil {
		return nil, nil
	}
	return n.pathCondition.Pack(shadow)
}

// LatestCoreExpressions returns the singleton store snapshot at the start of
// the node. A node starts at a block entry so the snapshot comes from the
// parent's segment.
func (n *Node) LatestCoreExpressions(shadow *ShadowContext, interpolantOnly bool) (map[Value]Expr, []*Array) {
	if n.parent == nil {
		return map[Value]Expr{}, nil
	}
	return n.parent.dependency.LatestCoreExpressions(shadow, interpolantOnly)
}

// CompositeCoreExpressions returns the composite store snapshot at the start
// of the node.
func (n *Node) CompositeCoreExpressions(shadow *ShadowContext, interpolantOnly bool) (map[Value][]Expr, []*Array) {
	if n.parent == nil {
		return map[Value][]Expr{}, nil
	}
	return n.parent.dependency.CompositeCoreExpressions(shadow, interpolantOnly)
}

// ComputeInterpolantAllocations records the allocations of g as needed by
// the node's interpolant.
func (n *Node) ComputeInterpolantAllocations(g *AllocationGraph) {
	n.dependency.ComputeInterpolantAllocations(g)
}

// split creates both children of the node.
func (n *Node) split() (left, right *Node) {
	assert(n.IsLeaf(), "itree: node %p already split", n)
	n.left, n.right = newNode(n, nil), newNode(n, nil)
	return n.left, n.right
}

// markerMap returns a marker for every link of the path condition.
func (n *Node) markerMap() []*pathConditionMarker {
	var a []*pathConditionMarker
	for pc := n.pathCondition; pc != nil; pc = pc.prev {
		a = append(a, &pathConditionMarker{pathCondition: pc})
	}
	return a
}

// release drops the links and the dependency segment owned by the node.
func (n *Node) release() {
	var end *PathCondition
	if n.parent != nil {
		end = n.parent.pathCondition
	}
	for pc := n.pathCondition; pc != end && pc != nil; {
		prev := pc.prev
		pc.prev, pc.dependency, pc.condition = nil, nil, nil
		pc = prev
	}
	n.pathCondition = nil
	n.dependency.Release()
}

// String returns the string representation of the node.
func (n *Node) String() string {
	return fmt.Sprintf("Node<%p pp=%d subsumed=%v pc=%s>", n, n.location, n.subsumed, n.pathCondition)
}
