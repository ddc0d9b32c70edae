package itree

import (
	"bytes"
	"fmt"
)

// PathCondition is one link of a path's constraint chain. Chains are shared:
// a child node starts from its parent's chain and prepends to it.
type PathCondition struct {
	constraint Expr
	dependency *Dependency
	condition  *VersionedValue
	prev       *PathCondition

	// Memoized shadow form of the constraint.
	shadowed     bool
	shadow       Expr
	shadowArrays []*Array

	inInterpolant bool
}

// NewPathCondition returns a new link prepended to prev. The condition value
// is resolved against d.
func NewPathCondition(constraint Expr, d *Dependency, condition Value, prev *PathCondition) *PathCondition {
	pc := &PathCondition{constraint: constraint, dependency: d, prev: prev}
	if d != nil && condition != nil {
		pc.condition = d.LatestValue(condition)
	}
	return pc
}

// Constraint returns the constraint of this link.
func (pc *PathCondition) Constraint() Expr { return pc.constraint }

// Condition returns the value the constraint was derived from, if tracked.
func (pc *PathCondition) Condition() *VersionedValue { return pc.condition }

// Prev returns the next older link, or nil.
func (pc *PathCondition) Prev() *PathCondition { return pc.prev }

// InInterpolant returns true if the constraint is part of the interpolant.
func (pc *PathCondition) InInterpolant() bool { return pc.inInterpolant }

// IncludeInInterpolant marks the constraint as core and marks every value it
// was computed from.
func (pc *PathCondition) IncludeInInterpolant(g *AllocationGraph) {
	if pc.condition != nil {
		pc.dependency.MarkAllValues(g, pc.condition)
	}
	pc.inInterpolant = true
}

// Pack returns the conjunction of the core constraints of the chain in shadow
// form, and the shadow arrays they use. Returns nil if no constraint is core.
func (pc *PathCondition) Pack(shadow *ShadowContext) (Expr, []*Array) {
	var ret Expr
	var arrays []*Array
	for it := pc; it != nil; it = it.prev {
		if !it.inInterpolant {
			continue
		}

		if !it.shadowed {
			it.shadow, it.shadowArrays = shadow.Rewrite(it.constraint)
			it.shadowed = true
		}
		arrays = mergeArrays(arrays, it.shadowArrays)

		if ret == nil {
			ret = it.shadow
		} else {
			ret = NewBinaryExpr(AND, ret, it.shadow)
		}
	}
	return ret, arrays
}

// Constraints returns the constraints of the chain, newest first.
func (pc *PathCondition) Constraints() []Expr {
	var a []Expr
	for it := pc; it != nil; it = it.prev {
		a = append(a, it.constraint)
	}
	return a
}

// matches returns true if expr is the constraint or one of its conjuncts.
func (pc *PathCondition) matches(expr Expr) bool {
	for _, c := range conjuncts(pc.constraint) {
		if CompareExpr(c, expr) == 0 {
			return true
		}
	}
	return false
}

// String returns the string representation of the chain.
func (pc *PathCondition) String() string {
	var buf bytes.Buffer
	buf.WriteString("[")
	for it := pc; it != nil; it = it.prev {
		fmt.Fprint(&buf, it.constraint)
		if it.inInterpolant {
			buf.WriteString(": interpolant")
		}
		if it.prev != nil {
			buf.WriteString(", ")
		}
	}
	buf.WriteString("]")
	return buf.String()
}

// pathConditionMarker records whether a link appeared in an unsat core.
// Links are only marked as core once the whole query has been decided.
type pathConditionMarker struct {
	pathCondition *PathCondition
	maybeCore     bool
}

func (m *pathConditionMarker) mayIncludeInInterpolant() {
	m.maybeCore = true
}

func (m *pathConditionMarker) includeInInterpolant(g *AllocationGraph) {
	if m.maybeCore {
		m.pathCondition.IncludeInInterpolant(g)
	}
}

// conjuncts splits a boolean expression on AND.
func conjuncts(expr Expr) []Expr {
	if e, ok := expr.(*BinaryExpr); ok && e.Op == AND && ExprWidth(e) == WidthBool {
		return append(conjuncts(e.LHS), conjuncts(e.RHS)...)
	}
	return []Expr{expr}
}
