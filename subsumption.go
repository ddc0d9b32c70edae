package itree

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// SubsumptionTableEntry represents the interpolant recorded for a fully
// explored node. A later state reaching the same program point whose store
// and constraints imply the entry can be pruned.
type SubsumptionTableEntry struct {
	ProgramPoint uint64

	// Conjunction of the core constraints, over shadow arrays. Nil if the
	// node had no core constraints.
	Interpolant Expr

	// Expressions needed by the interpolant, keyed by allocation site or
	// register.
	SingletonStore     map[Value]Expr
	SingletonStoreKeys []Value
	CompositeStore     map[Value][]Expr
	CompositeStoreKeys []Value

	// Shadow arrays which are existentially quantified in a subsumption check.
	Existentials []*Array
}

// NewSubsumptionTableEntry returns an entry built from the interpolant and
// the core store of node.
func NewSubsumptionTableEntry(node *Node, shadow *ShadowContext) *SubsumptionTableEntry {
	e := &SubsumptionTableEntry{ProgramPoint: node.Location()}

	var interpolantArrays, singletonArrays, compositeArrays []*Array
	e.Interpolant, interpolantArrays = node.Interpolant(shadow)
	e.SingletonStore, singletonArrays = node.LatestCoreExpressions(shadow, true)
	e.CompositeStore, compositeArrays = node.CompositeCoreExpressions(shadow, true)

	for k := range e.SingletonStore {
		e.SingletonStoreKeys = append(e.SingletonStoreKeys, k)
	}
	sortValues(e.SingletonStoreKeys)
	for k := range e.CompositeStore {
		e.CompositeStoreKeys = append(e.CompositeStoreKeys, k)
	}
	sortValues(e.CompositeStoreKeys)

	e.Existentials = mergeArrays(mergeArrays(interpolantArrays, singletonArrays), compositeArrays)
	return e
}

// Empty returns true if the entry has no interpolant and no stored values.
// An empty entry subsumes every state at its program point.
func (e *SubsumptionTableEntry) Empty() bool {
	return e.Interpolant == nil && len(e.SingletonStoreKeys) == 0 && len(e.CompositeStoreKeys) == 0
}

// Subsumed returns true if the entry subsumes state. On success, the path
// constraints and values of the state needed to prove it are marked as core.
//
// A state is subsumed when its constraints imply that there exist values of
// the shadow arrays for which the interpolant holds and every stored value
// of the entry equals the state's value at the same allocation site or
// register.
func (e *SubsumptionTableEntry) Subsumed(solver Solver, state State, timeout time.Duration) (bool, error) {
	node := state.Node()
	if e.ProgramPoint != node.Location() {
		return false, nil
	} else if e.Empty() {
		return true, nil
	}

	eq, ok := e.storeEquality(node)
	if !ok {
		return false, nil
	}

	var query Expr
	switch {
	case e.Interpolant != nil && eq != nil:
		query = NewBinaryExpr(AND, e.Interpolant, eq)
	case e.Interpolant != nil:
		query = e.Interpolant
	case eq != nil:
		query = eq
	default:
		e.markCore(node, nil)
		return true, nil
	}

	if len(e.Existentials) > 0 {
		query = SimplifyExistsExpr(NewExistsExpr(e.Existentials, query))
	}

	// Constant queries are decided without the solver or any core.
	if query, ok := query.(*ConstantExpr); ok {
		if !query.IsTrue() {
			return false, nil
		}
		e.markCore(node, nil)
		return true, nil
	}

	// A closed existential formula holds iff its body is satisfiable.
	if exists, ok := query.(*ExistsExpr); ok && len(FindArrays(exists)) == 0 {
		satisfiable, _, err := solver.Solve([]Expr{exists.Body}, exists.Arrays)
		if err != nil {
			return false, errors.Wrap(err, "solve existential")
		} else if !satisfiable {
			return false, nil
		}
		e.markCore(node, nil)
		return true, nil
	}

	validity, core, err := solver.Evaluate(state.Constraints(), query, timeout)
	if err != nil {
		return false, errors.Wrapf(err, "evaluate subsumption at pp=%d", e.ProgramPoint)
	} else if validity != ValidityTrue {
		if validity == ValidityUnknown {
			log.Printf("[subsume] undecided: pp=%d", e.ProgramPoint)
		}
		return false, nil
	}

	e.markCore(node, core)
	return true, nil
}

// markCore marks the path constraints of node found in core, and the values
// compared against the entry's store, as needed by the interpolant.
func (e *SubsumptionTableEntry) markCore(node *Node, core []Expr) {
	g := NewAllocationGraph()
	d := node.dependency

	markers := node.markerMap()
	for _, m := range markers {
		for _, c := range core {
			if m.pathCondition.matches(c) {
				m.mayIncludeInInterpolant()
				break
			}
		}
	}
	for _, m := range markers {
		m.includeInInterpolant(g)
	}

	mark := func(v *VersionedValue) {
		if v != nil {
			d.MarkAllValues(g, v)
		}
	}
	for _, k := range e.SingletonStoreKeys {
		if a := d.LatestAllocation(k); a != nil {
			for _, v := range d.Stores(a) {
				mark(v)
			}
		} else {
			mark(d.LatestValue(k))
		}
	}
	for _, k := range e.CompositeStoreKeys {
		for _, v := range d.Stores(d.LatestAllocation(k)) {
			mark(v)
		}
	}

	node.ComputeInterpolantAllocations(g)
}

// storeEquality returns the conjunction of equalities between the entry's
// stored values and the state's. Returns false if a key is missing from the
// state or an equality is trivially false.
func (e *SubsumptionTableEntry) storeEquality(node *Node) (Expr, bool) {
	var ret Expr
	conjoin := func(expr Expr) bool {
		if ret == nil {
			ret = expr
		} else {
			ret = NewBinaryExpr(AND, ret, expr)
		}
		return !IsConstantFalse(ret)
	}

	if len(e.SingletonStoreKeys) > 0 {
		store, _ := node.LatestCoreExpressions(nil, false)
		for _, k := range e.SingletonStoreKeys {
			rhs, ok := store[k]
			if !ok {
				return nil, false
			} else if !conjoin(newStoreEqExpr(e.SingletonStore[k], rhs)) {
				return nil, false
			}
		}
	}

	if len(e.CompositeStoreKeys) > 0 {
		store, _ := node.CompositeCoreExpressions(nil, false)
		for _, k := range e.CompositeStoreKeys {
			values, ok := store[k]
			if !ok || len(values) == 0 {
				return nil, false
			}

			// Some stored value must equal some value of the state.
			var disjunction Expr = NewBoolConstantExpr(false)
		pairs:
			for _, lhs := range e.CompositeStore[k] {
				for _, rhs := range values {
					if disjunction = NewBinaryExpr(OR, disjunction, newStoreEqExpr(lhs, rhs)); IsConstantTrue(disjunction) {
						break pairs
					}
				}
			}
			if !conjoin(disjunction) {
				return nil, false
			}
		}
	}

	if ret != nil && IsConstantTrue(ret) {
		return nil, true
	}
	return ret, true
}

// newStoreEqExpr returns the equality of two stored values. The narrower
// value is zero-extended if the widths differ.
func newStoreEqExpr(lhs, rhs Expr) Expr {
	if lw, rw := ExprWidth(lhs), ExprWidth(rhs); lw < rw {
		lhs = NewCastExpr(lhs, rw, false)
	} else if rw < lw {
		rhs = NewCastExpr(rhs, lw, false)
	}
	return NewBinaryExpr(EQ, lhs, rhs)
}

// String returns the string representation of the entry.
func (e *SubsumptionTableEntry) String() string {
	var buf bytes.Buffer
	e.Dump(&buf)
	return buf.String()
}

// Dump writes a human readable form of the entry to w.
func (e *SubsumptionTableEntry) Dump(w io.Writer) {
	fmt.Fprintf(w, "pp=%d\n", e.ProgramPoint)
	fmt.Fprintf(w, "interpolant: %v\n", e.Interpolant)
	for _, k := range e.SingletonStoreKeys {
		fmt.Fprintf(w, "singleton: %s = %s\n", k, e.SingletonStore[k])
	}
	for _, k := range e.CompositeStoreKeys {
		for _, v := range e.CompositeStore[k] {
			fmt.Fprintf(w, "composite: %s = %s\n", k, v)
		}
	}
	if len(e.Existentials) > 0 {
		fmt.Fprint(w, "existentials:")
		for _, a := range e.Existentials {
			fmt.Fprintf(w, " %s", a)
		}
		fmt.Fprintln(w)
	}
}

// sortValues sorts values by their string representation.
func sortValues(a []Value) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].String() < a[j].String() })
}
