package itree

import (
	"cmp"
	"fmt"
	"sort"
)

// CompareExpr orders expressions structurally. It returns 0 if a and b are
// the same term, -1 if a sorts first and +1 otherwise. Nil sorts first.
func CompareExpr(a, b Expr) int {
	switch {
	case a == nil || b == nil:
		return cmp.Compare(boolInt(a != nil), boolInt(b != nil))
	case exprKind(a) != exprKind(b):
		return cmp.Compare(exprKind(a), exprKind(b))
	}

	switch a := a.(type) {
	case *ConstantExpr:
		b := b.(*ConstantExpr)
		return firstNonZero(cmp.Compare(a.Width, b.Width), cmp.Compare(a.Value, b.Value))
	case *SelectExpr:
		b := b.(*SelectExpr)
		if c := CompareExpr(a.Index, b.Index); c != 0 {
			return c
		}
		return CompareArray(a.Array, b.Array)
	case *ConcatExpr:
		b := b.(*ConcatExpr)
		if c := CompareExpr(a.MSB, b.MSB); c != 0 {
			return c
		}
		return CompareExpr(a.LSB, b.LSB)
	case *ExtractExpr:
		b := b.(*ExtractExpr)
		if c := firstNonZero(cmp.Compare(a.Offset, b.Offset), cmp.Compare(a.Width, b.Width)); c != 0 {
			return c
		}
		return CompareExpr(a.Expr, b.Expr)
	case *CastExpr:
		b := b.(*CastExpr)
		if c := firstNonZero(cmp.Compare(boolInt(!a.Signed), boolInt(!b.Signed)), cmp.Compare(a.Width, b.Width)); c != 0 {
			return c
		}
		return CompareExpr(a.Src, b.Src)
	case *BinaryExpr:
		b := b.(*BinaryExpr)
		if c := cmp.Compare(a.Op, b.Op); c != 0 {
			return c
		} else if c := CompareExpr(a.LHS, b.LHS); c != 0 {
			return c
		}
		return CompareExpr(a.RHS, b.RHS)
	case *ExistsExpr:
		b := b.(*ExistsExpr)
		if c := cmp.Compare(len(a.Arrays), len(b.Arrays)); c != 0 {
			return c
		}
		for i := range a.Arrays {
			if c := CompareArray(a.Arrays[i], b.Arrays[i]); c != 0 {
				return c
			}
		}
		return CompareExpr(a.Body, b.Body)
	default:
		panic(fmt.Sprintf("assert: compare of unknown expression: %T", a))
	}
}

// exprKind ranks expression types for CompareExpr.
func exprKind(expr Expr) int {
	switch expr.(type) {
	case *ConstantExpr:
		return 1
	case *SelectExpr:
		return 2
	case *ConcatExpr:
		return 3
	case *ExtractExpr:
		return 4
	case *CastExpr:
		return 5
	case *BinaryExpr:
		return 6
	case *ExistsExpr:
		return 7
	default:
		panic(fmt.Sprintf("assert: kind of unknown expression: %T", expr))
	}
}

// firstNonZero returns the first non-zero comparison.
func firstNonZero(cmps ...int) int {
	for _, c := range cmps {
		if c != 0 {
			return c
		}
	}
	return 0
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ExprVisitor is called by WalkExpr for every node of an expression.
type ExprVisitor interface {
	// Visit returns a replacement for expr and the visitor for its
	// children. A nil visitor skips the children.
	Visit(expr Expr) (Expr, ExprVisitor)
}

// WalkExpr visits expr depth-first and returns the replacement for expr.
// Children are replaced in place. Update chains of selected arrays are
// walked as well.
func WalkExpr(v ExprVisitor, expr Expr) Expr {
	other, v := v.Visit(expr)
	if v == nil {
		return other
	}

	walk := func(child *Expr) { *child = WalkExpr(v, *child) }
	switch expr := expr.(type) {
	case *ConstantExpr:
	case *BinaryExpr:
		walk(&expr.LHS)
		walk(&expr.RHS)
	case *CastExpr:
		walk(&expr.Src)
	case *ConcatExpr:
		walk(&expr.MSB)
		walk(&expr.LSB)
	case *ExtractExpr:
		walk(&expr.Expr)
	case *ExistsExpr:
		walk(&expr.Body)
	case *SelectExpr:
		walk(&expr.Index)
		for upd := expr.Array.Updates; upd != nil; upd = upd.Next {
			walk(&upd.Index)
			walk(&upd.Value)
		}
	default:
		panic(fmt.Sprintf("assert: walk of unknown expression: %T", expr))
	}
	return other
}

// FindArrays returns the free symbolic arrays read by exprs, sorted by id.
// Arrays bound by an ExistsExpr are not free within its body.
func FindArrays(exprs ...Expr) []*Array {
	v := arrayFinder{}
	for _, expr := range exprs {
		WalkExpr(v, expr)
	}
	return v.sorted()
}

// arrayFinder collects symbolic arrays by id.
type arrayFinder map[uint64]*Array

func (v arrayFinder) Visit(expr Expr) (Expr, ExprVisitor) {
	switch expr := expr.(type) {
	case *ExistsExpr:
		inner := arrayFinder{}
		WalkExpr(inner, expr.Body)
		for id, array := range inner {
			if !expr.Binds(id) {
				v.add(array)
			}
		}
		return expr, nil
	case *SelectExpr:
		if expr.Array.IsSymbolic() {
			v.add(expr.Array)
		}
	}
	return expr, v
}

func (v arrayFinder) add(array *Array) {
	if _, ok := v[array.ID]; !ok {
		v[array.ID] = array
	}
}

func (v arrayFinder) sorted() []*Array {
	a := make([]*Array, 0, len(v))
	for _, array := range v {
		a = append(a, array)
	}
	sort.Slice(a, func(i, j int) bool { return CompareArray(a[i], a[j]) < 0 })
	return a
}

// ExprEvaluator computes the concrete value of an expression from an
// assignment of bytes to its arrays.
type ExprEvaluator struct {
	values map[uint64][]byte
}

// NewExprEvaluator returns an evaluator where arrays[i] holds values[i].
func NewExprEvaluator(arrays []*Array, values [][]byte) *ExprEvaluator {
	assert(len(arrays) == len(values), "evaluator: array/value count mismatch: %d != %d", len(arrays), len(values))

	m := make(map[uint64][]byte, len(arrays))
	for i, array := range arrays {
		_, dup := m[array.ID]
		assert(!dup, "evaluator: duplicate array: id=%d", array.ID)
		m[array.ID] = values[i]
	}
	return &ExprEvaluator{values: m}
}

// Evaluate returns the value of expr. Returns an error if expr reads an
// unassigned array, reads out of bounds or is quantified.
func (ee *ExprEvaluator) Evaluate(expr Expr) (*ConstantExpr, error) {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr, nil

	case *BinaryExpr:
		operands, err := ee.evaluateAll(expr.LHS, expr.RHS)
		if err != nil {
			return nil, err
		}
		return NewBinaryExpr(expr.Op, operands[0], operands[1]).(*ConstantExpr), nil

	case *CastExpr:
		src, err := ee.Evaluate(expr.Src)
		if err != nil {
			return nil, err
		}
		return NewCastExpr(src, expr.Width, expr.Signed).(*ConstantExpr), nil

	case *ConcatExpr:
		operands, err := ee.evaluateAll(expr.MSB, expr.LSB)
		if err != nil {
			return nil, err
		}
		return operands[0].concat(operands[1]), nil

	case *ExtractExpr:
		src, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return src.extract(expr.Offset, expr.Width), nil

	case *SelectExpr:
		return ee.evaluateSelect(expr)

	case *ExistsExpr:
		return nil, fmt.Errorf("cannot evaluate quantified expression: %s", expr)

	default:
		return nil, fmt.Errorf("invalid expression type: %T", expr)
	}
}

func (ee *ExprEvaluator) evaluateAll(exprs ...Expr) ([]*ConstantExpr, error) {
	a := make([]*ConstantExpr, len(exprs))
	for i, expr := range exprs {
		c, err := ee.Evaluate(expr)
		if err != nil {
			return nil, err
		}
		a[i] = c
	}
	return a, nil
}

// evaluateSelect returns the newest update at the index, falling back to
// the assigned initial contents of the array.
func (ee *ExprEvaluator) evaluateSelect(expr *SelectExpr) (*ConstantExpr, error) {
	index, err := ee.Evaluate(expr.Index)
	if err != nil {
		return nil, err
	}

	for upd := expr.Array.Updates; upd != nil; upd = upd.Next {
		if updIndex, err := ee.Evaluate(upd.Index); err != nil {
			return nil, err
		} else if updIndex.Value == index.Value {
			return ee.Evaluate(upd.Value)
		}
	}

	initial, ok := ee.values[expr.Array.ID]
	if !ok {
		return nil, fmt.Errorf("array not bound: id=%d", expr.Array.ID)
	} else if index.Value >= uint64(len(initial)) {
		return nil, fmt.Errorf("select index out of bounds: %d >= %d", index.Value, len(initial))
	}
	return NewConstantExpr(uint64(initial[index.Value]), Width8), nil
}
