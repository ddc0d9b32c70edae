package itree

import (
	"github.com/benbjohnson/immutable"
)

// SimplifyExistsExpr eliminates the bound arrays of an existential formula
// whose body is a conjunction of linear inequalities using Fourier-Motzkin
// elimination. Conjuncts which do not mention a bound array are carried over
// unchanged. Returns expr unchanged if any bound array cannot be eliminated
// exactly.
//
// Terms are interpreted as integers. Wrap-around of the underlying bitvectors
// is not modeled.
func SimplifyExistsExpr(expr Expr) Expr {
	e, ok := expr.(*ExistsExpr)
	if !ok {
		return expr
	}

	var system []linearForm
	var rest []Expr
	for _, c := range conjuncts(e.Body) {
		if forms, ok := inequalities(c); ok {
			system = append(system, forms...)
			continue
		}

		// Opaque conjuncts may only constrain free variables.
		if mentionsAny(c, e.Arrays) {
			return expr
		}
		rest = append(rest, c)
	}

	for _, x := range e.Arrays {
		if system, ok = eliminate(system, x); !ok {
			return expr
		}
	}

	var result Expr = NewBoolConstantExpr(true)
	for _, f := range system {
		result = NewBinaryExpr(AND, result, f.expr())
	}
	for _, c := range rest {
		result = NewBinaryExpr(AND, result, c)
	}
	return result
}

// linearForm represents the inequality sum(coefficient*term) + constant <= 0.
type linearForm struct {
	terms    *immutable.SortedMap // Expr -> int64
	constant int64
	width    uint
	strict   bool // derived from a strict comparison
}

func newLinearForm(width uint) linearForm {
	return linearForm{terms: immutable.NewSortedMap(&exprComparer{}), width: width}
}

// coefficient returns the coefficient of term, or zero.
func (f linearForm) coefficient(term Expr) int64 {
	if v, ok := f.terms.Get(term); ok {
		return v.(int64)
	}
	return 0
}

// add returns f + scale*other.
func (f linearForm) add(other linearForm, scale int64) linearForm {
	terms := f.terms
	itr := other.terms.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		c := v.(int64)*scale + f.coefficient(k.(Expr))
		if c == 0 {
			terms = terms.Delete(k)
		} else {
			terms = terms.Set(k, c)
		}
	}
	return linearForm{terms: terms, constant: f.constant + scale*other.constant, width: f.width, strict: f.strict || other.strict}
}

// divide returns f divided by d if every term coefficient is divisible by d.
// The constant is rounded up which keeps the integer solutions unchanged.
func (f linearForm) divide(d int64) (linearForm, bool) {
	if d == 1 {
		return f, true
	}

	terms := f.terms
	itr := f.terms.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		c := v.(int64)
		if c%d != 0 {
			return f, false
		}
		terms = terms.Set(k, c/d)
	}
	return linearForm{terms: terms, constant: ceilDiv(f.constant, d), width: f.width, strict: f.strict}, true
}

// expr returns the inequality as a boolean expression.
func (f linearForm) expr() Expr {
	var lhs, rhs Expr
	itr := f.terms.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		term, c := k.(Expr), v.(int64)
		if c > 0 {
			lhs = addTerm(lhs, term, c, f.width)
		} else {
			rhs = addTerm(rhs, term, -c, f.width)
		}
	}

	if lhs == nil && rhs == nil {
		return NewBoolConstantExpr(f.constant <= 0)
	}

	if lhs == nil {
		lhs = NewConstantExpr(0, f.width)
	}
	if rhs == nil {
		rhs = NewConstantExpr(uint64(-f.constant), f.width)
	} else if f.constant != 0 {
		rhs = NewBinaryExpr(ADD, NewConstantExpr(uint64(-f.constant), f.width), rhs)
	}
	return NewBinaryExpr(SLE, lhs, rhs)
}

func addTerm(sum, term Expr, c int64, width uint) Expr {
	if c != 1 {
		term = NewBinaryExpr(MUL, NewConstantExpr(uint64(c), width), term)
	}
	if sum == nil {
		return term
	}
	return NewBinaryExpr(ADD, sum, term)
}

// linear parses an arithmetic expression into a linear form.
func linear(expr Expr) linearForm {
	f := newLinearForm(ExprWidth(expr))
	switch expr := expr.(type) {
	case *ConstantExpr:
		f.constant = expr.Int64()
		return f
	case *BinaryExpr:
		switch expr.Op {
		case ADD:
			return linear(expr.LHS).add(linear(expr.RHS), 1)
		case SUB:
			return linear(expr.LHS).add(linear(expr.RHS), -1)
		case MUL:
			if c, ok := expr.LHS.(*ConstantExpr); ok {
				return f.add(linear(expr.RHS), c.Int64())
			} else if c, ok := expr.RHS.(*ConstantExpr); ok {
				return f.add(linear(expr.LHS), c.Int64())
			}
		}
	}
	f.terms = f.terms.Set(expr, int64(1))
	return f
}

// inequalities converts a comparison into linear forms. Returns false if the
// expression is not a signed comparison or an equality of integers.
func inequalities(expr Expr) ([]linearForm, bool) {
	e, ok := expr.(*BinaryExpr)
	if !ok {
		return nil, false
	}

	switch e.Op {
	case SLE: // a - b <= 0
		return []linearForm{difference(e.LHS, e.RHS, 0, false)}, true
	case SLT: // a - b + 1 <= 0
		return []linearForm{difference(e.LHS, e.RHS, 1, true)}, true
	case EQ:
		if ExprWidth(e.LHS) != WidthBool {
			return []linearForm{difference(e.LHS, e.RHS, 0, false), difference(e.RHS, e.LHS, 0, false)}, true
		}

		// Negated comparisons take the form (false == cmp).
		if !IsConstantFalse(e.LHS) {
			return nil, false
		}
		cmp, ok := e.RHS.(*BinaryExpr)
		if !ok {
			return nil, false
		}
		switch cmp.Op {
		case SLE: // a > b
			return []linearForm{difference(cmp.RHS, cmp.LHS, 1, true)}, true
		case SLT: // a >= b
			return []linearForm{difference(cmp.RHS, cmp.LHS, 0, false)}, true
		}
	}
	return nil, false
}

func difference(a, b Expr, constant int64, strict bool) linearForm {
	f := linear(a).add(linear(b), -1)
	f.constant += constant
	f.strict = strict
	return f
}

// eliminate removes the variable read from x from the system. The variable
// must appear as a single term which reads x directly.
func eliminate(system []linearForm, x *Array) ([]linearForm, bool) {
	var variable Expr
	for _, f := range system {
		itr := f.terms.Iterator()
		for !itr.Done() {
			k, _ := itr.Next()
			term := k.(Expr)
			if !mentionsAny(term, []*Array{x}) {
				continue
			} else if !isVariableRead(term, x) {
				return nil, false
			} else if variable != nil && CompareExpr(variable, term) != 0 {
				return nil, false
			}
			variable = term
		}
	}
	if variable == nil {
		return system, true
	}

	var upper, lower, other []linearForm
	for _, f := range system {
		c := f.coefficient(variable)
		if c == 0 {
			other = append(other, f)
			continue
		}

		abs := c
		if abs < 0 {
			abs = -abs
		}
		normalized, ok := f.divide(abs)
		if !ok {
			return nil, false
		}

		if c > 0 {
			upper = append(upper, normalized)
		} else {
			lower = append(lower, normalized)
		}
	}

	// A variable bounded on one side only can take the extreme value of its
	// width, which satisfies a non-strict bound on the variable alone. Any
	// other one-sided bound may be unsatisfiable for some free values.
	if len(upper) == 0 || len(lower) == 0 {
		for _, f := range append(upper, lower...) {
			if c := f.coefficient(variable); f.strict || (c != 1 && c != -1) {
				return nil, false
			}
		}
		return other, true
	}

	// x + a <= 0 and -x + b <= 0 combine into a + b <= 0.
	for _, u := range upper {
		for _, l := range lower {
			other = append(other, u.add(l, 1))
		}
	}
	return other, true
}

// isVariableRead returns true if expr reads concrete offsets of x.
func isVariableRead(expr Expr, x *Array) bool {
	switch expr := expr.(type) {
	case *SelectExpr:
		return expr.Array.ID == x.ID && expr.Array.Updates == nil && IsConstantExpr(expr.Index)
	case *ConcatExpr:
		return isVariableRead(expr.MSB, x) && isVariableRead(expr.LSB, x)
	default:
		return false
	}
}

// mentionsAny returns true if expr reads any of the arrays.
func mentionsAny(expr Expr, arrays []*Array) bool {
	v := &mentionVisitor{arrays: arrays}
	WalkExpr(v, expr)
	return v.found
}

type mentionVisitor struct {
	arrays []*Array
	found  bool
}

func (v *mentionVisitor) Visit(expr Expr) (Expr, ExprVisitor) {
	if v.found {
		return expr, nil
	}
	if expr, ok := expr.(*SelectExpr); ok {
		for _, a := range v.arrays {
			if expr.Array.ID == a.ID {
				v.found = true
				return expr, nil
			}
		}
	}
	return expr, v
}

// ceilDiv returns a/b rounded toward positive infinity. b must be positive.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

// exprComparer orders expressions. Implements immutable.Comparer.
type exprComparer struct{}

// Compare returns -1, 0 or 1 using CompareExpr. Panic if a or b is not an Expr.
func (c *exprComparer) Compare(a, b interface{}) int {
	return CompareExpr(a.(Expr), b.(Expr))
}
