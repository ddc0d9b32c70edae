package itree

import (
	"fmt"
)

// BinaryOp is the operator of a BinaryExpr.
type BinaryOp int

// Arithmetic and bitwise operators.
const (
	ADD BinaryOp = iota + 1
	SUB
	MUL
	UDIV
	SDIV
	UREM
	SREM
	AND
	OR
	XOR
	SHL
	LSHR
	ASHR
)

// Comparison operators. NE and the greater-than forms never appear in a
// constructed BinaryExpr; NewBinaryExpr rewrites them.
const (
	EQ BinaryOp = iota + 32
	NE
	ULT
	ULE
	UGT
	UGE
	SLT
	SLE
	SGT
	SGE
)

var binaryOpNames = map[BinaryOp]string{
	ADD: "add", SUB: "sub", MUL: "mul",
	UDIV: "udiv", SDIV: "sdiv", UREM: "urem", SREM: "srem",
	AND: "and", OR: "or", XOR: "xor",
	SHL: "shl", LSHR: "lshr", ASHR: "ashr",
	EQ: "eq", NE: "ne",
	ULT: "ult", ULE: "ule", UGT: "ugt", UGE: "uge",
	SLT: "slt", SLE: "sle", SGT: "sgt", SGE: "sge",
}

func (op BinaryOp) String() string {
	if name, ok := binaryOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

// IsCompare returns true if op produces a boolean.
func (op BinaryOp) IsCompare() bool {
	return op >= EQ && op <= SGE
}

// BinaryExpr applies Op to two operands of equal width.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// NewBinaryExpr returns op applied to lhs and rhs in canonical form.
//
// Constant operands are folded. ADD, MUL, XOR and EQ keep a constant on the
// left while AND and OR keep it on the right. NE becomes a negated EQ and
// the greater-than comparisons swap their operands.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	switch op {
	case NE:
		return NewIsZeroExpr(NewBinaryExpr(EQ, lhs, rhs))
	case UGT:
		return NewBinaryExpr(ULT, rhs, lhs)
	case UGE:
		return NewBinaryExpr(ULE, rhs, lhs)
	case SGT:
		return NewBinaryExpr(SLT, rhs, lhs)
	case SGE:
		return NewBinaryExpr(SLE, rhs, lhs)
	}

	if op == SUB && CompareExpr(lhs, rhs) == 0 {
		return NewConstantExpr(0, ExprWidth(lhs))
	}
	if l, ok := lhs.(*ConstantExpr); ok {
		if r, ok := rhs.(*ConstantExpr); ok {
			return l.fold(op, r)
		}
	}
	if ExprWidth(lhs) == WidthBool {
		if expr := newBoolBinaryExpr(op, lhs, rhs); expr != nil {
			return expr
		}
	}

	switch op {
	case ADD:
		return newAddExpr(lhs, rhs)
	case SUB:
		return newSubExpr(lhs, rhs)
	case MUL:
		lhs, rhs = constantLeft(lhs, rhs)
		if c, ok := lhs.(*ConstantExpr); ok && c.Value == 1 {
			return rhs
		} else if ok && c.Value == 0 {
			return c
		}
	case XOR:
		lhs, rhs = constantLeft(lhs, rhs)
		if c, ok := lhs.(*ConstantExpr); ok && c.Value == 0 {
			return rhs
		}
	case AND:
		rhs, lhs = constantLeft(rhs, lhs)
		if c, ok := rhs.(*ConstantExpr); ok && c.IsAllOnes() {
			return lhs
		} else if ok && c.Value == 0 {
			return c
		}
	case OR:
		rhs, lhs = constantLeft(rhs, lhs)
		if c, ok := rhs.(*ConstantExpr); ok && c.IsAllOnes() {
			return c
		} else if ok && c.Value == 0 {
			return lhs
		}
	case EQ:
		return newEqExpr(lhs, rhs)
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

// newBoolBinaryExpr lowers arithmetic and ordering on booleans to logic.
// Returns nil for operators that need no lowering.
func newBoolBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	switch op {
	case ADD, SUB:
		return NewBinaryExpr(XOR, lhs, rhs)
	case MUL:
		return NewBinaryExpr(AND, lhs, rhs)
	case UDIV, SDIV, ASHR:
		return lhs
	case UREM, SREM:
		return NewBoolConstantExpr(false)
	case SHL, LSHR, SLT:
		return NewBinaryExpr(AND, lhs, NewIsZeroExpr(rhs))
	case ULT:
		return NewBinaryExpr(AND, NewIsZeroExpr(lhs), rhs)
	case ULE:
		return NewBinaryExpr(OR, NewIsZeroExpr(lhs), rhs)
	case SLE:
		return NewBinaryExpr(OR, lhs, NewIsZeroExpr(rhs))
	}
	return nil
}

// constantLeft moves a lone constant operand to the left.
func constantLeft(lhs, rhs Expr) (Expr, Expr) {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		return rhs, lhs
	}
	return lhs, rhs
}

// constantTerm splits expr of the form (c + x) or (c - x).
func constantTerm(expr Expr) (c *ConstantExpr, op BinaryOp, x Expr, ok bool) {
	b, isBinary := expr.(*BinaryExpr)
	if !isBinary || (b.Op != ADD && b.Op != SUB) {
		return nil, 0, nil, false
	}
	if c, ok = b.LHS.(*ConstantExpr); !ok {
		return nil, 0, nil, false
	}
	return c, b.Op, b.RHS, true
}

// newAddExpr gathers constants to the front of a sum.
func newAddExpr(lhs, rhs Expr) Expr {
	lhs, rhs = constantLeft(lhs, rhs)

	if c, ok := lhs.(*ConstantExpr); ok {
		if c.Value == 0 {
			return rhs
		}
		if k, op, x, ok := constantTerm(rhs); ok { // c + (k op x) => (c+k) op x
			return NewBinaryExpr(op, c.fold(ADD, k), x)
		}
	}
	if k, op, x, ok := constantTerm(lhs); ok {
		if op == ADD { // (k+x) + y => k + (x+y)
			return NewBinaryExpr(ADD, k, NewBinaryExpr(ADD, x, rhs))
		}
		return NewBinaryExpr(ADD, k, NewBinaryExpr(SUB, rhs, x)) // (k-x) + y => k + (y-x)
	}
	if k, op, x, ok := constantTerm(rhs); ok { // y + (k op x) => k + (y op x)
		return NewBinaryExpr(ADD, k, NewBinaryExpr(op, lhs, x))
	}
	return &BinaryExpr{Op: ADD, LHS: lhs, RHS: rhs}
}

// newSubExpr rewrites differences so constants lead, as in newAddExpr.
func newSubExpr(lhs, rhs Expr) Expr {
	if c, ok := rhs.(*ConstantExpr); ok { // y - c => -c + y
		return NewBinaryExpr(ADD, NewConstantExpr(0, c.Width).fold(SUB, c), lhs)
	}

	if c, ok := lhs.(*ConstantExpr); ok {
		if k, op, x, ok := constantTerm(rhs); ok {
			if op == ADD { // c - (k+x) => (c-k) - x
				return NewBinaryExpr(SUB, c.fold(SUB, k), x)
			}
			return NewBinaryExpr(ADD, c.fold(SUB, k), x) // c - (k-x) => (c-k) + x
		}
	}
	if k, op, x, ok := constantTerm(lhs); ok {
		if op == ADD { // (k+x) - y => k + (x-y)
			return NewBinaryExpr(ADD, k, NewBinaryExpr(SUB, x, rhs))
		}
		return NewBinaryExpr(SUB, k, NewBinaryExpr(ADD, x, rhs)) // (k-x) - y => k - (x+y)
	}
	if k, op, x, ok := constantTerm(rhs); ok {
		if op == ADD { // y - (k+x) => (y-x) - k
			return NewBinaryExpr(SUB, NewBinaryExpr(SUB, lhs, x), k)
		}
		return NewBinaryExpr(SUB, NewBinaryExpr(ADD, lhs, x), k) // y - (k-x) => (y+x) - k
	}
	return &BinaryExpr{Op: SUB, LHS: lhs, RHS: rhs}
}

// newEqExpr moves constants left and solves simple equations against them.
func newEqExpr(lhs, rhs Expr) Expr {
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}

	lhs, rhs = constantLeft(lhs, rhs)
	c, ok := lhs.(*ConstantExpr)
	if !ok {
		return &BinaryExpr{Op: EQ, LHS: lhs, RHS: rhs}
	}

	switch rhs := rhs.(type) {
	case *BinaryExpr:
		switch {
		case c.IsTrue() && (rhs.Op == EQ || rhs.Op == OR):
			return rhs
		case c.IsFalse() && rhs.Op == EQ && IsConstantFalse(rhs.LHS): // !!x => x
			return rhs.RHS
		case c.IsFalse() && rhs.Op == OR && ExprWidth(rhs.LHS) == WidthBool: // !(x || y) => !x && !y
			return NewBinaryExpr(AND, NewIsZeroExpr(rhs.LHS), NewIsZeroExpr(rhs.RHS))
		}
		if k, op, x, ok := constantTerm(rhs); ok {
			if op == ADD { // c == k+x => c-k == x
				return NewBinaryExpr(EQ, c.fold(SUB, k), x)
			}
			return NewBinaryExpr(EQ, k.fold(SUB, c), x) // c == k-x => k-c == x
		}

	case *CastExpr:
		// A cast can only equal c if c survives truncation and re-extension.
		narrow := c.zext(ExprWidth(rhs.Src))
		wide := narrow.zext(c.Width)
		if rhs.Signed {
			wide = narrow.sext(c.Width)
		}
		if wide.Value != c.Value {
			return NewBoolConstantExpr(false)
		}
		return NewBinaryExpr(EQ, rhs.Src, narrow)
	}
	return &BinaryExpr{Op: EQ, LHS: c, RHS: rhs}
}
