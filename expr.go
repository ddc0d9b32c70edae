package itree

import (
	"bytes"
	"fmt"
	"sort"
)

// Expr represents a symbolic expression over bit-vectors and arrays.
type Expr interface {
	Binding
	expr()
}

func (*BinaryExpr) expr()   {}
func (*CastExpr) expr()     {}
func (*ConcatExpr) expr()   {}
func (*ConstantExpr) expr() {}
func (*ExistsExpr) expr()   {}
func (*ExtractExpr) expr()  {}
func (*SelectExpr) expr()   {}

// ExprWidth returns the bit width of the expression.
func ExprWidth(expr Expr) uint {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Width
	case *SelectExpr:
		return Width8
	case *ConcatExpr:
		return ExprWidth(expr.MSB) + ExprWidth(expr.LSB)
	case *ExtractExpr:
		return expr.Width
	case *CastExpr:
		return expr.Width
	case *BinaryExpr:
		if expr.Op.IsCompare() {
			return WidthBool
		}
		return ExprWidth(expr.LHS)
	case *ExistsExpr:
		return WidthBool
	default:
		panic(fmt.Sprintf("assert: width of unknown expression: %T", expr))
	}
}

// IsConstantExpr returns true if expr is an instance of ConstantExpr.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// IsConstantTrue returns true if expr is the boolean constant true.
func IsConstantTrue(expr Expr) bool {
	c, ok := expr.(*ConstantExpr)
	return ok && c.IsTrue()
}

// IsConstantFalse returns true if expr is the boolean constant false.
func IsConstantFalse(expr Expr) bool {
	c, ok := expr.(*ConstantExpr)
	return ok && c.IsFalse()
}

// NewIsZeroExpr returns an expression that is true when other equals zero.
// For a boolean operand this is its negation.
func NewIsZeroExpr(other Expr) Expr {
	return NewBinaryExpr(EQ, other, NewConstantExpr(0, ExprWidth(other)))
}

// NewAndExpr returns the conjunction of boolean expressions, or true if
// exprs is empty.
func NewAndExpr(exprs ...Expr) Expr {
	var ret Expr = NewBoolConstantExpr(true)
	for _, expr := range exprs {
		ret = NewBinaryExpr(AND, ret, expr)
	}
	return ret
}

// NewOrExpr returns the disjunction of boolean expressions, or false if
// exprs is empty.
func NewOrExpr(exprs ...Expr) Expr {
	var ret Expr = NewBoolConstantExpr(false)
	for _, expr := range exprs {
		ret = NewBinaryExpr(OR, ret, expr)
	}
	return ret
}

// SelectExpr reads one byte of an array at a symbolic index.
type SelectExpr struct {
	Array *Array
	Index Expr
}

// NewSelectExpr returns a byte read of a at index.
func NewSelectExpr(a *Array, index Expr) Expr {
	return &SelectExpr{Array: a, Index: index}
}

func (e *SelectExpr) String() string {
	return fmt.Sprintf("(select %s %s)", e.Array, e.Index)
}

// ConcatExpr joins two expressions. MSB occupies the high bits.
type ConcatExpr struct {
	MSB Expr
	LSB Expr
}

// NewConcatExpr returns the concatenation of msb and lsb. Constants are
// folded and adjacent extractions of the same expression are merged.
func NewConcatExpr(msb, lsb Expr) Expr {
	switch msb := msb.(type) {
	case *ConstantExpr:
		if lsb, ok := lsb.(*ConstantExpr); ok {
			return msb.concat(lsb)
		}
	case *ExtractExpr:
		if lsb, ok := lsb.(*ExtractExpr); ok && msb.Expr == lsb.Expr && lsb.Offset+lsb.Width == msb.Offset {
			return NewExtractExpr(msb.Expr, lsb.Offset, lsb.Width+msb.Width)
		}
	}
	return &ConcatExpr{MSB: msb, LSB: lsb}
}

func (e *ConcatExpr) String() string {
	return fmt.Sprintf("(concat %s %s)", e.MSB, e.LSB)
}

// ExtractExpr selects Width bits of Expr starting at bit Offset.
type ExtractExpr struct {
	Expr   Expr
	Offset uint
	Width  uint
}

// NewExtractExpr returns width bits of expr starting at offset. Extraction
// is pushed through concatenations so that only leaf values are sliced.
func NewExtractExpr(expr Expr, offset, width uint) Expr {
	total := ExprWidth(expr)
	assert(width > 0, "extract: zero width")
	assert(offset+width <= total, "extract: out of bounds: %d+%d > %d", offset, width, total)

	if width == total {
		return expr
	}

	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.extract(offset, width)

	case *ConcatExpr:
		split := ExprWidth(expr.LSB)
		switch {
		case offset >= split:
			return NewExtractExpr(expr.MSB, offset-split, width)
		case offset+width <= split:
			return NewExtractExpr(expr.LSB, offset, width)
		}
		return NewConcatExpr(
			NewExtractExpr(expr.MSB, 0, offset+width-split),
			NewExtractExpr(expr.LSB, offset, split-offset),
		)
	}
	return &ExtractExpr{Expr: expr, Offset: offset, Width: width}
}

func (e *ExtractExpr) String() string {
	return fmt.Sprintf("(extract %s %d %d)", e.Expr, e.Offset, e.Width)
}

// CastExpr widens Src to Width bits with sign or zero extension.
type CastExpr struct {
	Src    Expr
	Width  uint
	Signed bool
}

// NewCastExpr returns src resized to width. Narrowing truncates.
func NewCastExpr(src Expr, width uint, signed bool) Expr {
	switch srcWidth := ExprWidth(src); {
	case width == srcWidth:
		return src
	case width < srcWidth:
		return NewExtractExpr(src, 0, width)
	}

	if c, ok := src.(*ConstantExpr); ok {
		if signed {
			return c.sext(width)
		}
		return c.zext(width)
	}
	return &CastExpr{Src: src, Width: width, Signed: signed}
}

func (e *CastExpr) String() string {
	if e.Signed {
		return fmt.Sprintf("(sext %s %d)", e.Src, e.Width)
	}
	return fmt.Sprintf("(zext %s %d)", e.Src, e.Width)
}

// ExistsExpr is the existential closure of Body over every byte of Arrays.
type ExistsExpr struct {
	Arrays []*Array
	Body   Expr
}

// NewExistsExpr returns body quantified over arrays. The body is returned
// unchanged when nothing is bound or it is already a constant.
func NewExistsExpr(arrays []*Array, body Expr) Expr {
	if len(arrays) == 0 || IsConstantExpr(body) {
		return body
	}
	assert(ExprWidth(body) == WidthBool, "exists: non-boolean body: width=%d", ExprWidth(body))

	bound := append([]*Array(nil), arrays...)
	sort.Slice(bound, func(i, j int) bool { return CompareArray(bound[i], bound[j]) < 0 })
	return &ExistsExpr{Arrays: bound, Body: body}
}

// Binds returns true if the array with the given id is quantified.
func (e *ExistsExpr) Binds(id uint64) bool {
	for _, a := range e.Arrays {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (e *ExistsExpr) String() string {
	var buf bytes.Buffer
	buf.WriteString("(exists [")
	for i, a := range e.Arrays {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(a.String())
	}
	fmt.Fprintf(&buf, "] %s)", e.Body)
	return buf.String()
}
