package itree

import (
	"fmt"
)

// ConstantExpr is a concrete bit-vector of up to 64 bits. Value never has
// bits set above Width.
type ConstantExpr struct {
	Value uint64
	Width uint
}

// NewConstantExpr returns value truncated to width bits.
func NewConstantExpr(value uint64, width uint) *ConstantExpr {
	assert(width <= Width64, "constant: width too large: %d", width)
	return &ConstantExpr{Value: value & bitmask(width), Width: width}
}

// NewConstantExpr64 returns a 64-bit constant.
func NewConstantExpr64(value uint64) *ConstantExpr {
	return NewConstantExpr(value, Width64)
}

// NewBoolConstantExpr returns the boolean constant for value.
func NewBoolConstantExpr(value bool) *ConstantExpr {
	if value {
		return &ConstantExpr{Value: 1, Width: WidthBool}
	}
	return &ConstantExpr{Value: 0, Width: WidthBool}
}

func (e *ConstantExpr) String() string {
	return fmt.Sprintf("(const %d %d)", e.Value, e.Width)
}

// IsTrue returns true if e is the boolean true.
func (e *ConstantExpr) IsTrue() bool { return e.Width == WidthBool && e.Value != 0 }

// IsFalse returns true if e is the boolean false.
func (e *ConstantExpr) IsFalse() bool { return e.Width == WidthBool && e.Value == 0 }

// IsAllOnes returns true if every bit of e is set.
func (e *ConstantExpr) IsAllOnes() bool { return e.Value == bitmask(e.Width) }

// Int64 returns the value of e read as a two's complement integer.
func (e *ConstantExpr) Int64() int64 {
	if e.Width == 0 || e.Width >= 64 {
		return int64(e.Value)
	}
	shift := 64 - e.Width
	return int64(e.Value<<shift) >> shift
}

// fold evaluates op on two constants of equal width. Division by zero
// panics, matching the runtime behavior of the analyzed program.
func (e *ConstantExpr) fold(op BinaryOp, other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "%s: width mismatch: %d != %d", op, e.Width, other.Width)

	x, y := e.Value, other.Value
	sx, sy := e.Int64(), other.Int64()
	var v uint64
	switch op {
	case ADD:
		v = x + y
	case SUB:
		v = x - y
	case MUL:
		v = x * y
	case UDIV:
		v = x / y
	case SDIV:
		v = uint64(sx / sy)
	case UREM:
		v = x % y
	case SREM:
		v = uint64(sx % sy)
	case AND:
		v = x & y
	case OR:
		v = x | y
	case XOR:
		v = x ^ y
	case SHL:
		v = x << y
	case LSHR:
		v = x >> y
	case ASHR:
		v = uint64(sx >> y)
	case EQ:
		return NewBoolConstantExpr(x == y)
	case ULT:
		return NewBoolConstantExpr(x < y)
	case ULE:
		return NewBoolConstantExpr(x <= y)
	case SLT:
		return NewBoolConstantExpr(sx < sy)
	case SLE:
		return NewBoolConstantExpr(sx <= sy)
	default:
		panic(fmt.Sprintf("assert: cannot fold constant operator: %s", op))
	}
	return NewConstantExpr(v, e.Width)
}

// zext resizes e to width, truncating or padding with zeros.
func (e *ConstantExpr) zext(width uint) *ConstantExpr {
	if e.Width == width {
		return e
	}
	return NewConstantExpr(e.Value, width)
}

// sext resizes e to width, truncating or copying the sign bit.
func (e *ConstantExpr) sext(width uint) *ConstantExpr {
	if e.Width == width {
		return e
	}
	return NewConstantExpr(uint64(e.Int64()), width)
}

func (e *ConstantExpr) extract(offset, width uint) *ConstantExpr {
	return NewConstantExpr(e.Value>>offset, width)
}

func (e *ConstantExpr) concat(lsb *ConstantExpr) *ConstantExpr {
	return NewConstantExpr(e.Value<<lsb.Width|lsb.Value, e.Width+lsb.Width)
}

// bitmask returns a value with the low width bits set.
func bitmask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<width - 1
}
