package itree

import (
	"cmp"
	"fmt"
)

// Array is a byte-addressed memory object. Its contents are the initial
// bytes, symbolic unless overwritten, followed by the Updates chain with
// the newest write first.
type Array struct {
	ID      uint64
	Size    uint // in bytes
	Updates *ArrayUpdate
}

// NewArray returns a fully symbolic array of size bytes.
func NewArray(id uint64, size uint) *Array {
	return &Array{ID: id, Size: size}
}

func (a *Array) String() string {
	if a.ID == 0 {
		return fmt.Sprintf("(array %d)", a.Size)
	}
	return fmt.Sprintf("(array #%d %d)", a.ID, a.Size)
}

// Clone returns a shallow copy. Update chains are shared and never
// modified in place.
func (a *Array) Clone() *Array {
	other := *a
	return &other
}

// zero overwrites every byte with a concrete zero.
func (a *Array) zero() {
	assert(a.Updates == nil, "array: zero-initialize with existing updates: id=%d", a.ID)
	zero := NewConstantExpr(0, Width8)
	for i := uint64(0); i < uint64(a.Size); i++ {
		a.storeByte(NewConstantExpr64(i), zero)
	}
}

// byteOffsets returns the offset from the start of a value of each of its
// bytes, least significant byte first.
func byteOffsets(width uint, littleEndian bool) []uint64 {
	n := uint64(width) / 8
	offsets := make([]uint64, n)
	for i := range offsets {
		offsets[i] = uint64(i)
		if !littleEndian {
			offsets[i] = n - 1 - uint64(i)
		}
	}
	return offsets
}

// Select reads a width-bit value at offset. Booleans occupy the low bit of
// a single byte.
func (a *Array) Select(offset Expr, width uint, littleEndian bool) Expr {
	assert(width > 0, "select: zero width")
	offset = NewCastExpr(offset, Width64, false)

	if width == WidthBool {
		return NewExtractExpr(a.selectByte(offset), 0, WidthBool)
	}

	var value Expr
	for _, off := range byteOffsets(width, littleEndian) {
		b := a.selectByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(off)))
		if value == nil {
			value = b
		} else {
			value = NewConcatExpr(b, value)
		}
	}
	return value
}

// selectByte returns the byte at index. Updates are searched newest first
// while their index compares to a constant; the first undecidable update
// ends the search with a symbolic read.
func (a *Array) selectByte(index Expr) Expr {
	assert(ExprWidth(index) == Width64, "select: index width: %d", ExprWidth(index))
	for upd := a.Updates; upd != nil; upd = upd.Next {
		eq, ok := NewBinaryExpr(EQ, index, upd.Index).(*ConstantExpr)
		if !ok {
			break
		} else if eq.IsTrue() {
			return upd.Value
		}
	}
	return NewSelectExpr(a, index)
}

// Store returns a copy of a with value written at offset.
func (a *Array) Store(offset, value Expr, littleEndian bool) *Array {
	other := a.Clone()
	offset = NewCastExpr(offset, Width64, false)

	width := ExprWidth(value)
	assert(width > 0, "store: zero width")
	if width == WidthBool {
		other.storeByte(offset, value)
		return other
	}

	for i, off := range byteOffsets(width, littleEndian) {
		b := NewExtractExpr(value, uint(i)*8, Width8)
		other.storeByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(off)), b)
	}
	return other
}

// storeByte pushes a write onto the update chain. A concrete write drops
// the older write to the same index from the concrete prefix of the chain.
func (a *Array) storeByte(index, value Expr) {
	assert(ExprWidth(index) == Width64, "store: index width: %d", ExprWidth(index))

	next := a.Updates
	if c, ok := index.(*ConstantExpr); ok {
		assert(c.Value < uint64(a.Size), "store: index out of bounds: %d >= %d", c.Value, a.Size)
		next = dropConcreteWrite(next, c.Value)
	}
	a.Updates = NewArrayUpdate(index, value, next)
}

// dropConcreteWrite returns upd without the write at index. Only the prefix
// of concrete indices is searched since a symbolic index may alias any
// byte. Chains are shared between clones so the prefix is copied rather
// than relinked.
func dropConcreteWrite(upd *ArrayUpdate, index uint64) *ArrayUpdate {
	if upd == nil {
		return nil
	}
	c, ok := upd.Index.(*ConstantExpr)
	if !ok {
		return upd
	} else if c.Value == index {
		return upd.Next
	}

	next := dropConcreteWrite(upd.Next, index)
	if next == upd.Next {
		return upd
	}
	return &ArrayUpdate{Index: upd.Index, Value: upd.Value, Next: next}
}

// IsSymbolic returns true unless every byte has a concrete write.
func (a *Array) IsSymbolic() bool {
	concrete := make([]bool, a.Size)
	for upd := a.Updates; upd != nil; upd = upd.Next {
		index, ok := upd.Index.(*ConstantExpr)
		if !ok {
			return true
		} else if IsConstantExpr(upd.Value) {
			concrete[index.Value] = true
		}
	}
	for _, ok := range concrete {
		if !ok {
			return true
		}
	}
	return false
}

// CompareArray orders arrays by id, size and then update chain. Nil sorts
// first.
func CompareArray(a, b *Array) int {
	switch {
	case a == nil || b == nil:
		return cmp.Compare(boolInt(a != nil), boolInt(b != nil))
	case a.ID != b.ID:
		return cmp.Compare(a.ID, b.ID)
	case a.Size != b.Size:
		return cmp.Compare(a.Size, b.Size)
	}
	return CompareArrayUpdate(a.Updates, b.Updates)
}

// ArrayUpdate is a single byte write in an update chain.
type ArrayUpdate struct {
	Index Expr // 64-bit byte index
	Value Expr // 8-bit value
	Next  *ArrayUpdate
}

// NewArrayUpdate returns a write of value at index, prepended to next.
// Index and value are resized to 64 and 8 bits.
func NewArrayUpdate(index, value Expr, next *ArrayUpdate) *ArrayUpdate {
	return &ArrayUpdate{
		Index: NewCastExpr(index, Width64, false),
		Value: NewCastExpr(value, Width8, false),
		Next:  next,
	}
}

// CompareArrayUpdate orders update chains element-wise. A shorter chain
// sorts first when it is a prefix of the other.
func CompareArrayUpdate(a, b *ArrayUpdate) int {
	for ; a != nil && b != nil; a, b = a.Next, b.Next {
		if c := CompareExpr(a.Index, b.Index); c != 0 {
			return c
		} else if c := CompareExpr(a.Value, b.Value); c != 0 {
			return c
		}
	}
	return cmp.Compare(boolInt(a != nil), boolInt(b != nil))
}
