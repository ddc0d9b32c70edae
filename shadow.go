package itree

import (
	"fmt"
	"sort"
)

// ShadowArrayBase is the first array id assigned to shadow arrays. Ids below
// the base belong to the executor's address space.
const ShadowArrayBase = uint64(1) << 48

// ShadowContext renames symbolic arrays into shadow arrays so that formulas
// stored in the subsumption table use variables of their own. An array is
// always renamed to the same shadow array for the lifetime of the context.
type ShadowContext struct {
	nextID  uint64
	shadows map[uint64]*Array // source id to shadow root
	sources map[uint64]uint64 // shadow id to source id
}

// NewShadowContext returns a new instance of ShadowContext.
func NewShadowContext() *ShadowContext {
	return &ShadowContext{
		nextID:  ShadowArrayBase,
		shadows: make(map[uint64]*Array),
		sources: make(map[uint64]uint64),
	}
}

// Shadow returns the shadow root array for array, creating it on first use.
// Shadow arrays are their own shadows.
func (c *ShadowContext) Shadow(array *Array) *Array {
	if src, ok := c.sources[array.ID]; ok {
		return c.shadows[src]
	} else if shadow, ok := c.shadows[array.ID]; ok {
		return shadow
	}

	shadow := NewArray(c.nextID, array.Size)
	c.nextID++
	c.shadows[array.ID] = shadow
	c.sources[shadow.ID] = array.ID
	return shadow
}

// IsShadow returns true if array was created by the context.
func (c *ShadowContext) IsShadow(array *Array) bool {
	_, ok := c.sources[array.ID]
	return ok
}

// Source returns the id of the array that shadow was created for.
func (c *ShadowContext) Source(shadow *Array) (uint64, bool) {
	id, ok := c.sources[shadow.ID]
	return id, ok
}

// Len returns the number of shadowed arrays.
func (c *ShadowContext) Len() int {
	return len(c.shadows)
}

// Rewrite returns a copy of expr with every array replaced by its shadow,
// along with the shadow root arrays that were used, sorted by id.
// The input expression is not modified.
func (c *ShadowContext) Rewrite(expr Expr) (Expr, []*Array) {
	r := &shadowRewriter{ctx: c, used: make(map[uint64]*Array)}
	other := r.rewrite(expr)
	return other, r.arrays()
}

type shadowRewriter struct {
	ctx  *ShadowContext
	used map[uint64]*Array
}

func (r *shadowRewriter) arrays() []*Array {
	a := make([]*Array, 0, len(r.used))
	for _, array := range r.used {
		a = append(a, array)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
	return a
}

func (r *shadowRewriter) rewrite(expr Expr) Expr {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr
	case *SelectExpr:
		return &SelectExpr{Array: r.array(expr.Array), Index: r.rewrite(expr.Index)}
	case *ConcatExpr:
		return &ConcatExpr{MSB: r.rewrite(expr.MSB), LSB: r.rewrite(expr.LSB)}
	case *ExtractExpr:
		return &ExtractExpr{Expr: r.rewrite(expr.Expr), Offset: expr.Offset, Width: expr.Width}
	case *CastExpr:
		return &CastExpr{Src: r.rewrite(expr.Src), Width: expr.Width, Signed: expr.Signed}
	case *BinaryExpr:
		return &BinaryExpr{Op: expr.Op, LHS: r.rewrite(expr.LHS), RHS: r.rewrite(expr.RHS)}
	default:
		panic(fmt.Sprintf("assert: shadow: unhandled expression type: %T", expr))
	}
}

// array returns the shadow of a, including a rewritten update chain.
func (r *shadowRewriter) array(a *Array) *Array {
	root := r.ctx.Shadow(a)
	r.used[root.ID] = root
	if a.Updates == nil {
		return root
	}
	return &Array{ID: root.ID, Size: a.Size, Updates: r.updates(a.Updates)}
}

func (r *shadowRewriter) updates(upd *ArrayUpdate) *ArrayUpdate {
	if upd == nil {
		return nil
	}
	return &ArrayUpdate{
		Index: r.rewrite(upd.Index),
		Value: r.rewrite(upd.Value),
		Next:  r.updates(upd.Next),
	}
}
