package itree_test

import (
	"encoding/binary"
	"testing"

	"github.com/benbjohnson/itree"
)

func TestSimplifyExistsExpr(t *testing.T) {
	xa, ya, sa := itree.NewArray(1, 8), itree.NewArray(2, 8), itree.NewArray(itree.ShadowArrayBase, 8)
	x := xa.Select(itree.NewConstantExpr64(0), 64, true)
	y := ya.Select(itree.NewConstantExpr64(0), 64, true)
	s := sa.Select(itree.NewConstantExpr64(0), 64, true)

	t.Run("Eliminate", func(t *testing.T) {
		// exists s: x < s < 10  =>  x <= 8
		expr := itree.SimplifyExistsExpr(itree.NewExistsExpr([]*itree.Array{sa}, itree.NewAndExpr(
			itree.NewBinaryExpr(itree.SLT, x, s),
			itree.NewBinaryExpr(itree.SLT, s, itree.NewConstantExpr64(10)),
		)))
		if _, ok := expr.(*itree.ExistsExpr); ok {
			t.Fatalf("expected quantifier elimination: %s", expr)
		}

		for _, tt := range []struct {
			x   int64
			exp bool
		}{{8, true}, {9, false}, {-100, true}} {
			if got := MustEvaluateBool(t, expr, []*itree.Array{xa}, [][]byte{le64(uint64(tt.x))}); got != tt.exp {
				t.Fatalf("x=%d: got %v, expected %v", tt.x, got, tt.exp)
			}
		}
	})

	t.Run("Equality", func(t *testing.T) {
		// exists s: s == x && s < 10  =>  x <= 9
		expr := itree.SimplifyExistsExpr(itree.NewExistsExpr([]*itree.Array{sa}, itree.NewAndExpr(
			itree.NewBinaryExpr(itree.EQ, s, x),
			itree.NewBinaryExpr(itree.SLT, s, itree.NewConstantExpr64(10)),
		)))
		if _, ok := expr.(*itree.ExistsExpr); ok {
			t.Fatalf("expected quantifier elimination: %s", expr)
		} else if got := MustEvaluateBool(t, expr, []*itree.Array{xa}, [][]byte{le64(9)}); !got {
			t.Fatal("expected true for x=9")
		} else if got := MustEvaluateBool(t, expr, []*itree.Array{xa}, [][]byte{le64(10)}); got {
			t.Fatal("expected false for x=10")
		}
	})

	t.Run("OneSided", func(t *testing.T) {
		// exists s: s <= 10 holds for the minimum signed value.
		expr := itree.SimplifyExistsExpr(itree.NewExistsExpr([]*itree.Array{sa},
			itree.NewBinaryExpr(itree.SLE, s, itree.NewConstantExpr64(10)),
		))
		if !itree.IsConstantTrue(expr) {
			t.Fatalf("unexpected expr: %s", expr)
		}
	})

	t.Run("OneSidedStrict", func(t *testing.T) {
		// exists s: x < s does not hold for the maximum signed x.
		in := itree.NewExistsExpr([]*itree.Array{sa}, itree.NewBinaryExpr(itree.SLT, x, s))
		if expr := itree.SimplifyExistsExpr(in); expr != in {
			t.Fatalf("expected unchanged expr: %s", expr)
		}
	})

	t.Run("OneSidedScaled", func(t *testing.T) {
		// exists s: x <= 2*s does not hold for the maximum signed x.
		in := itree.NewExistsExpr([]*itree.Array{sa},
			itree.NewBinaryExpr(itree.SLE, x, itree.NewBinaryExpr(itree.MUL, itree.NewConstantExpr64(2), s)),
		)
		if expr := itree.SimplifyExistsExpr(in); expr != in {
			t.Fatalf("expected unchanged expr: %s", expr)
		}
	})

	t.Run("OpaqueFree", func(t *testing.T) {
		// Conjuncts without bound arrays are carried over.
		expr := itree.SimplifyExistsExpr(itree.NewExistsExpr([]*itree.Array{sa}, itree.NewAndExpr(
			itree.NewBinaryExpr(itree.SLE, s, itree.NewConstantExpr64(10)),
			itree.NewBinaryExpr(itree.ULT, y, itree.NewConstantExpr64(3)),
		)))
		if _, ok := expr.(*itree.ExistsExpr); ok {
			t.Fatalf("expected quantifier elimination: %s", expr)
		} else if got := MustEvaluateBool(t, expr, []*itree.Array{ya}, [][]byte{le64(2)}); !got {
			t.Fatal("expected true for y=2")
		} else if got := MustEvaluateBool(t, expr, []*itree.Array{ya}, [][]byte{le64(5)}); got {
			t.Fatal("expected false for y=5")
		}
	})

	t.Run("OpaqueBound", func(t *testing.T) {
		in := itree.NewExistsExpr([]*itree.Array{sa}, itree.NewAndExpr(
			itree.NewBinaryExpr(itree.SLT, x, s),
			itree.NewBinaryExpr(itree.ULT, s, itree.NewConstantExpr64(3)),
		))
		if expr := itree.SimplifyExistsExpr(in); expr != in {
			t.Fatalf("expected unchanged expr: %s", expr)
		}
	})

	t.Run("NonLinear", func(t *testing.T) {
		in := itree.NewExistsExpr([]*itree.Array{sa}, itree.NewAndExpr(
			itree.NewBinaryExpr(itree.SLT, x, s),
			itree.NewBinaryExpr(itree.SLT, itree.NewBinaryExpr(itree.MUL, s, s), itree.NewConstantExpr64(10)),
		))
		if expr := itree.SimplifyExistsExpr(in); expr != in {
			t.Fatalf("expected unchanged expr: %s", expr)
		}
	})

	t.Run("NotExists", func(t *testing.T) {
		in := itree.NewBinaryExpr(itree.SLT, x, itree.NewConstantExpr64(10))
		if expr := itree.SimplifyExistsExpr(in); expr != in {
			t.Fatalf("expected unchanged expr: %s", expr)
		}
	})
}

// MustEvaluateBool evaluates a boolean expression with the given array values.
func MustEvaluateBool(tb testing.TB, expr itree.Expr, arrays []*itree.Array, values [][]byte) bool {
	tb.Helper()
	result, err := itree.NewExprEvaluator(arrays, values).Evaluate(expr)
	if err != nil {
		tb.Fatal(err)
	}
	return result.IsTrue()
}

// le64 returns v as 8 little-endian bytes.
func le64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
