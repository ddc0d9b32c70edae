package itree_test

import (
	"testing"

	"github.com/benbjohnson/itree"
)

func TestShadowContext_Shadow(t *testing.T) {
	c := itree.NewShadowContext()
	array := itree.NewArray(1, 8)

	shadow := c.Shadow(array)
	if shadow.ID < itree.ShadowArrayBase {
		t.Fatalf("unexpected shadow id: %d", shadow.ID)
	} else if shadow.Size != array.Size {
		t.Fatalf("unexpected size: %d", shadow.Size)
	} else if other := c.Shadow(array); other != shadow {
		t.Fatal("expected same shadow")
	} else if other := c.Shadow(shadow); other != shadow {
		t.Fatal("expected shadow to be its own shadow")
	} else if !c.IsShadow(shadow) || c.IsShadow(array) {
		t.Fatal("unexpected IsShadow()")
	} else if id, ok := c.Source(shadow); !ok || id != array.ID {
		t.Fatalf("unexpected source: %d", id)
	} else if got, exp := c.Len(), 1; got != exp {
		t.Fatalf("Len()=%d, expected %d", got, exp)
	}
}

func TestShadowContext_Rewrite(t *testing.T) {
	c := itree.NewShadowContext()
	a, b := itree.NewArray(1, 8), itree.NewArray(2, 8)
	expr := itree.NewBinaryExpr(itree.SLT,
		a.Select(itree.NewConstantExpr64(0), 64, true),
		b.Select(itree.NewConstantExpr64(0), 64, true),
	)

	other, arrays := c.Rewrite(expr)
	if got, exp := len(arrays), 2; got != exp {
		t.Fatalf("len(arrays)=%d, expected %d", got, exp)
	} else if arrays[0].ID != c.Shadow(a).ID || arrays[1].ID != c.Shadow(b).ID {
		t.Fatalf("unexpected arrays: %v", arrays)
	}

	// The rewritten expression only reads shadow arrays.
	for _, array := range itree.FindArrays(other) {
		if !c.IsShadow(array) {
			t.Fatalf("unexpected array: %s", array)
		}
	}

	// The original is untouched.
	for _, array := range itree.FindArrays(expr) {
		if c.IsShadow(array) {
			t.Fatalf("unexpected shadow array: %s", array)
		}
	}

	t.Run("Constant", func(t *testing.T) {
		if other, arrays := c.Rewrite(itree.NewConstantExpr64(5)); len(arrays) != 0 {
			t.Fatalf("unexpected arrays: %v", arrays)
		} else if itree.CompareExpr(other, itree.NewConstantExpr64(5)) != 0 {
			t.Fatalf("unexpected expr: %s", other)
		}
	})

	t.Run("Updates", func(t *testing.T) {
		updated := a.Store(b.Select(itree.NewConstantExpr64(0), 64, true), itree.NewConstantExpr(1, 8), true)
		expr := updated.Select(itree.NewConstantExpr64(0), 8, true)

		_, arrays := c.Rewrite(expr)
		if got, exp := len(arrays), 2; got != exp {
			t.Fatalf("len(arrays)=%d, expected %d", got, exp)
		}
	})
}
