package main

import (
	"github.com/benbjohnson/itree"
)

// guard never fails. The inner branch is infeasible whichever way y goes.
func guard(x, y int) {
	if y > 0 {
		y = 1
	}
	if x > 10 {
		if x < 5 {
			itree.Assert(false)
		}
	}
}

// window fails for 5 < a < 10 when b <= 0 only.
func window(a, b int) {
	n := 10
	if b > 0 {
		n = 1
	}
	if a > 5 {
		if a < n {
			itree.Assert(false)
		}
	}
}
