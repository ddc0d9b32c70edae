package branch

import "github.com/benbjohnson/itree"

// Sign returns 1 if x is positive and -1 otherwise. The second branch does
// not depend on the first so its paths are explored only once.
func Sign(x, y int) int {
	n := -1
	if x > 0 {
		n = 1
	}
	if y > 0 {
		return n
	}
	return n
}

// Check fails when x is exactly 42.
func Check(x int) {
	if x == 42 {
		itree.Assert(false)
	}
}
