package main

import (
	"github.com/benbjohnson/itree"
)

type account struct {
	flags   uint8
	balance int
	limit   int
	id      int32
}

// overdrawn compares fields of mixed widths, one of them symbolic.
func overdrawn() {
	var a account
	a.flags = 1
	a.balance = itree.Int()
	a.limit = 100
	a.id = 7

	if a.balance-int(a.flags) == a.limit {
		return
	}
	return
}

type window struct {
	lo, hi int
	tag    int8
}

// bounded never fails. The tag written on one path is never read.
func bounded(x, y int) {
	var w window
	w.lo = 0
	w.hi = 10
	if y > 0 {
		w.tag = 1
	}
	if x > w.hi {
		if x < w.lo {
			itree.Assert(false)
		}
	}
}
