package main

import (
	"github.com/benbjohnson/itree"
)

// lastByte fails when the symbolic byte behind a re-slice is 7.
func lastByte() {
	b := make([]byte, 2, 4)
	b[0] = 1
	b[1] = itree.Byte()

	t := b[1:]
	if len(t) != 1 || cap(t) != 3 {
		itree.Assert(false)
	}
	if t[0] == 7 {
		itree.Assert(false)
	}
}

func size() int { return 3 }

// grow makes a slice whose length is only known once size returns.
func grow() {
	b := make([]int, size())
	b[2] = itree.Int()
	if b[2]+b[0] > 100 {
		itree.Assert(false)
	}
}

// overrun writes past the end of a slice of an array.
func overrun(i int) {
	var a [4]int
	s := a[1:3]
	s[2] = i
}
