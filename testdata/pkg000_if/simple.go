package main

import (
	"github.com/benbjohnson/itree"
)

func simple() {
	x := itree.Int()
	if x == 0xAABB {
		return
	}
}
