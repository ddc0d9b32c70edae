package itree_test

import (
	"bytes"
	"testing"

	"github.com/benbjohnson/itree"
)

var testRecords = []*itree.NodeRecord{
	{ID: 1, Location: 1, Removed: true},
	{ID: 2, Parent: 1, Location: 2, Removed: true, Interpolant: `(Slt x "10")`},
	{ID: 3, Parent: 1, Location: 2, Subsumed: true, Removed: true},
	{ID: 4, Parent: 2, Location: 3},
}

func TestWriteDOT(t *testing.T) {
	var buf bytes.Buffer
	if err := itree.WriteDOT(&buf, testRecords); err != nil {
		t.Fatal(err)
	}

	exp := `digraph itree {
	node [shape=box, fontname=monospace];
	n1 [label="#1 pp=1"];
	n2 [label="#2 pp=2\n(Slt x \"10\")"];
	n3 [label="#3 pp=2", style=dashed];
	n4 [label="#4 pp=3", style=bold];
	n1 -> n2;
	n1 -> n3;
	n2 -> n4;
}
`
	if got := buf.String(); got != exp {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := itree.WriteText(&buf, testRecords); err != nil {
		t.Fatal(err)
	}

	exp := "#1 pp=1\n" +
		"├── #2 pp=2 (Slt x \"10\")\n" +
		"│   └── #4 pp=3 (live)\n" +
		"└── #3 pp=2 (subsumed)\n"
	if got := buf.String(); got != exp {
		t.Fatalf("unexpected output:\n%s", got)
	}
}
