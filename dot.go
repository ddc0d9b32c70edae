package itree

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes node records as a Graphviz digraph. Subsumed nodes are
// dashed and nodes still in the tree are bold.
func WriteDOT(w io.Writer, records []*NodeRecord) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph itree {")
	fmt.Fprintln(bw, "\tnode [shape=box, fontname=monospace];")

	for _, r := range records {
		label := fmt.Sprintf("#%d pp=%d", r.ID, r.Location)
		if r.Interpolant != "" {
			label += "\\n" + dotEscape(r.Interpolant)
		}

		var style string
		switch {
		case r.Subsumed:
			style = ", style=dashed"
		case !r.Removed:
			style = ", style=bold"
		}
		fmt.Fprintf(bw, "\tn%d [label=\"%s\"%s];\n", r.ID, label, style)
	}

	for _, r := range records {
		if r.Parent != 0 {
			fmt.Fprintf(bw, "\tn%d -> n%d;\n", r.Parent, r.ID)
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// WriteText writes node records as an indented tree, children in order of
// creation.
func WriteText(w io.Writer, records []*NodeRecord) error {
	children := make(map[int][]*NodeRecord)
	var roots []*NodeRecord
	for _, r := range records {
		if r.Parent == 0 {
			roots = append(roots, r)
		} else {
			children[r.Parent] = append(children[r.Parent], r)
		}
	}

	bw := bufio.NewWriter(w)
	var walk func(r *NodeRecord, prefix string, last bool, root bool)
	walk = func(r *NodeRecord, prefix string, last bool, root bool) {
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		if root {
			branch, indent = "", ""
		}

		fmt.Fprintf(bw, "%s%s#%d pp=%d", prefix, branch, r.ID, r.Location)
		switch {
		case r.Subsumed:
			fmt.Fprint(bw, " (subsumed)")
		case !r.Removed:
			fmt.Fprint(bw, " (live)")
		}
		if r.Interpolant != "" {
			fmt.Fprintf(bw, " %s", r.Interpolant)
		}
		fmt.Fprintln(bw)

		a := children[r.ID]
		for i, child := range a {
			walk(child, prefix+indent, i == len(a)-1, false)
		}
	}
	for _, r := range roots {
		walk(r, "", true, true)
	}
	return bw.Flush()
}
