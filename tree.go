package itree

import (
	"log"
	"time"

	"github.com/benbjohnson/immutable"
)

// State represents an execution state attached to a node of the tree.
type State interface {
	Node() *Node
	SetNode(n *Node)

	// Identifier of the location the state is about to execute.
	ProgramPoint() uint64

	// Path constraints of the state.
	Constraints() []Expr
}

// Tree represents the interpolation tree of a symbolic execution. Each live
// state is attached to a leaf. When a subtree has been fully explored, the
// interpolants of its nodes are stored in the subsumption table.
type Tree struct {
	root    *Node
	current *Node
	info    ValueInfo
	shadow  *ShadowContext
	table   *immutable.SortedMap // program point to []*SubsumptionTableEntry
	stats   TreeStats

	history []*NodeRecord
	records map[*Node]*NodeRecord // live nodes; nil if history is off
}

// NodeRecord represents a node in the history of a tree.
type NodeRecord struct {
	ID          int
	Parent      int // zero for the root
	Location    uint64
	Subsumed    bool
	Removed     bool
	Interpolant string // stored interpolant, if any

	node *Node
}

// NewTree returns a new tree with a single root node attached to state.
func NewTree(info ValueInfo, state State) *Tree {
	t := &Tree{
		info:   info,
		shadow: NewShadowContext(),
		table:  immutable.NewSortedMap(&uint64Comparer{}),
	}
	t.root = newNode(nil, info)
	t.current = t.root
	t.stats.Nodes++
	state.SetNode(t.root)
	return t
}

// Root returns the root node. Returns nil once the whole tree is removed.
func (t *Tree) Root() *Node { return t.root }

// Current returns the node of the state being executed.
func (t *Tree) Current() *Node { return t.current }

// SetCurrent sets the node of the state being executed.
func (t *Tree) SetCurrent(n *Node) { t.current = n }

// Shadow returns the shadow context used for table entries.
func (t *Tree) Shadow() *ShadowContext { return t.shadow }

// Stats returns statistics about the tree.
func (t *Tree) Stats() TreeStats { return t.stats }

// EnableHistory starts recording every node of the tree so the tree can be
// written after nodes are removed.
func (t *Tree) EnableHistory() {
	if t.records != nil {
		return
	}
	t.records = make(map[*Node]*NodeRecord)
	if t.root != nil {
		t.record(t.root, 0)
	}
}

// History returns the records of all nodes since history was enabled.
func (t *Tree) History() []*NodeRecord {
	for _, r := range t.history {
		if r.node != nil {
			r.Location, r.Subsumed = r.node.location, r.node.subsumed
		}
	}
	return t.history
}

func (t *Tree) record(n *Node, parent int) {
	r := &NodeRecord{ID: len(t.history) + 1, Parent: parent, node: n}
	t.history = append(t.history, r)
	t.records[n] = r
}

// Split creates both children of n and attaches them to the given states.
func (t *Tree) Split(n *Node, left, right State) (*Node, *Node) {
	l, r := n.split()
	left.SetNode(l)
	right.SetNode(r)
	t.stats.Nodes += 2

	if rec := t.records[n]; rec != nil {
		t.record(l, rec.ID)
		t.record(r, rec.ID)
	}
	return l, r
}

// Remove removes a fully explored leaf. Ancestors left without children are
// removed as well. Every removed node that was not subsumed has its
// interpolant stored in the table first.
func (t *Tree) Remove(n *Node) {
	assert(n.IsLeaf(), "itree: cannot remove node with children: %s", n)

	for n != nil && n.IsLeaf() {
		p := n.parent
		var entry *SubsumptionTableEntry
		if !n.subsumed {
			entry = NewSubsumptionTableEntry(n, t.shadow)
			t.Store(entry)
		}

		if rec := t.records[n]; rec != nil {
			rec.Location, rec.Subsumed, rec.Removed = n.location, n.subsumed, true
			if entry != nil && entry.Interpolant != nil {
				rec.Interpolant = entry.Interpolant.String()
			}
			rec.node = nil
			delete(t.records, n)
		}

		if p != nil {
			if n == p.left {
				p.left = nil
			} else {
				assert(n == p.right, "itree: node is not a child of its parent: %s", n)
				p.right = nil
			}
		} else {
			t.root = nil
		}

		if t.current == n {
			t.current = p
		}
		n.release()
		n = p
	}
}

// CheckCurrentStateSubsumption returns true if an entry of the table subsumes
// state. The state must be attached to the current node. A subsumed node is
// marked so that no entry is stored for it.
func (t *Tree) CheckCurrentStateSubsumption(solver Solver, state State, timeout time.Duration) (bool, error) {
	assert(state.Node() == t.current, "itree: state is not at the current node")

	node := t.current
	if state.ProgramPoint() != node.Location() {
		return false, nil
	}
	t.stats.Checks++

	for _, entry := range t.Entries(node.Location()) {
		subsumed, err := entry.Subsumed(solver, state, timeout)
		if err != nil {
			return false, err
		} else if !subsumed {
			continue
		}

		log.Printf("[itree] subsumed: pp=%d", node.Location())
		node.subsumed = true
		t.stats.Subsumed++
		return true, nil
	}
	return false, nil
}

// MarkPathCondition marks the values the branch condition cond was computed
// from, and the path constraints in core, as needed by the interpolant of
// the state's node. Used when a branch is decided without forking.
func (t *Tree) MarkPathCondition(state State, cond Value, core []Expr) {
	node := state.Node()
	g := NewAllocationGraph()

	if cond != nil {
		if v := node.dependency.LatestValue(cond); v != nil {
			node.dependency.MarkAllValues(g, v)
		}
	}

	markers := node.markerMap()
	for _, m := range markers {
		for _, c := range core {
			if m.pathCondition.matches(c) {
				m.mayIncludeInInterpolant()
				break
			}
		}
	}
	for _, m := range markers {
		m.includeInInterpolant(g)
	}

	node.ComputeInterpolantAllocations(g)
}

// Store adds entry to the subsumption table.
func (t *Tree) Store(entry *SubsumptionTableEntry) {
	var entries []*SubsumptionTableEntry
	if v, ok := t.table.Get(entry.ProgramPoint); ok {
		entries = v.([]*SubsumptionTableEntry)
	}

	other := make([]*SubsumptionTableEntry, len(entries), len(entries)+1)
	copy(other, entries)
	t.table = t.table.Set(entry.ProgramPoint, append(other, entry))
	t.stats.Entries++
}

// Entries returns the entries stored for a program point, oldest first.
func (t *Tree) Entries(pp uint64) []*SubsumptionTableEntry {
	if v, ok := t.table.Get(pp); ok {
		return v.([]*SubsumptionTableEntry)
	}
	return nil
}

// ProgramPoints returns every program point with stored entries in order.
func (t *Tree) ProgramPoints() []uint64 {
	var a []uint64
	itr := t.table.Iterator()
	for !itr.Done() {
		k, _ := itr.Next()
		a = append(a, k.(uint64))
	}
	return a
}

// TreeStats represents statistics about a tree.
type TreeStats struct {
	Nodes    int // nodes created
	Entries  int // entries stored
	Subsumed int // states pruned
	Checks   int // subsumption checks performed
}
