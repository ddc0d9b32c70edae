package itree

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// VersionedValue represents a program value at one point of its evaluation.
// Two versioned values are distinct even when their expressions are equal.
type VersionedValue struct {
	value         Value
	expr          Expr
	inInterpolant bool
}

func newVersionedValue(value Value, expr Expr) *VersionedValue {
	return &VersionedValue{value: value, expr: expr}
}

// Value returns the program value this is a version of.
func (v *VersionedValue) Value() Value { return v.value }

// Expr returns the symbolic expression of the value.
func (v *VersionedValue) Expr() Expr { return v.expr }

// InInterpolant returns true if the value is needed by an interpolant.
func (v *VersionedValue) InInterpolant() bool { return v.inInterpolant }

// String returns the string representation of the value.
func (v *VersionedValue) String() string {
	var flag string
	if v.inInterpolant {
		flag = "(I)"
	}
	return fmt.Sprintf("V%s[%s:%v]", flag, v.value, v.expr)
}

// AllocationKind represents the shape of a memory allocation.
type AllocationKind int

const (
	// Scalar region which is replaced by a new version on every store.
	SingletonAllocation = AllocationKind(iota + 1)

	// Aggregate or pointer-typed region. Stores accumulate.
	CompositeAllocation

	// The process environment block.
	EnvironmentAllocation
)

// String returns the string representation of the kind.
func (k AllocationKind) String() string {
	switch k {
	case SingletonAllocation:
		return "singleton"
	case CompositeAllocation:
		return "composite"
	case EnvironmentAllocation:
		return "environment"
	default:
		return fmt.Sprintf("AllocationKind<%d>", k)
	}
}

// Allocation represents one version of a memory region identified by its site.
type Allocation struct {
	kind AllocationKind
	site Value
}

// Kind returns the shape of the allocation.
func (a *Allocation) Kind() AllocationKind { return a.kind }

// Site returns the value which created the allocation.
func (a *Allocation) Site() Value { return a.site }

// IsComposite returns true if stores to the allocation never overwrite.
func (a *Allocation) IsComposite() bool { return a.kind == CompositeAllocation }

// String returns the string representation of the allocation.
func (a *Allocation) String() string {
	if a.kind == EnvironmentAllocation {
		return "A[environ]"
	}
	return fmt.Sprintf("A[%s %s]", a.kind, a.site)
}

// PointerEquality records that a value holds the address of an allocation.
type PointerEquality struct {
	Value      *VersionedValue
	Allocation *Allocation
}

// StorageCell records that a value was stored at an allocation.
type StorageCell struct {
	Allocation *Allocation
	Value      *VersionedValue
}

// FlowsTo records that data flows from Source to Target. Via is set when the
// flow goes through memory.
type FlowsTo struct {
	Source *VersionedValue
	Target *VersionedValue
	Via    *Allocation
}

// String returns the string representation of the flow.
func (f *FlowsTo) String() string {
	if f.Via != nil {
		return fmt.Sprintf("%s -> %s via %s", f.Source, f.Target, f.Via)
	}
	return fmt.Sprintf("%s -> %s", f.Source, f.Target)
}

// Dependency records values, allocations and the relations between them for
// one segment of an execution path. Lookups fall back to the parent
// dependency so a path's full history is visible without copying.
type Dependency struct {
	parent *Dependency
	info   ValueInfo

	values      []*VersionedValue
	allocations []*Allocation
	equalities  []*PointerEquality
	stores      []*StorageCell
	flows       []*FlowsTo

	// Sites of singleton and composite allocations created in this segment.
	versionedSites []Value
	compositeSites []Value

	coreAllocations []*Allocation
	released        bool
}

// NewDependency returns a new dependency segment. If info is nil then the
// parent's ValueInfo is used.
func NewDependency(parent *Dependency, info ValueInfo) *Dependency {
	if info == nil && parent != nil {
		info = parent.info
	}
	assert(info != nil, "dependency: value info required")
	return &Dependency{parent: parent, info: info}
}

// Parent returns the dependency of the previous path segment.
func (d *Dependency) Parent() *Dependency { return d.parent }

// Release drops the relations owned by this segment. Any later use of the
// dependency is an assertion failure. The parent is never touched.
func (d *Dependency) Release() {
	d.values, d.allocations = nil, nil
	d.equalities, d.stores, d.flows = nil, nil, nil
	d.versionedSites, d.compositeSites = nil, nil
	d.coreAllocations = nil
	d.released = true
}

func (d *Dependency) checkLive() {
	assert(!d.released, "dependency: use after release")
}

// Execute updates the graph for an executed instruction which produced expr.
// Calls and returns must go through BindCallArguments and BindReturnValue.
func (d *Dependency) Execute(instr Instruction, expr Expr) {
	d.checkLive()
	op := instr.Opcode()
	assert(op != OpCall && op != OpReturn, "dependency: %s must be bound, not executed", op)

	if h := effectHandlers[op]; h != nil {
		d.apply(h(d, instr, expr))
	}
}

// BindCallArguments links the actual arguments of a call to the callee's
// formal parameters. Arguments without a tracked value are represented by
// fresh, unregistered values holding their expressions.
func (d *Dependency) BindCallArguments(call CallInstruction, args []Expr) {
	d.checkLive()
	d.apply(bindCallArgumentsEffect(d, call, args))
}

// BindInput registers v as a program input. The new version has no sources.
func (d *Dependency) BindInput(v Value, expr Expr) {
	d.checkLive()
	var e Effect
	e.newValue(v, expr)
	d.apply(&e)
}

// BindReturnValue links the value returned by ret to the call site.
func (d *Dependency) BindReturnValue(call CallInstruction, ret ReturnInstruction, expr Expr) {
	d.checkLive()
	d.apply(bindReturnValueEffect(d, call, ret, expr))
}

// apply commits the changes described by e.
func (d *Dependency) apply(e *Effect) {
	if e == nil {
		return
	}
	d.values = append(d.values, e.Values...)
	for _, a := range e.Allocations {
		d.allocations = append(d.allocations, a)
		switch a.kind {
		case SingletonAllocation:
			d.versionedSites = append(d.versionedSites, a.site)
		case CompositeAllocation:
			d.compositeSites = append(d.compositeSites, a.site)
		}
	}
	d.equalities = append(d.equalities, e.Equalities...)
	d.stores = append(d.stores, e.Stores...)
	d.flows = append(d.flows, e.Flows...)
}

// allocationKind returns the kind of allocation created for a site.
func (d *Dependency) allocationKind(site Value) AllocationKind {
	if d.info.IsEnvironment(site) {
		return EnvironmentAllocation
	} else if d.info.IsComposite(site) {
		return CompositeAllocation
	}
	return SingletonAllocation
}

// LatestValue returns the most recent version of v, or nil.
func (d *Dependency) LatestValue(v Value) *VersionedValue {
	d.checkLive()
	for i := len(d.values) - 1; i >= 0; i-- {
		if d.values[i].value == v {
			return d.values[i]
		}
	}
	if d.parent != nil {
		return d.parent.LatestValue(v)
	}
	return nil
}

// LatestAllocation returns the most recent allocation for site, or nil.
func (d *Dependency) LatestAllocation(site Value) *Allocation {
	d.checkLive()
	for i := len(d.allocations) - 1; i >= 0; i-- {
		if d.allocations[i].site == site {
			return d.allocations[i]
		}
	}
	if d.parent != nil {
		return d.parent.LatestAllocation(site)
	}
	return nil
}

// Stores returns the values stored at a. A composite allocation returns every
// value ever stored, oldest first. A singleton returns at most one value.
func (d *Dependency) Stores(a *Allocation) []*VersionedValue {
	d.checkLive()
	if a == nil {
		return nil
	}

	if a.IsComposite() {
		var ret []*VersionedValue
		if d.parent != nil {
			ret = d.parent.Stores(a)
		}
		for _, s := range d.stores {
			if s.Allocation == a {
				ret = append(ret, s.Value)
			}
		}
		return ret
	}

	for _, s := range d.stores {
		if s.Allocation == a {
			return []*VersionedValue{s.Value}
		}
	}
	if d.parent != nil {
		return d.parent.Stores(a)
	}
	return nil
}

// ResolveAllocation returns the allocation whose address v holds, or nil.
func (d *Dependency) ResolveAllocation(v *VersionedValue) *Allocation {
	d.checkLive()
	if v == nil {
		return nil
	}
	for i := len(d.equalities) - 1; i >= 0; i-- {
		if d.equalities[i].Value == v {
			return d.equalities[i].Allocation
		}
	}
	if d.parent != nil {
		return d.parent.ResolveAllocation(v)
	}
	return nil
}

// ResolveAllocationTransitively returns the allocations v may point to. If v
// does not point to an allocation itself, the terminal sources flowing into
// v are resolved instead.
func (d *Dependency) ResolveAllocationTransitively(v *VersionedValue) []*Allocation {
	if v == nil {
		return nil
	}
	if a := d.resolveAllocations(v); len(a) > 0 {
		return a
	}

	var ret []*Allocation
	for _, src := range d.AllFlowSourcesEnds(v) {
		for _, a := range d.resolveAllocations(src) {
			if !containsAllocation(ret, a) {
				ret = append(ret, a)
			}
		}
	}
	return ret
}

// resolveAllocations returns every allocation v is equal to. A value belongs
// to a single segment so the search stops at the first segment with a match.
func (d *Dependency) resolveAllocations(v *VersionedValue) []*Allocation {
	d.checkLive()
	var ret []*Allocation
	for _, eq := range d.equalities {
		if eq.Value == v {
			ret = append(ret, eq.Allocation)
		}
	}
	if len(ret) == 0 && d.parent != nil {
		return d.parent.resolveAllocations(v)
	}
	return ret
}

// DirectFlowSources returns the values with an edge into target. Sources
// from earlier segments come first.
func (d *Dependency) DirectFlowSources(target *VersionedValue) []*VersionedValue {
	d.checkLive()
	var ret []*VersionedValue
	if d.parent != nil {
		ret = d.parent.DirectFlowSources(target)
	}
	for _, f := range d.flows {
		if f.Target == target {
			ret = append(ret, f.Source)
		}
	}
	return ret
}

// AllFlowSources returns target and every value flowing into it transitively.
func (d *Dependency) AllFlowSources(target *VersionedValue) []*VersionedValue {
	return d.allFlowSources(target, nil)
}

func (d *Dependency) allFlowSources(target *VersionedValue, ret []*VersionedValue) []*VersionedValue {
	if containsValue(ret, target) {
		return ret
	}
	ret = append(ret, target)
	for _, src := range d.DirectFlowSources(target) {
		ret = d.allFlowSources(src, ret)
	}
	return ret
}

// AllFlowSourcesEnds returns the values flowing into target which have no
// sources of their own. Returns target itself if nothing flows into it.
func (d *Dependency) AllFlowSourcesEnds(target *VersionedValue) []*VersionedValue {
	sources := d.DirectFlowSources(target)
	if len(sources) == 0 {
		return []*VersionedValue{target}
	}

	var ret []*VersionedValue
	for _, src := range sources {
		for _, end := range d.AllFlowSourcesEnds(src) {
			if !containsValue(ret, end) {
				ret = append(ret, end)
			}
		}
	}
	return ret
}

// MarkAllValues marks v and everything flowing into it as needed by the
// interpolant, and grows g with the allocations that justify them.
func (d *Dependency) MarkAllValues(g *AllocationGraph, v *VersionedValue) {
	d.BuildAllocationGraph(g, v)
	for _, src := range d.AllFlowSources(v) {
		src.inInterpolant = true
	}
}

// allocationSource is an edge into a value from either another value (via an
// optional allocation) or, when value is nil, directly from a store.
type allocationSource struct {
	value *VersionedValue
	via   *Allocation
}

type allocationSources []allocationSource

func (a allocationSources) index(v *VersionedValue) int {
	for i := range a {
		if a[i].value == v {
			return i
		}
	}
	return -1
}

// set adds or replaces the entry for v.
func (a allocationSources) set(v *VersionedValue, via *Allocation) allocationSources {
	if i := a.index(v); i >= 0 {
		a[i].via = via
		return a
	}
	return append(a, allocationSource{value: v, via: via})
}

// merge adds the entries of other whose value is not already present.
func (a allocationSources) merge(other allocationSources) allocationSources {
	for _, src := range other {
		if a.index(src.value) < 0 {
			a = append(a, src)
		}
	}
	return a
}

func (d *Dependency) directLocalAllocationSources(target *VersionedValue) allocationSources {
	var ret allocationSources
	for _, f := range d.flows {
		if f.Target != target {
			continue
		}

		if f.Via == nil {
			if extra := d.directLocalAllocationSources(f.Source); len(extra) > 0 {
				ret = ret.merge(extra)
			} else {
				ret = ret.set(f.Source, nil)
			}
		} else {
			ret = ret.set(f.Source, f.Via)
		}
	}

	// Fall back to the store which holds the target, if any.
	if len(ret) == 0 {
		for _, s := range d.stores {
			if s.Value == target {
				ret = ret.set(nil, s.Allocation)
				break
			}
		}
	}
	return ret
}

func (d *Dependency) directAllocationSources(target *VersionedValue) allocationSources {
	ret := d.directLocalAllocationSources(target)
	if len(ret) == 0 && d.parent != nil {
		return d.parent.directAllocationSources(target)
	}

	// Sources reached without an allocation are resolved in earlier segments.
	var out, ancestral allocationSources
	for _, src := range ret {
		if src.via != nil {
			out = append(out, src)
			continue
		}
		if d.parent != nil && src.value != nil {
			ancestral = ancestral.merge(d.parent.directAllocationSources(src.value))
		}
	}
	return out.merge(ancestral)
}

// BuildAllocationGraph adds to g the allocation edges needed to justify
// target and returns the allocations target depends on directly. An
// allocation is only returned when a new edge was created for it, which keeps
// repeated calls over shared history from revisiting it.
func (d *Dependency) BuildAllocationGraph(g *AllocationGraph, target *VersionedValue) []*Allocation {
	d.checkLive()

	var ret []*Allocation
	for _, src := range d.directAllocationSources(target) {
		if src.value == nil {
			ret = append(ret, src.via)
			continue
		}

		sourceAllocations := d.BuildAllocationGraph(g, src.value)
		if len(sourceAllocations) == 0 {
			if src.via != nil {
				ret = append(ret, src.via)
			}
			continue
		} else if src.via == nil {
			continue
		}

		var added bool
		for _, a := range sourceAllocations {
			if a != src.via && g.AddNewEdge(a, src.via) {
				added = true
			}
		}
		if added {
			ret = append(ret, src.via)
		}
	}
	return ret
}

// ComputeInterpolantAllocations records the allocations of g as the core
// allocations of this segment.
func (d *Dependency) ComputeInterpolantAllocations(g *AllocationGraph) {
	d.checkLive()
	for _, a := range g.Nodes() {
		if !containsAllocation(d.coreAllocations, a) {
			d.coreAllocations = append(d.coreAllocations, a)
		}
	}
}

// CoreAllocations returns the allocations recorded as needed by interpolants.
func (d *Dependency) CoreAllocations() []*Allocation {
	return d.coreAllocations
}

// allVersionedSites returns sites of singleton allocations, oldest first.
// Sites may repeat.
func (d *Dependency) allVersionedSites() []Value {
	var sites []Value
	if d.parent != nil {
		sites = d.parent.allVersionedSites()
	}
	return append(sites, d.versionedSites...)
}

// allCompositeSites returns sites of composite allocations, oldest first.
func (d *Dependency) allCompositeSites() []Value {
	var sites []Value
	if d.parent != nil {
		sites = d.parent.allCompositeSites()
	}
	return append(sites, d.compositeSites...)
}

// LatestCoreExpressions returns the expression last stored at each singleton
// allocation site and the latest expression of each register. If
// interpolantOnly is set, only values needed by an interpolant are returned.
// If shadow is not nil, expressions are rewritten over shadow arrays and the
// shadow arrays used are returned.
func (d *Dependency) LatestCoreExpressions(shadow *ShadowContext, interpolantOnly bool) (map[Value]Expr, []*Array) {
	d.checkLive()

	var replacements []*Array
	m := make(map[Value]Expr)
	for _, site := range d.allVersionedSites() {
		if _, ok := m[site]; ok {
			continue
		}

		stored := d.Stores(d.LatestAllocation(site))
		assert(len(stored) <= 1, "dependency: singleton %s has %d stored values", site, len(stored))
		if len(stored) == 0 {
			continue
		}

		v := stored[0]
		if v.expr == nil || (interpolantOnly && !v.inInterpolant) {
			continue
		}

		expr := v.expr
		if shadow != nil {
			var arrays []*Array
			expr, arrays = shadow.Rewrite(expr)
			replacements = mergeArrays(replacements, arrays)
		}
		m[site] = expr
	}

	// Registers are values held outside memory. The latest version of each
	// is stored like a singleton. Aggregates and allocation sites are not.
	seen := make(map[Value]struct{})
	for dep := d; dep != nil; dep = dep.parent {
		for i := len(dep.values) - 1; i >= 0; i-- {
			v := dep.values[i]
			if _, ok := seen[v.value]; ok {
				continue
			}
			seen[v.value] = struct{}{}

			if _, ok := m[v.value]; ok || v.expr == nil || (interpolantOnly && !v.inInterpolant) {
				continue
			} else if d.info.IsConstant(v.value) || d.info.IsComposite(v.value) || d.LatestAllocation(v.value) != nil {
				continue
			}

			expr := v.expr
			if shadow != nil {
				var arrays []*Array
				expr, arrays = shadow.Rewrite(expr)
				replacements = mergeArrays(replacements, arrays)
			}
			m[v.value] = expr
		}
	}
	return m, replacements
}

// CompositeCoreExpressions returns every expression stored at each composite
// allocation site, filtered and shadowed like LatestCoreExpressions.
func (d *Dependency) CompositeCoreExpressions(shadow *ShadowContext, interpolantOnly bool) (map[Value][]Expr, []*Array) {
	d.checkLive()

	var replacements []*Array
	m := make(map[Value][]Expr)
	visited := make(map[Value]struct{})
	for _, site := range d.allCompositeSites() {
		if _, ok := visited[site]; ok {
			continue
		}
		visited[site] = struct{}{}

		for _, v := range d.Stores(d.LatestAllocation(site)) {
			if v.expr == nil || (interpolantOnly && !v.inInterpolant) {
				continue
			}

			expr := v.expr
			if shadow != nil {
				var arrays []*Array
				expr, arrays = shadow.Rewrite(expr)
				replacements = mergeArrays(replacements, arrays)
			}
			m[site] = append(m[site], expr)
		}
	}
	return m, replacements
}

// Dump writes the relations of this segment and its ancestors to w.
func (d *Dependency) Dump(w io.Writer) {
	for depth, dep := 0, d; dep != nil; depth, dep = depth+1, dep.parent {
		fmt.Fprintf(w, "== SEGMENT %d\n", depth)
		for _, eq := range dep.equalities {
			fmt.Fprintf(w, "EQ  %s == %s\n", eq.Value, eq.Allocation)
		}
		for _, s := range dep.stores {
			fmt.Fprintf(w, "ST  %s <- %s\n", s.Allocation, s.Value)
		}
		for _, f := range dep.flows {
			fmt.Fprintf(w, "FL  %s\n", f)
		}
	}
}

// String returns the dump of the dependency as a string.
func (d *Dependency) String() string {
	var buf bytes.Buffer
	d.Dump(&buf)
	return buf.String()
}

func containsValue(a []*VersionedValue, v *VersionedValue) bool {
	for i := range a {
		if a[i] == v {
			return true
		}
	}
	return false
}

func containsAllocation(a []*Allocation, v *Allocation) bool {
	for i := range a {
		if a[i] == v {
			return true
		}
	}
	return false
}

// mergeArrays returns the union of two id-sorted array lists, sorted by id.
func mergeArrays(a, b []*Array) []*Array {
	for _, array := range b {
		var found bool
		for _, other := range a {
			if other.ID == array.ID {
				found = true
				break
			}
		}
		if !found {
			a = append(a, array)
		}
	}
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
	return a
}
