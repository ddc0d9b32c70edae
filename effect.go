package itree

// Effect describes the relations an instruction adds to a dependency.
// Handlers compute an effect from a read-only view of the dependency and
// Dependency.apply commits it.
type Effect struct {
	Values      []*VersionedValue
	Allocations []*Allocation
	Equalities  []*PointerEquality
	Stores      []*StorageCell
	Flows       []*FlowsTo
}

// effectHandler computes the effect of executing instr, which produced expr.
type effectHandler func(d *Dependency, instr Instruction, expr Expr) *Effect

var effectHandlers = map[Opcode]effectHandler{
	OpAlloca:        allocaEffect,
	OpLoad:          loadEffect,
	OpStore:         storeEffect,
	OpGetElementPtr: getElementPtrEffect,
	OpCast:          castEffect,
	OpBinary:        binaryEffect,
	OpCompare:       binaryEffect,
	OpSelect:        selectEffect,
	OpPhi:           phiEffect,
}

// newValue creates a new version of v and registers it with the effect.
func (e *Effect) newValue(v Value, expr Expr) *VersionedValue {
	vv := newVersionedValue(v, expr)
	e.Values = append(e.Values, vv)
	return vv
}

// initialAllocation creates a fresh allocation for site.
func (e *Effect) initialAllocation(d *Dependency, site Value) *Allocation {
	a := &Allocation{kind: d.allocationKind(site), site: site}
	e.Allocations = append(e.Allocations, a)
	return a
}

// newAllocationVersion returns the latest allocation of site if it is
// composite. Otherwise a fresh version is created.
func (e *Effect) newAllocationVersion(d *Dependency, site Value) *Allocation {
	if a := e.latestAllocation(d, site); a != nil && a.IsComposite() {
		return a
	}
	return e.initialAllocation(d, site)
}

// latestAllocation returns the newest allocation of site, including ones
// pending in the effect.
func (e *Effect) latestAllocation(d *Dependency, site Value) *Allocation {
	for i := len(e.Allocations) - 1; i >= 0; i-- {
		if e.Allocations[i].site == site {
			return e.Allocations[i]
		}
	}
	return d.LatestAllocation(site)
}

func (e *Effect) equality(v *VersionedValue, a *Allocation) {
	e.Equalities = append(e.Equalities, &PointerEquality{Value: v, Allocation: a})
}

func (e *Effect) store(a *Allocation, v *VersionedValue) {
	e.Stores = append(e.Stores, &StorageCell{Allocation: a, Value: v})
}

func (e *Effect) flow(src, dst *VersionedValue, via *Allocation) {
	e.Flows = append(e.Flows, &FlowsTo{Source: src, Target: dst, Via: via})
}

func allocaEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	var e Effect
	e.equality(e.newValue(instr.Value(), expr), e.initialAllocation(d, instr.Value()))
	return &e
}

func loadEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	var e Effect
	addr := instr.Operands()[0]

	if d.info.IsEnvironment(addr) {
		e.equality(e.newValue(instr.Value(), expr), e.newAllocationVersion(d, addr))
		return &e
	}

	// Loading through an address never seen before reads a value which was
	// defined outside of the path. Record it as the content of a placeholder.
	arg := d.LatestValue(addr)
	if arg == nil {
		e.store(e.initialAllocation(d, addr), e.newValue(instr.Value(), expr))
		return &e
	}

	allocations := d.ResolveAllocationTransitively(arg)
	assert(len(allocations) > 0, "dependency: load operand is not an allocation: %s", addr)

	v := e.newValue(instr.Value(), expr)
	for _, a := range allocations {
		stored := d.Stores(a)
		if len(stored) == 0 {
			e.store(a, v)
			continue
		}

		for _, src := range stored {
			if pointees := d.ResolveAllocationTransitively(src); len(pointees) > 0 {
				for _, p := range pointees {
					e.equality(v, p)
				}
				continue
			}
			e.flow(src, v, a)
		}
	}
	return &e
}

func storeEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	var e Effect
	ops := instr.Operands()

	data := d.LatestValue(ops[0])
	if data == nil {
		data = e.newValue(ops[0], expr)
	}

	for _, target := range d.ResolveAllocationTransitively(d.LatestValue(ops[1])) {
		site := target.site

		// Scalars are replaced by a new version on every store.
		a := e.latestAllocation(d, site)
		if a == nil || !a.IsComposite() {
			a = e.initialAllocation(d, site)
			e.equality(e.newValue(site, expr), a)
		}
		e.store(a, data)
	}
	return &e
}

func getElementPtrEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	var e Effect
	base := instr.Operands()[0]

	if d.info.IsConstant(base) {
		a := e.latestAllocation(d, base)
		if a == nil {
			a = e.initialAllocation(d, base)
		}
		e.equality(e.newValue(instr.Value(), expr), a)
		return &e
	}

	arg := d.LatestValue(base)
	if arg == nil {
		e.equality(e.newValue(instr.Value(), expr), e.initialAllocation(d, base))
		return &e
	}

	if allocations := d.ResolveAllocationTransitively(arg); len(allocations) > 0 {
		v := e.newValue(instr.Value(), expr)
		for _, a := range allocations {
			e.equality(v, a)
		}
		return &e
	}

	if sources := d.DirectFlowSources(arg); len(sources) > 0 {
		v := e.newValue(instr.Value(), expr)
		for _, src := range sources {
			e.flow(src, v, nil)
		}
	}
	return &e
}

func castEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	src := d.LatestValue(instr.Operands()[0])
	if src == nil {
		return nil
	}

	var e Effect
	e.flow(src, e.newValue(instr.Value(), expr), nil)
	return &e
}

func binaryEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	ops := instr.Operands()
	return flowEffect(d, instr.Value(), expr, ops[0], ops[1])
}

func selectEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	ops := instr.Operands()
	return flowEffect(d, instr.Value(), expr, ops[1], ops[2])
}

// flowEffect creates a new version of v with a flow from the latest version
// of each operand. Nothing is created if no operand is tracked.
func flowEffect(d *Dependency, v Value, expr Expr, operands ...Value) *Effect {
	var sources []*VersionedValue
	for _, op := range operands {
		if src := d.LatestValue(op); src != nil {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	var e Effect
	vv := e.newValue(v, expr)
	for _, src := range sources {
		e.flow(src, vv, nil)
	}
	return &e
}

// phiEffect links the phi to its first tracked incoming value. Operands are
// expected to list the incoming value of the taken edge first. A phi of
// untracked values is still versioned as it depends on the path taken.
func phiEffect(d *Dependency, instr Instruction, expr Expr) *Effect {
	var e Effect
	v := e.newValue(instr.Value(), expr)
	for _, op := range instr.Operands() {
		if src := d.LatestValue(op); src != nil {
			e.flow(src, v, nil)
			break
		}
	}
	return &e
}

func bindCallArgumentsEffect(d *Dependency, call CallInstruction, args []Expr) *Effect {
	actuals, params := call.Args(), call.Params()
	assert(len(actuals) == len(args), "dependency: %d call arguments, %d expressions", len(actuals), len(args))
	assert(len(actuals) == len(params), "dependency: %d call arguments, %d parameters", len(actuals), len(params))

	var e Effect
	for i, param := range params {
		// Untracked arguments are represented by a value which is never
		// registered so it cannot be found by later lookups.
		src := d.LatestValue(actuals[i])
		if src == nil {
			src = newVersionedValue(actuals[i], args[i])
		}
		e.flow(src, e.newValue(param, args[i]), nil)
	}
	return &e
}

func bindReturnValueEffect(d *Dependency, call CallInstruction, ret ReturnInstruction, expr Expr) *Effect {
	result := ret.Result()
	if result == nil {
		return nil
	}

	var e Effect
	v := e.newValue(call.Value(), expr)
	if src := d.LatestValue(result); src != nil {
		e.flow(src, v, nil)
	}
	return &e
}
