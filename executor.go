package itree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"log"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/tools/go/ssa"
)

var (
	ErrNoStateAvailable       = errors.New("itree: no state available")
	ErrNoInstructionAvailable = errors.New("itree: no instruction available")
)

// Executor symbolically executes an SSA function. Every explored path is
// recorded in an interpolation tree and, when interpolation is enabled,
// paths which cannot reach new behavior are pruned.
type Executor struct {
	fn         *ssa.Function               // entry function
	root       *ExecutionState             // initial state
	tree       *Tree                       // interpolation tree
	stateIDSeq int                         // autoincrementing state ID
	points     map[string]uint64           // program point ids by location key
	statuses   map[ExecutionStatus]int     // terminated state counts
	fns        map[funcKey]FunctionHandler // registered function handlers
	started    bool                        // root state scheduled
	prog       *ssa.Program

	// OS & architecture settings for the executor.
	// See `go tool dist list` for a list of valid combinations.
	OS   string
	Arch string

	// Used for solving symbolic values and deciding branches.
	// Must set before execution.
	Solver Solver

	// Search strategy for the executor. Defaults to depth-first.
	Searcher Searcher

	// If true, states are checked against the subsumption table before
	// they run. Defaults to true.
	Interpolation bool

	// Time limit of each subsumption query. Zero means no limit.
	SubsumptionTimeout time.Duration

	// Maximum number of states executed by Run. Zero means no limit.
	MaxStates int

	// If set, called when a state terminates.
	OnTerminate func(state *ExecutionState)
}

// NewExecutor returns a new instance of Executor. The parameters of fn are
// bound to symbolic values.
func NewExecutor(fn *ssa.Function) *Executor {
	e := &Executor{
		fn:       fn,
		prog:     fn.Prog,
		points:   make(map[string]uint64),
		statuses: make(map[ExecutionStatus]int),
		fns:      make(map[funcKey]FunctionHandler),

		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		Searcher:      NewDFSSearcher(),
		Interpolation: true,
	}

	// Default registrations.
	pkgName := "github.com/benbjohnson/itree"
	e.Register(pkgName, "Assert", execAssert)
	e.Register("", "len", execLen)
	e.Register("", "cap", execCap)
	for _, name := range []string{"Bool", "Byte", "Int", "Int8", "Int16", "Int32", "Int64", "Uint", "Uint8", "Uint16", "Uint32", "Uint64"} {
		e.Register(pkgName, name, execSymbolic)
	}

	// Initialize entry state with symbolic arguments.
	e.root = NewExecutionState(e, fn)
	e.root.id = e.nextStateID()
	for _, param := range fn.Params {
		e.root.Frame().bind(param, e.newSymbolicValue(e.root, param.Type()))
	}
	e.tree = NewTree(&SSAValueInfo{}, e.root)
	for _, param := range fn.Params {
		e.root.node.BindInput(param, exprOf(e.root.Frame().bindings[param]))
	}

	return e
}

// RootState returns the initial state for the function execution.
func (e *Executor) RootState() *ExecutionState { return e.root }

// Tree returns the interpolation tree of the execution.
func (e *Executor) Tree() *Tree { return e.tree }

// Stats returns execution statistics.
func (e *Executor) Stats() ExecutorStats {
	stats := ExecutorStats{States: e.stateIDSeq, Statuses: make(map[ExecutionStatus]int)}
	for k, v := range e.statuses {
		stats.Statuses[k] = v
	}
	return stats
}

// ExecutorStats represents statistics about an execution.
type ExecutorStats struct {
	States   int                     // states created
	Statuses map[ExecutionStatus]int // terminated states by status
}

// nextStateID returns the next autoincrementing state ID.
func (e *Executor) nextStateID() int {
	e.stateIDSeq++
	return e.stateIDSeq
}

// Register registers a function handler for a given function.
// Every invocation of the given function will be delegated to the handler.
func (e *Executor) Register(path, name string, h FunctionHandler) {
	e.fns[funcKey{path, name}] = h
}

// Run executes states until none are left, MaxStates have been executed or
// ctx is done.
func (e *Executor) Run(ctx context.Context) error {
	for n := 0; e.MaxStates <= 0 || n < e.MaxStates; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := e.ExecuteNextState(); err == ErrNoStateAvailable {
			return nil
		} else if err != nil {
			return err
		}
	}
	return nil
}

// ExecuteNextState executes the next available state until it terminates or
// forks. This can be called continually until ErrNoStateAvailable is returned.
//
// A failed internal consistency check is returned as an *InternalError.
func (e *Executor) ExecuteNextState() (state *ExecutionState, err error) {
	if !isValidOSArch(e.OS, e.Arch) {
		return nil, fmt.Errorf("itree.Executor: invalid os/arch combination: %s/%s", e.OS, e.Arch)
	}

	// The root state is scheduled on first use so the searcher can be
	// replaced after construction.
	if !e.started {
		e.started = true
		e.Searcher.AddState(e.root)
	}

	if state = e.Searcher.SelectState(); state == nil {
		return nil, ErrNoStateAvailable
	}

	defer func() {
		if r := recover(); r != nil {
			err = &InternalError{State: state, Instr: state.Instr(), Value: r, Stack: debug.Stack()}
		}
	}()

	log.Printf("[state] begin: id=%d pp=%d", state.id, state.ProgramPoint())

	e.tree.SetCurrent(state.node)
	state.node.SetLocation(state.ProgramPoint())

	if e.Interpolation {
		subsumed, err := e.tree.CheckCurrentStateSubsumption(e.Solver, state, e.SubsumptionTimeout)
		if err != nil {
			return state, err
		} else if subsumed {
			log.Printf("[state] subsumed: id=%d", state.id)
			state.status, state.reason = ExecutionStatusSubsumed, "subsumed"
			e.terminate(state)
			return state, nil
		}
	}

	// Loop until new states available or completion.
	for !state.Done() {
		if err := e.executeNextInstruction(state); err == ErrNoInstructionAvailable {
			break
		} else if err != nil {
			return state, err
		}
	}

	if state.Terminated() {
		e.terminate(state)
	}
	return state, nil
}

// terminate removes the node of a terminated state from the tree.
func (e *Executor) terminate(state *ExecutionState) {
	log.Printf("[state] end: id=%d status=%s", state.id, state.status)
	e.statuses[state.status]++
	e.tree.Remove(state.node)

	if e.OnTerminate != nil {
		e.OnTerminate(state)
	}
}

func (e *Executor) executeNextInstruction(state *ExecutionState) error {
	// Find the next available instruction on the current frame or pop
	// up to the caller if no more instructions remain. If no more frames
	// exist then execution is done.
	for {
		frame := state.Frame()
		if frame == nil {
			return ErrNoInstructionAvailable
		}

		if frame.NextInstr(); frame.Instr() != nil {
			break
		}
		state.Pop()
	}

	// Log each non-debug line of execution.
	instr := state.Instr()
	if _, ok := instr.(*ssa.DebugRef); ok {
		return nil
	}
	pos := state.Position()
	pos.Filename, pos.Column = filepath.Base(pos.Filename), 0
	log.Printf("[exec] %s: %s (%T)", pos, instr.String(), instr)

	if err := e.executeInstr(state, instr); err != nil {
		return err
	} else if !state.Terminated() {
		e.track(state, instr)
	}
	return nil
}

func (e *Executor) executeInstr(state *ExecutionState, instr ssa.Instruction) error {
	switch instr := instr.(type) {
	case *ssa.Alloc:
		return e.executeAllocInstr(state, instr)
	case *ssa.BinOp:
		return e.executeBinOpInstr(state, instr)
	case *ssa.Call:
		return e.executeCallInstr(state, instr)
	case *ssa.ChangeType:
		state.Frame().bind(instr, state.Eval(instr.X))
		return nil
	case *ssa.Convert:
		return e.executeConvertInstr(state, instr)
	case *ssa.Extract:
		state.Frame().bind(instr, state.Eval(instr.Tuple).(Tuple)[instr.Index])
		return nil
	case *ssa.FieldAddr:
		return e.executeFieldAddrInstr(state, instr)
	case *ssa.If:
		return e.executeIfInstr(state, instr)
	case *ssa.Index:
		return e.executeIndexInstr(state, instr)
	case *ssa.IndexAddr:
		return e.executeIndexAddrInstr(state, instr)
	case *ssa.Jump:
		state.Frame().jump(instr.Block().Succs[0])
		return nil
	case *ssa.MakeSlice:
		return e.executeMakeSliceInstr(state, instr)
	case *ssa.Panic:
		state.status, state.reason = ExecutionStatusPanicked, fmt.Sprintf("panic: %s", instr.X)
		return nil
	case *ssa.Phi:
		return e.executePhiInstr(state, instr)
	case *ssa.Return:
		return e.executeReturnInstr(state, instr)
	case *ssa.Slice:
		return e.executeSliceInstr(state, instr)
	case *ssa.Store:
		return e.executeStoreInstr(state, instr)
	case *ssa.UnOp:
		return e.executeUnOpInstr(state, instr)
	default:
		return fmt.Errorf("itree.Executor: unsupported instruction: %T", instr)
	}
}

// track records the effect of an executed instruction in the dependency
// graph of the state's node. Calls, returns and branches are recorded by
// their handlers.
func (e *Executor) track(state *ExecutionState, instr ssa.Instruction) {
	frame := state.Frame()
	ti, ok := SSAInstruction(instr, frame.prev)
	if !ok || ti.Opcode() == OpBranch {
		return
	}

	var expr Expr
	switch instr := instr.(type) {
	case *ssa.Store:
		expr = exprOf(state.Eval(instr.Val))
	case ssa.Value:
		expr = exprOf(frame.bindings[instr])
	}
	state.node.Execute(ti, expr)
}

func (e *Executor) executeAllocInstr(state *ExecutionState, instr *ssa.Alloc) error {
	// Non-heap allocs are allocated when pushing function onto stack.
	if !instr.Heap {
		return nil
	}

	size := e.Sizeof(deref(instr.Type())) / 8
	addr, array := state.Alloc(size)
	array.zero()
	state.Frame().bind(instr, addr)

	log.Printf("[alloc] type=%s addr=%d size=%d", instr.Type(), addr.Value, size)
	return nil
}

func (e *Executor) executeBinOpInstr(state *ExecutionState, instr *ssa.BinOp) error {
	typ, ok := instr.X.Type().Underlying().(*types.Basic)
	if !ok {
		return fmt.Errorf("itree.Executor: unsupported binop operand type: %s", instr.X.Type())
	}

	x, y := state.MustEvalAsExpr(instr.X), state.MustEvalAsExpr(instr.Y)
	info := typ.Info()
	switch {
	case info&types.IsBoolean != 0:
		return e.executeBinOpInstrBoolean(state, instr, x, y)
	case info&types.IsInteger != 0:
		return e.executeBinOpInstrInteger(state, instr, x, y, info&types.IsUnsigned == 0)
	default:
		return fmt.Errorf("itree.Executor: unsupported binop operand type: %s", typ)
	}
}

func (e *Executor) executeBinOpInstrBoolean(state *ExecutionState, instr *ssa.BinOp, x, y Expr) error {
	var op BinaryOp
	switch instr.Op {
	case token.AND:
		op = AND
	case token.OR:
		op = OR
	case token.EQL:
		op = EQ
	case token.NEQ:
		op = NE
	default:
		return fmt.Errorf("itree.Executor: invalid boolean binop operator: %s", instr.Op)
	}
	state.Frame().bind(instr, NewBinaryExpr(op, x, y))
	return nil
}

// integerBinaryOps maps Go operators to expression operators as a pair of
// signed and unsigned variants.
var integerBinaryOps = map[token.Token][2]BinaryOp{
	token.ADD: {ADD, ADD},
	token.SUB: {SUB, SUB},
	token.MUL: {MUL, MUL},
	token.QUO: {SDIV, UDIV},
	token.REM: {SREM, UREM},
	token.AND: {AND, AND},
	token.OR:  {OR, OR},
	token.XOR: {XOR, XOR},
	token.SHL: {SHL, SHL},
	token.SHR: {ASHR, LSHR},
	token.EQL: {EQ, EQ},
	token.NEQ: {NE, NE},
	token.LSS: {SLT, ULT},
	token.LEQ: {SLE, ULE},
	token.GTR: {SGT, UGT},
	token.GEQ: {SGE, UGE},
}

func (e *Executor) executeBinOpInstrInteger(state *ExecutionState, instr *ssa.BinOp, x, y Expr, signed bool) error {
	// x &^ y is x & ^y.
	if instr.Op == token.AND_NOT {
		w := ExprWidth(y)
		state.Frame().bind(instr, NewBinaryExpr(AND, x, NewBinaryExpr(XOR, y, NewConstantExpr(bitmask(w), w))))
		return nil
	}

	ops, ok := integerBinaryOps[instr.Op]
	if !ok {
		return fmt.Errorf("itree.Executor: invalid integer binop operator: %s", instr.Op)
	}

	// Shift amounts may have any width.
	if instr.Op == token.SHL || instr.Op == token.SHR {
		y = NewCastExpr(y, ExprWidth(x), false)
	}

	op := ops[1]
	if signed {
		op = ops[0]
	}
	state.Frame().bind(instr, NewBinaryExpr(op, x, y))
	return nil
}

func (e *Executor) executeCallInstr(state *ExecutionState, instr *ssa.Call) error {
	// Handle builtin functions separately.
	if builtin, ok := instr.Call.Value.(*ssa.Builtin); ok {
		registered := e.fns[funcKey{"", builtin.Name()}]
		if registered == nil {
			return fmt.Errorf("itree.Executor: unsupported builtin function: %s", builtin.Name())
		}
		return registered(state, instr)
	}

	// Lookup if function is registered with executor and defer execution.
	fn, args, err := state.ExtractCall(instr)
	if err != nil {
		return err
	} else if fn.Pkg != nil {
		if registered, ok := e.fns[funcKey{fn.Pkg.Pkg.Path(), fn.Name()}]; ok {
			return registered(state, instr)
		}
	}
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("itree.Executor: function has no body: %s", fn)
	}

	log.Printf("[call] %s", fn)

	exprs := make([]Expr, len(args))
	for i := range args {
		exprs[i] = exprOf(args[i])
	}

	// Continue execution in a new frame of the same state.
	state.Push(fn)
	for i, arg := range args {
		state.Frame().bind(fn.Params[i], arg)
	}
	state.node.BindCallArguments(SSACall(instr, fn), exprs)

	return nil
}

func (e *Executor) executeConvertInstr(state *ExecutionState, instr *ssa.Convert) error {
	srcType, dstType := instr.X.Type().Underlying(), instr.Type().Underlying()

	switch srcType := srcType.(type) {
	case *types.Pointer:
		if dstType, ok := dstType.(*types.Basic); !ok || dstType.Kind() != types.UnsafePointer {
			return fmt.Errorf("itree.Executor: unsupported pointer conversion")
		}
		state.Frame().bind(instr, state.MustEvalAsExpr(instr.X))
		return nil

	case *types.Basic:
		dst, ok := dstType.(*types.Basic)
		if !ok || srcType.Info()&types.IsInteger == 0 || dst.Info()&types.IsInteger == 0 {
			return fmt.Errorf("itree.Executor: unsupported conversion: %s to %s", srcType, dstType)
		}

		value := state.MustEvalAsExpr(instr.X)
		signed := srcType.Info()&types.IsUnsigned == 0
		state.Frame().bind(instr, NewCastExpr(value, e.Sizeof(dstType), signed))
		return nil

	default:
		return fmt.Errorf("itree.Executor: unsupported type conversion: %s", srcType)
	}
}

func (e *Executor) executeFieldAddrInstr(state *ExecutionState, instr *ssa.FieldAddr) error {
	structType := deref(instr.X.Type()).Underlying().(*types.Struct)
	offsets := e.Sizes().Offsetsof(structFields(structType))

	base := state.MustEvalAsExpr(instr.X)
	state.Frame().bind(instr, NewBinaryExpr(ADD, base, NewConstantExpr(uint64(offsets[instr.Field]), e.PointerWidth())))
	return nil
}

// executeIndexAddrInstr computes the address of an element of an array
// pointer or a slice. A constant index outside the bounds panics the state.
func (e *Executor) executeIndexAddrInstr(state *ExecutionState, instr *ssa.IndexAddr) error {
	var base, length Expr
	var elem types.Type
	switch typ := instr.X.Type().Underlying().(type) {
	case *types.Pointer:
		arrayType, ok := typ.Elem().Underlying().(*types.Array)
		if !ok {
			return fmt.Errorf("itree.Executor: unsupported index address operand: %s", instr.X.Type())
		}
		base = state.MustEvalAsExpr(instr.X)
		length = NewConstantExpr(uint64(arrayType.Len()), e.PointerWidth())
		elem = arrayType.Elem()
	case *types.Slice:
		hdr, ok := state.Eval(instr.X).(*Array)
		if !ok {
			return fmt.Errorf("itree.Executor: slice is not bound to a header: %s", instr.X)
		}
		base, length = e.sliceWord(hdr, sliceData), e.sliceWord(hdr, sliceLen)
		elem = typ.Elem()
	default:
		return fmt.Errorf("itree.Executor: unsupported index address operand: %s", instr.X.Type())
	}

	index := NewCastExpr(state.MustEvalAsExpr(instr.Index), e.PointerWidth(), true)
	if IsConstantFalse(NewBinaryExpr(ULT, index, length)) {
		state.status, state.reason = ExecutionStatusPanicked, "index out of range"
		return nil
	}

	size := NewConstantExpr(uint64(e.Sizeof(elem)/8), e.PointerWidth())
	state.Frame().bind(instr, NewBinaryExpr(ADD, base, NewBinaryExpr(MUL, index, size)))
	return nil
}

// executeIndexInstr reads an element of an array value.
func (e *Executor) executeIndexInstr(state *ExecutionState, instr *ssa.Index) error {
	arrayType, ok := instr.X.Type().Underlying().(*types.Array)
	if !ok {
		return fmt.Errorf("itree.Executor: unsupported index operand: %s", instr.X.Type())
	}
	x, ok := state.Eval(instr.X).(*Array)
	if !ok {
		return fmt.Errorf("itree.Executor: array is not bound to memory: %s", instr.X)
	}

	index := NewCastExpr(state.MustEvalAsExpr(instr.Index), Width64, true)
	if IsConstantFalse(NewBinaryExpr(ULT, index, NewConstantExpr64(uint64(arrayType.Len())))) {
		state.status, state.reason = ExecutionStatusPanicked, "index out of range"
		return nil
	}

	width := e.Sizeof(arrayType.Elem())
	offset := NewBinaryExpr(MUL, index, NewConstantExpr64(uint64(width/8)))
	if isExprType(arrayType.Elem().Underlying()) {
		state.Frame().bind(instr, x.Select(offset, width, e.IsLittleEndian()))
		return nil
	}

	_, dst := state.Alloc(width / 8)
	for i := uint64(0); i < uint64(dst.Size); i++ {
		dst.storeByte(NewConstantExpr64(i), x.selectByte(NewBinaryExpr(ADD, offset, NewConstantExpr64(i))))
	}
	state.Frame().bind(instr, dst)
	return nil
}

// executeMakeSliceInstr allocates zeroed backing memory and binds a header
// referring to it. Length and capacity must be constant.
func (e *Executor) executeMakeSliceInstr(state *ExecutionState, instr *ssa.MakeSlice) error {
	typ := instr.Type().Underlying().(*types.Slice)

	length, ok := state.EvalAsConstantExpr(instr.Len)
	if !ok || length == nil {
		return fmt.Errorf("itree.Executor: make slice len must be a constant")
	}
	capacity, ok := state.EvalAsConstantExpr(instr.Cap)
	if !ok {
		return fmt.Errorf("itree.Executor: make slice cap must be a constant")
	} else if capacity == nil {
		capacity = length
	}
	if length.Int64() < 0 || length.Int64() > capacity.Int64() {
		state.status, state.reason = ExecutionStatusPanicked, "makeslice: len out of range"
		return nil
	}

	addr, array := state.Alloc(uint(capacity.Value) * (e.Sizeof(typ.Elem()) / 8))
	array.zero()
	state.Frame().bind(instr, e.newSliceHeader(state, addr, length, capacity))

	log.Printf("[make] type=%s addr=%d len=%d cap=%d", typ, addr.Value, length.Value, capacity.Value)
	return nil
}

// executeSliceInstr re-slices a slice or an array pointer into a new header
// sharing the same backing memory. Bounds which are known to be out of
// order panic the state.
func (e *Executor) executeSliceInstr(state *ExecutionState, instr *ssa.Slice) error {
	pw := e.PointerWidth()

	var data, length, capacity Expr
	var elem types.Type
	switch typ := instr.X.Type().Underlying().(type) {
	case *types.Pointer:
		arrayType, ok := typ.Elem().Underlying().(*types.Array)
		if !ok {
			return fmt.Errorf("itree.Executor: unsupported slice operand: %s", instr.X.Type())
		}
		data = state.MustEvalAsExpr(instr.X)
		length = NewConstantExpr(uint64(arrayType.Len()), pw)
		capacity, elem = length, arrayType.Elem()
	case *types.Slice:
		hdr, ok := state.Eval(instr.X).(*Array)
		if !ok {
			return fmt.Errorf("itree.Executor: slice is not bound to a header: %s", instr.X)
		}
		data, length, capacity = e.sliceWord(hdr, sliceData), e.sliceWord(hdr, sliceLen), e.sliceWord(hdr, sliceCap)
		elem = typ.Elem()
	default:
		return fmt.Errorf("itree.Executor: unsupported slice operand: %s", instr.X.Type())
	}

	bound := func(v ssa.Value, def Expr) Expr {
		if v == nil {
			return def
		}
		return NewCastExpr(state.MustEvalAsExpr(v), pw, true)
	}
	lo := bound(instr.Low, NewConstantExpr(0, pw))
	hi := bound(instr.High, length)
	max := bound(instr.Max, capacity)

	for _, cond := range []Expr{
		NewBinaryExpr(ULE, lo, hi),
		NewBinaryExpr(ULE, hi, max),
		NewBinaryExpr(ULE, max, capacity),
	} {
		if IsConstantFalse(cond) {
			state.status, state.reason = ExecutionStatusPanicked, "slice bounds out of range"
			return nil
		}
	}

	size := NewConstantExpr(uint64(e.Sizeof(elem)/8), pw)
	data = NewBinaryExpr(ADD, data, NewBinaryExpr(MUL, lo, size))
	state.Frame().bind(instr, e.newSliceHeader(state, data, NewBinaryExpr(SUB, hi, lo), NewBinaryExpr(SUB, max, lo)))
	return nil
}

// Slice header words.
const (
	sliceData = iota
	sliceLen
	sliceCap
)

// newSliceHeader allocates a slice header of three pointer-width words.
func (e *Executor) newSliceHeader(state *ExecutionState, data, length, capacity Expr) *Array {
	pw := e.PointerWidth()
	_, hdr := state.Alloc(3 * pw / 8)
	for i, word := range []Expr{data, length, capacity} {
		hdr = hdr.Store(NewConstantExpr64(uint64(i)*uint64(pw/8)), NewCastExpr(word, pw, false), e.IsLittleEndian())
	}
	state.heap = state.heap.Set(hdr.ID, hdr)
	return hdr
}

// sliceWord returns a word of a slice header.
func (e *Executor) sliceWord(hdr *Array, word int) Expr {
	pw := e.PointerWidth()
	return hdr.Select(NewConstantExpr64(uint64(word)*uint64(pw/8)), pw, e.IsLittleEndian())
}

// executeIfInstr follows the branch implied by the path constraints or, if
// both are feasible, forks the state and splits its tree node.
func (e *Executor) executeIfInstr(state *ExecutionState, instr *ssa.If) error {
	cond := state.MustEvalAsExpr(instr.Cond)
	succs := instr.Block().Succs

	if cond, ok := cond.(*ConstantExpr); ok {
		if cond.IsTrue() {
			state.Frame().jump(succs[0])
		} else {
			state.Frame().jump(succs[1])
		}
		return nil
	}

	validity, core, err := e.Solver.Evaluate(state.constraints, cond, 0)
	if err != nil {
		return err
	}

	switch validity {
	case ValidityTrue:
		e.tree.MarkPathCondition(state, instr.Cond, core)
		state.Frame().jump(succs[0])
		return nil
	case ValidityFalse:
		e.tree.MarkPathCondition(state, instr.Cond, core)
		state.Frame().jump(succs[1])
		return nil
	}

	notCond := NewIsZeroExpr(cond)
	falseState, trueState := state.Fork(notCond), state.Fork(cond)
	falseState.id, trueState.id = e.nextStateID(), e.nextStateID()
	log.Printf("[fork] if: id=%d false=%d true=%d", state.id, falseState.id, trueState.id)

	// The false branch is the left child.
	e.tree.Split(state.node, falseState, trueState)
	falseState.node.AddConstraint(notCond, instr.Cond)
	trueState.node.AddConstraint(cond, instr.Cond)

	falseState.Frame().jump(succs[1])
	trueState.Frame().jump(succs[0])
	e.Searcher.AddState(falseState)
	e.Searcher.AddState(trueState)
	return nil
}

func (e *Executor) executePhiInstr(state *ExecutionState, instr *ssa.Phi) error {
	i := basicBlockIndex(state.Frame().block.Preds, state.Frame().prev)
	assert(i >= 0, "phi basic block not found")

	state.Frame().bind(instr, state.Eval(instr.Edges[i]))
	return nil
}

func (e *Executor) executeReturnInstr(state *ExecutionState, instr *ssa.Return) error {
	callee := state.Frame()

	// Assign return values to call instruction results.
	if caller := state.CallerFrame(); caller != nil {
		call, ok := caller.Instr().(*ssa.Call)
		assert(ok, "return: caller is not at a call instruction: %T", caller.Instr())

		results := make(Tuple, len(instr.Results))
		for i := range results {
			results[i] = state.Eval(instr.Results[i])
		}

		var expr Expr
		switch len(results) {
		case 0:
		case 1:
			caller.bind(call, results[0])
			expr = exprOf(results[0])
		default:
			caller.bind(call, results)
		}
		state.node.PopAbstractDependencyFrame(SSACall(call, callee.fn), SSAReturn(instr), expr)
		state.Pop()
		return nil
	}

	// The entry frame is kept so the final bindings can be inspected.
	state.status = ExecutionStatusFinished
	return nil
}

func (e *Executor) executeStoreInstr(state *ExecutionState, instr *ssa.Store) error {
	addr, ok := state.EvalAsConstantExpr(instr.Addr)
	if !ok {
		return fmt.Errorf("itree.Executor: cannot store using symbolic addresses")
	}

	// Copy value if it is an array.
	switch val := state.Eval(instr.Val).(type) {
	case *Array:
		state.Copy(addr, val)
		return nil
	case Expr:
		state.Store(addr, val)
		return nil
	default:
		return fmt.Errorf("itree.Executor: unexpected store value: %#v", val)
	}
}

func (e *Executor) executeUnOpInstr(state *ExecutionState, instr *ssa.UnOp) error {
	if instr.Op == token.MUL {
		return e.executeUnOpMulInstr(state, instr)
	}

	x := state.MustEvalAsExpr(instr.X)
	w := ExprWidth(x)
	switch instr.Op {
	case token.NOT:
		state.Frame().bind(instr, NewIsZeroExpr(x))
	case token.SUB:
		state.Frame().bind(instr, NewBinaryExpr(SUB, NewConstantExpr(0, w), x))
	case token.XOR:
		state.Frame().bind(instr, NewBinaryExpr(XOR, x, NewConstantExpr(bitmask(w), w)))
	default:
		return fmt.Errorf("itree.Executor: unsupported unary operator: %s", instr.Op)
	}
	return nil
}

func (e *Executor) executeUnOpMulInstr(state *ExecutionState, instr *ssa.UnOp) error {
	width := e.Sizeof(instr.Type())

	addr, ok := state.EvalAsConstantExpr(instr.X)
	if !ok || addr == nil {
		return fmt.Errorf("itree.Executor: cannot load using symbolic addresses")
	}
	base, array := state.findAllocContainingAddr(addr)
	assert(array != nil, "load: allocation not found: addr=%d", addr.Value)

	// Simple data types (such as ints) are extracted as expressions.
	// Aggregates are copied into a new array.
	index := NewBinaryExpr(SUB, addr, base)
	if isExprType(instr.Type().Underlying()) {
		state.Frame().bind(instr, array.Select(index, width, e.IsLittleEndian()))
		return nil
	}

	_, dst := state.Alloc(width / 8)
	for i := uint64(0); i < uint64(dst.Size); i++ {
		dst.storeByte(NewConstantExpr64(i), array.selectByte(NewBinaryExpr(ADD, index, NewConstantExpr(i, e.PointerWidth()))))
	}
	state.Frame().bind(instr, dst)
	return nil
}

// newSymbolicValue returns an unconstrained value of typ. Pointers refer to
// fresh zeroed memory.
func (e *Executor) newSymbolicValue(state *ExecutionState, typ types.Type) Binding {
	width := e.Sizeof(typ)
	switch {
	case isExprType(typ.Underlying()):
		_, array := state.Alloc(width / 8)
		return array.Select(NewConstantExpr(0, 32), width, e.IsLittleEndian())
	case isPointerType(typ):
		addr, array := state.Alloc(e.Sizeof(deref(typ)) / 8)
		array.zero()
		return addr
	default:
		_, array := state.Alloc(width / 8)
		array.zero()
		return array
	}
}

// programPoint returns the identifier of the current block of the stack's
// top frame within its call stack. Ids are assigned on first use.
func (e *Executor) programPoint(stack []*StackFrame) uint64 {
	var buf bytes.Buffer
	for i, f := range stack {
		if i < len(stack)-1 {
			fmt.Fprintf(&buf, "%p:%d/", f.block, f.pc)
		} else {
			fmt.Fprintf(&buf, "%p", f.block)
		}
	}

	key := buf.String()
	if pp, ok := e.points[key]; ok {
		return pp
	}
	pp := uint64(len(e.points) + 1)
	e.points[key] = pp
	return pp
}

func (e *Executor) Sizes() types.Sizes {
	return types.SizesFor("gc", e.Arch)
}

func (e *Executor) Sizeof(typ types.Type) uint {
	return uint(e.Sizes().Sizeof(typ)) * 8
}

func (e *Executor) PointerWidth() uint {
	return e.Sizeof(types.Typ[types.UnsafePointer])
}

// IsLittleEndian returns true if the target architecture is little endian.
func (e *Executor) IsLittleEndian() bool {
	switch e.Arch {
	case "ppc64", "mips", "mips64", "s390x":
		return false
	default:
		return true
	}
}

// InternalError is returned when a consistency check fails while a state
// is executing. The state should be considered corrupt.
type InternalError struct {
	State *ExecutionState
	Instr ssa.Instruction
	Value interface{}
	Stack []byte
}

// Error returns the error message.
func (e *InternalError) Error() string {
	if e.Instr == nil {
		return fmt.Sprintf("itree: internal error: %v", e.Value)
	}
	return fmt.Sprintf("itree: internal error at %s: %v", e.Instr, e.Value)
}

// FunctionHandler represents special execution of an SSA function call.
//
// Once registered with the Executor, all invocations of the function will be
// delegated to the FunctionHandler.
type FunctionHandler func(state *ExecutionState, instr *ssa.Call) error

// funcKey represents a key for registering a FunctionHandler with the Executor.
type funcKey struct {
	path string // package name
	name string // function name
}

// Assert adds a constraint to the current execution state.
func Assert(cond bool) {}

// execAssert adds the asserted condition to the path. A condition which
// cannot hold fails the state.
func execAssert(state *ExecutionState, instr *ssa.Call) error {
	_, args, err := state.ExtractCall(instr)
	if err != nil {
		return err
	}

	cond, ok := args[0].(Expr)
	if !ok {
		return fmt.Errorf("itree.Assert(): unable to assert non-expression: %T", args[0])
	}

	if !IsConstantExpr(cond) {
		validity, _, err := state.executor.Solver.Evaluate(state.constraints, cond, 0)
		if err != nil {
			return err
		} else if validity == ValidityFalse {
			cond = NewBoolConstantExpr(false)
		}
	}

	switch {
	case IsConstantFalse(cond):
		state.status, state.reason = ExecutionStatusFailed, "assertion failed"
	case !IsConstantTrue(cond):
		state.AddConstraint(cond)
		state.node.AddConstraint(cond, instr.Call.Args[0])
	}
	return nil
}

// Bool returns a symbolic boolean.
func Bool() bool { return false }

// Byte returns a symbolic byte.
func Byte() byte { return 0 }

// Int returns a symbolic signed integer with the current execution engine's integer width.
func Int() int { return 0 }

// Int8 returns a symbolic 8-bit signed integer.
func Int8() int8 { return 0 }

// Int16 returns a symbolic 16-bit signed integer.
func Int16() int16 { return 0 }

// Int32 returns a symbolic 32-bit signed integer.
func Int32() int32 { return 0 }

// Int64 returns a symbolic 64-bit signed integer.
func Int64() int64 { return 0 }

func Uint() uint     { return 0 }
func Uint8() uint8   { return 0 }
func Uint16() uint16 { return 0 }
func Uint32() uint32 { return 0 }
func Uint64() uint64 { return 0 }

// execLen binds the length of a slice or array.
func execLen(state *ExecutionState, instr *ssa.Call) error {
	return execSliceWord(state, instr, sliceLen)
}

// execCap binds the capacity of a slice or array.
func execCap(state *ExecutionState, instr *ssa.Call) error {
	return execSliceWord(state, instr, sliceCap)
}

func execSliceWord(state *ExecutionState, instr *ssa.Call, word int) error {
	e, arg := state.executor, instr.Call.Args[0]
	width := e.Sizeof(instr.Type())

	switch typ := deref(arg.Type()).Underlying().(type) {
	case *types.Array:
		state.Frame().bind(instr, NewConstantExpr(uint64(typ.Len()), width))
	case *types.Slice:
		hdr, ok := state.Eval(arg).(*Array)
		if !ok {
			return fmt.Errorf("itree.Executor: slice is not bound to a header: %s", arg)
		}
		state.Frame().bind(instr, NewCastExpr(e.sliceWord(hdr, word), width, false))
	default:
		return fmt.Errorf("itree.Executor: unsupported %s argument: %s", instr.Call.Value.Name(), arg.Type())
	}
	return nil
}

// execSymbolic binds a fresh symbolic value to the result of the call.
func execSymbolic(state *ExecutionState, instr *ssa.Call) error {
	v := state.executor.newSymbolicValue(state, instr.Type())
	state.Frame().bind(instr, v)
	state.node.BindInput(instr, exprOf(v))
	return nil
}

// isValidOSArch returns true if the OS & architecture combination are valid.
func isValidOSArch(os, arch string) bool {
	if os == "" || types.SizesFor("gc", arch) == nil {
		return false
	}
	switch os {
	case "aix", "android", "darwin", "dragonfly", "freebsd", "illumos", "ios",
		"js", "linux", "netbsd", "openbsd", "plan9", "solaris", "wasip1", "windows":
		return true
	default:
		return false
	}
}

// exprOf returns the expression recorded in the dependency graph for a
// binding. Arrays are identified by their id.
func exprOf(b Binding) Expr {
	switch b := b.(type) {
	case Expr:
		return b
	case *Array:
		return NewConstantExpr64(b.ID)
	default:
		return nil
	}
}

func structFields(typ *types.Struct) []*types.Var {
	a := make([]*types.Var, typ.NumFields())
	for i := range a {
		a[i] = typ.Field(i)
	}
	return a
}

// basicBlockIndex returns the index of v within a. Returns -1 if v is not in a.
func basicBlockIndex(a []*ssa.BasicBlock, v *ssa.BasicBlock) int {
	for i := range a {
		if a[i] == v {
			return i
		}
	}
	return -1
}

// deref returns the underlying data type if typ is a pointer. Otherwise returns typ.
func deref(typ types.Type) types.Type {
	if p, ok := typ.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}
	return typ
}

// isPointerType returns true if typ is a pointer type.
func isPointerType(typ types.Type) bool {
	_, ok := typ.Underlying().(*types.Pointer)
	return ok
}

// isExprType returns true if typ is stored as an Expr.
// Only applies to boolean and integer values.
func isExprType(typ types.Type) bool {
	if typ, ok := typ.(*types.Basic); ok {
		return typ.Info()&types.IsBoolean != 0 || typ.Info()&types.IsInteger != 0
	}
	return false
}
