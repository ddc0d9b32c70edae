package itree

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// SSAInstruction returns the dependency view of an SSA instruction. The prev
// block is the predecessor the current block was entered from and selects
// the incoming value of a phi. Returns false if the instruction has no
// effect on dependencies.
//
// SSA values are used directly as dependency values.
func SSAInstruction(instr ssa.Instruction, prev *ssa.BasicBlock) (Instruction, bool) {
	switch instr := instr.(type) {
	case *ssa.Alloc:
		return &ssaInstruction{op: OpAlloca, value: instr}, true
	case *ssa.MakeSlice:
		return &ssaInstruction{op: OpAlloca, value: instr}, true

	case *ssa.UnOp:
		if instr.Op == token.MUL {
			return &ssaInstruction{op: OpLoad, value: instr, operands: []Value{instr.X}}, true
		}
		return &ssaInstruction{op: OpCast, value: instr, operands: []Value{instr.X}}, true

	case *ssa.Store:
		return &ssaInstruction{op: OpStore, operands: []Value{instr.Val, instr.Addr}}, true

	case *ssa.FieldAddr:
		return &ssaInstruction{op: OpGetElementPtr, value: instr, operands: []Value{instr.X}}, true
	case *ssa.IndexAddr:
		return &ssaInstruction{op: OpGetElementPtr, value: instr, operands: []Value{instr.X, instr.Index}}, true
	case *ssa.Slice:
		return &ssaInstruction{op: OpGetElementPtr, value: instr, operands: []Value{instr.X}}, true

	case *ssa.Convert:
		return &ssaInstruction{op: OpCast, value: instr, operands: []Value{instr.X}}, true
	case *ssa.ChangeType:
		return &ssaInstruction{op: OpCast, value: instr, operands: []Value{instr.X}}, true
	case *ssa.Index:
		return &ssaInstruction{op: OpCast, value: instr, operands: []Value{instr.X}}, true
	case *ssa.Extract:
		return &ssaInstruction{op: OpCast, value: instr, operands: []Value{instr.Tuple}}, true

	case *ssa.BinOp:
		op := OpBinary
		if isComparison(instr.Op) {
			op = OpCompare
		}
		return &ssaInstruction{op: op, value: instr, operands: []Value{instr.X, instr.Y}}, true

	case *ssa.Phi:
		return &ssaInstruction{op: OpPhi, value: instr, operands: phiOperands(instr, prev)}, true

	case *ssa.If:
		return &ssaBranch{ssaInstruction{op: OpBranch, operands: []Value{instr.Cond}}}, true

	default:
		return nil, false
	}
}

// SSACall returns the call view of a call to fn, a function with a body.
func SSACall(instr *ssa.Call, fn *ssa.Function) CallInstruction {
	common := instr.Common()

	var args []Value
	if common.IsInvoke() {
		args = append(args, common.Value) // receiver
	}
	for _, arg := range common.Args {
		args = append(args, arg)
	}

	params := make([]Value, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p
	}

	return &ssaCall{
		ssaInstruction: ssaInstruction{op: OpCall, value: instr, operands: args},
		params:         params,
	}
}

// SSAReturn returns the return view of instr. Only the first result of a
// multi-value return is tracked.
func SSAReturn(instr *ssa.Return) ReturnInstruction {
	r := &ssaReturn{ssaInstruction: ssaInstruction{op: OpReturn}}
	for _, v := range instr.Results {
		r.operands = append(r.operands, v)
	}
	if len(instr.Results) == 1 {
		r.result = instr.Results[0]
	}
	return r
}

type ssaInstruction struct {
	op       Opcode
	value    ssa.Value
	operands []Value
}

func (i *ssaInstruction) Opcode() Opcode    { return i.op }
func (i *ssaInstruction) Operands() []Value { return i.operands }

func (i *ssaInstruction) Value() Value { return i.value }

type ssaCall struct {
	ssaInstruction
	params []Value
}

func (c *ssaCall) Args() []Value   { return c.operands }
func (c *ssaCall) Params() []Value { return c.params }

type ssaReturn struct {
	ssaInstruction
	result ssa.Value
}

func (r *ssaReturn) Result() Value { return r.result }

type ssaBranch struct {
	ssaInstruction
}

func (b *ssaBranch) Condition() Value { return b.operands[0] }

// phiOperands returns the incoming values of a phi with the value of the
// edge taken from prev first.
func phiOperands(instr *ssa.Phi, prev *ssa.BasicBlock) []Value {
	a := make([]Value, 0, len(instr.Edges))
	taken := basicBlockIndex(instr.Block().Preds, prev)
	if taken >= 0 {
		a = append(a, instr.Edges[taken])
	}
	for i, edge := range instr.Edges {
		if i != taken {
			a = append(a, edge)
		}
	}
	return a
}

func isComparison(op token.Token) bool {
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	default:
		return false
	}
}

// Ensure type implements interface.
var _ ValueInfo = (*SSAValueInfo)(nil)

// SSAValueInfo implements ValueInfo for SSA values.
type SSAValueInfo struct{}

// IsConstant returns true for constants, globals and functions.
func (*SSAValueInfo) IsConstant(v Value) bool {
	switch v.(type) {
	case *ssa.Const, *ssa.Global, *ssa.Function, *ssa.Builtin:
		return true
	default:
		return false
	}
}

// IsComposite returns true if the site allocates an aggregate or a reference.
func (*SSAValueInfo) IsComposite(site Value) bool {
	v, ok := site.(ssa.Value)
	if !ok {
		return false
	}

	switch deref(v.Type()).Underlying().(type) {
	case *types.Struct, *types.Array, *types.Pointer, *types.Slice, *types.Interface, *types.Map:
		return true
	default:
		return false
	}
}

// IsEnvironment returns true for the environment block of the syscall package.
func (*SSAValueInfo) IsEnvironment(site Value) bool {
	g, ok := site.(*ssa.Global)
	return ok && g.Pkg != nil && g.Pkg.Pkg.Path() == "syscall" && g.Name() == "envs"
}
