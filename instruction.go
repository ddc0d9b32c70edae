package itree

import (
	"fmt"
)

// Value represents a program value tracked by the dependency graph. Values
// are compared by identity so implementations are usually pointers.
type Value interface {
	String() string
}

// Opcode represents the kind of an instruction.
type Opcode int

// Instruction opcodes.
const (
	OpAlloca = Opcode(iota + 1)
	OpLoad
	OpStore
	OpGetElementPtr
	OpCast
	OpBinary
	OpCompare
	OpSelect
	OpPhi
	OpCall
	OpReturn
	OpBranch
)

var opcodes = [...]string{
	OpAlloca:        "alloca",
	OpLoad:          "load",
	OpStore:         "store",
	OpGetElementPtr: "getelementptr",
	OpCast:          "cast",
	OpBinary:        "binary",
	OpCompare:       "compare",
	OpSelect:        "select",
	OpPhi:           "phi",
	OpCall:          "call",
	OpReturn:        "return",
	OpBranch:        "branch",
}

// String returns the string representation of the opcode.
func (op Opcode) String() string {
	if op > 0 && op < Opcode(len(opcodes)) {
		return opcodes[op]
	}
	return fmt.Sprintf("Opcode<%d>", op)
}

// Instruction represents an executed instruction.
//
// Value returns the value the instruction defines (its site). Operands are
// in instruction order: a load reads from Operands()[0]; a store writes
// Operands()[0] to the address Operands()[1]; a select chooses between
// Operands()[1] and Operands()[2].
type Instruction interface {
	Opcode() Opcode
	Value() Value
	Operands() []Value
}

// CallInstruction represents a call to a function with a known body.
type CallInstruction interface {
	Instruction

	// Actual arguments at the call site.
	Args() []Value

	// Formal parameters of the callee.
	Params() []Value
}

// ReturnInstruction represents a return from a function.
type ReturnInstruction interface {
	Instruction

	// Returned value. Nil if the function returns nothing.
	Result() Value
}

// BranchInstruction represents a conditional branch.
type BranchInstruction interface {
	Instruction
	Condition() Value
}

// ValueInfo answers questions about values that depend on the host IR.
type ValueInfo interface {
	// Returns true if v is a compile-time constant.
	IsConstant(v Value) bool

	// Returns true if the allocation site is an aggregate or pointer-typed
	// memory region which is never destructively updated.
	IsComposite(site Value) bool

	// Returns true if the site denotes the process environment block.
	IsEnvironment(site Value) bool
}
