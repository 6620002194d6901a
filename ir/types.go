package ir

import (
	"fmt"
	"strings"
)

// Type is a scalar IR type. Integers are unsigned; I32 is the only
// arithmetic type, I1 is produced by comparisons.
type Type uint8

const (
	Void Type = iota
	I1
	I32
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case I1:
		return "i1"
	case I32:
		return "i32"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// BitSize returns the width of t in bits; zero for Void.
func (t Type) BitSize() int {
	switch t {
	case I1:
		return 1
	case I32:
		return 32
	default:
		return 0
	}
}

func (t Type) valid() bool {
	return t <= I32
}

// Signature is the declared type of a function.
type Signature struct {
	Params []Type
	Ret    Type
}

func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s (%s)", s.Ret, strings.Join(parts, ", "))
}

// Equal reports whether s and o describe the same function type.
func (s Signature) Equal(o Signature) bool {
	if s.Ret != o.Ret || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// Opcode identifies an instruction.
type Opcode uint8

const (
	OpConst Opcode = iota + 1
	OpAdd
	OpSub
	OpICmp
	OpCondBr
	OpBr
	OpCall
	OpRet
)

var opcodeNames = map[Opcode]string{
	OpConst:  "const",
	OpAdd:    "add",
	OpSub:    "sub",
	OpICmp:   "icmp",
	OpCondBr: "condbr",
	OpBr:     "br",
	OpCall:   "call",
	OpRet:    "ret",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool {
	return op == OpCondBr || op == OpBr || op == OpRet
}

// Predicate is an integer comparison predicate. All comparisons are unsigned.
type Predicate uint8

const (
	ICmpEQ Predicate = iota
	ICmpNE
	ICmpULT
	ICmpULE
	ICmpUGT
	ICmpUGE
)

func (p Predicate) String() string {
	switch p {
	case ICmpEQ:
		return "eq"
	case ICmpNE:
		return "ne"
	case ICmpULT:
		return "ult"
	case ICmpULE:
		return "ule"
	case ICmpUGT:
		return "ugt"
	case ICmpUGE:
		return "uge"
	default:
		return fmt.Sprintf("pred(%d)", uint8(p))
	}
}

func (p Predicate) valid() bool {
	return p <= ICmpUGE
}
