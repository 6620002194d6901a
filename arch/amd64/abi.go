package amd64

import "github.com/arc-language/core-jit/ir"

// Register numbers as encoded in ModRM and REX.
const (
	rax byte = iota
	rcx
	rdx
	rbx
	rsp
	rbp
	rsi
	rdi
	r8
	r9
)

// argRegs carries the first six integer arguments under the System V ABI.
var argRegs = [...]byte{rdi, rsi, rdx, rcx, r8, r9}

// SizeOf returns the stack slot payload size of t in bytes.
func SizeOf(t ir.Type) int {
	switch t {
	case ir.I1:
		return 1
	case ir.I32:
		return 4
	default:
		return 8
	}
}
