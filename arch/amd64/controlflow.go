package amd64

import (
	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/ir"
)

// ret leaves the result in eax, then leave; ret.
func (c *compiler) ret(inst *ir.Instruction) {
	if len(inst.Operands) == 1 {
		c.use(rax, inst.Operands[0])
	}
	c.emit(0xC9, 0xC3)
}

// condBr: test eax, eax; jnz then; jmp else. The jmp is dropped when the
// else block comes next.
func (c *compiler) condBr(inst *ir.Instruction) {
	c.use(rax, inst.Operands[0])
	c.emit(0x85, 0xC0)
	c.jump(inst.Targets[0], 0x0F, 0x85)
	c.jumpUnlessNext(inst.Targets[1])
}

func (c *compiler) jumpUnlessNext(target ir.BlockHandle) {
	if c.blockIndex(target) != c.next {
		c.jump(target, 0xE9)
	}
}

// jump emits opcode followed by a rel32 patched once target is placed.
func (c *compiler) jump(target ir.BlockHandle, opcode ...byte) {
	c.emit(opcode...)
	c.patches = append(c.patches, patch{at: c.text.Len(), block: c.blockIndex(target)})
	c.imm32(0)
}

func (c *compiler) blockIndex(h ir.BlockHandle) int {
	blk, err := c.fn.Block(h)
	if err != nil {
		return -1
	}
	return blk.Index()
}

// call passes the first six arguments in registers and pushes the rest right
// to left, padding first so rsp stays 16-byte aligned at the call. The callee
// is reached through a PLT32 relocation whether or not the module defines it.
func (c *compiler) call(inst *ir.Instruction) error {
	callee, err := c.m.Func(inst.Callee)
	if err != nil {
		return errors.Wrap(err, "call")
	}
	args := inst.Operands
	var onStack []ir.Value
	if len(args) > len(argRegs) {
		onStack = args[len(argRegs):]
		args = args[:len(argRegs)]
	}

	pushed := 8 * len(onStack)
	if pushed%16 != 0 {
		c.adjustRSP(extSub, 8)
		pushed += 8
	}
	for i := len(onStack) - 1; i >= 0; i-- {
		c.use(rax, onStack[i])
		c.emit(0x50) // push rax
	}
	for i, a := range args {
		c.use(argRegs[i], a)
	}

	c.emit(0xE8)
	c.relocs = append(c.relocs, Reloc{
		Offset: uint64(c.text.Len()),
		Target: callee.Name(),
		Kind:   RelocPLT32,
		Addend: -4,
	})
	c.imm32(0)
	c.adjustRSP(extAdd, pushed)

	if inst.HasResult() {
		c.def(rax, inst.Result)
	}
	return nil
}
