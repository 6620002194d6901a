package amd64

import (
	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/ir"
)

func (c *compiler) instruction(inst *ir.Instruction) error {
	switch inst.Op {
	case ir.OpConst:
		return nil
	case ir.OpAdd:
		c.arith(inst, 0x01, extAdd)
	case ir.OpSub:
		c.arith(inst, 0x29, extSub)
	case ir.OpICmp:
		return c.icmp(inst)
	case ir.OpRet:
		c.ret(inst)
	case ir.OpBr:
		c.jumpUnlessNext(inst.Targets[0])
	case ir.OpCondBr:
		c.condBr(inst)
	case ir.OpCall:
		return c.call(inst)
	default:
		return errors.Errorf("unsupported opcode: %s", inst.Op)
	}
	return nil
}

// arith computes eax = lhs op rhs, wrapping modulo 2^32. opcode is the
// "op r/m32, r32" form and ext the /digit of the immediate forms.
func (c *compiler) arith(inst *ir.Instruction, opcode, ext byte) {
	c.use(rax, inst.Operands[0])
	rhs := inst.Operands[1]
	if imm, ok := c.constOf(rhs); ok {
		if v := int32(imm); v >= -128 && v < 128 {
			c.emit(0x83, 0xC0|ext<<3, byte(v))
		} else {
			c.emit(0x81, 0xC0|ext<<3)
			c.imm32(imm)
		}
	} else {
		c.use(rcx, rhs)
		c.emit(opcode, 0xC8) // op eax, ecx
	}
	c.def(rax, inst.Result)
}

// Condition codes of the unsigned SETcc/Jcc forms.
var predCC = map[ir.Predicate]byte{
	ir.ICmpEQ:  0x4, // e
	ir.ICmpNE:  0x5, // ne
	ir.ICmpULT: 0x2, // b
	ir.ICmpUGE: 0x3, // ae
	ir.ICmpULE: 0x6, // be
	ir.ICmpUGT: 0x7, // a
}

func (c *compiler) icmp(inst *ir.Instruction) error {
	cc, ok := predCC[inst.Pred]
	if !ok {
		return errors.Errorf("unsupported icmp predicate: %s", inst.Pred)
	}
	c.use(rax, inst.Operands[0])
	c.use(rcx, inst.Operands[1])
	c.emit(0x39, 0xC8)          // cmp eax, ecx
	c.emit(0x0F, 0x90|cc, 0xC0) // setcc al
	c.emit(0x0F, 0xB6, 0xC0)    // movzx eax, al
	c.def(rax, inst.Result)
	return nil
}
