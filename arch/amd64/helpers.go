package amd64

import "github.com/arc-language/core-jit/ir"

func (c *compiler) constOf(v ir.Value) (uint32, bool) {
	if def := c.fn.Definition(v); def != nil && def.Op == ir.OpConst {
		return def.Imm, true
	}
	return 0, false
}

// use materializes v in r, zero-extended to 64 bits.
func (c *compiler) use(r byte, v ir.Value) {
	if imm, ok := c.constOf(v); ok {
		c.movImm(r, imm)
		return
	}
	disp, ok := c.slots[v.Index()]
	if !ok {
		c.xor(r) // unreachable for verified functions
		return
	}
	c.load(r, disp, SizeOf(c.fn.ValueType(v)))
}

// def writes r to the slot of v.
func (c *compiler) def(r byte, v ir.Value) {
	if disp, ok := c.slots[v.Index()]; ok {
		c.store(r, disp, SizeOf(c.fn.ValueType(v)))
	}
}

// movImm: mov r32, imm32, or xor r32, r32 for zero.
func (c *compiler) movImm(r byte, imm uint32) {
	if imm == 0 {
		c.xor(r)
		return
	}
	if r >= 8 {
		c.emit(0x41)
	}
	c.emit(0xB8 + r&7)
	c.imm32(imm)
}

func (c *compiler) xor(r byte) {
	if r >= 8 {
		c.emit(0x45) // REX.RB
	}
	c.emit(0x31, 0xC0|(r&7)<<3|r&7)
}

// rbpDisp emits a [rbp+disp32] memory operand with r in the reg field.
func (c *compiler) rbpDisp(r byte, disp int) {
	c.emit(0x80 | (r&7)<<3 | rbp)
	c.imm32(uint32(int32(disp)))
}

// load: movzx r32, byte [rbp+disp] for i1, mov r32, dword [rbp+disp] otherwise.
func (c *compiler) load(r byte, disp int, size int) {
	if r >= 8 {
		c.emit(0x44) // REX.R
	}
	if size == 1 {
		c.emit(0x0F, 0xB6)
	} else {
		c.emit(0x8B)
	}
	c.rbpDisp(r, disp)
}

// store: mov [rbp+disp], r8 for i1, mov [rbp+disp], r32 otherwise.
func (c *compiler) store(r byte, disp int, size int) {
	switch {
	case r >= 8:
		c.emit(0x44)
	case size == 1 && r >= rsp:
		c.emit(0x40) // spl..dil instead of ah..bh
	}
	if size == 1 {
		c.emit(0x88)
	} else {
		c.emit(0x89)
	}
	c.rbpDisp(r, disp)
}
