package amd64

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/ir"
)

// Artifact is the relocatable output of Compile.
type Artifact struct {
	Text   []byte
	Funcs  []Func
	Labels []Label
	Relocs []Reloc
}

// Func locates the code of one defined function inside Text.
type Func struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Label marks the start of a basic block. Name is unique within the
// artifact; Block is the IR label it came from.
type Label struct {
	Name   string
	Block  string
	Offset uint64
}

// Reloc is a 32-bit PC-relative reference to Target at Offset.
type Reloc struct {
	Offset uint64
	Target string
	Kind   RelocKind
	Addend int64
}

// RelocKind values match the ELF x86-64 relocation numbers.
type RelocKind uint32

const (
	RelocPC32  RelocKind = 2
	RelocPLT32 RelocKind = 4
)

type compiler struct {
	m    *ir.Module
	fn   *ir.Function
	text bytes.Buffer

	frame   int
	slots   map[int]int // value index -> rbp displacement
	blockAt map[int]int // block index -> text offset
	next    int         // block laid out after the current one, -1 at the end
	patches []patch

	relocs []Reloc
	labels []Label
}

// patch is a rel32 jump operand waiting for its block to be placed.
type patch struct {
	at    int
	block int
}

// Compile lowers every defined function of m to x86-64 machine code.
// Declarations produce no code; calls to them stay as relocations.
func Compile(m *ir.Module) (*Artifact, error) {
	c := &compiler{m: m}
	var funcs []Func
	for _, fn := range m.Functions() {
		if fn.IsDeclaration() {
			continue
		}
		if err := fn.Verify(); err != nil {
			return nil, errors.Wrapf(err, "in function %s", fn.Name())
		}
		for c.text.Len()%16 != 0 {
			c.emit(0xCC) // int3 padding
		}
		start := c.text.Len()
		if err := c.function(len(funcs), fn); err != nil {
			return nil, errors.Wrapf(err, "in function %s", fn.Name())
		}
		funcs = append(funcs, Func{
			Name:   fn.Name(),
			Offset: uint64(start),
			Size:   uint64(c.text.Len() - start),
		})
	}
	return &Artifact{
		Text:   c.text.Bytes(),
		Funcs:  funcs,
		Labels: c.labels,
		Relocs: c.relocs,
	}, nil
}

// layout gives every parameter and every non-constant result its own
// rbp-relative slot and returns the 16-byte aligned frame size.
func layout(fn *ir.Function) (map[int]int, int) {
	slots := make(map[int]int)
	size := 0
	place := func(v ir.Value) {
		size += max(SizeOf(fn.ValueType(v)), 8)
		slots[v.Index()] = -size
	}
	for i := 0; i < fn.NumParams(); i++ {
		place(fn.Param(i))
	}
	for _, blk := range fn.Blocks() {
		for _, inst := range blk.Instructions() {
			// Constants become immediates.
			if inst.HasResult() && inst.Op != ir.OpConst {
				place(inst.Result)
			}
		}
	}
	return slots, alignUp(size, 16)
}

func (c *compiler) function(ordinal int, fn *ir.Function) error {
	c.fn = fn
	c.slots, c.frame = layout(fn)
	c.blockAt = make(map[int]int)
	c.patches = c.patches[:0]

	c.prologue()
	c.spillParams()

	blocks := fn.Blocks()
	for i, blk := range blocks {
		c.blockAt[blk.Index()] = c.text.Len()
		c.labels = append(c.labels, Label{
			Name:   fmt.Sprintf(".LBB%d_%d", ordinal, blk.Index()),
			Block:  blk.Label(),
			Offset: uint64(c.text.Len()),
		})
		c.next = -1
		if i+1 < len(blocks) {
			c.next = blocks[i+1].Index()
		}
		for _, inst := range blk.Instructions() {
			if err := c.instruction(inst); err != nil {
				return errors.Wrapf(err, "in block %s", blk.Label())
			}
		}
	}
	return c.resolveJumps()
}

// prologue: push rbp; mov rbp, rsp; sub rsp, frame.
func (c *compiler) prologue() {
	c.emit(0x55)
	c.emit(0x48, 0x89, 0xE5)
	c.adjustRSP(extSub, c.frame)
}

const (
	extAdd byte = 0
	extSub byte = 5
)

// adjustRSP emits add or sub of n to rsp, using the imm8 form when n fits.
func (c *compiler) adjustRSP(ext byte, n int) {
	switch {
	case n == 0:
	case n < 128:
		c.emit(0x48, 0x83, 0xC0|ext<<3|rsp, byte(n))
	default:
		c.emit(0x48, 0x81, 0xC0|ext<<3|rsp)
		c.imm32(uint32(n))
	}
}

// spillParams copies incoming arguments into their slots. The seventh
// argument onwards sits above the return address at rbp+16.
func (c *compiler) spillParams() {
	fn := c.fn
	for i := 0; i < fn.NumParams(); i++ {
		p := fn.Param(i)
		size := SizeOf(fn.ValueType(p))
		if i < len(argRegs) {
			c.store(argRegs[i], c.slots[p.Index()], size)
			continue
		}
		c.load(rax, 16+8*(i-len(argRegs)), size)
		c.store(rax, c.slots[p.Index()], size)
	}
}

func (c *compiler) resolveJumps() error {
	text := c.text.Bytes()
	for _, p := range c.patches {
		dest, ok := c.blockAt[p.block]
		if !ok {
			return errors.Errorf("jump to unplaced block %d", p.block)
		}
		binary.LittleEndian.PutUint32(text[p.at:], uint32(int32(dest-(p.at+4))))
	}
	return nil
}

func (c *compiler) emit(b ...byte) { c.text.Write(b) }

func (c *compiler) imm32(v uint32) {
	c.text.Write(binary.LittleEndian.AppendUint32(nil, v))
}
