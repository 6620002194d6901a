// Package ir is an SSA intermediate representation for small unsigned
// 32-bit integer functions. Functions, blocks and values are addressed through
// handles that index per-module arenas, so a function can be called before
// its body exists.
package ir

import (
	"fmt"
	"sync/atomic"
)

// moduleIDs numbers modules so handles from one module are rejected by
// another.
var moduleIDs atomic.Uint64

// FuncHandle identifies a function within its module. The zero value is
// invalid.
type FuncHandle struct {
	mod uint64
	id  int
}

// IsValid reports whether h was returned by CreateFunction.
func (h FuncHandle) IsValid() bool { return h.mod > 0 && h.id > 0 }

// BlockHandle identifies a basic block within its function.
type BlockHandle struct {
	mod uint64
	fn  int
	id  int
}

func (h BlockHandle) IsValid() bool { return h.mod > 0 && h.fn > 0 && h.id > 0 }

// Value identifies an SSA value: a parameter or an instruction result.
type Value struct {
	mod uint64
	fn  int
	id  int
}

func (v Value) IsValid() bool { return v.mod > 0 && v.fn > 0 && v.id > 0 }

// Index returns the position of v in its function's value arena.
// Parameters come first.
func (v Value) Index() int { return v.id - 1 }

// Module is the unit of compilation: an ordered set of functions plus the
// target metadata they are lowered for.
type Module struct {
	Name string
	id   uint64

	triple     string
	dataLayout string
	targetSet  bool

	funcs  []*Function
	byName map[string]int
	frozen bool
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:   name,
		id:     moduleIDs.Add(1),
		byName: make(map[string]int),
	}
}

// SetTarget records the target triple and data layout. It may only be called
// once.
func (m *Module) SetTarget(triple, dataLayout string) error {
	if m.targetSet {
		return &Error{Kind: TargetAlreadySet, Msg: fmt.Sprintf("module %q already targets %q", m.Name, m.triple)}
	}
	m.triple = triple
	m.dataLayout = dataLayout
	m.targetSet = true
	return nil
}

func (m *Module) Triple() string     { return m.triple }
func (m *Module) DataLayout() string { return m.dataLayout }
func (m *Module) HasTarget() bool    { return m.targetSet }

// Freeze forbids further construction. Lowering freezes the module.
func (m *Module) Freeze()      { m.frozen = true }
func (m *Module) Frozen() bool { return m.frozen }

// Functions returns the live functions in declaration order.
func (m *Module) Functions() []*Function {
	out := make([]*Function, 0, len(m.funcs))
	for _, f := range m.funcs {
		if !f.discarded {
			out = append(out, f)
		}
	}
	return out
}

// Function looks up a live function by name.
func (m *Module) Function(name string) (*Function, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.funcs[idx], true
}

// Func resolves a handle.
func (m *Module) Func(h FuncHandle) (*Function, error) {
	if h.mod != m.id {
		return nil, &Error{Kind: InvalidHandle, Msg: fmt.Sprintf("function handle does not belong to module %q", m.Name)}
	}
	if h.id <= 0 || h.id > len(m.funcs) {
		return nil, &Error{Kind: InvalidHandle, Msg: fmt.Sprintf("function handle %d out of range", h.id)}
	}
	return m.funcs[h.id-1], nil
}

// Discard turns a function into a tombstone: its name is released and it is
// skipped by printing and lowering. Callers that still reference it fail
// verification.
func (m *Module) Discard(h FuncHandle) error {
	if m.frozen {
		return &Error{Kind: ModuleFrozen, Msg: "cannot discard from a frozen module"}
	}
	f, err := m.Func(h)
	if err != nil {
		return err
	}
	if f.discarded {
		return nil
	}
	f.discarded = true
	delete(m.byName, f.name)
	return nil
}

// Verify checks every live function. The first failure is returned.
func (m *Module) Verify() error {
	for _, f := range m.Functions() {
		if err := f.Verify(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) declare(name string, ret Type, params []Type) (*Function, error) {
	if m.frozen {
		return nil, &Error{Kind: ModuleFrozen, Func: name, Msg: "cannot declare in a frozen module"}
	}
	if _, ok := m.byName[name]; ok {
		return nil, &Error{Kind: DuplicateDefinition, Func: name, Msg: fmt.Sprintf("function %q already declared in module %q", name, m.Name)}
	}
	if name == "" {
		return nil, &Error{Kind: InvalidHandle, Msg: "function name is empty"}
	}
	if !ret.valid() {
		return nil, &Error{Kind: TypeMismatch, Func: name, Msg: fmt.Sprintf("unsupported return type %s", ret)}
	}
	for i, p := range params {
		if p != I32 && p != I1 {
			return nil, &Error{Kind: TypeMismatch, Func: name, Msg: fmt.Sprintf("parameter %d has unsupported type %s", i, p)}
		}
	}

	f := &Function{
		module: m,
		index:  len(m.funcs),
		name:   name,
		ret:    ret,
		params: append([]Type(nil), params...),
		labels: make(map[string]int),
		names:  make(map[string]bool),
	}
	for _, p := range params {
		f.values = append(f.values, valueInfo{typ: p, block: -1, inst: -1})
	}
	m.funcs = append(m.funcs, f)
	m.byName[name] = f.index
	return f, nil
}

// valueInfo records where a value was produced. Parameters have block -1.
type valueInfo struct {
	typ   Type
	name  string
	block int
	inst  int
}

// instRef locates an instruction by block and position.
type instRef struct {
	block int
	inst  int
}

// Function is a declared function and, once built, its body.
type Function struct {
	module *Module
	index  int
	name   string
	ret    Type
	params []Type
	gc     string

	values []valueInfo
	blocks []*Block
	order  []instRef
	labels map[string]int
	names  map[string]bool

	failure   error
	discarded bool
}

func (f *Function) Name() string        { return f.name }
func (f *Function) ReturnType() Type    { return f.ret }
func (f *Function) NumParams() int      { return len(f.params) }
func (f *Function) Handle() FuncHandle  { return FuncHandle{mod: f.module.id, id: f.index + 1} }
func (f *Function) Blocks() []*Block    { return f.blocks }
func (f *Function) NumValues() int      { return len(f.values) }
func (f *Function) GC() string          { return f.gc }
func (f *Function) Failure() error      { return f.failure }
func (f *Function) IsDeclaration() bool { return len(f.blocks) == 0 }

// Signature returns the declared type of f.
func (f *Function) Signature() Signature {
	return Signature{Params: append([]Type(nil), f.params...), Ret: f.ret}
}

// SetGC names the garbage collection strategy printed with the function.
func (f *Function) SetGC(name string) error {
	if f.module.frozen {
		return newError(ModuleFrozen, f, nil, "module %q is frozen", f.module.Name)
	}
	f.gc = name
	return nil
}

// Param returns the i-th parameter value.
func (f *Function) Param(i int) Value {
	if i < 0 || i >= len(f.params) {
		return Value{}
	}
	return Value{mod: f.module.id, fn: f.index + 1, id: i + 1}
}

// SetParamName names the i-th parameter in printed IR.
func (f *Function) SetParamName(i int, name string) error {
	if f.module.frozen {
		return newError(ModuleFrozen, f, nil, "module %q is frozen", f.module.Name)
	}
	if i < 0 || i >= len(f.params) {
		return newError(InvalidHandle, f, nil, "parameter %d out of range", i)
	}
	if name != "" && f.names[name] {
		return newError(DuplicateLabel, f, nil, "name %q already in use", name)
	}
	if old := f.values[i].name; old != "" {
		delete(f.names, old)
	}
	f.values[i].name = name
	if name != "" {
		f.names[name] = true
	}
	return nil
}

// Entry returns the entry block, or nil for a declaration.
func (f *Function) Entry() *Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// Block resolves a block handle owned by f.
func (f *Function) Block(h BlockHandle) (*Block, error) {
	if h.mod != f.module.id || h.fn != f.index+1 || h.id <= 0 || h.id > len(f.blocks) {
		return nil, newError(InvalidHandle, f, nil, "block handle does not belong to function")
	}
	return f.blocks[h.id-1], nil
}

// Owns reports whether v was produced within f.
func (f *Function) Owns(v Value) bool {
	return v.mod == f.module.id && v.fn == f.index+1 && v.id > 0 && v.id <= len(f.values)
}

// ValueType returns the type of v, or Void when v is not owned by f.
func (f *Function) ValueType(v Value) Type {
	if !f.Owns(v) {
		return Void
	}
	return f.values[v.id-1].typ
}

// ValueName returns the printed name of v; empty when unnamed.
func (f *Function) ValueName(v Value) string {
	if !f.Owns(v) {
		return ""
	}
	return f.values[v.id-1].name
}

// IsParam reports whether v is one of f's parameters.
func (f *Function) IsParam(v Value) bool {
	return f.Owns(v) && f.values[v.id-1].block < 0
}

// Definition returns the instruction producing v; nil for parameters.
func (f *Function) Definition(v Value) *Instruction {
	if !f.Owns(v) {
		return nil
	}
	vi := f.values[v.id-1]
	if vi.block < 0 {
		return nil
	}
	return f.blocks[vi.block].insts[vi.inst]
}

// ParamIndex returns the position of parameter v, or -1.
func (f *Function) ParamIndex(v Value) int {
	if !f.IsParam(v) {
		return -1
	}
	return v.id - 1
}

func (f *Function) uniqueName(name string) string {
	if name == "" {
		return ""
	}
	candidate := name
	for i := 1; f.names[candidate]; i++ {
		candidate = fmt.Sprintf("%s.%d", name, i)
	}
	f.names[candidate] = true
	return candidate
}

// Block is a basic block: straight-line instructions closed by one
// terminator.
type Block struct {
	fn    *Function
	index int
	label string
	insts []*Instruction
}

func (b *Block) Label() string                { return b.label }
func (b *Block) Index() int                   { return b.index }
func (b *Block) Instructions() []*Instruction { return b.insts }
func (b *Block) Handle() BlockHandle          { return BlockHandle{mod: b.fn.module.id, fn: b.fn.index + 1, id: b.index + 1} }

// Terminator returns the closing instruction, or nil while the block is open.
func (b *Block) Terminator() *Instruction {
	if n := len(b.insts); n > 0 && b.insts[n-1].Op.IsTerminator() {
		return b.insts[n-1]
	}
	return nil
}

// Successors returns the blocks b may branch to.
func (b *Block) Successors() []*Block {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	out := make([]*Block, 0, len(term.Targets))
	for _, t := range term.Targets {
		out = append(out, b.fn.blocks[t.id-1])
	}
	return out
}

// Instruction is a single IR operation. Result is invalid for instructions
// that produce nothing.
type Instruction struct {
	Op       Opcode
	Pred     Predicate
	Result   Value
	Operands []Value
	Imm      uint32
	Callee   FuncHandle
	// Targets holds the true/false successors of a condbr, or the single
	// successor of a br.
	Targets []BlockHandle
}

// HasResult reports whether the instruction defines a value.
func (inst *Instruction) HasResult() bool { return inst.Result.IsValid() }
