package ir

import "fmt"

// Builder appends instructions at an insertion point. A failed operation
// marks the enclosing function as unusable; the same error is returned for
// every later operation on it, while other functions stay buildable.
type Builder struct {
	m   *Module
	cur *Block
}

// New returns a builder with no module.
func New() *Builder {
	return &Builder{}
}

// NewBuilder returns a builder for an existing module.
func NewBuilder(m *Module) *Builder {
	return &Builder{m: m}
}

// CreateModule starts a fresh module and makes it the builder's target.
func (b *Builder) CreateModule(name string) *Module {
	b.m = NewModule(name)
	b.cur = nil
	return b.m
}

func (b *Builder) Module() *Module { return b.m }

// CreateFunction declares a function. The returned handle may be used as a
// callee before any block is added, which is how recursion is expressed.
func (b *Builder) CreateFunction(name string, ret Type, params ...Type) (FuncHandle, error) {
	if b.m == nil {
		return FuncHandle{}, &Error{Kind: NoInsertPoint, Func: name, Msg: "builder has no module"}
	}
	f, err := b.m.declare(name, ret, params)
	if err != nil {
		return FuncHandle{}, err
	}
	return f.Handle(), nil
}

// CreateBlock appends an empty block to fn. The insertion point is unchanged.
// An empty label gets a generated one.
func (b *Builder) CreateBlock(fn FuncHandle, label string) (BlockHandle, error) {
	f, err := b.function(fn)
	if err != nil {
		return BlockHandle{}, err
	}
	if label == "" {
		label = f.uniqueName(fmt.Sprintf("bb%d", len(f.blocks)))
	} else {
		if _, ok := f.labels[label]; ok || f.names[label] {
			return BlockHandle{}, b.fail(f, nil, DuplicateLabel, "label %q already defined", label)
		}
		f.names[label] = true
	}
	blk := &Block{fn: f, index: len(f.blocks), label: label}
	f.blocks = append(f.blocks, blk)
	f.labels[label] = blk.index
	return blk.Handle(), nil
}

// SetInsertPoint moves the insertion point to the end of block.
func (b *Builder) SetInsertPoint(block BlockHandle) error {
	if b.m == nil {
		return &Error{Kind: NoInsertPoint, Msg: "builder has no module"}
	}
	if block.mod != b.m.id || block.fn <= 0 || block.fn > len(b.m.funcs) {
		return &Error{Kind: InvalidHandle, Msg: "block handle out of range"}
	}
	f := b.m.funcs[block.fn-1]
	blk, err := f.Block(block)
	if err != nil {
		return err
	}
	b.cur = blk
	return nil
}

// InsertBlock returns the block at the insertion point, or nil.
func (b *Builder) InsertBlock() *Block { return b.cur }

// ConstInt materialises an i32 constant.
func (b *Builder) ConstInt(v uint32) (Value, error) {
	f, blk, err := b.insertPoint()
	if err != nil {
		return Value{}, err
	}
	inst := &Instruction{Op: OpConst, Imm: v}
	return b.emit(f, blk, inst, I32, ""), nil
}

// CreateAdd emits a wrapping 32-bit addition.
func (b *Builder) CreateAdd(x, y Value, name string) (Value, error) {
	return b.binary(OpAdd, x, y, name)
}

// CreateSub emits a wrapping 32-bit subtraction.
func (b *Builder) CreateSub(x, y Value, name string) (Value, error) {
	return b.binary(OpSub, x, y, name)
}

func (b *Builder) binary(op Opcode, x, y Value, name string) (Value, error) {
	f, blk, err := b.insertPoint()
	if err != nil {
		return Value{}, err
	}
	tx, err := b.operand(f, blk, x)
	if err != nil {
		return Value{}, err
	}
	ty, err := b.operand(f, blk, y)
	if err != nil {
		return Value{}, err
	}
	if tx != I32 || ty != I32 {
		return Value{}, b.fail(f, blk, TypeMismatch, "%s operands must be i32, got %s and %s", op, tx, ty)
	}
	inst := &Instruction{Op: op, Operands: []Value{x, y}}
	return b.emit(f, blk, inst, I32, name), nil
}

// CreateICmpEQ compares two i32 values for equality.
func (b *Builder) CreateICmpEQ(x, y Value, name string) (Value, error) {
	return b.CreateICmp(ICmpEQ, x, y, name)
}

// CreateICmp emits an unsigned integer comparison yielding an i1.
func (b *Builder) CreateICmp(pred Predicate, x, y Value, name string) (Value, error) {
	f, blk, err := b.insertPoint()
	if err != nil {
		return Value{}, err
	}
	if !pred.valid() {
		return Value{}, b.fail(f, blk, TypeMismatch, "unknown predicate %s", pred)
	}
	tx, err := b.operand(f, blk, x)
	if err != nil {
		return Value{}, err
	}
	ty, err := b.operand(f, blk, y)
	if err != nil {
		return Value{}, err
	}
	if tx != ty {
		return Value{}, b.fail(f, blk, TypeMismatch, "icmp %s operands disagree: %s and %s", pred, tx, ty)
	}
	inst := &Instruction{Op: OpICmp, Pred: pred, Operands: []Value{x, y}}
	return b.emit(f, blk, inst, I1, name), nil
}

// CreateCondBr closes the current block with a two-way branch on an i1.
func (b *Builder) CreateCondBr(cond Value, ifTrue, ifFalse BlockHandle) error {
	f, blk, err := b.insertPoint()
	if err != nil {
		return err
	}
	tc, err := b.operand(f, blk, cond)
	if err != nil {
		return err
	}
	if tc != I1 {
		return b.fail(f, blk, TypeMismatch, "branch condition must be i1, got %s", tc)
	}
	if err := b.target(f, blk, ifTrue); err != nil {
		return err
	}
	if err := b.target(f, blk, ifFalse); err != nil {
		return err
	}
	inst := &Instruction{Op: OpCondBr, Operands: []Value{cond}, Targets: []BlockHandle{ifTrue, ifFalse}}
	b.emit(f, blk, inst, Void, "")
	return nil
}

// CreateBr closes the current block with an unconditional branch.
func (b *Builder) CreateBr(dest BlockHandle) error {
	f, blk, err := b.insertPoint()
	if err != nil {
		return err
	}
	if err := b.target(f, blk, dest); err != nil {
		return err
	}
	b.emit(f, blk, &Instruction{Op: OpBr, Targets: []BlockHandle{dest}}, Void, "")
	return nil
}

// CreateCall emits a direct call. The result is invalid when the callee
// returns void.
func (b *Builder) CreateCall(callee FuncHandle, args []Value, name string) (Value, error) {
	f, blk, err := b.insertPoint()
	if err != nil {
		return Value{}, err
	}
	target, err := b.m.Func(callee)
	if err != nil {
		return Value{}, b.fail(f, blk, UnresolvedCallee, "callee handle is not declared in module %q", b.m.Name)
	}
	if target.discarded {
		return Value{}, b.fail(f, blk, UnresolvedCallee, "callee %q was discarded", target.name)
	}
	if len(args) != len(target.params) {
		return Value{}, b.fail(f, blk, ArityMismatch, "%q expects %d arguments, got %d", target.name, len(target.params), len(args))
	}
	for i, a := range args {
		ta, err := b.operand(f, blk, a)
		if err != nil {
			return Value{}, err
		}
		if ta != target.params[i] {
			return Value{}, b.fail(f, blk, TypeMismatch, "argument %d of %q must be %s, got %s", i, target.name, target.params[i], ta)
		}
	}
	inst := &Instruction{Op: OpCall, Callee: callee, Operands: append([]Value(nil), args...)}
	if target.ret == Void {
		b.emit(f, blk, inst, Void, "")
		return Value{}, nil
	}
	return b.emit(f, blk, inst, target.ret, name), nil
}

// CreateRet closes the current block returning v.
func (b *Builder) CreateRet(v Value) error {
	f, blk, err := b.insertPoint()
	if err != nil {
		return err
	}
	if f.ret == Void {
		return b.fail(f, blk, TypeMismatch, "void function cannot return a value")
	}
	tv, err := b.operand(f, blk, v)
	if err != nil {
		return err
	}
	if tv != f.ret {
		return b.fail(f, blk, TypeMismatch, "return type is %s, got %s", f.ret, tv)
	}
	b.emit(f, blk, &Instruction{Op: OpRet, Operands: []Value{v}}, Void, "")
	return nil
}

// CreateRetVoid closes the current block of a void function.
func (b *Builder) CreateRetVoid() error {
	f, blk, err := b.insertPoint()
	if err != nil {
		return err
	}
	if f.ret != Void {
		return b.fail(f, blk, TypeMismatch, "function must return %s", f.ret)
	}
	b.emit(f, blk, &Instruction{Op: OpRet}, Void, "")
	return nil
}

func (b *Builder) function(h FuncHandle) (*Function, error) {
	if b.m == nil {
		return nil, &Error{Kind: NoInsertPoint, Msg: "builder has no module"}
	}
	f, err := b.m.Func(h)
	if err != nil {
		return nil, err
	}
	if b.m.frozen {
		return nil, newError(ModuleFrozen, f, nil, "module %q is frozen", b.m.Name)
	}
	if f.discarded {
		return nil, newError(InvalidHandle, f, nil, "function was discarded")
	}
	if f.failure != nil {
		return nil, f.failure
	}
	return f, nil
}

func (b *Builder) insertPoint() (*Function, *Block, error) {
	if b.m == nil || b.cur == nil {
		return nil, nil, &Error{Kind: NoInsertPoint, Msg: "no block selected"}
	}
	blk := b.cur
	f, err := b.function(blk.fn.Handle())
	if err != nil {
		return nil, nil, err
	}
	if blk.Terminator() != nil {
		return nil, nil, b.fail(f, blk, BlockAlreadyTerminated, "block already ends with %s", blk.Terminator().Op)
	}
	return f, blk, nil
}

func (b *Builder) operand(f *Function, blk *Block, v Value) (Type, error) {
	if !f.Owns(v) {
		return Void, b.fail(f, blk, InvalidHandle, "value is not defined in this function")
	}
	return f.values[v.id-1].typ, nil
}

func (b *Builder) target(f *Function, blk *Block, h BlockHandle) error {
	t, err := f.Block(h)
	if err != nil {
		return b.fail(f, blk, InvalidHandle, "branch target does not belong to function")
	}
	if t.index == 0 {
		return b.fail(f, blk, InvalidHandle, "entry block %q cannot be a branch target", t.label)
	}
	return nil
}

func (b *Builder) emit(f *Function, blk *Block, inst *Instruction, typ Type, name string) Value {
	pos := len(blk.insts)
	if typ != Void {
		f.values = append(f.values, valueInfo{
			typ:   typ,
			name:  f.uniqueName(name),
			block: blk.index,
			inst:  pos,
		})
		inst.Result = Value{mod: f.module.id, fn: f.index + 1, id: len(f.values)}
	}
	blk.insts = append(blk.insts, inst)
	f.order = append(f.order, instRef{block: blk.index, inst: pos})
	return inst.Result
}

func (b *Builder) fail(f *Function, blk *Block, kind ErrorKind, format string, args ...interface{}) error {
	err := newError(kind, f, blk, format, args...)
	if f != nil && f.failure == nil {
		f.failure = err
	}
	return err
}
