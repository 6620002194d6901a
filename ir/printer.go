package ir

import (
	lir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// String renders the module as LLVM textual IR. Output is a pure function of
// the construction sequence.
func (m *Module) String() string {
	return m.LLVM().String()
}

// LLVM translates the live functions of m into an llir module.
func (m *Module) LLVM() *lir.Module {
	out := lir.NewModule()
	out.SourceFilename = m.Name
	out.DataLayout = m.dataLayout
	out.TargetTriple = m.triple

	live := m.Functions()
	funcs := make(map[int]*lir.Func, len(live))
	for _, f := range live {
		params := make([]*lir.Param, len(f.params))
		for i, p := range f.params {
			params[i] = lir.NewParam(f.values[i].name, llvmType(p))
		}
		lf := out.NewFunc(f.name, llvmType(f.ret), params...)
		lf.GC = f.gc
		funcs[f.index] = lf
	}
	// A live caller may still reference a discarded function. It is printed
	// as a bare declaration so the output stays well formed; Verify reports
	// the call as unresolved.
	callee := func(h FuncHandle) *lir.Func {
		idx := h.id - 1
		if lf, ok := funcs[idx]; ok {
			return lf
		}
		f := m.funcs[idx]
		name := f.name
		if _, taken := m.byName[name]; taken {
			name += ".discarded"
		}
		params := make([]*lir.Param, len(f.params))
		for i, p := range f.params {
			params[i] = lir.NewParam("", llvmType(p))
		}
		lf := out.NewFunc(name, llvmType(f.ret), params...)
		funcs[idx] = lf
		return lf
	}
	for _, f := range live {
		if !f.IsDeclaration() {
			lowerBody(f, funcs[f.index], callee)
		}
	}
	return out
}

func lowerBody(f *Function, lf *lir.Func, callee func(FuncHandle) *lir.Func) {
	blocks := make([]*lir.Block, len(f.blocks))
	for i, blk := range f.blocks {
		blocks[i] = lf.NewBlock(blk.label)
	}
	vals := make([]value.Value, len(f.values))
	for i := range f.params {
		vals[i] = lf.Params[i]
	}
	operand := func(v Value) value.Value { return vals[v.id-1] }
	target := func(h BlockHandle) *lir.Block { return blocks[h.id-1] }

	// Creation order keeps every operand defined before it is referenced,
	// even when a dominating block sits later in the block list.
	for _, ref := range f.order {
		lb := blocks[ref.block]
		inst := f.blocks[ref.block].insts[ref.inst]
		var name string
		if inst.HasResult() {
			name = f.values[inst.Result.id-1].name
		}
		switch inst.Op {
		case OpConst:
			vals[inst.Result.id-1] = constant.NewInt(types.I32, int64(inst.Imm))
		case OpAdd:
			v := lb.NewAdd(operand(inst.Operands[0]), operand(inst.Operands[1]))
			v.SetName(name)
			vals[inst.Result.id-1] = v
		case OpSub:
			v := lb.NewSub(operand(inst.Operands[0]), operand(inst.Operands[1]))
			v.SetName(name)
			vals[inst.Result.id-1] = v
		case OpICmp:
			v := lb.NewICmp(llvmPred(inst.Pred), operand(inst.Operands[0]), operand(inst.Operands[1]))
			v.SetName(name)
			vals[inst.Result.id-1] = v
		case OpCall:
			args := make([]value.Value, len(inst.Operands))
			for i, a := range inst.Operands {
				args[i] = operand(a)
			}
			v := lb.NewCall(callee(inst.Callee), args...)
			if inst.HasResult() {
				v.SetName(name)
				vals[inst.Result.id-1] = v
			}
		case OpCondBr:
			lb.NewCondBr(operand(inst.Operands[0]), target(inst.Targets[0]), target(inst.Targets[1]))
		case OpBr:
			lb.NewBr(target(inst.Targets[0]))
		case OpRet:
			if len(inst.Operands) == 0 {
				lb.NewRet(nil)
			} else {
				lb.NewRet(operand(inst.Operands[0]))
			}
		}
	}
	// Blocks of a function still under construction print as unreachable
	// rather than leaving llir with a nil terminator.
	for _, lb := range blocks {
		if lb.Term == nil {
			lb.NewUnreachable()
		}
	}
}

func llvmType(t Type) types.Type {
	switch t {
	case I1:
		return types.I1
	case I32:
		return types.I32
	default:
		return types.Void
	}
}

func llvmPred(p Predicate) enum.IPred {
	switch p {
	case ICmpNE:
		return enum.IPredNE
	case ICmpULT:
		return enum.IPredULT
	case ICmpULE:
		return enum.IPredULE
	case ICmpUGT:
		return enum.IPredUGT
	case ICmpUGE:
		return enum.IPredUGE
	default:
		return enum.IPredEQ
	}
}
