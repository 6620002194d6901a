package corejit

import (
	"fmt"

	"github.com/arc-language/core-jit/ir"
)

// body collects the first construction error while a function body is
// built, so a definition reads as straight-line code.
type body struct {
	b   *ir.Builder
	fn  ir.FuncHandle
	f   *ir.Function
	err error
}

func define(b *ir.Builder, name string, ret ir.Type, params ...ir.Type) *body {
	d := &body{b: b}
	d.fn, d.err = b.CreateFunction(name, ret, params...)
	if d.err == nil {
		d.f, d.err = b.Module().Func(d.fn)
	}
	return d
}

func (d *body) check(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *body) val(v ir.Value, err error) ir.Value {
	d.check(err)
	return v
}

func (d *body) param(i int, name string) ir.Value {
	if d.err != nil {
		return ir.Value{}
	}
	d.check(d.f.SetParamName(i, name))
	return d.f.Param(i)
}

func (d *body) block(label string) ir.BlockHandle {
	if d.err != nil {
		return ir.BlockHandle{}
	}
	h, err := d.b.CreateBlock(d.fn, label)
	d.check(err)
	return h
}

func (d *body) at(h ir.BlockHandle) {
	if d.err == nil {
		d.check(d.b.SetInsertPoint(h))
	}
}

func (d *body) konst(v uint32) ir.Value {
	if d.err != nil {
		return ir.Value{}
	}
	return d.val(d.b.ConstInt(v))
}

func (d *body) ret(v ir.Value) {
	if d.err == nil {
		d.check(d.b.CreateRet(v))
	}
}

func (d *body) done() (ir.FuncHandle, error) {
	if d.err != nil {
		return d.fn, d.err
	}
	return d.fn, nil
}

// DefineSum defines sum(x, y, z) = x + y + z.
func DefineSum(b *ir.Builder) (ir.FuncHandle, error) {
	d := define(b, "sum", ir.I32, ir.I32, ir.I32, ir.I32)
	x := d.param(0, "x")
	y := d.param(1, "y")
	z := d.param(2, "z")

	d.at(d.block("entry"))
	if d.err == nil {
		xy := d.val(b.CreateAdd(x, y, "x + y"))
		d.ret(d.val(b.CreateAdd(xy, z, "x + y + z")))
	}
	return d.done()
}

// DefineFibo defines the recursive fibo(n). The function calls itself
// through its own handle while its body is still being built.
func DefineFibo(b *ir.Builder) (ir.FuncHandle, error) {
	d := define(b, "fibo", ir.I32, ir.I32)
	if d.err == nil {
		d.check(d.f.SetGC("shadow-stack"))
	}
	n := d.param(0, "n")

	entry := d.block("entry")
	isZero := d.block("n_is_0")
	notZero := d.block("n_is_not_0")
	isOne := d.block("n_is_1")
	gtOne := d.block("n_gt_1")

	d.at(entry)
	if d.err == nil {
		cond := d.val(b.CreateICmpEQ(n, d.konst(0), "n == 0"))
		d.check(b.CreateCondBr(cond, isZero, notZero))
	}

	d.at(isZero)
	d.ret(d.konst(0))

	d.at(notZero)
	if d.err == nil {
		cond := d.val(b.CreateICmpEQ(n, d.konst(1), "n == 1"))
		d.check(b.CreateCondBr(cond, isOne, gtOne))
	}

	d.at(isOne)
	d.ret(d.konst(1))

	d.at(gtOne)
	if d.err == nil {
		prev := d.val(b.CreateSub(n, d.konst(1), "n - 1"))
		prev2 := d.val(b.CreateSub(n, d.konst(2), "n - 2"))
		f1 := d.val(b.CreateCall(d.fn, []ir.Value{prev}, "f(n-1)"))
		f2 := d.val(b.CreateCall(d.fn, []ir.Value{prev2}, "f(n-2)"))
		d.ret(d.val(b.CreateAdd(f1, f2, "f(n-1)+f(n-2)")))
	}
	return d.done()
}

// DeclarePrintU32 declares the host function print_u32(i32). The engine
// binds it to a native address.
func DeclarePrintU32(b *ir.Builder) (ir.FuncHandle, error) {
	return b.CreateFunction("print_u32", ir.Void, ir.I32)
}

// DefineUserMain defines user_main(), which prints fibo(n) through printFn.
func DefineUserMain(b *ir.Builder, fibo, printFn ir.FuncHandle, n uint32) (ir.FuncHandle, error) {
	d := define(b, "user_main", ir.Void)
	d.at(d.block("entry"))
	if d.err == nil {
		v := d.val(b.CreateCall(fibo, []ir.Value{d.konst(n)}, fmt.Sprintf("fibo(%d)", n)))
		d.val(b.CreateCall(printFn, []ir.Value{v}, ""))
		if d.err == nil {
			d.check(b.CreateRetVoid())
		}
	}
	return d.done()
}
