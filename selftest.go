package corejit

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/ir"
)

// TestCase builds a module whose main() must return Expected when executed.
type TestCase struct {
	Name     string
	Build    func(*ir.Builder) error
	Expected uint32
}

// Result is the outcome of one TestCase.
type Result struct {
	Name     string
	Expected uint32
	Got      uint32
	Err      error
}

func (r Result) Passed() bool { return r.Err == nil && r.Got == r.Expected }

// SelfTests is the table run by RunSelfTests.
var SelfTests = []TestCase{
	{Name: "simple_return", Build: buildSimpleReturn, Expected: 42},
	{Name: "addition", Build: buildAddition, Expected: 15},
	{Name: "subtraction", Build: buildSubtraction, Expected: 5},
	{Name: "wraparound", Build: buildWraparound, Expected: 4294967294},
	{Name: "comparison_eq", Build: buildCompare(ir.ICmpEQ, 5, 5), Expected: 1},
	{Name: "comparison_ne", Build: buildCompare(ir.ICmpNE, 5, 3), Expected: 1},
	{Name: "comparison_ult", Build: buildCompare(ir.ICmpULT, 3, 5), Expected: 1},
	{Name: "comparison_ule", Build: buildCompare(ir.ICmpULE, 5, 5), Expected: 1},
	{Name: "comparison_ugt", Build: buildCompare(ir.ICmpUGT, 3, 5), Expected: 0},
	{Name: "comparison_uge", Build: buildCompare(ir.ICmpUGE, 5, 5), Expected: 1},
	{Name: "unsigned_compare", Build: buildCompare(ir.ICmpUGT, 0xFFFFFFFF, 1), Expected: 1},
	{Name: "if_then_else", Build: buildIfThenElse, Expected: 10},
	{Name: "nested_if", Build: buildNestedIf, Expected: 30},
	{Name: "early_return", Build: buildEarlyReturn, Expected: 5},
	{Name: "multiple_args", Build: buildMultipleArgs, Expected: 42},
	{Name: "nested_calls", Build: buildNestedCalls, Expected: 17},
	{Name: "max_function", Build: buildMaxFunction, Expected: 88},
	{Name: "recursive_sum", Build: buildRecursiveSum, Expected: 55},
	{Name: "fibonacci", Build: buildFibonacci, Expected: 55},
	{Name: "sum_of_three", Build: buildSumOfThree, Expected: 6},
}

// RunSelfTests builds, executes and checks every case in its own module.
func RunSelfTests(cpu string, cases []TestCase) []Result {
	results := make([]Result, 0, len(cases))
	for _, tc := range cases {
		r := Result{Name: tc.Name, Expected: tc.Expected}
		r.Got, r.Err = runCase(cpu, tc)
		results = append(results, r)
	}
	return results
}

func runCase(cpu string, tc TestCase) (uint32, error) {
	s, err := NewSession(tc.Name, cpu)
	if err != nil {
		return 0, err
	}
	if err := tc.Build(s.Builder); err != nil {
		return 0, errors.Wrap(err, "build")
	}
	e, err := s.JIT()
	if err != nil {
		return 0, err
	}
	defer e.Close()

	var main func() uint32
	if err := e.Lookup("main", &main); err != nil {
		return 0, err
	}
	return main(), nil
}

// mainReturning defines main() and leaves the builder in its entry block.
func mainReturning(b *ir.Builder) *body {
	d := define(b, "main", ir.I32)
	d.at(d.block("entry"))
	return d
}

func buildSimpleReturn(b *ir.Builder) error {
	d := mainReturning(b)
	d.ret(d.konst(42))
	_, err := d.done()
	return err
}

func buildAddition(b *ir.Builder) error {
	d := mainReturning(b)
	if d.err == nil {
		d.ret(d.val(b.CreateAdd(d.konst(7), d.konst(8), "result")))
	}
	_, err := d.done()
	return err
}

func buildSubtraction(b *ir.Builder) error {
	d := mainReturning(b)
	if d.err == nil {
		d.ret(d.val(b.CreateSub(d.konst(10), d.konst(5), "result")))
	}
	_, err := d.done()
	return err
}

func buildWraparound(b *ir.Builder) error {
	d := mainReturning(b)
	if d.err == nil {
		d.ret(d.val(b.CreateSub(d.konst(3), d.konst(5), "result")))
	}
	_, err := d.done()
	return err
}

// buildCompare returns 1 when x pred y holds and 0 otherwise.
func buildCompare(pred ir.Predicate, x, y uint32) func(*ir.Builder) error {
	return func(b *ir.Builder) error {
		d := define(b, "main", ir.I32)
		entry := d.block("entry")
		yes := d.block("yes")
		no := d.block("no")

		d.at(entry)
		if d.err == nil {
			cond := d.val(b.CreateICmp(pred, d.konst(x), d.konst(y), "cond"))
			d.check(b.CreateCondBr(cond, yes, no))
		}
		d.at(yes)
		d.ret(d.konst(1))
		d.at(no)
		d.ret(d.konst(0))
		_, err := d.done()
		return err
	}
}

func buildIfThenElse(b *ir.Builder) error {
	d := define(b, "main", ir.I32)
	entry := d.block("entry")
	thenBlock := d.block("then")
	elseBlock := d.block("else")

	d.at(entry)
	if d.err == nil {
		cond := d.val(b.CreateICmp(ir.ICmpUGT, d.konst(5), d.konst(3), "cond"))
		d.check(b.CreateCondBr(cond, thenBlock, elseBlock))
	}
	d.at(thenBlock)
	d.ret(d.konst(10))
	d.at(elseBlock)
	d.ret(d.konst(20))
	_, err := d.done()
	return err
}

func buildNestedIf(b *ir.Builder) error {
	d := define(b, "main", ir.I32)
	entry := d.block("entry")
	outerThen := d.block("outer_then")
	innerThen := d.block("inner_then")
	innerElse := d.block("inner_else")
	outerElse := d.block("outer_else")

	d.at(entry)
	if d.err == nil {
		cond := d.val(b.CreateICmp(ir.ICmpUGT, d.konst(10), d.konst(5), "cond1"))
		d.check(b.CreateCondBr(cond, outerThen, outerElse))
	}
	d.at(outerThen)
	if d.err == nil {
		cond := d.val(b.CreateICmp(ir.ICmpULT, d.konst(3), d.konst(7), "cond2"))
		d.check(b.CreateCondBr(cond, innerThen, innerElse))
	}
	d.at(innerThen)
	d.ret(d.konst(30))
	d.at(innerElse)
	d.ret(d.konst(40))
	d.at(outerElse)
	d.ret(d.konst(50))
	_, err := d.done()
	return err
}

func buildEarlyReturn(b *ir.Builder) error {
	d := define(b, "main", ir.I32)
	entry := d.block("entry")
	earlyExit := d.block("early_exit")
	normalPath := d.block("normal_path")

	d.at(entry)
	value := d.konst(5)
	if d.err == nil {
		cond := d.val(b.CreateICmp(ir.ICmpULT, value, d.konst(10), "cond"))
		d.check(b.CreateCondBr(cond, earlyExit, normalPath))
	}
	// value is defined in entry, which dominates early_exit.
	d.at(earlyExit)
	d.ret(value)
	d.at(normalPath)
	d.ret(d.konst(100))
	_, err := d.done()
	return err
}

// sum7(a0..a6) passes its last argument on the stack.
func buildMultipleArgs(b *ir.Builder) error {
	params := make([]ir.Type, 7)
	for i := range params {
		params[i] = ir.I32
	}
	sum := define(b, "sum7", ir.I32, params...)
	args := make([]ir.Value, 7)
	for i := range args {
		args[i] = sum.param(i, fmt.Sprintf("arg%d", i))
	}
	sum.at(sum.block("entry"))
	if sum.err == nil {
		result := args[0]
		for i := 1; i < len(args); i++ {
			result = sum.val(b.CreateAdd(result, args[i], fmt.Sprintf("sum%d", i)))
		}
		sum.ret(result)
	}
	sumFn, err := sum.done()
	if err != nil {
		return err
	}

	d := mainReturning(b)
	if d.err == nil {
		var actual []ir.Value
		for _, v := range []uint32{1, 2, 3, 4, 5, 6, 21} {
			actual = append(actual, d.konst(v))
		}
		d.ret(d.val(b.CreateCall(sumFn, actual, "sum_result")))
	}
	_, err = d.done()
	return err
}

// add(add(2, 4), add(5, 5)) + 1
func buildNestedCalls(b *ir.Builder) error {
	add := define(b, "add", ir.I32, ir.I32, ir.I32)
	x := add.param(0, "a")
	y := add.param(1, "b")
	add.at(add.block("entry"))
	if add.err == nil {
		add.ret(add.val(b.CreateAdd(x, y, "sum")))
	}
	addFn, err := add.done()
	if err != nil {
		return err
	}

	d := mainReturning(b)
	if d.err == nil {
		a1 := d.val(b.CreateCall(addFn, []ir.Value{d.konst(2), d.konst(4)}, "a1"))
		a2 := d.val(b.CreateCall(addFn, []ir.Value{d.konst(5), d.konst(5)}, "a2"))
		a3 := d.val(b.CreateCall(addFn, []ir.Value{a1, a2}, "a3"))
		d.ret(d.val(b.CreateAdd(a3, d.konst(1), "result")))
	}
	_, err = d.done()
	return err
}

func buildMaxFunction(b *ir.Builder) error {
	mx := define(b, "max", ir.I32, ir.I32, ir.I32)
	x := mx.param(0, "a")
	y := mx.param(1, "b")
	entry := mx.block("entry")
	thenBlock := mx.block("then")
	elseBlock := mx.block("else")

	mx.at(entry)
	if mx.err == nil {
		cond := mx.val(b.CreateICmp(ir.ICmpUGT, x, y, "cond"))
		mx.check(b.CreateCondBr(cond, thenBlock, elseBlock))
	}
	mx.at(thenBlock)
	mx.ret(x)
	mx.at(elseBlock)
	mx.ret(y)
	maxFn, err := mx.done()
	if err != nil {
		return err
	}

	d := mainReturning(b)
	if d.err == nil {
		d.ret(d.val(b.CreateCall(maxFn, []ir.Value{d.konst(88), d.konst(42)}, "max_result")))
	}
	_, err = d.done()
	return err
}

// sum_to(n) = n == 0 ? 0 : n + sum_to(n - 1)
func buildRecursiveSum(b *ir.Builder) error {
	s := define(b, "sum_to", ir.I32, ir.I32)
	n := s.param(0, "n")
	entry := s.block("entry")
	base := s.block("base")
	step := s.block("step")

	s.at(entry)
	if s.err == nil {
		cond := s.val(b.CreateICmpEQ(n, s.konst(0), "done"))
		s.check(b.CreateCondBr(cond, base, step))
	}
	s.at(base)
	s.ret(s.konst(0))
	s.at(step)
	if s.err == nil {
		prev := s.val(b.CreateSub(n, s.konst(1), "n - 1"))
		rest := s.val(b.CreateCall(s.fn, []ir.Value{prev}, "rest"))
		s.ret(s.val(b.CreateAdd(n, rest, "total")))
	}
	sumTo, err := s.done()
	if err != nil {
		return err
	}

	d := mainReturning(b)
	if d.err == nil {
		d.ret(d.val(b.CreateCall(sumTo, []ir.Value{d.konst(10)}, "result")))
	}
	_, err = d.done()
	return err
}

func buildFibonacci(b *ir.Builder) error {
	fibo, err := DefineFibo(b)
	if err != nil {
		return err
	}
	d := mainReturning(b)
	if d.err == nil {
		d.ret(d.val(b.CreateCall(fibo, []ir.Value{d.konst(10)}, "result")))
	}
	_, err = d.done()
	return err
}

func buildSumOfThree(b *ir.Builder) error {
	sum, err := DefineSum(b)
	if err != nil {
		return err
	}
	d := mainReturning(b)
	if d.err == nil {
		args := []ir.Value{d.konst(1), d.konst(2), d.konst(3)}
		d.ret(d.val(b.CreateCall(sum, args, "result")))
	}
	_, err = d.done()
	return err
}
