package jit_test

import (
	"errors"
	"runtime"
	"testing"

	corejit "github.com/arc-language/core-jit"
	"github.com/arc-language/core-jit/ir"
	"github.com/arc-language/core-jit/jit"
	"github.com/arc-language/core-jit/target"
)

func hostMachine(t *testing.T) *target.Machine {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("no native backend for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	tm, err := target.ResolveHost()
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func newEngine(t *testing.T, build func(b *ir.Builder) error, opts ...jit.Option) *jit.Engine {
	t.Helper()
	tm := hostMachine(t)
	b := ir.New()
	m := b.CreateModule(t.Name())
	if err := build(b); err != nil {
		t.Fatal(err)
	}
	e, err := jit.New(m, tm, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func fiboAndSum(b *ir.Builder) error {
	if _, err := corejit.DefineSum(b); err != nil {
		return err
	}
	_, err := corejit.DefineFibo(b)
	return err
}

func reference(n uint32) uint32 {
	var a, b uint32 = 0, 1
	for i := uint32(0); i < n; i++ {
		a, b = b, a+b
	}
	return a
}

func TestFibo(t *testing.T) {
	e := newEngine(t, fiboAndSum)
	var fibo func(uint32) uint32
	if err := e.Lookup("fibo", &fibo); err != nil {
		t.Fatal(err)
	}
	for n := uint32(0); n <= 20; n++ {
		if got, want := fibo(n), reference(n); got != want {
			t.Errorf("fibo(%d) = %d, want %d", n, got, want)
		}
	}
	if got := fibo(10); got != 55 {
		t.Errorf("fibo(10) = %d, want 55", got)
	}
}

func TestSum(t *testing.T) {
	e := newEngine(t, fiboAndSum)
	var sum func(uint32, uint32, uint32) uint32
	if err := e.Lookup("sum", &sum); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x, y, z uint32
		want    uint32
	}{
		{1, 2, 3, 6},
		{0, 0, 0, 0},
		{100, 200, 300, 600},
		{0xFFFFFFFF, 1, 0, 0},
		{0xFFFFFFFF, 0xFFFFFFFF, 2, 0},
		{0x80000000, 0x80000000, 7, 7},
	}
	for _, tt := range tests {
		if got := sum(tt.x, tt.y, tt.z); got != tt.want {
			t.Errorf("sum(%d, %d, %d) = %d, want %d", tt.x, tt.y, tt.z, got, tt.want)
		}
	}
}

func TestSymbols(t *testing.T) {
	e := newEngine(t, fiboAndSum)
	got := e.Symbols()
	if len(got) != 2 || got[0] != "sum" || got[1] != "fibo" {
		t.Errorf("Symbols() = %v", got)
	}
	if _, err := e.Address("fibo"); err != nil {
		t.Error(err)
	}
}

func TestLookupUnknownSymbol(t *testing.T) {
	e := newEngine(t, fiboAndSum)
	var f func(uint32) uint32
	if err := e.Lookup("fib", &f); !errors.Is(err, jit.ErrSymbolNotFound) {
		t.Fatalf("got %v, want ErrSymbolNotFound", err)
	}
}

func TestLookupSignatureMismatch(t *testing.T) {
	e := newEngine(t, fiboAndSum)
	tests := []struct {
		name  string
		fnPtr any
	}{
		{"too few params", new(func(uint32) uint32)},
		{"wrong param type", new(func(int64, uint32, uint32) uint32)},
		{"missing result", new(func(uint32, uint32, uint32))},
		{"bool result", new(func(uint32, uint32, uint32) bool)},
		{"not a pointer", func(uint32, uint32, uint32) uint32 { return 0 }},
		{"not a func", new(uint32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.Lookup("sum", tt.fnPtr); !errors.Is(err, jit.ErrSignatureMismatch) {
				t.Errorf("got %v, want ErrSignatureMismatch", err)
			}
		})
	}
}

func TestBooleanResult(t *testing.T) {
	e := newEngine(t, func(b *ir.Builder) error {
		fn, err := b.CreateFunction("is_zero", ir.I1, ir.I32)
		if err != nil {
			return err
		}
		f, _ := b.Module().Func(fn)
		entry, _ := b.CreateBlock(fn, "entry")
		b.SetInsertPoint(entry)
		zero, _ := b.ConstInt(0)
		cond, _ := b.CreateICmpEQ(f.Param(0), zero, "cond")
		return b.CreateRet(cond)
	})
	var isZero func(uint32) bool
	if err := e.Lookup("is_zero", &isZero); err != nil {
		t.Fatal(err)
	}
	if !isZero(0) || isZero(7) {
		t.Error("is_zero returned the wrong answer")
	}
}

func TestUnboundExternal(t *testing.T) {
	tm := hostMachine(t)
	b := ir.New()
	m := b.CreateModule("unbound")
	fibo, _ := corejit.DefineFibo(b)
	printFn, _ := corejit.DeclarePrintU32(b)
	if _, err := corejit.DefineUserMain(b, fibo, printFn, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := jit.New(m, tm); !errors.Is(err, jit.ErrSymbolNotFound) {
		t.Fatalf("got %v, want ErrSymbolNotFound", err)
	}
}

// The external inc is bound to a function compiled by another engine.
func TestExternalBoundToOtherEngine(t *testing.T) {
	lib := newEngine(t, func(b *ir.Builder) error {
		fn, err := b.CreateFunction("inc", ir.I32, ir.I32)
		if err != nil {
			return err
		}
		f, _ := b.Module().Func(fn)
		entry, _ := b.CreateBlock(fn, "entry")
		b.SetInsertPoint(entry)
		one, _ := b.ConstInt(1)
		v, _ := b.CreateAdd(f.Param(0), one, "v")
		return b.CreateRet(v)
	})
	addr, err := lib.Address("inc")
	if err != nil {
		t.Fatal(err)
	}

	app := newEngine(t, func(b *ir.Builder) error {
		inc, err := b.CreateFunction("inc", ir.I32, ir.I32)
		if err != nil {
			return err
		}
		fn, err := b.CreateFunction("add_two", ir.I32, ir.I32)
		if err != nil {
			return err
		}
		f, _ := b.Module().Func(fn)
		entry, _ := b.CreateBlock(fn, "entry")
		b.SetInsertPoint(entry)
		x, _ := b.CreateCall(inc, []ir.Value{f.Param(0)}, "x")
		y, _ := b.CreateCall(inc, []ir.Value{x}, "y")
		return b.CreateRet(y)
	}, jit.WithSymbol("inc", addr))

	var addTwo func(uint32) uint32
	if err := app.Lookup("add_two", &addTwo); err != nil {
		t.Fatal(err)
	}
	if got := addTwo(40); got != 42 {
		t.Errorf("add_two(40) = %d, want 42", got)
	}
}

func TestNewFreezesModule(t *testing.T) {
	tm := hostMachine(t)
	b := ir.New()
	m := b.CreateModule("frozen")
	if _, err := corejit.DefineSum(b); err != nil {
		t.Fatal(err)
	}
	e, err := jit.New(m, tm)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, err := b.CreateFunction("late", ir.I32); !errors.Is(err, ir.ErrModuleFrozen) {
		t.Errorf("got %v, want ErrModuleFrozen", err)
	}
}

func TestClose(t *testing.T) {
	tm := hostMachine(t)
	b := ir.New()
	m := b.CreateModule("closed")
	corejit.DefineSum(b)
	e, err := jit.New(m, tm)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	var sum func(uint32, uint32, uint32) uint32
	if err := e.Lookup("sum", &sum); !errors.Is(err, jit.ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
