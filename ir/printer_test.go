package ir

import (
	"strings"
	"testing"
)

func TestPrintDeterministic(t *testing.T) {
	build := func() string {
		b := New()
		m := b.CreateModule("fib")
		m.SetTarget("x86_64-unknown-linux-gnu", "e-m:e-i64:64-n8:16:32:64-S128")
		buildFibo(t, b)
		return m.String()
	}
	first, second := build(), build()
	if first != second {
		t.Fatalf("printed IR differs between identical builds:\n%s\n---\n%s", first, second)
	}
}

func TestPrintFibonacci(t *testing.T) {
	b := New()
	m := b.CreateModule("fib")
	m.SetTarget("x86_64-unknown-linux-gnu", "e-m:e-i64:64-n8:16:32:64-S128")
	fn := buildFibo(t, b)
	f, _ := m.Func(fn)
	if err := f.SetGC("shadow-stack"); err != nil {
		t.Fatal(err)
	}

	out := m.String()
	for _, want := range []string{
		`source_filename = "fib"`,
		`target triple = "x86_64-unknown-linux-gnu"`,
		`define i32 @fibo(i32 %n)`,
		`gc "shadow-stack"`,
		`icmp eq i32 %n, 0`,
		`call i32 @fibo(i32 %"n - 1")`,
		`n_gt_1:`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("printed IR missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "unreachable") {
		t.Errorf("complete function printed with unreachable:\n%s", out)
	}
}

func TestPrintDeclaration(t *testing.T) {
	b := New()
	m := b.CreateModule("ext")
	b.CreateFunction("print_u32", Void, I32)
	if out := m.String(); !strings.Contains(out, "declare void @print_u32(i32") {
		t.Fatalf("declaration not printed:\n%s", out)
	}
}

func TestPrintSkipsDiscarded(t *testing.T) {
	b := New()
	m := b.CreateModule("ext")
	h, _ := b.CreateFunction("gone", I32)
	m.Discard(h)
	if out := m.String(); strings.Contains(out, "gone") {
		t.Fatalf("discarded function printed:\n%s", out)
	}
}

func TestPrintCallToDiscardedFunction(t *testing.T) {
	b := New()
	m := b.CreateModule("dangling")
	callee, _ := b.CreateFunction("callee", I32, I32)
	caller, _ := b.CreateFunction("caller", I32)
	entry, _ := b.CreateBlock(caller, "entry")
	b.SetInsertPoint(entry)
	one, _ := b.ConstInt(1)
	r, _ := b.CreateCall(callee, []Value{one}, "r")
	if err := b.CreateRet(r); err != nil {
		t.Fatal(err)
	}
	m.Discard(callee)

	out := m.String()
	for _, want := range []string{
		"declare i32 @callee(i32",
		"call i32 @callee(i32 1)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// The released name is taken by a new function; the stale callee
	// must not collide with it.
	if _, err := b.CreateFunction("callee", I32, I32); err != nil {
		t.Fatal(err)
	}
	out = m.String()
	if !strings.Contains(out, "call i32 @callee.discarded(i32 1)") {
		t.Errorf("stale callee not renamed:\n%s", out)
	}
}
