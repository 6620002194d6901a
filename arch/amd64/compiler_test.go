package amd64

import (
	"bytes"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arc-language/core-jit/ir"
)

func buildReturn42(t *testing.T) *ir.Module {
	t.Helper()
	b := ir.New()
	m := b.CreateModule("ret")
	fn, _ := b.CreateFunction("answer", ir.I32)
	entry, _ := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry)
	v, _ := b.ConstInt(42)
	if err := b.CreateRet(v); err != nil {
		t.Fatal(err)
	}
	return m
}

// buildCaller builds a module where "twice" calls the external "inc" twice.
func buildCaller(t *testing.T) *ir.Module {
	t.Helper()
	b := ir.New()
	m := b.CreateModule("caller")
	inc, _ := b.CreateFunction("inc", ir.I32, ir.I32)
	twice, _ := b.CreateFunction("twice", ir.I32, ir.I32)
	f, _ := m.Func(twice)
	entry, _ := b.CreateBlock(twice, "entry")
	b.SetInsertPoint(entry)
	x, _ := b.CreateCall(inc, []ir.Value{f.Param(0)}, "x")
	y, err := b.CreateCall(inc, []ir.Value{x}, "y")
	if err != nil {
		t.Fatal(err)
	}
	b.CreateRet(y)
	return m
}

func TestCompileReturnConstant(t *testing.T) {
	a, err := Compile(buildReturn42(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x55,             // push rbp
		0x48, 0x89, 0xE5, // mov rbp, rsp
		0xB8, 0x2A, 0x00, 0x00, 0x00, // mov eax, 42
		0xC9, // leave
		0xC3, // ret
	}
	if !bytes.Equal(a.Text, want) {
		t.Fatalf("text = % x, want % x", a.Text, want)
	}
	if len(a.Funcs) != 1 || a.Funcs[0].Name != "answer" || a.Funcs[0].Size != uint64(len(want)) {
		t.Errorf("symbols = %+v", a.Funcs)
	}
}

func TestCompileCallsProduceRelocations(t *testing.T) {
	a, err := Compile(buildCaller(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Relocs) != 2 {
		t.Fatalf("got %d relocations, want 2", len(a.Relocs))
	}
	for _, r := range a.Relocs {
		if r.Target != "inc" || r.Kind != RelocPLT32 || r.Addend != -4 {
			t.Errorf("unexpected relocation %+v", r)
		}
		if a.Text[r.Offset-1] != 0xE8 {
			t.Errorf("relocation at %#x does not follow a call opcode", r.Offset)
		}
	}
	if ext := a.Externals(); len(ext) != 1 || ext[0] != "inc" {
		t.Errorf("externals = %v", ext)
	}
}

func TestLinkResolvesExternalsThroughStubs(t *testing.T) {
	a, err := Compile(buildCaller(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Link(nil); err == nil {
		t.Fatal("link succeeded with an unbound external")
	}

	const addr = 0x7f0000001234
	image, err := a.Link(map[string]uint64{"inc": addr})
	if err != nil {
		t.Fatal(err)
	}
	stub, ok := a.StubOffset("inc")
	if !ok {
		t.Fatal("no stub for inc")
	}
	if got := binary.LittleEndian.Uint64(image[stub+6:]); got != addr {
		t.Errorf("stub target = %#x, want %#x", got, addr)
	}
	for _, r := range a.Relocs {
		rel := int32(binary.LittleEndian.Uint32(image[r.Offset:]))
		if dest := int64(r.Offset) + 4 + int64(rel); uint64(dest) != stub {
			t.Errorf("call at %#x lands on %#x, want stub %#x", r.Offset, dest, stub)
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	first, err := Compile(buildCaller(t))
	if err != nil {
		t.Fatal(err)
	}
	second, _ := Compile(buildCaller(t))
	if !bytes.Equal(first.Text, second.Text) {
		t.Fatal("identical modules produced different code")
	}
}

func TestCompileRejectsUnterminatedBlock(t *testing.T) {
	b := ir.New()
	m := b.CreateModule("open")
	fn, _ := b.CreateFunction("f", ir.I32)
	entry, _ := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry)
	b.ConstInt(1)
	if _, err := Compile(m); err == nil {
		t.Fatal("compiled a block without terminator")
	}
}

func TestDisassemble(t *testing.T) {
	a, err := Compile(buildCaller(t))
	if err != nil {
		t.Fatal(err)
	}
	out, err := Disassemble("caller", a)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		".intel_syntax noprefix",
		".globl\ttwice",
		"twice:",
		".LBB0_0:\t# %entry",
		"[rbp-0x8]",
		"push rbp",
		"inc",
		"ret",
		".size\ttwice, .Lfunc_end0-twice",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0xffff") {
		t.Errorf("listing has unsigned displacements:\n%s", out)
	}
}

// buildLookalikeLabels builds pick(x) whose block labels sanitise to the
// same text, and which calls the external inc from both arms.
func buildLookalikeLabels(t *testing.T) *ir.Module {
	t.Helper()
	b := ir.New()
	m := b.CreateModule("labels")
	inc, _ := b.CreateFunction("inc", ir.I32, ir.I32)
	pick, _ := b.CreateFunction("pick", ir.I32, ir.I32)
	f, _ := m.Func(pick)
	entry, _ := b.CreateBlock(pick, "entry")
	spaced, _ := b.CreateBlock(pick, "a b")
	underscored, err := b.CreateBlock(pick, "a_b")
	if err != nil {
		t.Fatal(err)
	}

	b.SetInsertPoint(entry)
	zero, _ := b.ConstInt(0)
	c, _ := b.CreateICmpEQ(f.Param(0), zero, "c")
	b.CreateCondBr(c, spaced, underscored)
	b.SetInsertPoint(spaced)
	x, _ := b.CreateCall(inc, []ir.Value{f.Param(0)}, "x")
	b.CreateRet(x)
	b.SetInsertPoint(underscored)
	y, _ := b.CreateSub(f.Param(0), zero, "y")
	if err := b.CreateRet(y); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestBlockLabelsAreUnique(t *testing.T) {
	a, err := Compile(buildLookalikeLabels(t))
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, l := range a.Labels {
		if seen[l.Name] {
			t.Errorf("label %s emitted twice", l.Name)
		}
		seen[l.Name] = true
	}
	out, err := Disassemble("labels", a)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{".LBB0_1:\t# %a b", ".LBB0_2:\t# %a_b"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestSignedDisp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"mov dword ptr [rbp+0xfffffff8], edi", "mov dword ptr [rbp-0x8], edi"},
		{"movzx eax, byte ptr [rbp+0xffffffe0]", "movzx eax, byte ptr [rbp-0x20]"},
		{"mov eax, dword ptr [rbp+0xfffffffffffffff0]", "mov eax, dword ptr [rbp-0x10]"},
		{"mov eax, dword ptr [rbp+0x10]", "mov eax, dword ptr [rbp+0x10]"},
		{"mov eax, dword ptr [rbp+0x7fffffff]", "mov eax, dword ptr [rbp+0x7fffffff]"},
		{"mov eax, 0xfffffffe", "mov eax, 0xfffffffe"},
	}
	for _, tt := range tests {
		if got := signedDisp(tt.in); got != tt.want {
			t.Errorf("signedDisp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListingAssembles(t *testing.T) {
	as, err := exec.LookPath("as")
	if err != nil {
		t.Skip("GNU as not installed")
	}
	for _, m := range []*ir.Module{buildCaller(t), buildLookalikeLabels(t)} {
		a, err := Compile(m)
		if err != nil {
			t.Fatal(err)
		}
		out, err := Disassemble(m.Name, a)
		if err != nil {
			t.Fatal(err)
		}
		src := filepath.Join(t.TempDir(), m.Name+".s")
		if err := os.WriteFile(src, []byte(out), 0o644); err != nil {
			t.Fatal(err)
		}
		cmd := exec.Command(as, "--64", "-o", src+".o", src)
		if msg, err := cmd.CombinedOutput(); err != nil {
			t.Errorf("%s: as failed: %v\n%s\n%s", m.Name, err, msg, out)
		}
	}
}
