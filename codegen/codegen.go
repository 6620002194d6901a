package codegen

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/arch/amd64"
	"github.com/arc-language/core-jit/format/elf"
	"github.com/arc-language/core-jit/ir"
	"github.com/arc-language/core-jit/target"
)

// ErrLowering matches every failure to turn a module into machine code.
var ErrLowering = errors.New("lowering failed")

type loweringError struct {
	cause error
}

func (e *loweringError) Error() string        { return "lowering: " + e.cause.Error() }
func (e *loweringError) Unwrap() error        { return e.cause }
func (e *loweringError) Is(target error) bool { return target == ErrLowering }

func lowering(err error) error {
	if err == nil {
		return nil
	}
	return &loweringError{cause: err}
}

// FileType selects the artifact produced by Emit.
type FileType int

const (
	AssemblyFile FileType = iota
	ObjectFile
)

func (ft FileType) String() string {
	switch ft {
	case AssemblyFile:
		return "assembly"
	case ObjectFile:
		return "object"
	default:
		return "unknown"
	}
}

// Prepare binds m to tm, verifies it and freezes it. A module that already
// targets another triple is rejected.
func Prepare(m *ir.Module, tm *target.Machine) error {
	if tm == nil {
		return lowering(errors.New("no target machine"))
	}
	if tm.Arch() != "x86_64" {
		return lowering(errors.Wrapf(target.ErrUnsupportedTarget, "no backend for %s", tm.Triple))
	}
	if m.HasTarget() && m.Triple() != tm.Triple {
		return lowering(errors.Errorf("module %q targets %s, machine is %s", m.Name, m.Triple(), tm.Triple))
	}
	if err := m.Verify(); err != nil {
		return lowering(err)
	}
	if !m.HasTarget() {
		if err := m.SetTarget(tm.Triple, tm.DataLayout()); err != nil {
			return lowering(err)
		}
	}
	m.Freeze()
	return nil
}

// PrintIR renders the module as LLVM textual IR.
func PrintIR(m *ir.Module) string {
	return m.String()
}

// Emit lowers the module for tm and encodes the requested artifact.
// Emitting the same module twice yields identical bytes.
func Emit(m *ir.Module, tm *target.Machine, ft FileType) ([]byte, error) {
	if err := Prepare(m, tm); err != nil {
		return nil, err
	}
	switch ft {
	case AssemblyFile:
		asm, err := GenerateAssembly(m)
		if err != nil {
			return nil, err
		}
		return []byte(asm), nil
	case ObjectFile:
		return GenerateObject(m)
	default:
		return nil, lowering(errors.Errorf("unknown file type %d", int(ft)))
	}
}

// GenerateObject wraps the compiled module in a relocatable ELF64 object.
func GenerateObject(m *ir.Module) ([]byte, error) {
	artifact, err := amd64.Compile(m)
	if err != nil {
		return nil, lowering(errors.Wrap(err, "amd64"))
	}

	f := elf.NewFile()

	textSec := f.AddSection(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, artifact.Text)
	textSec.Addralign = 16
	// Marks the stack non-executable for the system linker.
	f.AddSection(".note.GNU-stack", elf.SHT_PROGBITS, 0, nil)

	fileSym := f.AddSymbol(m.Name, elf.MakeSymbolInfo(elf.STB_LOCAL, elf.STT_FILE), nil, 0, 0)
	fileSym.Abs = true
	f.AddSymbol("", elf.MakeSymbolInfo(elf.STB_LOCAL, elf.STT_SECTION), textSec, 0, 0)

	symbols := make(map[string]*elf.Symbol)
	for _, sym := range artifact.Funcs {
		info := elf.MakeSymbolInfo(elf.STB_GLOBAL, elf.STT_FUNC)
		symbols[sym.Name] = f.AddSymbol(sym.Name, info, textSec, sym.Offset, sym.Size)
	}
	// Declarations without a body are left for the linker.
	for _, name := range artifact.Externals() {
		symbols[name] = f.AddSymbol(name, elf.MakeSymbolInfo(elf.STB_GLOBAL, elf.STT_NOTYPE), nil, 0, 0)
	}

	for _, rel := range artifact.Relocs {
		f.AddRelocation(textSec, elf.Rela{
			Offset: rel.Offset,
			Symbol: symbols[rel.Target],
			Type:   uint32(rel.Kind),
			Addend: rel.Addend,
		})
	}

	data, err := f.Bytes()
	if err != nil {
		return nil, lowering(errors.Wrap(err, "elf"))
	}
	return data, nil
}

// GenerateAssembly returns the Intel-syntax listing of the compiled module.
func GenerateAssembly(m *ir.Module) (string, error) {
	artifact, err := amd64.Compile(m)
	if err != nil {
		return "", lowering(errors.Wrap(err, "amd64"))
	}
	asm, err := amd64.Disassemble(m.Name, artifact)
	if err != nil {
		return "", lowering(err)
	}
	return asm, nil
}

// PrintToFile writes the textual IR of m to path.
func PrintToFile(m *ir.Module, path string) error {
	return writeFile(path, []byte(PrintIR(m)))
}

// WriteToFile emits m as ft and writes it to path.
func WriteToFile(m *ir.Module, tm *target.Machine, ft FileType, path string) error {
	data, err := Emit(m, tm, ft)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
