package corejit

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/codegen"
	"github.com/arc-language/core-jit/ir"
	"github.com/arc-language/core-jit/jit"
	"github.com/arc-language/core-jit/target"
)

// Artifact kinds accepted by WriteArtifacts.
const (
	ArtifactIR       = "ll"
	ArtifactAssembly = "asm"
	ArtifactObject   = "obj"
)

// Session owns one module targeting the host machine.
type Session struct {
	Machine *target.Machine
	Module  *ir.Module
	Builder *ir.Builder

	handles map[string]ir.FuncHandle
}

// NewSession resolves the host machine and creates an empty module bound to
// it.
func NewSession(name, cpu string) (*Session, error) {
	tm, err := target.ResolveHostCPU(cpu)
	if err != nil {
		return nil, err
	}
	b := ir.New()
	m := b.CreateModule(name)
	if err := m.SetTarget(tm.Triple, tm.DataLayout()); err != nil {
		return nil, err
	}
	return &Session{
		Machine: tm,
		Module:  m,
		Builder: b,
		handles: make(map[string]ir.FuncHandle),
	}, nil
}

// Define builds one function. When construction fails the partial function
// is discarded and the rest of the module is left intact.
func (s *Session) Define(name string, def func(*ir.Builder) (ir.FuncHandle, error)) (ir.FuncHandle, error) {
	h, err := def(s.Builder)
	if err != nil {
		if h.IsValid() {
			if derr := s.Module.Discard(h); derr != nil {
				return ir.FuncHandle{}, errors.Wrapf(derr, "discard %s", name)
			}
		}
		return ir.FuncHandle{}, errors.Wrapf(err, "define %s", name)
	}
	s.handles[name] = h
	return h, nil
}

// Handle returns the handle of a function defined through the session.
func (s *Session) Handle(name string) (ir.FuncHandle, bool) {
	h, ok := s.handles[name]
	return h, ok
}

// Build defines sum, fibo, print_u32 and user_main; user_main prints
// fibo(n).
func (s *Session) Build(n uint32) error {
	if _, err := s.Define("sum", DefineSum); err != nil {
		return err
	}
	fibo, err := s.Define("fibo", DefineFibo)
	if err != nil {
		return err
	}
	printU32, err := s.Define("print_u32", DeclarePrintU32)
	if err != nil {
		return err
	}
	_, err = s.Define("user_main", func(b *ir.Builder) (ir.FuncHandle, error) {
		return DefineUserMain(b, fibo, printU32, n)
	})
	return err
}

// IR returns the textual IR of the module.
func (s *Session) IR() string {
	return codegen.PrintIR(s.Module)
}

// Emit lowers the module to assembly or object code.
func (s *Session) Emit(ft codegen.FileType) ([]byte, error) {
	return codegen.Emit(s.Module, s.Machine, ft)
}

// WriteArtifacts writes the requested kinds into dir as <module>.ll,
// <module>.asm and <module>.o and returns the written paths.
func (s *Session) WriteArtifacts(dir string, kinds []string) ([]string, error) {
	var paths []string
	for _, kind := range kinds {
		var err error
		path := filepath.Join(dir, s.Module.Name)
		switch kind {
		case ArtifactIR:
			path += ".ll"
			err = codegen.PrintToFile(s.Module, path)
		case ArtifactAssembly:
			path += ".asm"
			err = codegen.WriteToFile(s.Module, s.Machine, codegen.AssemblyFile, path)
		case ArtifactObject:
			path += ".o"
			err = codegen.WriteToFile(s.Module, s.Machine, codegen.ObjectFile, path)
		default:
			err = errors.Errorf("unknown artifact kind %q", kind)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// JIT maps the module into executable memory.
func (s *Session) JIT(opts ...jit.Option) (*jit.Engine, error) {
	return jit.New(s.Module, s.Machine, opts...)
}
