// Package jit maps compiled modules into executable memory and hands out
// typed Go callables for their functions.
package jit

import (
	"reflect"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"

	"github.com/arc-language/core-jit/arch/amd64"
	"github.com/arc-language/core-jit/codegen"
	"github.com/arc-language/core-jit/ir"
	"github.com/arc-language/core-jit/target"
)

var (
	// ErrSymbolNotFound is returned for names the engine cannot resolve.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrSignatureMismatch is returned when a Go function type does not match
	// the declared signature of the native function.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrClosed is returned by an engine whose memory has been released.
	ErrClosed = errors.New("engine closed")
)

type options struct {
	symbols map[string]uintptr
}

// Option configures an Engine.
type Option func(*options)

// WithSymbol binds an external declaration of the module to a native address.
func WithSymbol(name string, addr uintptr) Option {
	return func(o *options) {
		o.symbols[name] = addr
	}
}

// Engine owns the executable memory of one module.
type Engine struct {
	mem    []byte
	names  []string
	addrs  map[string]uintptr
	sigs   map[string]ir.Signature
	closed bool
}

// New lowers m for tm and maps the result into executable memory. The module
// is verified and frozen first. tm must describe the running host.
func New(m *ir.Module, tm *target.Machine, opts ...Option) (*Engine, error) {
	o := &options{symbols: make(map[string]uintptr)}
	for _, opt := range opts {
		opt(o)
	}

	if tm != nil && tm.Triple != target.HostTriple() {
		return nil, errors.Wrapf(target.ErrUnsupportedTarget, "cannot execute %s code on %s", tm.Triple, target.HostTriple())
	}
	if err := codegen.Prepare(m, tm); err != nil {
		return nil, err
	}

	artifact, err := amd64.Compile(m)
	if err != nil {
		return nil, errors.Wrap(err, "jit")
	}

	externs := make(map[string]uint64)
	for _, name := range artifact.Externals() {
		addr, ok := o.symbols[name]
		if !ok || addr == 0 {
			return nil, errors.Wrapf(ErrSymbolNotFound, "external %q is not bound", name)
		}
		externs[name] = uint64(addr)
	}
	image, err := artifact.Link(externs)
	if err != nil {
		return nil, errors.Wrap(err, "jit")
	}

	mem, err := mapExecutable(image)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		mem:   mem,
		addrs: make(map[string]uintptr),
		sigs:  make(map[string]ir.Signature),
	}
	base := uintptr(unsafe.Pointer(&mem[0]))
	for _, sym := range artifact.Funcs {
		e.names = append(e.names, sym.Name)
		e.addrs[sym.Name] = base + uintptr(sym.Offset)
	}
	for _, fn := range m.Functions() {
		if !fn.IsDeclaration() {
			e.sigs[fn.Name()] = fn.Signature()
		}
	}
	return e, nil
}

// Symbols lists the functions defined by the engine in declaration order.
func (e *Engine) Symbols() []string {
	return append([]string(nil), e.names...)
}

// Address returns the entry point of a defined function.
func (e *Engine) Address(name string) (uintptr, error) {
	if e.closed {
		return 0, ErrClosed
	}
	addr, ok := e.addrs[name]
	if !ok {
		return 0, errors.Wrapf(ErrSymbolNotFound, "%q", name)
	}
	return addr, nil
}

// Lookup binds fnPtr, a pointer to a Go function variable, to the native
// function name. The Go type must mirror the declared signature: i32 is
// uint32, i1 is bool and void has no result.
//
//	var fibo func(uint32) uint32
//	err := e.Lookup("fibo", &fibo)
func (e *Engine) Lookup(name string, fnPtr any) error {
	addr, err := e.Address(name)
	if err != nil {
		return err
	}
	if err := checkSignature(e.sigs[name], fnPtr); err != nil {
		return errors.Wrapf(err, "%q", name)
	}
	purego.RegisterFunc(fnPtr, addr)
	return nil
}

// Close releases the executable memory. Callables obtained from the engine
// must not be used afterwards.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return unmap(e.mem)
}

func checkSignature(sig ir.Signature, fnPtr any) error {
	ptr := reflect.TypeOf(fnPtr)
	if ptr == nil || ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Func {
		return errors.Wrapf(ErrSignatureMismatch, "want a pointer to a func, got %T", fnPtr)
	}
	ft := ptr.Elem()
	if ft.IsVariadic() || ft.NumIn() != len(sig.Params) {
		return errors.Wrapf(ErrSignatureMismatch, "%s cannot call %s", ft, sig)
	}
	for i, p := range sig.Params {
		if !matches(p, ft.In(i)) {
			return errors.Wrapf(ErrSignatureMismatch, "parameter %d: %s cannot carry %s", i, ft.In(i), p)
		}
	}
	switch {
	case sig.Ret == ir.Void && ft.NumOut() == 0:
		return nil
	case sig.Ret != ir.Void && ft.NumOut() == 1 && matches(sig.Ret, ft.Out(0)):
		return nil
	}
	return errors.Wrapf(ErrSignatureMismatch, "%s cannot call %s", ft, sig)
}

func matches(t ir.Type, gt reflect.Type) bool {
	switch t {
	case ir.I32:
		return gt.Kind() == reflect.Uint32
	case ir.I1:
		return gt.Kind() == reflect.Bool
	default:
		return false
	}
}
