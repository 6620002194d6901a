package amd64

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// stubSize is the size of an absolute jump stub: jmp qword ptr [rip+0]
// followed by the 8-byte target.
const stubSize = 14

// Symbol returns the definition of name, if the artifact defines it.
func (a *Artifact) Symbol(name string) (Func, bool) {
	for _, s := range a.Funcs {
		if s.Name == name {
			return s, true
		}
	}
	return Func{}, false
}

// Externals returns the called symbols the artifact does not define, in
// order of first reference.
func (a *Artifact) Externals() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range a.Relocs {
		if seen[r.Target] {
			continue
		}
		seen[r.Target] = true
		if _, ok := a.Symbol(r.Target); !ok {
			out = append(out, r.Target)
		}
	}
	return out
}

// LinkedSize is the size of the image returned by Link.
func (a *Artifact) LinkedSize() int {
	return stubSize*len(a.Externals()) + alignUp(len(a.Text), 16)
}

// StubOffset returns the image offset of the jump stub for an external.
func (a *Artifact) StubOffset(name string) (uint64, bool) {
	for i, ext := range a.Externals() {
		if ext == name {
			return uint64(alignUp(len(a.Text), 16) + i*stubSize), true
		}
	}
	return 0, false
}

// Link produces a position-independent executable image. Calls between
// defined functions are resolved directly; calls to externals go through an
// absolute jump stub placed after the text, so externs may live anywhere in
// the address space. Every external must be present in externs.
func (a *Artifact) Link(externs map[string]uint64) ([]byte, error) {
	image := make([]byte, a.LinkedSize())
	copy(image, a.Text)
	for i := len(a.Text); i < alignUp(len(a.Text), 16); i++ {
		image[i] = 0xCC
	}

	for _, ext := range a.Externals() {
		addr, ok := externs[ext]
		if !ok {
			return nil, errors.Errorf("undefined symbol %q", ext)
		}
		off, _ := a.StubOffset(ext)
		// jmp qword ptr [rip+0]
		copy(image[off:], []byte{0xFF, 0x25, 0x00, 0x00, 0x00, 0x00})
		binary.LittleEndian.PutUint64(image[off+6:], addr)
	}

	for _, r := range a.Relocs {
		var target uint64
		if sym, ok := a.Symbol(r.Target); ok {
			target = sym.Offset
		} else {
			target, _ = a.StubOffset(r.Target)
		}
		// S + A - P, both relative to the image start.
		rel := int64(target) + r.Addend - int64(r.Offset)
		if rel < math.MinInt32 || rel > math.MaxInt32 {
			return nil, errors.Errorf("relocation to %q out of range", r.Target)
		}
		switch r.Kind {
		case RelocPC32, RelocPLT32:
			binary.LittleEndian.PutUint32(image[r.Offset:], uint32(int32(rel)))
		default:
			return nil, errors.Errorf("unsupported relocation kind %d", r.Kind)
		}
	}
	return image, nil
}

func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + align - n%align
}
