package amd64

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// listingBase is the nominal load address used while decoding; x86asm
// prints PC-relative operands at address zero as raw displacements.
const listingBase = 0x1000

// Disassemble renders the artifact as GNU assembler input in Intel syntax.
// Block labels and call targets are printed symbolically.
func Disassemble(file string, a *Artifact) (string, error) {
	externs := make(map[string]uint64)
	for _, ext := range a.Externals() {
		externs[ext] = 0
	}
	image, err := a.Link(externs)
	if err != nil {
		return "", errors.Wrap(err, "link for listing")
	}

	names := make(map[uint64]string)
	for _, l := range a.Labels {
		names[listingBase+l.Offset] = l.Name
	}
	for _, s := range a.Funcs {
		names[listingBase+s.Offset] = s.Name
	}
	for _, ext := range a.Externals() {
		off, _ := a.StubOffset(ext)
		names[listingBase+off] = ext
	}
	symname := func(addr uint64) (string, uint64) {
		if name, ok := names[addr]; ok {
			return name, addr
		}
		return "", 0
	}

	labelsAt := make(map[uint64][]Label)
	for _, l := range a.Labels {
		labelsAt[l.Offset] = append(labelsAt[l.Offset], l)
	}

	var sb strings.Builder
	sb.WriteString("\t.intel_syntax noprefix\n")
	fmt.Fprintf(&sb, "\t.file\t%q\n", file)
	sb.WriteString("\t.text\n")

	for i, sym := range a.Funcs {
		fmt.Fprintf(&sb, "\t.globl\t%s\n", sym.Name)
		sb.WriteString("\t.p2align\t4, 0x90\n")
		fmt.Fprintf(&sb, "\t.type\t%s,@function\n", sym.Name)
		fmt.Fprintf(&sb, "%s:\n", sym.Name)

		for off := sym.Offset; off < sym.Offset+sym.Size; {
			for _, l := range labelsAt[off] {
				fmt.Fprintf(&sb, "%s:\t# %%%s\n", l.Name, printable(l.Block))
			}
			inst, err := x86asm.Decode(image[off:sym.Offset+sym.Size], 64)
			if err != nil {
				return "", errors.Wrapf(err, "decode %s+%#x", sym.Name, off-sym.Offset)
			}
			fmt.Fprintf(&sb, "\t%s\n", signedDisp(x86asm.IntelSyntax(inst, listingBase+off, symname)))
			off += uint64(inst.Len)
		}

		end := fmt.Sprintf(".Lfunc_end%d", i)
		fmt.Fprintf(&sb, "%s:\n", end)
		fmt.Fprintf(&sb, "\t.size\t%s, %s-%s\n", sym.Name, end, sym.Name)
	}
	sb.WriteString("\t.section\t\".note.GNU-stack\",\"\",@progbits\n")
	return sb.String(), nil
}

// x86asm prints negative displacements as their unsigned encoding, which
// GNU as rejects as out of range.
var wideDisp = regexp.MustCompile(`\+0x([0-9a-f]{8}|[0-9a-f]{16})\]`)

func signedDisp(operands string) string {
	return wideDisp.ReplaceAllStringFunc(operands, func(m string) string {
		digits := m[3 : len(m)-1]
		v, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return m
		}
		d := int64(v)
		if len(digits) == 8 {
			d = int64(int32(uint32(v)))
		}
		if d >= 0 {
			return m
		}
		return fmt.Sprintf("-%#x]", -d)
	})
}

// printable keeps a block label on one comment line.
func printable(label string) string {
	return strings.Map(func(r rune) rune {
		if r < ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, label)
}
