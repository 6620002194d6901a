package elf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Values from the System V gABI used by relocatable x86-64 objects.
const (
	SHT_NULL     = 0
	SHT_PROGBITS = 1
	SHT_SYMTAB   = 2
	SHT_STRTAB   = 3
	SHT_RELA     = 4

	SHF_WRITE     = 0x1
	SHF_ALLOC     = 0x2
	SHF_EXECINSTR = 0x4
	SHF_INFO_LINK = 0x40

	STB_LOCAL  = 0
	STB_GLOBAL = 1

	STT_NOTYPE  = 0
	STT_OBJECT  = 1
	STT_FUNC    = 2
	STT_SECTION = 3
	STT_FILE    = 4

	SHN_ABS = 0xfff1

	etRel    = 1
	emX86_64 = 62
)

// ident: magic, ELFCLASS64, little endian, EV_CURRENT.
var ident = [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}

const (
	headerSize = 64
	shdrSize   = 64
	symSize    = 24
	relaSize   = 24
)

// MakeSymbolInfo packs a binding and a type into st_info.
func MakeSymbolInfo(binding, typ byte) byte {
	return binding<<4 | typ&0xf
}

// File is a relocatable object under construction. Writing does not
// modify it, so the same File can be written any number of times.
type File struct {
	Sections []*Section
	Symbols  []*Symbol
}

type Section struct {
	Name      string
	Type      uint32
	Flags     uint64
	Addralign uint64
	Entsize   uint64
	Info      uint32
	Content   []byte

	index  uint16
	relocs []Rela
}

// Index is the section header index.
func (s *Section) Index() uint16 { return s.index }

type Symbol struct {
	Name    string
	Info    byte // Binding << 4 | Type
	Other   byte
	Section *Section
	Value   uint64
	Size    uint64
	Abs     bool
}

func (s *Symbol) binding() byte { return s.Info >> 4 }

// Rela is a relocation with an explicit addend against a symbol.
type Rela struct {
	Offset uint64
	Symbol *Symbol
	Type   uint32
	Addend int64
}

type stringTable struct {
	data []byte
	idx  map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{data: []byte{0}, idx: make(map[string]uint32)}
}

func (st *stringTable) add(s string) uint32 {
	if s == "" {
		return 0
	}
	if i, ok := st.idx[s]; ok {
		return i
	}
	i := uint32(len(st.data))
	st.data = append(st.data, s...)
	st.data = append(st.data, 0)
	st.idx[s] = i
	return i
}

// NewFile returns a File holding only the null section.
func NewFile() *File {
	return &File{Sections: []*Section{{Type: SHT_NULL}}}
}

func (f *File) AddSection(name string, typ uint32, flags uint64, content []byte) *Section {
	s := &Section{
		Name:    name,
		Type:    typ,
		Flags:   flags,
		Content: content,
		index:   uint16(len(f.Sections)),
	}
	f.Sections = append(f.Sections, s)
	return s
}

func (f *File) AddSymbol(name string, info byte, section *Section, value, size uint64) *Symbol {
	sym := &Symbol{
		Name:    name,
		Info:    info,
		Section: section,
		Value:   value,
		Size:    size,
	}
	f.Symbols = append(f.Symbols, sym)
	return sym
}

// AddRelocation records a relocation against sec. The matching .rela
// section is generated when the file is written.
func (f *File) AddRelocation(sec *Section, r Rela) {
	sec.relocs = append(sec.relocs, r)
}

// Symbol returns the first symbol named name.
func (f *File) Symbol(name string) *Symbol {
	for _, s := range f.Symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// WriteTo encodes f as an ELF64 relocatable object. The symbol table,
// string tables and one .rela section per relocated section are generated.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	l := &objectLayout{sections: append([]*Section(nil), f.Sections...), links: make(map[*Section]uint32)}
	ordered, symIndex, firstGlobal := orderSymbols(f.Symbols)

	var relas []*Section
	for _, s := range f.Sections {
		if len(s.relocs) == 0 {
			continue
		}
		content, err := encodeRelocs(s, symIndex)
		if err != nil {
			return 0, err
		}
		relas = append(relas, l.add(Section{
			Name:      ".rela" + s.Name,
			Type:      SHT_RELA,
			Flags:     SHF_INFO_LINK,
			Addralign: 8,
			Entsize:   relaSize,
			Info:      uint32(s.index),
			Content:   content,
		}))
	}

	names := newStringTable()
	syms := make([]elfSym, 1, len(ordered)+1)
	for _, sym := range ordered {
		syms = append(syms, elfSym{
			Name:  names.add(sym.Name),
			Info:  sym.Info,
			Other: sym.Other,
			Shndx: sym.shndx(),
			Value: sym.Value,
			Size:  sym.Size,
		})
	}
	symtab := l.add(Section{
		Name:      ".symtab",
		Type:      SHT_SYMTAB,
		Addralign: 8,
		Entsize:   symSize,
		Info:      firstGlobal,
		Content:   encode(syms),
	})
	strtab := l.add(Section{Name: ".strtab", Type: SHT_STRTAB, Addralign: 1})
	shstrtab := l.add(Section{Name: ".shstrtab", Type: SHT_STRTAB, Addralign: 1})

	l.links[symtab] = uint32(strtab.index)
	for _, rs := range relas {
		l.links[rs] = uint32(symtab.index)
	}

	strtab.Content = names.data
	secNames := newStringTable()
	l.names = make([]uint32, len(l.sections))
	for i, s := range l.sections {
		l.names[i] = secNames.add(s.Name)
	}
	shstrtab.Content = secNames.data

	n, err := w.Write(l.encode(shstrtab.index))
	return int64(n), errors.Wrap(err, "write object")
}

// objectLayout is the final section list of a file being written.
type objectLayout struct {
	sections []*Section
	links    map[*Section]uint32
	names    []uint32
}

func (l *objectLayout) add(s Section) *Section {
	s.index = uint16(len(l.sections))
	l.sections = append(l.sections, &s)
	return &s
}

// encode lays the sections out after the header, each at its alignment,
// followed by the 8-byte aligned section header table.
func (l *objectLayout) encode(shstrndx uint16) []byte {
	offsets := make([]uint64, len(l.sections))
	end := uint64(headerSize)
	for i, s := range l.sections {
		if s.Type == SHT_NULL {
			continue
		}
		if s.Addralign > 1 {
			end = alignUp(end, s.Addralign)
		}
		offsets[i] = end
		end += uint64(len(s.Content))
	}
	shoff := alignUp(end, 8)

	out := bytes.NewBuffer(make([]byte, 0, shoff+uint64(len(l.sections))*shdrSize))
	binary.Write(out, binary.LittleEndian, elfHeader{
		Ident:     ident,
		Type:      etRel,
		Machine:   emX86_64,
		Version:   1,
		Shoff:     shoff,
		Ehsize:    headerSize,
		Shentsize: shdrSize,
		Shnum:     uint16(len(l.sections)),
		Shstrndx:  shstrndx,
	})
	for i, s := range l.sections {
		if s.Type != SHT_NULL {
			out.Write(make([]byte, offsets[i]-uint64(out.Len())))
			out.Write(s.Content)
		}
	}
	out.Write(make([]byte, shoff-uint64(out.Len())))
	for i, s := range l.sections {
		binary.Write(out, binary.LittleEndian, elfSectionHeader{
			Name:      l.names[i],
			Type:      s.Type,
			Flags:     s.Flags,
			Offset:    offsets[i],
			Size:      uint64(len(s.Content)),
			Link:      l.links[s],
			Info:      s.Info,
			Addralign: s.Addralign,
			Entsize:   s.Entsize,
		})
	}
	return out.Bytes()
}

// orderSymbols assigns table indices with every local ahead of every global,
// keeping insertion order within each group. Index 0 is the null symbol.
func orderSymbols(syms []*Symbol) ([]*Symbol, map[*Symbol]uint32, uint32) {
	var ordered []*Symbol
	for _, sym := range syms {
		if sym.binding() == STB_LOCAL {
			ordered = append(ordered, sym)
		}
	}
	firstGlobal := uint32(len(ordered) + 1)
	for _, sym := range syms {
		if sym.binding() != STB_LOCAL {
			ordered = append(ordered, sym)
		}
	}
	index := make(map[*Symbol]uint32, len(ordered))
	for i, sym := range ordered {
		index[sym] = uint32(i + 1)
	}
	return ordered, index, firstGlobal
}

func encodeRelocs(s *Section, symIndex map[*Symbol]uint32) ([]byte, error) {
	entries := make([]elfRela, 0, len(s.relocs))
	for _, r := range s.relocs {
		idx, ok := symIndex[r.Symbol]
		if !ok {
			return nil, errors.Errorf("relocation in %s references unknown symbol", s.Name)
		}
		entries = append(entries, elfRela{Off: r.Offset, Info: uint64(idx)<<32 | uint64(r.Type), Addend: r.Addend})
	}
	return encode(entries), nil
}

func encode(v any) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func alignUp(n, align uint64) uint64 {
	if r := n % align; r != 0 {
		return n + align - r
	}
	return n
}

// Bytes returns the encoded object file.
func (f *File) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := f.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Symbol) shndx() uint16 {
	switch {
	case s.Abs:
		return SHN_ABS
	case s.Section != nil:
		return s.Section.index
	}
	return 0
}

type elfHeader struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elfSectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type elfSym struct {
	Name  uint32
	Info  byte
	Other byte
	Shndx uint16
	Value uint64
	Size  uint64
}

type elfRela struct {
	Off    uint64
	Info   uint64
	Addend int64
}
