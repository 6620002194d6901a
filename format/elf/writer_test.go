package elf

import (
	"bytes"
	stdelf "debug/elf"
	"testing"
)

func buildObject() *File {
	f := NewFile()
	text := f.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR,
		[]byte{0x55, 0xE8, 0, 0, 0, 0, 0xC9, 0xC3})
	text.Addralign = 16

	file := f.AddSymbol("demo", MakeSymbolInfo(STB_LOCAL, STT_FILE), nil, 0, 0)
	file.Abs = true
	f.AddSymbol("main", MakeSymbolInfo(STB_GLOBAL, STT_FUNC), text, 0, 8)
	// Added after a global on purpose; must still be ordered first.
	f.AddSymbol("", MakeSymbolInfo(STB_LOCAL, STT_SECTION), text, 0, 0)
	ext := f.AddSymbol("puts", MakeSymbolInfo(STB_GLOBAL, STT_NOTYPE), nil, 0, 0)

	f.AddRelocation(text, Rela{Offset: 2, Symbol: ext, Type: 4, Addend: -4})
	return f
}

func TestWriteParsesWithDebugELF(t *testing.T) {
	data, err := buildObject().Bytes()
	if err != nil {
		t.Fatal(err)
	}
	ef, err := stdelf.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("debug/elf rejected object: %v", err)
	}
	if ef.Type != stdelf.ET_REL || ef.Machine != stdelf.EM_X86_64 || ef.Class != stdelf.ELFCLASS64 {
		t.Fatalf("header = %v %v %v", ef.Type, ef.Machine, ef.Class)
	}

	text := ef.Section(".text")
	if text == nil {
		t.Fatal("no .text section")
	}
	if text.Flags != stdelf.SHF_ALLOC|stdelf.SHF_EXECINSTR || text.Offset%16 != 0 {
		t.Errorf(".text flags=%v offset=%#x", text.Flags, text.Offset)
	}

	syms, err := ef.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	// demo, section, main, puts
	if len(syms) != 4 {
		t.Fatalf("got %d symbols, want 4: %+v", len(syms), syms)
	}
	for i, want := range []stdelf.SymBind{stdelf.STB_LOCAL, stdelf.STB_LOCAL, stdelf.STB_GLOBAL, stdelf.STB_GLOBAL} {
		if got := stdelf.ST_BIND(syms[i].Info); got != want {
			t.Errorf("symbol %d (%q) binding = %v, want %v", i, syms[i].Name, got, want)
		}
	}
	if syms[2].Name != "main" || syms[2].Size != 8 || stdelf.ST_TYPE(syms[2].Info) != stdelf.STT_FUNC {
		t.Errorf("main = %+v", syms[2])
	}
	if syms[3].Name != "puts" || syms[3].Section != stdelf.SHN_UNDEF {
		t.Errorf("puts = %+v", syms[3])
	}

	symtab := ef.Section(".symtab")
	if symtab.Info != 3 {
		t.Errorf(".symtab info = %d, want index of first global 3", symtab.Info)
	}
	if int(symtab.Link) >= len(ef.Sections) || ef.Sections[symtab.Link].Name != ".strtab" {
		t.Errorf(".symtab link = %d", symtab.Link)
	}

	rela := ef.Section(".rela.text")
	if rela == nil {
		t.Fatal("no .rela.text section")
	}
	if ef.Sections[rela.Link].Name != ".symtab" || ef.Sections[rela.Info].Name != ".text" {
		t.Errorf(".rela.text link=%d info=%d", rela.Link, rela.Info)
	}
	if rela.Flags&stdelf.SHF_INFO_LINK == 0 || rela.Entsize != 24 {
		t.Errorf(".rela.text flags=%v entsize=%d", rela.Flags, rela.Entsize)
	}
	raw, err := rela.Data()
	if err != nil {
		t.Fatal(err)
	}
	r := stdelf.Rela64{
		Off:    ef.ByteOrder.Uint64(raw[0:]),
		Info:   ef.ByteOrder.Uint64(raw[8:]),
		Addend: int64(ef.ByteOrder.Uint64(raw[16:])),
	}
	if r.Off != 2 || stdelf.R_X86_64(stdelf.R_TYPE64(r.Info)) != stdelf.R_X86_64_PLT32 || r.Addend != -4 {
		t.Errorf("rela = %+v", r)
	}
	// Symbol table index 4 is puts (0 is the null symbol).
	if stdelf.R_SYM64(r.Info) != 4 {
		t.Errorf("rela symbol = %d, want 4", stdelf.R_SYM64(r.Info))
	}
}

func TestWriteIsRepeatable(t *testing.T) {
	f := buildObject()
	first, err := f.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("writing the same file twice produced different bytes")
	}
	if len(f.Sections) != 2 {
		t.Errorf("writing added %d sections to the file", len(f.Sections)-2)
	}
}

func TestRelocationToUnknownSymbol(t *testing.T) {
	f := NewFile()
	text := f.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 8))
	f.AddRelocation(text, Rela{Offset: 1, Symbol: &Symbol{Name: "ghost"}, Type: 4})
	if _, err := f.Bytes(); err == nil {
		t.Fatal("expected an error for a symbol not in the file")
	}
}

func TestMakeSymbolInfo(t *testing.T) {
	if got := MakeSymbolInfo(STB_GLOBAL, STT_FUNC); got != 0x12 {
		t.Errorf("MakeSymbolInfo(GLOBAL, FUNC) = %#x, want 0x12", got)
	}
}
