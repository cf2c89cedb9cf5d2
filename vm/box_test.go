package vm

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func TestFormatInteger(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{42, "42"},
		{0, "0"},
		{-17, "-17"},
		{math.MaxInt64, "9223372036854775807"},
	}
	for _, tt := range tests {
		if got := FormatInteger(tt.in); got != tt.want {
			t.Errorf("FormatInteger(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatReal(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12.0, "12.0"},
		{-3.5, "-3.5"},
		{0.5, "0.5"},
		{999999.0, "999999.0"},
		{1e6, "1.0e+06"},
		{0.0005, "5.0e-04"},
		{0, "0.0e+00"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		if got := FormatReal(tt.in); got != tt.want {
			t.Errorf("FormatReal(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBitfield(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0x0123456789abcdef, "0x0123_4567_89ab_cdef"},
		{0x12, "0x0000_0000_0000_0012"},
		{0, "0x0000_0000_0000_0000"},
		{math.MaxUint64, "0xffff_ffff_ffff_ffff"},
	}
	for _, tt := range tests {
		got := FormatBitfield(tt.in)
		if got != tt.want {
			t.Errorf("FormatBitfield(%#x) = %q, want %q", tt.in, got, tt.want)
		}
		if len(got) != 21 {
			t.Errorf("FormatBitfield(%#x) has %d characters, want 21", tt.in, len(got))
		}
	}
}

func TestBoxesRenderThroughTrait(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())

	tests := []struct {
		name string
		box  func() *Entity
		want string
	}{
		{"integer", func() *Entity { return h.BoxInteger(42) }, "42"},
		{"real", func() *Entity { return h.BoxReal(12.0) }, "12.0"},
		{"bitfield", func() *Entity { return h.BoxBitfield(0x0123456789abcdef) }, "0x0123_4567_89ab_cdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.box()
			defer Release(b)

			if b.Semantics() != Isolated {
				t.Error("boxes are isolated")
			}
			rep, ok := TraitTableOf[*StringRepresentation](b, HasStringRepresentation)
			if !ok {
				t.Fatal("box does not conform to HasStringRepresentation")
			}
			s := rep.ToString(b)
			if got := StringOf(s); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			Release(s)
		})
	}
	expectLeakFree(t, h)
}

func TestUnbox(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())

	i := h.BoxInteger(-9)
	r := h.BoxReal(1.5)
	defer Release(i)
	defer Release(r)

	if UnboxInteger(i) != -9 {
		t.Errorf("expected -9, got %d", UnboxInteger(i))
	}
	if UnboxReal(r) != 1.5 {
		t.Errorf("expected 1.5, got %v", UnboxReal(r))
	}
}

func TestStringEntities(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())

	s := h.Format("%s=%d", "x", 3)
	if StringOf(s) != "x=3" {
		t.Errorf("expected x=3, got %q", StringOf(s))
	}
	if s.Size() != 3 {
		t.Errorf("expected variable payload of 3 bytes, got %d", s.Size())
	}

	text, ok := ToString(s)
	if !ok || text != "x=3" {
		t.Errorf("expected string to render itself, got %q", text)
	}
	if s.RefCount() != 1 {
		t.Errorf("ToString must release its intermediate, refcount %d", s.RefCount())
	}

	alias := Retain(s)
	s = Isolate(s)
	if s == alias || StringOf(s) != "x=3" || s.Size() != 3 {
		t.Error("isolating a shared string must copy its whole payload")
	}
	Release(alias)
	Release(s)
	expectLeakFree(t, h)
}

func TestStringOfPanicsForNonString(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())
	b := h.BoxInteger(1)
	defer Release(b)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	StringOf(b)
}

func TestPrinter(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())
	var out bytes.Buffer
	p := NewPrinter(&out)

	i := h.BoxInteger(42)
	s := h.NewString("hello")
	if err := p.Print(i); err != nil {
		t.Fatal(err)
	}
	if err := p.Print(s); err != nil {
		t.Fatal(err)
	}
	if out.String() != "42\nhello\n" {
		t.Errorf("unexpected output %q", out.String())
	}
	if i.RefCount() != 1 || s.RefCount() != 1 {
		t.Error("print must not consume the caller's reference")
	}
	Release(i)
	Release(s)
	expectLeakFree(t, h)
}

func TestPrintNonConformingIsFatal(t *testing.T) {
	h, diag := newTestHeap(t, DefaultHeapOptions())
	e := h.Allocate(structType, Isolated)
	defer Release(e)

	code := expectExit(t, func() { NewPrinter(&bytes.Buffer{}).Print(e) })
	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(diag.String(), "Struct does not conform to HasStringRepresentation") {
		t.Errorf("unexpected diagnostic %q", diag.String())
	}
}
