package vm

import (
	"math"
	"strconv"
	"strings"
)

// Boxes wrap one primitive scalar in an entity so it can be passed where a
// trait-conforming entity is expected.

var boxLayout = NewLayout("box", nil)

// BoxedField is the single word of a box payload.
var BoxedField = boxLayout.Bitfield("boxed")

var (
	IntegerBox  = newBoxType("integer", func(bits uint64) string { return FormatInteger(int64(bits)) })
	RealBox     = newBoxType("real", func(bits uint64) string { return FormatReal(math.Float64frombits(bits)) })
	BitfieldBox = newBoxType("bitfield", FormatBitfield)
)

func newBoxType(name string, format func(bits uint64) string) *DataType {
	t := NewDataType(name, boxLayout)
	t.Conform(HasStringRepresentation, &StringRepresentation{
		ToString: func(self *Entity) *Entity {
			return self.heap.NewString(format(Unbox(self)))
		},
	})
	return t
}

// MakeBox allocates an isolated box of type ti holding bits.
func (h *Heap) MakeBox(bits uint64, ti TypeInfo) *Entity {
	b := h.Allocate(ti, Isolated)
	b.SetBitfield(BoxedField, bits)
	return b
}

// MakeBox allocates a box on the default heap.
func MakeBox(bits uint64, ti TypeInfo) *Entity {
	return DefaultHeap().MakeBox(bits, ti)
}

// BoxInteger boxes an integer.
func (h *Heap) BoxInteger(v int64) *Entity { return h.MakeBox(uint64(v), IntegerBox) }

// BoxReal boxes a real.
func (h *Heap) BoxReal(v float64) *Entity { return h.MakeBox(math.Float64bits(v), RealBox) }

// BoxBitfield boxes a bitfield.
func (h *Heap) BoxBitfield(v uint64) *Entity { return h.MakeBox(v, BitfieldBox) }

// Unbox returns the raw word of a box.
func Unbox(b *Entity) uint64 {
	return b.Bitfield(BoxedField)
}

// UnboxInteger returns the integer held by a box.
func UnboxInteger(b *Entity) int64 { return int64(Unbox(b)) }

// UnboxReal returns the real held by a box.
func UnboxReal(b *Entity) float64 { return math.Float64frombits(Unbox(b)) }

// FormatInteger renders an integer in decimal.
func FormatInteger(v int64) string {
	return strconv.FormatInt(v, 10)
}

// FormatReal renders a real with one decimal, switching to scientific
// notation for magnitudes of at least 1e6 or below 1e-3. Infinities and NaN
// are spelled inf, -inf and nan.
func FormatReal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if a := math.Abs(v); a >= 1e6 || a < 1e-3 {
		return strconv.FormatFloat(v, 'e', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// FormatBitfield renders all 64 bits as hex digits grouped by four, for
// example 0x0000_0000_0000_0012. The result is always 21 characters.
func FormatBitfield(v uint64) string {
	digits := strconv.FormatUint(v, 16)
	digits = strings.Repeat("0", 16-len(digits)) + digits

	var sb strings.Builder
	sb.Grow(21)
	sb.WriteString("0x")
	for i := 0; i < 16; i += 4 {
		if i > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(digits[i : i+4])
	}
	return sb.String()
}
