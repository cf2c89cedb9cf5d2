package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WordSize is the size of every scalar field.
const WordSize = 8

// FieldKind is the scalar type stored in a field.
type FieldKind uint8

const (
	IntegerField FieldKind = iota + 1
	RealField
	BitfieldField
)

func (k FieldKind) String() string {
	switch k {
	case IntegerField:
		return "integer"
	case RealField:
		return "real"
	case BitfieldField:
		return "bitfield"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint8(k))
	}
}

// Field locates one scalar in an entity payload.
type Field struct {
	Name   string
	Kind   FieldKind
	Offset int
	Owner  *Layout // the layout that declared the field
}

// Layout describes the payload of a type. A derived layout starts with all
// of its ancestors' fields, in ancestor-to-descendant order, so an offset
// valid for an ancestor is valid for every descendant.
type Layout struct {
	name   string
	parent *Layout
	fields []Field // all fields, inherited first
	sealed bool
}

// NewLayout starts a layout after the fields of parent (which may be nil).
// The parent is sealed: adding fields to it afterwards would shift the
// derived layout.
func NewLayout(name string, parent *Layout) *Layout {
	l := &Layout{name: name, parent: parent}
	if parent != nil {
		parent.sealed = true
		l.fields = append(l.fields, parent.fields...)
	}
	return l
}

// Integer appends an integer field.
func (l *Layout) Integer(name string) Field { return l.add(name, IntegerField) }

// Real appends a real field.
func (l *Layout) Real(name string) Field { return l.add(name, RealField) }

// Bitfield appends a bitfield field.
func (l *Layout) Bitfield(name string) Field { return l.add(name, BitfieldField) }

func (l *Layout) add(name string, kind FieldKind) Field {
	if l.sealed {
		panic("Layout.add: " + l.name + " is sealed by a derived layout")
	}
	f := Field{Name: name, Kind: kind, Offset: len(l.fields) * WordSize, Owner: l}
	l.fields = append(l.fields, f)
	return f
}

// Name returns the layout's name.
func (l *Layout) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Parent returns the ancestor layout, or nil.
func (l *Layout) Parent() *Layout { return l.parent }

// Size returns the payload size in bytes.
func (l *Layout) Size() int {
	if l == nil {
		return 0
	}
	return len(l.fields) * WordSize
}

// Fields returns all fields, inherited ones first.
func (l *Layout) Fields() []Field {
	if l == nil {
		return nil
	}
	return append([]Field(nil), l.fields...)
}

// Own returns the fields declared by this layout itself.
func (l *Layout) Own() []Field {
	if l == nil {
		return nil
	}
	return append([]Field(nil), l.fields[l.parent.Size()/WordSize:]...)
}

// Field finds a field by name. Ancestor fields with the same name are
// shadowed by the most derived declaration.
func (l *Layout) Field(name string) (Field, bool) {
	for i := len(l.fields) - 1; i >= 0; i-- {
		if l.fields[i].Name == name {
			return l.fields[i], true
		}
	}
	return Field{}, false
}

// HasPrefix reports whether every field of ancestor appears at the same
// offset and kind in l.
func (l *Layout) HasPrefix(ancestor *Layout) bool {
	if ancestor == nil {
		return true
	}
	if l == nil || len(ancestor.fields) > len(l.fields) {
		return false
	}
	for i, f := range ancestor.fields {
		if l.fields[i] != f {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Field access
// ---------------------------------------------------------------------------

// Integer reads an integer field.
func (e *Entity) Integer(f Field) int64 {
	return int64(e.word("Integer", f, IntegerField))
}

// SetInteger writes an integer field.
func (e *Entity) SetInteger(f Field, v int64) {
	e.setWord("SetInteger", f, IntegerField, uint64(v))
}

// Real reads a real field.
func (e *Entity) Real(f Field) float64 {
	return math.Float64frombits(e.word("Real", f, RealField))
}

// SetReal writes a real field.
func (e *Entity) SetReal(f Field, v float64) {
	e.setWord("SetReal", f, RealField, math.Float64bits(v))
}

// Bitfield reads a bitfield field.
func (e *Entity) Bitfield(f Field) uint64 {
	return e.word("Bitfield", f, BitfieldField)
}

// SetBitfield writes a bitfield field.
func (e *Entity) SetBitfield(f Field, v uint64) {
	e.setWord("SetBitfield", f, BitfieldField, v)
}

func (e *Entity) word(op string, f Field, kind FieldKind) uint64 {
	e.checkField(op, f, kind)
	return binary.LittleEndian.Uint64(e.data[f.Offset:])
}

func (e *Entity) setWord(op string, f Field, kind FieldKind, v uint64) {
	e.checkField(op, f, kind)
	binary.LittleEndian.PutUint64(e.data[f.Offset:], v)
}

func (e *Entity) checkField(op string, f Field, kind FieldKind) {
	if f.Kind != kind {
		panic(fmt.Sprintf("Entity.%s: field %s is %s, not %s", op, f.Name, f.Kind, kind))
	}
	if f.Offset < 0 || f.Offset+WordSize > len(e.data) {
		panic(fmt.Sprintf("Entity.%s: field %s out of range for %s", op, f.Name, e.typ.Data().Name))
	}
	idx := f.Offset / WordSize
	if l := e.typ.Data().Layout; l != nil && (idx >= len(l.fields) || l.fields[idx] != f) {
		panic(fmt.Sprintf("Entity.%s: %s has no field %s.%s", op, e.typ.Data().Name, f.Owner.Name(), f.Name))
	}
}
