package vm

import "fmt"

// HasStringRepresentation is the trait of types that can render themselves
// as text. Its implementation table is a *StringRepresentation.
var HasStringRepresentation = Traits.Intern("HasStringRepresentation")

// StringRepresentation is the implementation table of
// HasStringRepresentation. ToString returns a new string entity owned by
// the caller.
type StringRepresentation struct {
	ToString func(self *Entity) *Entity
}

// StringType is the type of string entities. Its payload is the UTF-8 text,
// so its size varies per entity.
var StringType = &DataType{Name: "string"}

func init() {
	StringType.Conform(HasStringRepresentation, &StringRepresentation{
		ToString: func(self *Entity) *Entity { return Retain(self) },
	})
}

// NewString allocates an isolated string entity holding s.
func (h *Heap) NewString(s string) *Entity {
	e, err := h.allocSized(StringType, Isolated, len(s))
	if err != nil {
		h.exhausted(err)
	}
	copy(e.data, s)
	return e
}

// NewString allocates a string entity on the default heap.
func NewString(s string) *Entity {
	return DefaultHeap().NewString(s)
}

// Format builds a string entity from a format and arguments.
func (h *Heap) Format(format string, args ...any) *Entity {
	return h.NewString(fmt.Sprintf(format, args...))
}

// StringOf returns the text of a string entity. It panics if e is not a
// string.
func StringOf(e *Entity) string {
	if e.typ != TypeInfo(StringType) {
		panic("StringOf: " + e.typ.Data().Name + " is not a string")
	}
	return string(e.data)
}

// ToString renders any entity conforming to HasStringRepresentation. It
// reports false when e does not conform.
func ToString(e *Entity) (string, bool) {
	rep, ok := TraitTableOf[*StringRepresentation](e, HasStringRepresentation)
	if !ok {
		return "", false
	}
	s := rep.ToString(e)
	text := StringOf(s)
	Release(s)
	return text, true
}
