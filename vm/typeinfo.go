package vm

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotSubtype is returned by Upcast when an entity's type does not descend
// from the requested object type.
var ErrNotSubtype = errors.New("not a subtype")

// TypeInfo is an entity's type descriptor: either a *DataType or an
// *ObjectType. The set is closed; callers switch on the concrete type:
//
//	switch t := e.Type().(type) {
//	case *vm.ObjectType:
//	    ...
//	case *vm.DataType:
//	    ...
//	}
type TypeInfo interface {
	// Data returns the data-type part shared by both variants. For an
	// object type this is its embedded DataType.
	Data() *DataType
	typeInfo()
}

// DataType describes a value-like type: payload size and trait
// conformance, no inheritance.
type DataType struct {
	Name string

	// Size is the payload size in bytes. Zero with a nil Layout denotes a
	// variable-size payload (strings).
	Size   int
	Layout *Layout

	// Traits and TraitTables are parallel: TraitTables[i] is this type's
	// implementation table for Traits[i].
	Traits      []*Trait
	TraitTables []any
}

// NewDataType creates a data type sized by its layout.
func NewDataType(name string, layout *Layout) *DataType {
	return &DataType{Name: name, Size: layout.Size(), Layout: layout}
}

func (t *DataType) Data() *DataType { return t }
func (*DataType) typeInfo() {}

// Conform registers the implementation table of trait for this type.
// Conformances are declared while the program starts, before any entity of
// the type is shared between goroutines.
func (t *DataType) Conform(trait *Trait, table any) {
	t.Traits = append(t.Traits, trait)
	t.TraitTables = append(t.TraitTables, table)
}

// TraitCount returns the number of traits the type implements.
func (t *DataType) TraitCount() int {
	return len(t.Traits)
}

// Implements reports whether the type conforms to trait.
func (t *DataType) Implements(trait *Trait) bool {
	return t.traitTable(trait) != nil
}

func (t *DataType) traitTable(trait *Trait) any {
	for i, id := range t.Traits {
		if id == trait {
			return t.TraitTables[i]
		}
	}
	return nil
}

// Validate checks the descriptor's internal consistency.
func (t *DataType) Validate() error {
	if t.Name == "" {
		return &DescriptorError{Type: "<unnamed>", Reason: "missing name"}
	}
	if t.Size < 0 {
		return &DescriptorError{Type: t.Name, Reason: fmt.Sprintf("negative size %d", t.Size)}
	}
	if t.Layout != nil && t.Layout.Size() != t.Size {
		return &DescriptorError{Type: t.Name,
			Reason: fmt.Sprintf("size %d does not match layout size %d", t.Size, t.Layout.Size())}
	}
	if len(t.Traits) != len(t.TraitTables) {
		return &DescriptorError{Type: t.Name,
			Reason: fmt.Sprintf("%d traits but %d trait tables", len(t.Traits), len(t.TraitTables))}
	}
	seen := make(map[*Trait]bool, len(t.Traits))
	for i, trait := range t.Traits {
		if trait == nil || t.TraitTables[i] == nil {
			return &DescriptorError{Type: t.Name, Reason: fmt.Sprintf("nil trait entry %d", i)}
		}
		if seen[trait] {
			return &DescriptorError{Type: t.Name, Reason: "duplicate conformance to " + trait.Name}
		}
		seen[trait] = true
	}
	return nil
}

// ObjectType describes a reference-like type with single inheritance. It
// embeds the DataType fields so trait dispatch treats both variants alike.
type ObjectType struct {
	DataType

	// VTable is the fully flattened method table: every slot holds the most
	// specific implementation for this type.
	VTable *VTable

	// Super is the immediate ancestor, nil for a root type. It is used for
	// introspection and layout validation, never for method dispatch.
	Super *ObjectType
}

// NewObjectType creates an object type sized by its layout.
func NewObjectType(name string, layout *Layout, super *ObjectType, vt *VTable) *ObjectType {
	return &ObjectType{
		DataType: DataType{Name: name, Size: layout.Size(), Layout: layout},
		VTable:   vt,
		Super:    super,
	}
}

// IsSubtypeOf reports whether t is other or descends from it.
func (t *ObjectType) IsSubtypeOf(other *ObjectType) bool {
	for cur := t; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// Ancestors returns the chain of super types, nearest first.
func (t *ObjectType) Ancestors() []*ObjectType {
	var chain []*ObjectType
	for cur := t.Super; cur != nil; cur = cur.Super {
		chain = append(chain, cur)
	}
	return chain
}

// Validate checks the descriptor and its relation to every ancestor.
func (t *ObjectType) Validate() error {
	if err := t.DataType.Validate(); err != nil {
		return err
	}
	if t.VTable == nil {
		return &DescriptorError{Type: t.Name, Reason: "missing vtable"}
	}
	seen := map[*ObjectType]bool{t: true}
	for cur := t.Super; cur != nil; cur = cur.Super {
		if seen[cur] {
			return &DescriptorError{Type: t.Name, Reason: "inheritance cycle through " + cur.Name}
		}
		seen[cur] = true
	}
	if s := t.Super; s != nil {
		if !t.Layout.HasPrefix(s.Layout) {
			return &DescriptorError{Type: t.Name,
				Reason: "layout does not start with the fields of " + s.Name}
		}
		if s.VTable != nil && t.VTable.Len() < s.VTable.Len() {
			return &DescriptorError{Type: t.Name,
				Reason: fmt.Sprintf("vtable has %d slots, %s has %d", t.VTable.Len(), s.Name, s.VTable.Len())}
		}
		for _, sel := range s.VTable.Selectors() {
			inherited, own := s.VTable.Method(sel), t.VTable.Method(sel)
			if own == nil {
				return &DescriptorError{Type: t.Name,
					Reason: fmt.Sprintf("vtable lacks %s inherited from %s", Selectors.Name(sel), s.Name)}
			}
			if reflect.TypeOf(own) != reflect.TypeOf(inherited) {
				return &DescriptorError{Type: t.Name,
					Reason: fmt.Sprintf("vtable slot %s is %T, %s has %T", Selectors.Name(sel), own, s.Name, inherited)}
			}
		}
	}
	return nil
}

// DescriptorError reports an inconsistent type descriptor.
type DescriptorError struct {
	Type   string
	Reason string
}

func (e *DescriptorError) Error() string {
	return "type " + e.Type + ": " + e.Reason
}

// Upcast returns e viewed as an instance of t. Because derived layouts keep
// every ancestor field at the same offset, no adjustment is needed; Upcast
// only checks the relation.
func Upcast(e *Entity, t *ObjectType) (*Entity, error) {
	if e == nil {
		return nil, nil
	}
	if t == nil {
		return nil, fmt.Errorf("upcast %s to nil type: %w", e.typ.Data().Name, ErrNotSubtype)
	}
	ot, ok := e.typ.(*ObjectType)
	if !ok || !ot.IsSubtypeOf(t) {
		return nil, fmt.Errorf("upcast %s to %s: %w", e.typ.Data().Name, t.Name, ErrNotSubtype)
	}
	return e, nil
}

// VTableOf returns the method table of an object entity, or nil for data
// entities.
func VTableOf(e *Entity) *VTable {
	if e == nil {
		return nil
	}
	if ot, ok := e.typ.(*ObjectType); ok {
		return ot.VTable
	}
	return nil
}
