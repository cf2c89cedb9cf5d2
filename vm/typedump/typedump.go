// Package typedump exports entity type descriptors as canonical CBOR so
// tools can inspect the layouts, conformances and vtables a program
// declares without linking against it.
package typedump

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/clawr/vm"
)

// Version is the dump format version.
const Version = 1

// Kind distinguishes the two TypeInfo variants.
type Kind uint8

const (
	KindData   Kind = 1
	KindObject Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Field describes one payload field.
type Field struct {
	Name       string `cbor:"1,keyasint"`
	Kind       string `cbor:"2,keyasint"`
	Offset     int    `cbor:"3,keyasint"`
	DeclaredBy string `cbor:"4,keyasint,omitempty"` // layout that declares the field
}

// Descriptor is the serializable form of a DataType or ObjectType.
type Descriptor struct {
	Name    string   `cbor:"1,keyasint"`
	Kind    Kind     `cbor:"2,keyasint"`
	Size    int      `cbor:"3,keyasint"`
	Fields  []Field  `cbor:"4,keyasint,omitempty"`
	Traits  []string `cbor:"5,keyasint,omitempty"`
	Super   string   `cbor:"6,keyasint,omitempty"`
	Methods []string `cbor:"7,keyasint,omitempty"` // selector names of filled vtable slots
}

// Dump is a descriptor graph, ancestors before descendants.
type Dump struct {
	Version uint8        `cbor:"1,keyasint"`
	Types   []Descriptor `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("typedump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Describe converts a single type descriptor. It does not validate.
func Describe(ti vm.TypeInfo) Descriptor {
	dt := ti.Data()
	d := Descriptor{Name: dt.Name, Kind: KindData, Size: dt.Size}

	for _, f := range dt.Layout.Fields() {
		d.Fields = append(d.Fields, Field{
			Name:       f.Name,
			Kind:       f.Kind.String(),
			Offset:     f.Offset,
			DeclaredBy: f.Owner.Name(),
		})
	}
	for _, t := range dt.Traits {
		d.Traits = append(d.Traits, t.Name)
	}

	if ot, ok := ti.(*vm.ObjectType); ok {
		d.Kind = KindObject
		if ot.Super != nil {
			d.Super = ot.Super.Name
		}
		for _, sel := range ot.VTable.Selectors() {
			d.Methods = append(d.Methods, vm.Selectors.Name(sel))
		}
	}
	return d
}

// ErrNameClash is returned by Collect when two distinct descriptors share a
// name.
var ErrNameClash = errors.New("distinct types share a name")

// Collect validates and describes types together with all of their
// ancestors. Ancestors come first and each descriptor appears once.
func Collect(types ...vm.TypeInfo) (*Dump, error) {
	dump := &Dump{Version: Version}
	seen := make(map[string]vm.TypeInfo)

	add := func(ti vm.TypeInfo) error {
		name := ti.Data().Name
		if prev, ok := seen[name]; ok {
			if prev != ti {
				return fmt.Errorf("typedump: %s: %w", name, ErrNameClash)
			}
			return nil
		}
		seen[name] = ti
		dump.Types = append(dump.Types, Describe(ti))
		return nil
	}

	for _, ti := range types {
		if ti == nil {
			return nil, fmt.Errorf("typedump: %w", vm.ErrNilType)
		}
		switch t := ti.(type) {
		case *vm.ObjectType:
			if err := t.Validate(); err != nil {
				return nil, fmt.Errorf("typedump: %w", err)
			}
			chain := t.Ancestors()
			for i := len(chain) - 1; i >= 0; i-- {
				if err := add(chain[i]); err != nil {
					return nil, err
				}
			}
			if err := add(t); err != nil {
				return nil, err
			}
		case *vm.DataType:
			if err := t.Validate(); err != nil {
				return nil, fmt.Errorf("typedump: %w", err)
			}
			if err := add(t); err != nil {
				return nil, err
			}
		}
	}
	return dump, nil
}

// Lookup returns the descriptor with the given name.
func (d *Dump) Lookup(name string) (Descriptor, bool) {
	for _, t := range d.Types {
		if t.Name == name {
			return t, true
		}
	}
	return Descriptor{}, false
}

// Marshal serializes a Dump to canonical CBOR bytes.
func Marshal(d *Dump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// Unmarshal deserializes a Dump from CBOR bytes.
func Unmarshal(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("typedump: unmarshal: %w", err)
	}
	if d.Version != Version {
		return nil, fmt.Errorf("typedump: unsupported version %d", d.Version)
	}
	return &d, nil
}
