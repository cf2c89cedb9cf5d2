package vm

import (
	"fmt"
	"reflect"
)

// VTable holds the method dispatch table of an object type.
//
// Methods are stored in an array indexed by Selector. Unlike a lookup that
// walks parent tables, a VTable is flattened when it is built: it starts as
// a copy of its ancestor's slots and overrides replace individual entries,
// so every call is a single index.
//
// A method is any function value; callers assert the signature they expect
// with MethodOf. Tables are filled while the program starts and only read
// afterwards.
type VTable struct {
	name    string
	methods []any
	sealed  bool
}

// NewVTable creates a table for the named type, inheriting every slot of
// super (which may be nil). The super table is sealed: a method defined on
// it afterwards would be missing from the copy.
func NewVTable(name string, super *VTable) *VTable {
	vt := &VTable{name: name}
	if super != nil {
		super.sealed = true
		vt.methods = append(make([]any, 0, len(super.methods)), super.methods...)
	}
	return vt
}

// Define sets the method for a selector. Redefining an inherited slot with
// a function of a different signature, or defining on a table that a
// derived table was already built from, panics.
func (vt *VTable) Define(sel Selector, method any) *VTable {
	if vt.sealed {
		panic("VTable.Define: " + vt.name + " is sealed by a derived vtable")
	}
	if sel < 0 {
		panic(fmt.Sprintf("VTable.Define: negative selector %d", sel))
	}
	if method == nil || reflect.TypeOf(method).Kind() != reflect.Func {
		panic(fmt.Sprintf("VTable.Define: %s slot %d: method must be a function", vt.name, sel))
	}
	if int(sel) >= len(vt.methods) {
		grown := make([]any, sel+1)
		copy(grown, vt.methods)
		vt.methods = grown
	}
	if old := vt.methods[sel]; old != nil && reflect.TypeOf(old) != reflect.TypeOf(method) {
		panic(fmt.Sprintf("VTable.Define: %s slot %d: %T does not match inherited %T", vt.name, sel, method, old))
	}
	vt.methods[sel] = method
	return vt
}

// Method returns the method in a slot, or nil.
func (vt *VTable) Method(sel Selector) any {
	if sel >= 0 && int(sel) < len(vt.methods) {
		return vt.methods[sel]
	}
	return nil
}

// Has reports whether a slot is filled.
func (vt *VTable) Has(sel Selector) bool {
	return vt.Method(sel) != nil
}

// Name returns the name of the type the table belongs to.
func (vt *VTable) Name() string {
	return vt.name
}

// Len returns the number of slots, including empty ones.
func (vt *VTable) Len() int {
	if vt == nil {
		return 0
	}
	return len(vt.methods)
}

// Selectors returns the filled slots in ascending order.
func (vt *VTable) Selectors() []Selector {
	if vt == nil {
		return nil
	}
	var sels []Selector
	for i, m := range vt.methods {
		if m != nil {
			sels = append(sels, Selector(i))
		}
	}
	return sels
}

// MethodOf returns the method in a slot asserted to signature F.
func MethodOf[F any](vt *VTable, sel Selector) (F, bool) {
	var zero F
	if vt == nil {
		return zero, false
	}
	m, ok := vt.Method(sel).(F)
	return m, ok
}

// Send looks up a method on an object entity's own vtable. It panics if the
// entity is not an object or the slot does not hold an F, mirroring an
// unchecked indirect call in generated code.
func Send[F any](e *Entity, sel Selector) F {
	m, ok := MethodOf[F](VTableOf(e), sel)
	if !ok {
		panic(fmt.Sprintf("Send: %s does not understand %s", e.typ.Data().Name, Selectors.Name(sel)))
	}
	return m
}
