package programs

import (
	"fmt"

	"github.com/chazu/clawr/vm"
)

// data Struct { value: integer }
var (
	structLayout = vm.NewLayout("Struct", nil)
	structValue  = structLayout.Integer("value")
	structType   = vm.NewDataType("Struct", structLayout)
)

// data PrintableStruct { value: integer }
// model PrintableStruct: HasStringRepresentation
var (
	printableLayout = vm.NewLayout("PrintableStruct", nil)
	printableValue  = printableLayout.Integer("value")
	printableType   = vm.NewDataType("PrintableStruct", printableLayout)
)

// toString() => self.value.toString()
func printableToString(self *vm.Entity) *vm.Entity {
	b := self.Heap().BoxInteger(self.Integer(printableValue))
	defer vm.Release(b)
	rep, ok := vm.TraitTableOf[*vm.StringRepresentation](b, vm.HasStringRepresentation)
	if !ok {
		return self.Heap().NewString(vm.FormatInteger(self.Integer(printableValue)))
	}
	return rep.ToString(b)
}

// object Super {
//     func value() => self.value
//     mutating: func setValue(_ value: integer)
//     data: value: integer
// }
//
// object Object: Super {
//     func objectValue() => self.value
//     mutating: func setObjectValue(_ value: integer)
//     data: value: integer
// }
var (
	selValue    = vm.Selectors.Intern("value")
	selSetValue = vm.Selectors.Intern("setValue:")

	superLayout = vm.NewLayout("Super", nil)
	superValue  = superLayout.Integer("value")

	objectLayout = vm.NewLayout("Object", superLayout)
	objectValue  = objectLayout.Integer("value")

	superVTable = vm.NewVTable("Super", nil).
		Define(selValue, superGetValue).
		Define(selSetValue, superSetValue)
	superType = vm.NewObjectType("Super", superLayout, nil, superVTable)

	objectVTable = vm.NewVTable("Object", superVTable)
	objectType   = vm.NewObjectType("Object", objectLayout, superType, objectVTable)
)

func init() {
	printableType.Conform(vm.HasStringRepresentation, &vm.StringRepresentation{
		ToString: printableToString,
	})
}

func superGetValue(self *vm.Entity) int64 { return self.Integer(superValue) }

func superSetValue(self *vm.Entity, v int64) { self.SetInteger(superValue, v) }

func superInit(self *vm.Entity, v int64) { self.SetInteger(superValue, v) }

// new(value:) => { super.new(value: value); value: value }
func objectInit(self *vm.Entity, v int64) {
	self.SetInteger(objectValue, v)
	superInit(self, v)
}

func objectGetValue(self *vm.Entity) int64 { return self.Integer(objectValue) }

func objectSetValue(self *vm.Entity, v int64) { self.SetInteger(objectValue, v) }

// CopyOnWrite mutates one alias of an isolated value and prints both.
//
//	mut x: Struct = { value: 42 }
//	let y = x
//	x.value = 2
//	print y.value
//	print x.value
func CopyOnWrite(h *vm.Heap, p *vm.Printer) error {
	x := h.Allocate(structType, vm.Isolated)
	x.SetInteger(structValue, 42)

	y := vm.Retain(x)

	x = vm.Isolate(x)
	x.SetInteger(structValue, 2)

	defer vm.Release(x)
	defer vm.Release(y)

	if err := printInteger(h, p, y.Integer(structValue)); err != nil {
		return err
	}
	return printInteger(h, p, x.Integer(structValue))
}

// Traits prints a value through its HasStringRepresentation conformance.
func Traits(h *vm.Heap, p *vm.Printer) error {
	x := h.Allocate(printableType, vm.Isolated)
	defer vm.Release(x)
	x.SetInteger(printableValue, 42)

	return p.Print(x)
}

// Inheritance mutates an object through an inherited method and its own
// method after aliasing it.
//
//	mut x = Object.new(value: 42)
//	mut y = x
//	x.setValue(2)
//	x.setObjectValue(12)
//	print y.objectValue()
//	print y.value()
//	print x.objectValue()
//	print x.value()
func Inheritance(h *vm.Heap, p *vm.Printer) error {
	x := h.Allocate(objectType, vm.Isolated)
	objectInit(x, 42)

	y := vm.Retain(x)

	x = vm.Isolate(x)
	vm.Send[func(*vm.Entity, int64)](x, selSetValue)(x, 2)

	x = vm.Isolate(x)
	objectSetValue(x, 12)

	defer vm.Release(x)
	defer vm.Release(y)

	value := func(e *vm.Entity) int64 {
		return vm.Send[func(*vm.Entity) int64](e, selValue)(e)
	}
	for _, v := range []int64{objectGetValue(y), value(y), objectGetValue(x), value(x)} {
		if err := printInteger(h, p, v); err != nil {
			return err
		}
	}
	return nil
}

// BoxedInteger prints a boxed integer.
func BoxedInteger(h *vm.Heap, p *vm.Printer) error {
	i := h.BoxInteger(42)
	defer vm.Release(i)
	return p.Print(i)
}

// BoxedReal prints a boxed real.
func BoxedReal(h *vm.Heap, p *vm.Printer) error {
	r := h.BoxReal(12.0)
	defer vm.Release(r)
	return p.Print(r)
}

// BoxedBitfield prints a boxed bitfield.
func BoxedBitfield(h *vm.Heap, p *vm.Printer) error {
	bf := h.BoxBitfield(0x0123456789abcdef)
	defer vm.Release(bf)
	return p.Print(bf)
}

// Bitfield prints the grouped rendering of a bitfield string.
func Bitfield(h *vm.Heap, p *vm.Printer) error {
	if _, err := fmt.Fprintln(p.Out, "Bitfields contain 16 hex digits (64 bits). Their representation is always 21 characters long with grouping"); err != nil {
		return err
	}
	s := h.NewString(vm.FormatBitfield(0x0012))
	defer vm.Release(s)
	return p.Print(s)
}
