package vm

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNilType is returned when allocating without a type descriptor.
var ErrNilType = errors.New("nil type descriptor")

// Entity is a heap-allocated, reference-counted value of a programmer-defined
// type. It is the header (control word and type) followed by a payload
// block described by the type's Layout.
//
// Entities are manipulated only through Retain, Release and Isolate. A
// variable holding an entity owns exactly one reference; the idiomatic call
// patterns mirror generated code:
//
//	x := heap.Allocate(PointType, vm.Isolated)
//	y := vm.Retain(x)
//	x = vm.Isolate(x) // before mutating x
//	x.SetInteger(pointX, 2)
//	y = vm.Release(y)
type Entity struct {
	control atomic.Uint64

	// sem duplicates the isolation bit of control. It is written before the
	// entity is published and never again, so it can be read without
	// synchronization.
	sem Semantics

	typ   TypeInfo
	heap  *Heap
	data  []byte
	freed bool
}

// Allocate creates an entity with reference count 1 on the default heap.
func Allocate(ti TypeInfo, sem Semantics) *Entity {
	return DefaultHeap().Allocate(ti, sem)
}

// Allocate creates an entity of the given type with reference count 1.
// Exhaustion is handled by the heap's ExhaustionPolicy.
func (h *Heap) Allocate(ti TypeInfo, sem Semantics) *Entity {
	e, err := h.TryAllocate(ti, sem)
	if err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			h.exhausted(err)
		}
		panic(err)
	}
	return e
}

// TryAllocate is Allocate with exhaustion reported as an error wrapping
// ErrOutOfMemory.
func (h *Heap) TryAllocate(ti TypeInfo, sem Semantics) (*Entity, error) {
	if ti == nil {
		return nil, ErrNilType
	}
	return h.allocSized(ti, sem, ti.Data().Size)
}

func (h *Heap) allocSized(ti TypeInfo, sem Semantics, size int) (*Entity, error) {
	block, err := h.reserve(size)
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", ti.Data().Name, err)
	}
	sem &= Semantics(isolationFlag)
	e := &Entity{sem: sem, typ: ti, heap: h, data: block}
	e.control.Store(uint64(sem) | 1)
	return e, nil
}

// Retain adds a reference to e and returns e. A nil entity is ignored.
func Retain(e *Entity) *Entity {
	if e != nil {
		e.control.Add(1)
	}
	return e
}

// Release drops a reference to e, freeing it when the last reference goes.
// It always returns nil so the variable can be overwritten:
//
//	x = vm.Release(x)
func Release(e *Entity) *Entity {
	if e == nil {
		return nil
	}
	prev := controlWord(e.control.Add(^uint64(0)) + 1)
	if prev.refs() == 1 {
		e.heap.free(e)
	}
	return nil
}

// Type returns the entity's type descriptor.
func (e *Entity) Type() TypeInfo {
	return e.typ
}

// Semantics returns the assignment semantics fixed at allocation.
func (e *Entity) Semantics() Semantics {
	return e.sem
}

// Heap returns the heap the entity was allocated from.
func (e *Entity) Heap() *Heap {
	return e.heap
}

// RefCount returns the current reference count.
func (e *Entity) RefCount() uint64 {
	return controlWord(e.control.Load()).refs()
}

// Copying reports whether an isolate copy of e is in progress.
func (e *Entity) Copying() bool {
	return controlWord(e.control.Load()).copying()
}

// Size returns the payload size in bytes.
func (e *Entity) Size() int {
	return len(e.data)
}

// Freed reports whether the entity has been deallocated. Only meaningful to
// a caller that still holds the pointer after releasing it, such as a test.
func (e *Entity) Freed() bool {
	return e.freed
}

// String describes the entity for diagnostics.
func (e *Entity) String() string {
	if e == nil {
		return "<nil entity>"
	}
	w := controlWord(e.control.Load())
	return fmt.Sprintf("%s<%s refs=%d>", e.typ.Data().Name, w.semantics(), w.refs())
}

// Guard owns one reference to an entity and releases it on Release. It is a
// convenience for scoped ownership:
//
//	g := vm.Hold(heap.Allocate(T, vm.Isolated))
//	defer g.Release()
type Guard struct {
	e *Entity
}

// Hold takes ownership of the caller's reference to e.
func Hold(e *Entity) *Guard {
	return &Guard{e: e}
}

// Entity returns the guarded entity, or nil once released.
func (g *Guard) Entity() *Entity {
	return g.e
}

// Isolate isolates the guarded entity and returns the (possibly new) entity,
// which the guard now owns.
func (g *Guard) Isolate() *Entity {
	g.e = Isolate(g.e)
	return g.e
}

// Release releases the guarded reference. Further calls do nothing.
func (g *Guard) Release() {
	g.e = Release(g.e)
}
