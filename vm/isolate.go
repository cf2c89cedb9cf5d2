package vm

import "github.com/tliron/commonlog"

// Isolate is the copy-on-write barrier. It must be called immediately before
// any in-place mutation of an entity that may be aliased, and the variable
// must be replaced with the result:
//
//	x = vm.Isolate(x)
//	x.SetInteger(valueField, 2)
//
// Reference-semantics entities are returned unchanged. An isolated entity
// with a single reference is returned unchanged without allocating. A shared
// isolated entity is copied; the copy has one reference, owned by the
// caller, and the caller's reference to the original is released.
//
// Concurrent isolators of the same entity coordinate through the copying
// flag: the one that sets it first copies, the others back off and retry
// until the flag is clear.
func Isolate(e *Entity) *Entity {
	if e == nil {
		return nil
	}
	if e.sem == Reference {
		return e
	}

	h := e.heap
	for attempt := 0; ; attempt++ {
		prev := controlWord(e.control.Or(copyingFlag))
		if prev.refs() == 1 {
			e.control.And(^copyingFlag)
			return e
		}
		if prev.copying() {
			h.backoff(attempt)
			continue
		}

		c, err := h.copyEntity(e)
		if err != nil {
			e.control.And(^copyingFlag)
			h.exhausted(err)
		}
		releaseCopying(e)
		return c
	}
}

// copyEntity makes a fresh, uniquely referenced copy of e's block.
func (h *Heap) copyEntity(e *Entity) (*Entity, error) {
	c, err := h.allocSized(e.typ, e.sem, len(e.data))
	if err != nil {
		return nil, err
	}
	copy(c.data, e.data)
	h.copies.Add(1)
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("isolate: copied %s (%d bytes)", e.typ.Data().Name, len(e.data))
	}
	return c, nil
}

// releaseCopying clears the copying flag and drops the caller's reference in
// one atomic step, so no other isolator can observe the flag clear while the
// copier's reference is still counted.
func releaseCopying(e *Entity) {
	prev := controlWord(e.control.Add(^(copyingFlag + 1) + 1) + copyingFlag + 1)
	if prev.refs() == 1 {
		e.heap.free(e)
	}
}
