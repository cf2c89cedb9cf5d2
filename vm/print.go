package vm

import (
	"fmt"
	"io"
	"os"
)

// Printer writes the string representation of entities, one per line.
type Printer struct {
	Out io.Writer
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{Out: out}
}

// Print renders e through HasStringRepresentation and writes it followed by
// a newline. Every printed type is expected to conform: an entity that does
// not is a fatal error reported through e's heap. The intermediate string is
// released before returning; e itself is not.
func (p *Printer) Print(e *Entity) error {
	if e == nil {
		e.heapOrDefault().fatalf("print: nil entity")
	}
	rep, ok := TraitTableOf[*StringRepresentation](e, HasStringRepresentation)
	if !ok {
		e.heap.fatalf("print: %s does not conform to %s", e.typ.Data().Name, HasStringRepresentation.Name)
	}
	s := rep.ToString(e)
	_, err := fmt.Fprintln(p.Out, StringOf(s))
	Release(s)
	return err
}

// Print writes e to standard output.
func Print(e *Entity) error {
	return NewPrinter(os.Stdout).Print(e)
}

func (e *Entity) heapOrDefault() *Heap {
	if e == nil || e.heap == nil {
		return DefaultHeap()
	}
	return e.heap
}
