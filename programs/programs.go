// Package programs contains small programs written against the runtime the
// way generated code calls it. Each one allocates, aliases, isolates and
// prints entities, and releases everything it allocated before returning.
package programs

import (
	"errors"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/clawr/vm"
)

var log = commonlog.GetLogger("clawr.programs")

// ErrUnknownProgram is returned by Run for a name Names does not list.
var ErrUnknownProgram = errors.New("unknown program")

// Program is the body of one example. It prints through p and allocates
// from h.
type Program func(h *vm.Heap, p *vm.Printer) error

type entry struct {
	name string
	run  Program
}

var registry = []entry{
	{"copy-on-write", CopyOnWrite},
	{"traits", Traits},
	{"inheritance", Inheritance},
	{"boxed-integer", BoxedInteger},
	{"boxed-real", BoxedReal},
	{"boxed-bitfield", BoxedBitfield},
	{"bitfield", Bitfield},
	{"concurrent-isolate", ConcurrentIsolate},
}

// Names returns the program names in run order.
func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.name
	}
	return names
}

// Lookup returns the named program.
func Lookup(name string) (Program, bool) {
	for _, e := range registry {
		if e.name == name {
			return e.run, true
		}
	}
	return nil, false
}

// Run executes the named program against h, writing its output to out.
func Run(name string, h *vm.Heap, out io.Writer) error {
	prog, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, name)
	}

	log.Debugf("running %s", name)
	if err := prog(h, vm.NewPrinter(out)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	stats := h.Stats()
	log.Debugf("%s finished: %d live, %d allocations, %d copies", name, stats.Live, stats.Allocs, stats.Copies)
	return nil
}

// Types returns every type descriptor the programs use.
func Types() []vm.TypeInfo {
	return []vm.TypeInfo{
		structType,
		printableType,
		superType,
		objectType,
		vm.IntegerBox,
		vm.RealBox,
		vm.BitfieldBox,
		vm.StringType,
	}
}

// printInteger boxes v, prints the box and releases it.
func printInteger(h *vm.Heap, p *vm.Printer, v int64) error {
	b := h.BoxInteger(v)
	defer vm.Release(b)
	return p.Print(b)
}
