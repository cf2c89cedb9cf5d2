package programs

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/clawr/vm"
)

// concurrentWorkers is the number of goroutines sharing the entity.
const concurrentWorkers = 8

// ConcurrentIsolate shares one isolated entity between several goroutines.
// Each goroutine isolates its alias before writing to it, so every writer
// gets a private copy and the original keeps its value.
func ConcurrentIsolate(h *vm.Heap, p *vm.Printer) error {
	shared := h.Allocate(structType, vm.Isolated)
	defer vm.Release(shared)
	shared.SetInteger(structValue, 42)

	aliases := make([]*vm.Entity, concurrentWorkers)
	for i := range aliases {
		aliases[i] = vm.Retain(shared)
	}
	copiesBefore := h.Stats().Copies

	results := make([]int64, concurrentWorkers)
	g, _ := errgroup.WithContext(context.Background())
	for i, alias := range aliases {
		g.Go(func() error {
			x := vm.Isolate(alias)
			defer vm.Release(x)
			if x == shared {
				return fmt.Errorf("worker %d: isolate returned the shared entity", i)
			}
			x.SetInteger(structValue, int64(i+1))
			results[i] = x.Integer(structValue)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if copies := h.Stats().Copies - copiesBefore; copies != concurrentWorkers {
		return fmt.Errorf("expected %d copies, got %d", concurrentWorkers, copies)
	}
	log.Debugf("concurrent-isolate: %d copies, contended %d times", concurrentWorkers, h.Stats().Contended)

	var sum int64
	for _, v := range results {
		sum += v
	}
	if err := printInteger(h, p, shared.Integer(structValue)); err != nil {
		return err
	}
	return printInteger(h, p, sum)
}
