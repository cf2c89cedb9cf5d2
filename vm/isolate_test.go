package vm

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestIsolateUniqueIsNoop(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())
	x := h.Allocate(structType, Isolated)
	x.SetInteger(structValue, 42)

	y := Isolate(x)
	if y != x {
		t.Error("expected the same entity for a unique reference")
	}
	if y.Copying() {
		t.Error("copying flag left set")
	}
	if st := h.Stats(); st.Allocs != 1 || st.Copies != 0 {
		t.Errorf("expected no allocation, got %+v", st)
	}
	Release(y)
	expectLeakFree(t, h)
}

func TestIsolateCopiesSharedIsolatedEntity(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())

	// mut x: Struct = { value: 42 }
	x := h.Allocate(structType, Isolated)
	x.SetInteger(structValue, 42)
	original := x

	// let y = x
	y := Retain(x)

	// x.value = 2
	x = Isolate(x)
	x.SetInteger(structValue, 2)

	if x == original {
		t.Fatal("expected a fresh copy")
	}
	if y != original {
		t.Fatal("alias must keep the original entity")
	}
	if got := y.Integer(structValue); got != 42 {
		t.Errorf("expected alias to read 42, got %d", got)
	}
	if got := x.Integer(structValue); got != 2 {
		t.Errorf("expected isolated variable to read 2, got %d", got)
	}
	if x.RefCount() != 1 || y.RefCount() != 1 {
		t.Errorf("expected both unique, got %d and %d", x.RefCount(), y.RefCount())
	}
	if x.Semantics() != Isolated {
		t.Error("copy must keep isolated semantics")
	}
	if original.Copying() {
		t.Error("copying flag left set on original")
	}
	if h.Stats().Copies != 1 {
		t.Errorf("expected one copy, got %d", h.Stats().Copies)
	}

	Release(x)
	Release(y)
	expectLeakFree(t, h)
}

func TestIsolateReferenceSemanticsSharesMutation(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())

	x := h.Allocate(structType, Reference)
	x.SetInteger(structValue, 42)
	y := Retain(x)

	x = Isolate(x)
	x.SetInteger(structValue, 2)
	if x != y {
		t.Fatal("reference semantics must never copy")
	}
	if y.Integer(structValue) != 2 {
		t.Errorf("expected alias to see 2, got %d", y.Integer(structValue))
	}

	y = Isolate(y)
	y.SetInteger(structValue, 5)
	if x.Integer(structValue) != 5 {
		t.Errorf("expected alias to see 5, got %d", x.Integer(structValue))
	}
	if h.Stats().Copies != 0 {
		t.Error("unexpected copy")
	}

	Release(x)
	Release(y)
	expectLeakFree(t, h)
}

func TestIsolateExhaustionClearsCopyingFlag(t *testing.T) {
	h, _ := newTestHeap(t, HeapOptions{
		MaxBytes:     int64(HeaderSize + structType.Size),
		OnExhaustion: PolicyPanic,
	})
	x := h.Allocate(structType, Isolated)
	y := Retain(x)

	func() {
		defer func() {
			err, _ := recover().(error)
			if !errors.Is(err, ErrOutOfMemory) {
				t.Errorf("expected ErrOutOfMemory panic, got %v", err)
			}
		}()
		Isolate(x)
	}()

	if x.Copying() {
		t.Error("copying flag must be cleared when the copy fails")
	}
	if x.RefCount() != 2 {
		t.Errorf("failed isolate must not release, got refcount %d", x.RefCount())
	}
	Release(x)
	Release(y)
	expectLeakFree(t, h)
}

func TestIsolateWaitsForConcurrentCopy(t *testing.T) {
	h, _ := newTestHeap(t, HeapOptions{SpinRetries: 1})
	x := h.Allocate(structType, Isolated)
	y := Retain(x)

	// Simulate another isolator holding the copying flag.
	x.control.Or(copyingFlag)

	done := make(chan *Entity)
	go func() { done <- Isolate(y) }()

	for h.Stats().Contended == 0 {
		runtime.Gosched()
	}
	// The other isolator finishes: clears the flag and drops its reference.
	releaseCopying(x)

	got := <-done
	if got != x {
		t.Error("expected the waiting isolator to become the unique owner")
	}
	if h.Stats().Copies != 0 {
		t.Error("expected no copy after the competing isolator released")
	}
	Release(got)
	expectLeakFree(t, h)
}

func TestIsolateZeroBackoffYields(t *testing.T) {
	// No spin budget and no sleep: every contended retry must still yield so
	// the goroutine holding the flag can run.
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	h, _ := newTestHeap(t, HeapOptions{SpinRetries: 0, BackoffSleep: 0})
	x := h.Allocate(structType, Isolated)
	y := Retain(x)
	x.control.Or(copyingFlag)

	done := make(chan *Entity)
	go func() { done <- Isolate(y) }()

	for h.Stats().Contended < 3 {
		runtime.Gosched()
	}
	releaseCopying(x)

	got := <-done
	if got != x || h.Stats().Copies != 0 {
		t.Error("expected the waiter to take over the original without copying")
	}
	Release(got)
	expectLeakFree(t, h)
}

// TestIsolateConcurrentStress has many goroutines share one isolated entity
// and isolate it at the same time. Every goroutine must end with a private
// entity, exactly one copy is made per surplus reference, and nothing leaks.
func TestIsolateConcurrentStress(t *testing.T) {
	const (
		workers = 16
		rounds  = 200
	)
	h, _ := newTestHeap(t, HeapOptions{SpinRetries: 4})

	for round := 0; round < rounds; round++ {
		shared := h.Allocate(structType, Isolated)
		shared.SetInteger(structValue, -1)

		refs := make([]*Entity, workers)
		refs[0] = shared
		for i := 1; i < workers; i++ {
			refs[i] = Retain(shared)
		}
		copiesBefore := h.Stats().Copies

		g, _ := errgroup.WithContext(context.Background())
		for i := 0; i < workers; i++ {
			id := int64(i)
			ref := refs[i]
			g.Go(func() error {
				if got := ref.Integer(structValue); got != -1 {
					return errors.New("observed a mutation before isolating")
				}
				mine := Isolate(ref)
				if mine.RefCount() != 1 {
					return errors.New("isolate returned a shared entity")
				}
				mine.SetInteger(structValue, id)
				runtime.Gosched()
				if got := mine.Integer(structValue); got != id {
					return errors.New("private entity was changed by another goroutine")
				}
				Release(mine)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if got := h.Stats().Copies - copiesBefore; got != workers-1 {
			t.Fatalf("round %d: expected %d copies, got %d", round, workers-1, got)
		}
	}
	expectLeakFree(t, h)
}

func TestRetainReleaseConcurrent(t *testing.T) {
	h, _ := newTestHeap(t, DefaultHeapOptions())
	x := h.Allocate(structType, Reference)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				Release(Retain(x))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if x.RefCount() != 1 || x.Freed() {
		t.Errorf("expected refcount 1 after balanced retains, got %d", x.RefCount())
	}
	Release(x)
	expectLeakFree(t, h)
}
