package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("clawr.vm")

// HeaderSize is the accounted size of an entity header: the control word
// and the type pointer.
const HeaderSize = 16

// ErrOutOfMemory is returned (or carried by a panic) when an allocation
// would exceed the heap budget.
var ErrOutOfMemory = errors.New("out of memory")

// ExhaustionPolicy decides what Allocate and Isolate do when the heap
// cannot satisfy a request. TryAllocate always reports an error instead.
type ExhaustionPolicy int

const (
	// PolicyExit prints a diagnostic and terminates the process.
	PolicyExit ExhaustionPolicy = iota
	// PolicyPanic panics with an error wrapping ErrOutOfMemory.
	PolicyPanic
)

// String returns the configuration spelling of the policy.
func (p ExhaustionPolicy) String() string {
	switch p {
	case PolicyExit:
		return "exit"
	case PolicyPanic:
		return "panic"
	default:
		return fmt.Sprintf("ExhaustionPolicy(%d)", int(p))
	}
}

// ParseExhaustionPolicy parses "exit" or "panic". The empty string means exit.
func ParseExhaustionPolicy(s string) (ExhaustionPolicy, error) {
	switch s {
	case "", "exit":
		return PolicyExit, nil
	case "panic":
		return PolicyPanic, nil
	default:
		return PolicyExit, fmt.Errorf("unknown exhaustion policy %q", s)
	}
}

// HeapOptions configures a Heap.
type HeapOptions struct {
	// MaxBytes caps live bytes (headers included). Zero means unlimited.
	MaxBytes int64

	OnExhaustion ExhaustionPolicy

	// SpinRetries is the number of contended isolate retries that yield
	// the processor before falling back to sleeping.
	SpinRetries int

	// BackoffSleep is the sleep between contended retries once spinning
	// is exhausted.
	BackoffSleep time.Duration

	// Diagnostics receives fatal diagnostics. Defaults to os.Stderr.
	Diagnostics io.Writer

	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
}

// DefaultHeapOptions returns the options used by the default heap.
func DefaultHeapOptions() HeapOptions {
	return HeapOptions{
		OnExhaustion: PolicyExit,
		SpinRetries:  16,
		BackoffSleep: 100 * time.Microsecond,
	}
}

// Heap hands out entity blocks and keeps allocation counters.
//
// A Heap does not track individual entities; it only knows how many are
// live and how many bytes they occupy.
type Heap struct {
	opts HeapOptions

	live      atomic.Int64
	liveBytes atomic.Int64
	allocs    atomic.Uint64
	frees     atomic.Uint64
	copies    atomic.Uint64
	contended atomic.Uint64
}

// HeapStats is a snapshot of heap counters.
type HeapStats struct {
	Live      int64  // entities allocated and not yet freed
	LiveBytes int64  // bytes held by live entities, headers included
	Allocs    uint64 // total allocations, copies included
	Frees     uint64
	Copies    uint64 // copy-on-write copies made by Isolate
	Contended uint64 // isolate retries caused by a concurrent copy
}

// NewHeap creates a heap with the given options.
func NewHeap(opts HeapOptions) *Heap {
	if opts.Diagnostics == nil {
		opts.Diagnostics = os.Stderr
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.SpinRetries < 0 {
		opts.SpinRetries = 0
	}
	return &Heap{opts: opts}
}

var defaultHeap atomic.Pointer[Heap]

func init() {
	defaultHeap.Store(NewHeap(DefaultHeapOptions()))
}

// DefaultHeap returns the process-wide heap used by the package-level
// functions.
func DefaultHeap() *Heap {
	return defaultHeap.Load()
}

// SetDefaultHeap replaces the process-wide heap. Entities keep the heap they
// were allocated from.
func SetDefaultHeap(h *Heap) {
	if h == nil {
		panic("SetDefaultHeap: nil heap")
	}
	defaultHeap.Store(h)
}

// Options returns the heap's options.
func (h *Heap) Options() HeapOptions {
	return h.opts
}

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		Live:      h.live.Load(),
		LiveBytes: h.liveBytes.Load(),
		Allocs:    h.allocs.Load(),
		Frees:     h.frees.Load(),
		Copies:    h.copies.Load(),
		Contended: h.contended.Load(),
	}
}

// reserve accounts for a block of payload bytes and returns it zeroed.
func (h *Heap) reserve(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative block size %d", size)
	}
	total := int64(HeaderSize + size)
	used := h.liveBytes.Add(total)
	if h.opts.MaxBytes > 0 && used > h.opts.MaxBytes {
		h.liveBytes.Add(-total)
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrOutOfMemory, total, used-total, h.opts.MaxBytes)
	}
	h.live.Add(1)
	h.allocs.Add(1)
	return make([]byte, size), nil
}

// free returns an entity's block to the heap.
func (h *Heap) free(e *Entity) {
	h.liveBytes.Add(-int64(HeaderSize + len(e.data)))
	h.live.Add(-1)
	h.frees.Add(1)
	e.data = nil
	e.freed = true
}

// exhausted applies the exhaustion policy. It does not return.
func (h *Heap) exhausted(err error) {
	log.Critical("allocation failed", "error", err)
	if h.opts.OnExhaustion == PolicyPanic {
		panic(err)
	}
	fmt.Fprint(h.opts.Diagnostics, "Out of memory!")
	h.opts.Exit(1)
	// Exit hooks installed by tests may return.
	panic(err)
}

// fatalf reports an unrecoverable caller error and terminates.
func (h *Heap) fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Critical(msg)
	fmt.Fprintln(h.opts.Diagnostics, msg)
	h.opts.Exit(1)
	panic(msg)
}

// backoff waits before a contended isolate retry. Without a sleep duration
// every retry yields.
func (h *Heap) backoff(attempt int) {
	h.contended.Add(1)
	if attempt < h.opts.SpinRetries || h.opts.BackoffSleep <= 0 {
		runtime.Gosched()
		return
	}
	time.Sleep(h.opts.BackoffSleep)
}
