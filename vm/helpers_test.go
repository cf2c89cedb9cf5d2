package vm

import (
	"bytes"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// exitCalled is the panic value of a test heap's exit hook.
type exitCalled struct {
	code int
}

// newTestHeap returns a heap whose exit hook panics with exitCalled instead
// of terminating the test binary. Diagnostics are captured in the returned
// buffer.
func newTestHeap(t *testing.T, opts HeapOptions) (*Heap, *bytes.Buffer) {
	t.Helper()
	var diag bytes.Buffer
	opts.Diagnostics = &diag
	opts.Exit = func(code int) { panic(exitCalled{code: code}) }
	return NewHeap(opts), &diag
}

// expectExit runs fn and returns the exit code it triggered. It fails the
// test if fn returns normally.
func expectExit(t *testing.T, fn func()) (code int) {
	t.Helper()
	defer func() {
		r := recover()
		ec, ok := r.(exitCalled)
		if !ok {
			t.Fatalf("expected exit, got %v", r)
		}
		code = ec.code
	}()
	fn()
	return -1
}

// Struct mirrors `data Struct { value: integer }`.
var (
	structLayout = NewLayout("Struct", nil)
	structValue  = structLayout.Integer("value")
	structType   = NewDataType("Struct", structLayout)
)

func expectLeakFree(t *testing.T, h *Heap) {
	t.Helper()
	st := h.Stats()
	if st.Live != 0 || st.LiveBytes != 0 {
		t.Errorf("expected empty heap, got %d live entities (%d bytes)", st.Live, st.LiveBytes)
	}
	if st.Allocs != st.Frees {
		t.Errorf("expected allocs == frees, got %d allocs, %d frees", st.Allocs, st.Frees)
	}
}
