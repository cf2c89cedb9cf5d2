package vm

import "sync"

// Selector is a method slot index shared by every vtable in the program.
type Selector int

// SelectorTable interns method names to slot indices.
//
// Because indices are global, a method keeps the same slot in an ancestor's
// vtable and in every descendant's, which is what lets a derived table be
// built by copying its ancestor's slots.
//
// The table is append-only and thread-safe for concurrent reads after
// initial population.
type SelectorTable struct {
	mu     sync.RWMutex
	byName map[string]Selector
	byID   []string
}

// NewSelectorTable creates a new empty selector table.
func NewSelectorTable() *SelectorTable {
	return &SelectorTable{
		byName: make(map[string]Selector),
		byID:   make([]string, 0, 64),
	}
}

// Selectors is the process-wide selector table.
var Selectors = NewSelectorTable()

// Intern returns the selector for a method name, creating a new slot if
// needed.
func (st *SelectorTable) Intern(name string) Selector {
	// Fast path: read-only lookup
	st.mu.RLock()
	if id, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := st.byName[name]; ok {
		return id
	}

	id := Selector(len(st.byID))
	st.byName[name] = id
	st.byID = append(st.byID, name)
	return id
}

// Lookup returns the selector for a name, or -1 if not found.
func (st *SelectorTable) Lookup(name string) Selector {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if id, ok := st.byName[name]; ok {
		return id
	}
	return -1
}

// Name returns the method name for a selector, or "" if unknown.
func (st *SelectorTable) Name(sel Selector) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if sel >= 0 && int(sel) < len(st.byID) {
		return st.byID[sel]
	}
	return ""
}

// Len returns the number of interned selectors.
func (st *SelectorTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
