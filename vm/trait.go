package vm

import (
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Trait: canonical identity of a capability
// ---------------------------------------------------------------------------

// Trait identifies a named capability a type may conform to. Identity is
// pointer identity: each trait has exactly one *Trait in the running
// program, obtained from a TraitTable, and dispatch compares pointers, never
// names.
type Trait struct {
	Name string
}

func (t *Trait) String() string {
	return "trait " + t.Name
}

// ---------------------------------------------------------------------------
// TraitTable: registry of canonical trait identities
// ---------------------------------------------------------------------------

// TraitTable hands out canonical trait identities by name. Traits are
// interned while the program starts; afterwards the table is only read.
// It is safe for concurrent use.
type TraitTable struct {
	mu     sync.RWMutex
	traits map[string]*Trait
}

// NewTraitTable creates a new empty trait table.
func NewTraitTable() *TraitTable {
	return &TraitTable{
		traits: make(map[string]*Trait),
	}
}

// Traits is the process-wide trait registry.
var Traits = NewTraitTable()

// Intern returns the canonical trait for name, creating it on first use.
func (tt *TraitTable) Intern(name string) *Trait {
	tt.mu.RLock()
	if t, ok := tt.traits[name]; ok {
		tt.mu.RUnlock()
		return t
	}
	tt.mu.RUnlock()

	tt.mu.Lock()
	defer tt.mu.Unlock()

	// Double-check after acquiring write lock
	if t, ok := tt.traits[name]; ok {
		return t
	}
	t := &Trait{Name: name}
	tt.traits[name] = t
	return t
}

// Register adds an existing trait identity. Registering a different trait
// under a name that is already taken is an error, since it would give one
// capability two identities.
func (tt *TraitTable) Register(t *Trait) error {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if old, ok := tt.traits[t.Name]; ok && old != t {
		return fmt.Errorf("trait %s already registered", t.Name)
	}
	tt.traits[t.Name] = t
	return nil
}

// Lookup finds a trait by name.
func (tt *TraitTable) Lookup(name string) *Trait {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.traits[name]
}

// Has returns true if a trait with this name is registered.
func (tt *TraitTable) Has(name string) bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	_, ok := tt.traits[name]
	return ok
}

// All returns all registered traits sorted by name.
func (tt *TraitTable) All() []*Trait {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	result := make([]*Trait, 0, len(tt.traits))
	for _, t := range tt.traits {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Len returns the number of registered traits.
func (tt *TraitTable) Len() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return len(tt.traits)
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// LookupTrait returns e's implementation table for trait, or nil if e's type
// does not conform. Whether a missing conformance is fatal is the caller's
// decision.
func LookupTrait(e *Entity, trait *Trait) any {
	if e == nil || trait == nil || e.typ == nil {
		return nil
	}
	return e.typ.Data().traitTable(trait)
}

// TraitTableOf is LookupTrait with the table asserted to type T. It reports
// false when e does not conform or the table has a different type.
func TraitTableOf[T any](e *Entity, trait *Trait) (T, bool) {
	table, ok := LookupTrait(e, trait).(T)
	return table, ok
}
