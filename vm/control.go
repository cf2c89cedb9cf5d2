package vm

// Control word layout.
//
// Every entity carries one atomically accessed 64-bit word:
//
//	bit 63     copying-in-progress
//	bit 62     isolation semantics (immutable after allocation)
//	bits 0-61  reference count
const (
	copyingFlag   uint64 = 1 << 63
	isolationFlag uint64 = 1 << 62
	refcountMask  uint64 = ^(copyingFlag | isolationFlag)
)

// Semantics selects how assignment behaves for an entity.
type Semantics uint64

const (
	// Reference semantics: one entity, many variables. Mutations are
	// visible through every alias.
	Reference Semantics = 0

	// Isolated semantics: variables behave as independent values. The
	// mutating side receives a private copy when the entity is shared.
	Isolated Semantics = Semantics(isolationFlag)
)

// String returns the source-language keyword family for the semantics.
func (s Semantics) String() string {
	if s == Isolated {
		return "isolated"
	}
	return "reference"
}

// controlWord is a decoded snapshot of a control word.
type controlWord uint64

func (w controlWord) refs() uint64 { return uint64(w) & refcountMask }
func (w controlWord) copying() bool { return uint64(w)&copyingFlag != 0 }
func (w controlWord) isolated() bool { return uint64(w)&isolationFlag != 0 }
func (w controlWord) semantics() Semantics {
	return Semantics(uint64(w) & isolationFlag)
}
