package binding

import (
	goruntime "runtime"
	"weak"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/engine"
)

// ObjectID is an opaque reference to a live binding.
// ObjectID 0 is reserved and always invalid.
type ObjectID uint32

// Policy selects which side owns the lifetime of a binding.
type Policy uint8

const (
	// PolicyManaged lets the engine own the lifetime: the binding starts
	// weak and the script object may be collected under GC pressure.
	PolicyManaged Policy = iota

	// PolicyExternal lets the host own the lifetime: the binding starts
	// with reference count 1 and a strong handle.
	PolicyExternal
)

// State tracks a binding through its lifecycle:
//
//	Unbound -> Weak <-> Strong -> Finalizing -> gone
//
// Weak/strong transitions are driven only by Reference. Finalizing is
// entered exactly once, from either engine collection or an explicit Free.
type State uint8

const (
	StateUnbound State = iota
	StateWeak
	StateStrong
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateWeak:
		return "weak"
	case StateStrong:
		return "strong"
	case StateFinalizing:
		return "finalizing"
	default:
		return "invalid"
	}
}

// entry is one slot of the handle table. Slots are reused through a free
// list; ids stay stable for the life of a binding.
type entry struct {
	strong   *engine.Object
	wref     weak.Pointer[engine.Object]
	cleanup  goruntime.Cleanup
	armed    bool
	class    NativeClassID
	state    State
	refCount int
	ptr      scriptruntime.NativePtr
	valid    bool
}
