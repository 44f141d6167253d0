// Package binding implements the object binding registry: the map between
// host objects (identified by stable address) and their script-side wrapper
// objects, plus the reference-count bridge between the host's intrusive
// refcounting and the engine's garbage collector.
//
// # Lifecycle
//
// Each binding moves through an explicit state machine:
//
//	Unbound -> Weak <-> Strong -> Finalizing -> gone
//
// A Managed binding starts weak: the engine owns the lifetime and may
// collect the script object at any GC pass. An External binding starts
// strong with reference count 1: the host owns the lifetime.
//
// Reference bridges host refcount events into the state machine. The first
// increment upgrades weak to strong; the decrement reaching zero downgrades
// strong to weak and re-arms the collection watch. Reaching zero never runs
// the finalizer; finalization happens only through engine collection or an
// explicit Free.
//
// # Reentrancy
//
// Free removes the pointer-to-id index entry and releases the handle slot
// before the class finalizer runs. A finalizer that re-enters the registry
// (directly or through host destruction machinery) observes the pointer as
// unknown and returns; Free is therefore idempotent by construction.
//
// # Threading
//
// The registry has no internal locking. All operations run on the owning
// goroutine. The single cross-thread path is the CollectFunc callback,
// which fires on a collector goroutine and must only enqueue the address
// for the owner's next update pass.
package binding
