package binding

import (
	goruntime "runtime"
	"weak"

	"go.uber.org/zap"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/errors"
)

// CollectFunc receives the address of a bound host object whose weak script
// side has been collected by the engine. It may run on a collector
// goroutine; implementations must only enqueue and return, never touch the
// registry directly.
type CollectFunc func(ptr scriptruntime.NativePtr)

// Registry is the map between native pointers and script objects, plus the
// bridge. It is single-threaded: the owning goroutine drives every
// operation, and the only cross-thread path is the CollectFunc callback.
type Registry struct {
	classes    []NativeClassInfo
	entries    []entry
	freeList   []ObjectID
	index      map[scriptruntime.NativePtr]ObjectID
	persistent map[scriptruntime.NativePtr]struct{}
	slot       *engine.Symbol
	collect    CollectFunc
}

// NewRegistry creates an empty registry. collect is invoked for engine
// initiated weak collections and may be nil.
func NewRegistry(collect CollectFunc) *Registry {
	return &Registry{
		entries:    make([]entry, 0, 64),
		freeList:   make([]ObjectID, 0, 16),
		index:      make(map[scriptruntime.NativePtr]ObjectID),
		persistent: make(map[scriptruntime.NativePtr]struct{}),
		slot:       engine.NewSymbol("scriptruntime.ptr"),
		collect:    collect,
	}
}

// Bind associates a host address with a script object and returns an opaque
// object id. The address must not already be bound, and classID must name a
// registered non-primitive class. The script object's internal slot is
// tagged with ptr for O(1) reverse lookup.
func (r *Registry) Bind(classID NativeClassID, ptr scriptruntime.NativePtr, obj *engine.Object, policy Policy) (ObjectID, error) {
	if ptr == 0 || obj == nil {
		engine.Logger().DPanic("bind with nil pointer or object",
			zap.Uint64("ptr", uint64(ptr)))
		return 0, errors.UnknownPointer(errors.PhaseBind, uintptr(ptr))
	}
	if _, dup := r.index[ptr]; dup {
		return 0, errors.DuplicateBinding(uintptr(ptr))
	}
	info, ok := r.Class(classID)
	if !ok || info.Kind != ClassObject {
		return 0, errors.ClassNotRegistered(uint32(classID))
	}

	id := r.alloc()
	e := r.at(id)
	e.class = classID
	e.ptr = ptr
	e.valid = true
	r.index[ptr] = id

	if err := obj.SetSymbol(r.slot, int64(ptr)); err != nil {
		delete(r.index, ptr)
		r.release(id)
		return 0, errors.New(errors.PhaseBind, errors.KindInvalidArgument).
			Detail("object rejects internal slot").
			Cause(err).
			Build()
	}

	if policy == PolicyManaged {
		e.state = StateWeak
		r.arm(e, obj, ptr)
	} else {
		e.state = StateStrong
		e.refCount = 1
		e.strong = obj
	}

	engine.Logger().Debug("bind object",
		zap.String("class", info.Name),
		zap.Uint64("ptr", uint64(ptr)),
		zap.Uint32("id", uint32(id)))
	return id, nil
}

// Reference bridges host-side refcount events into the weak/strong state
// machine. inc=true on increment, false on decrement. The return value
// reports whether the caller may free the host object itself: it is true
// only for an unknown pointer; for any live binding the bridge owns the
// free and the host must not self-delete.
func (r *Registry) Reference(ptr scriptruntime.NativePtr, inc bool) bool {
	id, ok := r.index[ptr]
	if !ok {
		engine.Logger().Debug("reference on unknown pointer", zap.Uint64("ptr", uint64(ptr)))
		return true
	}
	e := r.at(id)

	if info, _ := r.Class(e.class); info.Kind != ClassObject {
		engine.Logger().DPanic("reference on a value-type binding",
			zap.Uint64("ptr", uint64(ptr)))
		return false
	}

	if inc {
		if e.refCount == 0 {
			obj := e.wref.Value()
			if obj == nil {
				// Reviving a collected object is undefined; the pointer
				// should have been freed before any new increment.
				engine.Logger().DPanic("reference increment on a collected binding",
					zap.Uint64("ptr", uint64(ptr)))
				return false
			}
			r.disarm(e)
			e.strong = obj
			e.wref = weak.Pointer[engine.Object]{}
			e.state = StateStrong
		}
		e.refCount++
		return false
	}

	if e.refCount == 0 {
		// Double decrement races with engine collection by construction;
		// absorb it.
		engine.Logger().Warn("unbalanced unreference", zap.Uint64("ptr", uint64(ptr)))
		return false
	}
	e.refCount--
	if e.refCount == 0 {
		obj := e.strong
		e.strong = nil
		e.state = StateWeak
		r.arm(e, obj, ptr)
	}
	return false
}

// MarkPersistent forces one extra increment so the binding survives until
// the runtime itself is destroyed. The mark is consulted at finalization to
// suppress the matching decrement. Unbound pointers are a logged no-op.
func (r *Registry) MarkPersistent(ptr scriptruntime.NativePtr) {
	if _, ok := r.index[ptr]; !ok {
		engine.Logger().Error("mark persistent on unbound pointer",
			zap.Uint64("ptr", uint64(ptr)))
		return
	}
	if _, dup := r.persistent[ptr]; dup {
		engine.Logger().DPanic("duplicate persistent mark",
			zap.Uint64("ptr", uint64(ptr)))
		return
	}
	r.Reference(ptr, true)
	r.persistent[ptr] = struct{}{}
}

// Free destroys the binding for ptr. With finalize=true (engine collected
// the script side, or runtime teardown) the class finalizer runs and must
// notify the host's destruction machinery. With finalize=false (the host is
// deleting itself) only the script-side link is detached.
//
// Free is idempotent: the pointer-to-id index is removed before any callback
// runs, so reentrant frees during finalization observe an unknown pointer
// and return.
func (r *Registry) Free(ptr scriptruntime.NativePtr, finalize bool) {
	id, ok := r.index[ptr]
	if !ok {
		return
	}
	e := r.at(id)
	if e.ptr != ptr {
		engine.Logger().DPanic("binding table corrupted",
			zap.Uint64("ptr", uint64(ptr)),
			zap.Uint64("entry", uint64(e.ptr)))
		return
	}

	classID := e.class
	_, persistent := r.persistent[ptr]
	delete(r.persistent, ptr)
	delete(r.index, ptr)

	r.disarm(e)
	obj := e.strong
	if obj == nil {
		obj = e.wref.Value()
	}
	e.state = StateFinalizing

	if obj != nil {
		// Break the script-to-host link on every path. A still reachable
		// object that kept its tag would answer reverse lookups with an
		// address that may be bound to someone else by then.
		if err := obj.DeleteSymbol(r.slot); err != nil {
			engine.Logger().Warn("failed to clear internal slot",
				zap.Uint64("ptr", uint64(ptr)), zap.Error(err))
		}
	}

	// The entry is released before the finalizer runs; the finalizer may
	// re-enter the registry and must not observe the dying handle.
	r.release(id)

	info, haveClass := r.Class(classID)
	if finalize {
		if haveClass && info.Finalize != nil {
			info.Finalize(ptr, persistent)
		}
		engine.Logger().Debug("free object",
			zap.String("class", info.Name),
			zap.Uint64("ptr", uint64(ptr)),
			zap.Uint32("id", uint32(id)))
	} else {
		engine.Logger().Debug("detach object",
			zap.String("class", info.Name),
			zap.Uint64("ptr", uint64(ptr)),
			zap.Uint32("id", uint32(id)))
	}
}

// Lookup returns the object id bound to ptr.
func (r *Registry) Lookup(ptr scriptruntime.NativePtr) (ObjectID, bool) {
	id, ok := r.index[ptr]
	return id, ok
}

// Object returns the script object for a binding. It returns false for an
// invalid id or a weak binding whose script side is already collected.
func (r *Registry) Object(id ObjectID) (*engine.Object, bool) {
	e, ok := r.live(id)
	if !ok {
		return nil, false
	}
	if e.strong != nil {
		return e.strong, true
	}
	obj := e.wref.Value()
	return obj, obj != nil
}

// ObjectOf returns the script object bound to ptr.
func (r *Registry) ObjectOf(ptr scriptruntime.NativePtr) (*engine.Object, bool) {
	id, ok := r.index[ptr]
	if !ok {
		return nil, false
	}
	return r.Object(id)
}

// PointerOf reads the host address back out of a script object's internal
// slot. Objects that were never bound, or whose binding was detached,
// report false.
func (r *Registry) PointerOf(obj *engine.Object) (scriptruntime.NativePtr, bool) {
	if obj == nil {
		return 0, false
	}
	v := obj.GetSymbol(r.slot)
	if v == nil {
		return 0, false
	}
	n, ok := v.Export().(int64)
	if !ok || n == 0 {
		return 0, false
	}
	return scriptruntime.NativePtr(n), true
}

// ClassOf returns the native class of a binding.
func (r *Registry) ClassOf(id ObjectID) (NativeClassID, bool) {
	e, ok := r.live(id)
	if !ok {
		return 0, false
	}
	return e.class, true
}

// StateOf reports the lifecycle state and bridge reference count for ptr.
func (r *Registry) StateOf(ptr scriptruntime.NativePtr) (State, int, bool) {
	id, ok := r.index[ptr]
	if !ok {
		return StateUnbound, 0, false
	}
	e := r.at(id)
	return e.state, e.refCount, true
}

// AnyPointer returns an arbitrary live bound address, used by teardown
// loops that free bindings until none remain.
func (r *Registry) AnyPointer() (scriptruntime.NativePtr, bool) {
	for ptr := range r.index {
		return ptr, true
	}
	return 0, false
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	n := 0
	for i := range r.entries {
		if r.entries[i].valid {
			n++
		}
	}
	return n
}

// Stats is a snapshot of registry cardinalities. Objects and Indexed are
// equal whenever the registry is consistent.
type Stats struct {
	Objects    int
	Indexed    int
	Persistent int
}

// Stats returns current registry cardinalities.
func (r *Registry) Stats() Stats {
	return Stats{
		Objects:    r.Len(),
		Indexed:    len(r.index),
		Persistent: len(r.persistent),
	}
}

func (r *Registry) alloc() ObjectID {
	if n := len(r.freeList); n > 0 {
		id := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		r.entries[id-1] = entry{}
		return id
	}
	r.entries = append(r.entries, entry{})
	return ObjectID(len(r.entries))
}

func (r *Registry) release(id ObjectID) {
	e := r.at(id)
	*e = entry{}
	r.freeList = append(r.freeList, id)
}

func (r *Registry) at(id ObjectID) *entry {
	return &r.entries[id-1]
}

func (r *Registry) live(id ObjectID) (*entry, bool) {
	if id == 0 || int(id) > len(r.entries) {
		return nil, false
	}
	e := &r.entries[id-1]
	if !e.valid {
		return nil, false
	}
	return e, true
}

// arm registers the weak watch: when the engine collects the script object,
// the cleanup posts the bound address to the collect callback. The closure
// must not capture the object itself or it would never become collectible.
func (r *Registry) arm(e *entry, obj *engine.Object, ptr scriptruntime.NativePtr) {
	e.wref = weak.Make(obj)
	e.cleanup = goruntime.AddCleanup(obj, func(p scriptruntime.NativePtr) {
		if cb := r.collect; cb != nil {
			cb(p)
		}
	}, ptr)
	e.armed = true
}

func (r *Registry) disarm(e *entry) {
	if e.armed {
		e.cleanup.Stop()
		e.armed = false
	}
}
