package binding

import (
	scriptruntime "github.com/wippyai/script-runtime"
)

// NativeClassID indexes a registered native class.
// NativeClassID 0 is reserved and always invalid.
type NativeClassID uint32

// ClassKind distinguishes classes that wrap a host identity object from
// classes that wrap a value type with no host counterpart.
type ClassKind uint8

const (
	// ClassObject wraps a host object identified by a stable address.
	ClassObject ClassKind = iota

	// ClassPrimitive wraps a value type. Primitive classes can never be
	// bound through the registry; they exist so the class table covers the
	// whole exposed type surface.
	ClassPrimitive
)

// FinalizeFunc is invoked when a binding is freed with finalization. It is
// responsible for notifying the host object's destruction machinery. The
// persistent flag reports whether the binding carried a persistent mark, so
// the finalizer can suppress the matching extra decrement.
type FinalizeFunc func(ptr scriptruntime.NativePtr, persistent bool)

// NativeClassInfo is a static registration record. Immutable after
// registration; never removed until the owning runtime is destroyed.
type NativeClassInfo struct {
	Name     string
	Kind     ClassKind
	Finalize FinalizeFunc
}

// RegisterClass adds a class record and returns its id. Records are
// immutable once registered.
func (r *Registry) RegisterClass(info NativeClassInfo) NativeClassID {
	r.classes = append(r.classes, info)
	return NativeClassID(len(r.classes))
}

// Class returns the registration record for id.
func (r *Registry) Class(id NativeClassID) (NativeClassInfo, bool) {
	if id == 0 || int(id) > len(r.classes) {
		return NativeClassInfo{}, false
	}
	return r.classes[id-1], true
}

// ClassCount returns the number of registered classes.
func (r *Registry) ClassCount() int {
	return len(r.classes)
}

// ClearClasses drops every class record. Only valid once no bindings
// remain; runtime teardown is the sole caller.
func (r *Registry) ClearClasses() {
	r.classes = nil
}
