package scriptruntime

// NativePtr identifies a host object by its stable address. The core never
// owns the memory behind a NativePtr; it only uses the value as a map key
// and as the tag stored in a bound script object's internal slot.
// NativePtr 0 is reserved and always invalid.
type NativePtr uintptr

// HostObject is an object belonging to the embedding application's own
// object model. Implementations must return the same NativePtr for the
// whole lifetime of the object.
type HostObject interface {
	NativeID() NativePtr
}

// RefCounted is optionally implemented by host objects with intrusive
// reference counting. The binding layer drives these through the
// weak/strong handle state machine: once an object is bound with a strong
// script-side reference, Unreference reaching zero must NOT free the
// object; the bridge frees it when the engine collects the script side.
type RefCounted interface {
	// InitRef establishes the first reference. It returns false if the
	// object is already dead and must not be bound.
	InitRef() bool

	// Reference increments the reference count.
	Reference()

	// Unreference decrements the reference count and reports whether the
	// caller would normally be responsible for destroying the object.
	Unreference() bool
}

// PredeleteNotifier is optionally implemented by host objects that want a
// notification immediately before the binding layer finalizes them. It runs
// after the pointer has been removed from the registry index, so reentrant
// registry calls observe the object as already gone.
type PredeleteNotifier interface {
	Predelete()
}
