package engine

import (
	"weak"
)

// StrongRef pins a script object so the collector may not reclaim it, with
// an explicit reference count. The zero value is released.
type StrongRef struct {
	obj  *Object
	refs int
}

// NewStrongRef pins obj with an initial count of 1.
func NewStrongRef(obj *Object) *StrongRef {
	return &StrongRef{obj: obj, refs: 1}
}

// Ref increments the count and returns the new value.
func (r *StrongRef) Ref() int {
	r.refs++
	return r.refs
}

// Unref decrements the count and returns the new value. The pin is NOT
// dropped automatically at zero; callers decide when to Release.
func (r *StrongRef) Unref() int {
	if r.refs > 0 {
		r.refs--
	}
	return r.refs
}

// Count returns the current reference count.
func (r *StrongRef) Count() int {
	return r.refs
}

// Object returns the pinned object, or nil after Release.
func (r *StrongRef) Object() *Object {
	return r.obj
}

// Valid reports whether the pin still holds an object.
func (r *StrongRef) Valid() bool {
	return r != nil && r.obj != nil
}

// Release drops the pin. The object becomes collectible once nothing else
// references it.
func (r *StrongRef) Release() {
	r.obj = nil
	r.refs = 0
}

// WeakRef is an identity key for a script object that does not keep it
// alive. WeakRef is comparable: two WeakRefs made from the same object are
// equal, and remain equal after the object is collected, so a WeakRef can
// key a map for the whole lifetime of a cache entry.
type WeakRef struct {
	p weak.Pointer[Object]
}

// MakeWeakRef creates a weak identity reference to obj.
func MakeWeakRef(obj *Object) WeakRef {
	return WeakRef{p: weak.Make(obj)}
}

// Get returns the referenced object, or nil once it has been collected.
func (w WeakRef) Get() *Object {
	return w.p.Value()
}

// Alive reports whether the referenced object has not been collected yet.
func (w WeakRef) Alive() bool {
	return w.p.Value() != nil
}
