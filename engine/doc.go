// Package engine wraps the embedded script engine behind the narrow shape
// the rest of the library depends on: evaluate source, call and construct
// functions with scoped exception capture, strong/weak handle primitives,
// an explicit GC request, and a single embedder-data slot.
//
// The current implementation embeds goja. Script objects live on the Go
// heap, so the engine's garbage collector is the Go collector: a WeakRef
// observes collection through a weak pointer, and weak-collection callbacks
// are registered with runtime.AddCleanup by the binding layer.
//
// # Handles
//
// StrongRef pins an object with an explicit reference count:
//
//	ref := engine.NewStrongRef(obj)
//	ref.Ref()
//	if ref.Unref() == 0 {
//	    ref.Release()
//	}
//
// WeakRef provides identity-based equality that survives collection, which
// makes it usable as a map key for deduplication caches:
//
//	key := engine.MakeWeakRef(obj)
//	cache[key] = id
//
// # Exceptions
//
// Errors returned by Evaluate, Call and Construct may carry a thrown script
// value. FormatException renders them with the script stack trace. Nothing
// in this package panics across the embedding boundary.
package engine
