// Package runtime assembles the embedding layer: one engine, its binding
// registry, module cache, call bridge, class tables and the update pump.
//
// A runtime belongs to the goroutine that created it. The only operations
// legal from other goroutines are Post and PostError, which round-trip
// through the process-wide store and enqueue into the inbox; everything
// else, including Update and Dispose, runs on the owner. Engine collection
// callbacks take the same inbox path, so a binding whose script object was
// collected is finalized during the owner's next Update, never on the
// collector goroutine.
//
// Dispose deregisters the runtime from the store before any teardown work.
// A collector callback or cross-thread post racing with disposal misses the
// token and drops its message.
package runtime
