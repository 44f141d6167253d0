// Package scriptruntime provides an embedding layer between a host
// application's manually reference-counted object model and a
// garbage-collected ECMAScript engine.
//
// The hard problem this library solves is lifetime agreement: host objects
// are identified by stable addresses and freed by intrusive reference
// counting, while script objects live in a garbage-collected heap. The
// binding layer keeps both sides consistent through an explicit weak/strong
// handle state machine, and keeps every teardown path reentrancy-safe.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	scriptruntime/       Root package with the host object interfaces
//	├── runtime/         High-level API: runtime lifecycle, class registries,
//	│                    cross-binding, the periodic update pass
//	├── engine/          Script engine wrapper (goja) and handle primitives
//	├── binding/         Object binding registry: pointer/object index and
//	│                    the weak/strong reference bridge
//	├── loader/          Module cache, resolver chain, hot reload
//	├── bridge/          Function cache and the host/script call bridge
//	├── envstore/        Process-wide registry of live runtimes
//	└── errors/          Structured error types
//
// # Quick Start
//
// Create a runtime, load a module and drive it:
//
//	rt := runtime.New(runtime.Options{SearchPaths: []string{"./scripts"}})
//	defer rt.Close()
//
//	mod, err := rt.Load("main")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = mod
//
//	for running {
//	    rt.Update(delta)
//	}
//
// All runtime operations are bound to the goroutine that created the
// runtime. The only thread-safe surfaces are the envstore package and
// Runtime.Post.
package scriptruntime
