// Package bridge carries host initiated calls into the engine. It converts
// host arguments (resolving bound host objects to their script wrappers),
// dispatches retained functions and named methods, and turns script
// exceptions into structured errors instead of panics. The retained
// function cache pins callbacks the host holds across engine GC passes.
package bridge
