// Package envstore is the process-wide registry of live runtimes. Engine
// collection callbacks fire on collector goroutines that must never touch a
// runtime directly; instead they carry a token and go through Access, which
// fails closed once the runtime is deregistered. Deregistration is the
// first step of runtime disposal.
package envstore
