// Package errors provides structured error types for the script-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: value path, the offending value, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindModuleLoadFailed).
//		Path("main", "deps", "util").
//		Detail("cyclic require").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DuplicateBinding(ptr)
//	err := errors.NoSuchModule("scripts/missing")
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so sentinel comparisons are cheap:
//
//	target := &errors.Error{Phase: errors.PhaseBind, Kind: errors.KindDuplicateBinding}
//	if stderrors.Is(err, target) {
//		...
//	}
package errors
