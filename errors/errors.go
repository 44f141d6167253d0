package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBind     Phase = "bind"     // object binding registry
	PhaseLoad     Phase = "load"     // module loading and evaluation
	PhaseResolve  Phase = "resolve"  // module id resolution
	PhaseCall     Phase = "call"     // host -> script invocation
	PhaseClass    Phase = "class"    // class registration and cross-binding
	PhaseRuntime  Phase = "runtime"  // runtime lifecycle operations
	PhaseTeardown Phase = "teardown" // disposal paths
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateBinding   Kind = "duplicate_binding"
	KindUnknownPointer     Kind = "unknown_pointer"
	KindBadPath            Kind = "bad_path"
	KindNoSuchModule       Kind = "no_such_module"
	KindModuleLoadFailed   Kind = "module_load_failed"
	KindClassNotRegistered Kind = "class_not_registered"
	KindInvalidArgument    Kind = "invalid_argument"
	KindInvalidMethodCall  Kind = "invalid_method_call"
	KindCompilationFailed  Kind = "compilation_failed"
	KindNotFound           Kind = "not_found"
	KindClosed             Kind = "closed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the value path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// DuplicateBinding reports a second bind attempt on an already bound address
func DuplicateBinding(ptr uintptr) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindDuplicateBinding,
		Detail: fmt.Sprintf("address %#x is already bound", ptr),
		Value:  ptr,
	}
}

// UnknownPointer reports an operation on an address with no live binding.
// Callers usually treat this as "already gone" rather than a failure.
func UnknownPointer(phase Phase, ptr uintptr) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownPointer,
		Detail: fmt.Sprintf("no binding for address %#x", ptr),
		Value:  ptr,
	}
}

// BadPath reports a module id that did not survive normalization
func BadPath(id string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindBadPath,
		Detail: fmt.Sprintf("bad module path %q", id),
		Value:  id,
	}
}

// NoSuchModule reports an unresolvable module id
func NoSuchModule(id string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNoSuchModule,
		Detail: fmt.Sprintf("unknown module %q", id),
		Value:  id,
	}
}

// ModuleLoadFailed reports a module whose source resolved but failed to run
func ModuleLoadFailed(id string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindModuleLoadFailed,
		Detail: fmt.Sprintf("load module %q", id),
		Cause:  cause,
	}
}

// ClassNotRegistered reports a bind against an unknown or unusable class id
func ClassNotRegistered(id uint32) *Error {
	return &Error{
		Phase:  PhaseClass,
		Kind:   KindClassNotRegistered,
		Detail: fmt.Sprintf("class %d is not registered", id),
		Value:  id,
	}
}

// InvalidArgument reports a host value that could not cross into the engine.
// No call has occurred when this error is returned.
func InvalidArgument(index int, detail string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindInvalidArgument,
		Detail: fmt.Sprintf("argument %d: %s", index, detail),
		Value:  index,
	}
}

// InvalidMethodCall reports a script-side exception or a non-callable target
func InvalidMethodCall(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindInvalidMethodCall,
		Detail: detail,
		Cause:  cause,
	}
}

// CompilationFailed reports source that did not evaluate cleanly
func CompilationFailed(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindCompilationFailed,
		Detail: fmt.Sprintf("evaluate %q", name),
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Closed reports an operation against a disposed component
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}
