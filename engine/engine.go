package engine

import (
	goruntime "runtime"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Aliases for the engine's value types. Packages above this one depend on
// this shape only, not on goja directly, so the engine can be swapped
// without touching the registry or bridge layers.
type (
	Value        = goja.Value
	Object       = goja.Object
	Symbol       = goja.Symbol
	Callable     = goja.Callable
	FunctionCall = goja.FunctionCall
	Promise      = goja.Promise
	Exception    = goja.Exception
)

// Config holds configuration for engine creation
type Config struct {
	// MaxCallStackSize limits script call depth. 0 means the engine default.
	MaxCallStackSize int
}

// Engine wraps one isolated script heap plus its single global evaluation
// context. It is not safe for concurrent use; the owning goroutine drives
// every operation.
type Engine struct {
	vm       *goja.Runtime
	embedder any
}

// New creates an engine with default configuration.
func New() *Engine {
	return NewWithConfig(Config{})
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(cfg Config) *Engine {
	vm := goja.New()
	if cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}
	vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		if op == goja.PromiseRejectionReject {
			Logger().Error("unhandled promise rejection",
				zap.String("reason", safeString(p.Result())))
		}
	})
	return &Engine{vm: vm}
}

func safeString(v goja.Value) string {
	defer func() { _ = recover() }()
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

// Evaluate runs source in the global context. Errors carry the script
// exception; use FormatException to render it with a stack trace.
func (e *Engine) Evaluate(name, source string) (Value, error) {
	return e.vm.RunScript(name, source)
}

// Call invokes fn with the given receiver and arguments. A thrown script
// exception is captured and returned as the error; it never propagates as
// a panic.
func (e *Engine) Call(fn Value, this Value, args ...Value) (Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, ErrNotCallable
	}
	return callable(this, args...)
}

// Construct invokes ctor as a constructor and returns the new instance.
func (e *Engine) Construct(ctor Value, args ...Value) (*Object, error) {
	return e.vm.New(ctor, args...)
}

// ToValue converts a Go value into an engine value.
func (e *Engine) ToValue(v any) Value {
	return e.vm.ToValue(v)
}

// NewObject creates a plain script object.
func (e *Engine) NewObject() *Object {
	return e.vm.NewObject()
}

// NewFunc exposes a Go function as a script callable.
func (e *Engine) NewFunc(fn func(FunctionCall) Value) Value {
	return e.vm.ToValue(fn)
}

// GlobalObject returns the global object of the evaluation context.
func (e *Engine) GlobalObject() *Object {
	return e.vm.GlobalObject()
}

// Throw panics with a script error wrapping err. Only valid inside a
// callback invoked by the engine; goja converts the panic into a script
// exception at the call boundary.
func (e *Engine) Throw(err error) {
	panic(e.vm.NewGoError(err))
}

// Interrupt aborts the currently running script with the given reason.
// Safe to call from any goroutine.
func (e *Engine) Interrupt(reason string) {
	e.vm.Interrupt(reason)
}

// ClearInterrupt re-arms the engine after an Interrupt.
func (e *Engine) ClearInterrupt() {
	e.vm.ClearInterrupt()
}

// RequestGC asks the collector for a full collection pass. Weak handle
// callbacks fire asynchronously some time after collection.
func (e *Engine) RequestGC() {
	goruntime.GC()
}

// SetEmbedderData attaches an opaque value to the engine. One slot only,
// by convention the owning runtime's registry token.
func (e *Engine) SetEmbedderData(v any) {
	e.embedder = v
}

// EmbedderData returns the value attached with SetEmbedderData.
func (e *Engine) EmbedderData() any {
	return e.embedder
}

// Undefined returns the engine's undefined value.
func Undefined() Value {
	return goja.Undefined()
}

// Null returns the engine's null value.
func Null() Value {
	return goja.Null()
}

// NewSymbol creates a unique symbol with the given description.
func NewSymbol(desc string) *Symbol {
	return goja.NewSymbol(desc)
}

// AsObject reports v as an object, without coercion.
func AsObject(v Value) (*Object, bool) {
	if v == nil {
		return nil, false
	}
	o, ok := v.(*Object)
	return o, ok
}

// Func reports v as a callable.
func Func(v Value) (Callable, bool) {
	if v == nil {
		return nil, false
	}
	return goja.AssertFunction(v)
}

// IsCallable reports whether v can be invoked.
func IsCallable(v Value) bool {
	_, ok := Func(v)
	return ok
}

// IsNullish reports whether v is nil, undefined or null.
func IsNullish(v Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
