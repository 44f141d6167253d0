package bridge

import (
	"go.uber.org/zap"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/binding"
	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/errors"
)

// Bridge performs host to script invocation: argument conversion, lookup of
// bound receivers, retained function dispatch and exception capture. One
// bridge per runtime, driven by the owning goroutine only.
type Bridge struct {
	eng   *engine.Engine
	reg   *binding.Registry
	funcs *FuncCache
}

// New creates a bridge over eng and reg.
func New(eng *engine.Engine, reg *binding.Registry) *Bridge {
	return &Bridge{eng: eng, reg: reg, funcs: NewFuncCache()}
}

// Funcs exposes the retained function cache.
func (b *Bridge) Funcs() *FuncCache {
	return b.funcs
}

// RetainFunction pins v for later CallFunction dispatch. Non-callable
// values fail with invalid-method-call.
func (b *Bridge) RetainFunction(v engine.Value) (FuncID, error) {
	obj, ok := engine.AsObject(v)
	if !ok {
		return 0, errors.InvalidMethodCall("retain target is not an object", nil)
	}
	id := b.funcs.Retain(obj)
	if id == 0 {
		return 0, errors.InvalidMethodCall("retain target is not callable", nil)
	}
	return id, nil
}

// RetainMethod pins the named method of a bound object.
func (b *Bridge) RetainMethod(objID binding.ObjectID, name string) (FuncID, error) {
	obj, ok := b.reg.Object(objID)
	if !ok {
		return 0, errors.NotFound(errors.PhaseCall, "bound object", name)
	}
	return b.RetainFunction(obj.Get(name))
}

// ReleaseFunction drops one retain of id. Stale ids are ignored.
func (b *Bridge) ReleaseFunction(id FuncID) {
	b.funcs.Release(id)
}

// CallFunction invokes a retained function with the given receiver. Host
// arguments convert before any script runs; a conversion failure means the
// call never happened. A script exception comes back as an
// invalid-method-call error wrapping the exception.
func (b *Bridge) CallFunction(id FuncID, this engine.Value, args ...any) (engine.Value, error) {
	fn, ok := b.funcs.Get(id)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "retained function", "")
	}
	return b.invoke(fn, this, args)
}

// CallMethod invokes the named method on a bound object.
func (b *Bridge) CallMethod(objID binding.ObjectID, name string, args ...any) (engine.Value, error) {
	obj, ok := b.reg.Object(objID)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "bound object", name)
	}
	method := obj.Get(name)
	if !engine.IsCallable(method) {
		return nil, errors.InvalidMethodCall("no callable member "+name, nil)
	}
	return b.invoke(method, obj, args)
}

// Call invokes any callable value with an explicit receiver, bypassing the
// retained cache.
func (b *Bridge) Call(fn engine.Value, this engine.Value, args ...any) (engine.Value, error) {
	if !engine.IsCallable(fn) {
		return nil, errors.InvalidMethodCall("target is not callable", nil)
	}
	return b.invoke(fn, this, args)
}

func (b *Bridge) invoke(fn engine.Value, this engine.Value, args []any) (engine.Value, error) {
	converted, err := b.ConvertArgs(args)
	if err != nil {
		return nil, err
	}
	res, err := b.eng.Call(fn, this, converted...)
	if err != nil {
		engine.Logger().Error("script call failed",
			zap.String("exception", engine.FormatException(err)))
		return nil, errors.InvalidMethodCall("script call raised", err)
	}
	// An async function returns a promise the host side has no use for.
	// Settle happens on the engine's own job queue; the result is dropped.
	if res != nil {
		if _, isPromise := res.Export().(*engine.Promise); isPromise {
			return nil, nil
		}
	}
	return res, nil
}

// ConvertArgs converts every host argument up front. On failure no value
// has crossed into script code.
func (b *Bridge) ConvertArgs(args []any) ([]engine.Value, error) {
	out := make([]engine.Value, len(args))
	for i, a := range args {
		v, err := b.convert(i, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (b *Bridge) convert(index int, a any) (engine.Value, error) {
	switch v := a.(type) {
	case nil:
		return engine.Null(), nil
	case engine.Value:
		return v, nil
	case scriptruntime.HostObject:
		obj, ok := b.reg.ObjectOf(v.NativeID())
		if !ok {
			return nil, errors.InvalidArgument(index, "host object has no live binding")
		}
		return obj, nil
	case scriptruntime.NativePtr:
		obj, ok := b.reg.ObjectOf(v)
		if !ok {
			return nil, errors.InvalidArgument(index, "address has no live binding")
		}
		return obj, nil
	default:
		return b.eng.ToValue(a), nil
	}
}
