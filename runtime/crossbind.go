package runtime

import (
	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/binding"
	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/errors"
)

// CrossBind attaches a script class to an existing host object.
//
// If the host is already bound, the existing script object is relinked to
// the class prototype and keeps its identity, so script references held
// from before the rebind observe the new class. Otherwise the class
// constructor runs with the CrossBind reason, the host's refcount is
// initialized when it is ref-counted, and the instance binds with host
// ownership.
func (r *Runtime) CrossBind(host scriptruntime.HostObject, classID ScriptClassID) (*engine.Object, error) {
	r.checkAffinity()
	if r.disposed {
		return nil, errors.Closed(errors.PhaseClass, "runtime")
	}
	info, ok := r.ScriptClass(classID)
	if !ok {
		return nil, errors.ClassNotRegistered(uint32(classID))
	}

	ptr := host.NativeID()
	if obj, ok := r.reg.ObjectOf(ptr); ok {
		return r.rebind(obj, info)
	}

	if info.Native == 0 {
		return nil, errors.New(errors.PhaseClass, errors.KindClassNotRegistered).
			Detail("script class %q has no native base class", info.Name).
			Build()
	}

	instance, err := r.eng.Construct(info.ctor.Object(), r.reasonCrossBind)
	if err != nil {
		return nil, errors.New(errors.PhaseClass, errors.KindInvalidMethodCall).
			Detail("constructor of %q raised", info.Name).
			Cause(err).
			Build()
	}

	if rc, ok := host.(scriptruntime.RefCounted); ok {
		if !rc.InitRef() {
			return nil, errors.New(errors.PhaseClass, errors.KindInvalidArgument).
				Detail("host object at %#x is already dead", uintptr(ptr)).
				Build()
		}
	}

	if _, err := r.reg.Bind(info.Native, ptr, instance, binding.PolicyExternal); err != nil {
		return nil, err
	}
	r.hosts[ptr] = host
	return instance, nil
}

// rebind swaps the prototype of an already bound script object to the new
// class, preserving object identity and own properties.
func (r *Runtime) rebind(obj *engine.Object, info *ScriptClassInfo) (*engine.Object, error) {
	proto, ok := engine.AsObject(info.ctor.Object().Get("prototype"))
	if !ok {
		return nil, errors.New(errors.PhaseClass, errors.KindInvalidMethodCall).
			Detail("class %q has no prototype object", info.Name).
			Build()
	}
	if err := obj.SetPrototype(proto); err != nil {
		return nil, errors.New(errors.PhaseClass, errors.KindInvalidMethodCall).
			Detail("relink prototype of %q", info.Name).
			Cause(err).
			Build()
	}
	return obj, nil
}
