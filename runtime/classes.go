package runtime

import (
	"strconv"

	"go.uber.org/zap"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/binding"
	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/errors"
	"github.com/wippyai/script-runtime/loader"
)

// ScriptClassID identifies a registered script class. Zero is invalid.
type ScriptClassID uint32

// ConstructReason tells a script constructor why it is being invoked, so
// class code can skip per-instance work when building the default instance
// or attaching to an existing host object.
type ConstructReason uint8

const (
	ReasonNormal ConstructReason = iota
	ReasonDefaults
	ReasonCrossBind
)

func (c ConstructReason) String() string {
	switch c {
	case ReasonNormal:
		return "normal"
	case ReasonDefaults:
		return "defaults"
	case ReasonCrossBind:
		return "crossbind"
	default:
		return "unknown"
	}
}

// PropertyInfo is one declared property of a script class.
type PropertyInfo struct {
	Name    string
	Default engine.Value
}

// ScriptClassInfo describes a script class harvested from a module's
// default export. The constructor stays pinned for the life of the class;
// the default instance is built lazily and dropped on reload.
type ScriptClassInfo struct {
	ID         ScriptClassID
	Name       string
	ModuleID   string
	Native     binding.NativeClassID
	Properties []PropertyInfo

	ctor *engine.StrongRef
	cdo  *engine.StrongRef
}

// Constructor returns the pinned class constructor.
func (c *ScriptClassInfo) Constructor() *engine.Object {
	return c.ctor.Object()
}

// RegisterNativeClass registers a host class. The finalizer is wrapped so
// host objects bound through this runtime get their predelete notification
// after the registry has dropped the address.
func (r *Runtime) RegisterNativeClass(info binding.NativeClassInfo) binding.NativeClassID {
	orig := info.Finalize
	info.Finalize = func(ptr scriptruntime.NativePtr, persistent bool) {
		if h, ok := r.hosts[ptr]; ok {
			delete(r.hosts, ptr)
			if pn, ok := h.(scriptruntime.PredeleteNotifier); ok {
				pn.Predelete()
			}
		}
		if orig != nil {
			orig(ptr, persistent)
		}
	}
	id := r.reg.RegisterClass(info)
	r.nativeByName[info.Name] = id
	return id
}

// NativeClassByName returns the id registered under name.
func (r *Runtime) NativeClassByName(name string) (binding.NativeClassID, bool) {
	id, ok := r.nativeByName[name]
	return id, ok
}

// ScriptClass returns the class registered under id.
func (r *Runtime) ScriptClass(id ScriptClassID) (*ScriptClassInfo, bool) {
	if id == 0 || int(id) >= len(r.classes) {
		return nil, false
	}
	return &r.classes[id], true
}

// ScriptClassByName returns the class registered under name.
func (r *Runtime) ScriptClassByName(name string) (*ScriptClassInfo, bool) {
	id, ok := r.classByName[name]
	if !ok {
		return nil, false
	}
	return r.ScriptClass(id)
}

// SetScriptClassNative binds a script class to the native class its
// instances wrap, for classes that do not declare a nativeClass static.
func (r *Runtime) SetScriptClassNative(id ScriptClassID, native binding.NativeClassID) error {
	info, ok := r.ScriptClass(id)
	if !ok {
		return errors.ClassNotRegistered(uint32(id))
	}
	info.Native = native
	return nil
}

// DefaultPropertyValue reads a property's default from the class default
// instance, constructing it on first use. Missing properties and failed
// construction degrade to undefined with a warning.
func (r *Runtime) DefaultPropertyValue(id ScriptClassID, name string) (engine.Value, bool) {
	info, ok := r.ScriptClass(id)
	if !ok {
		return engine.Undefined(), false
	}
	cdo, err := r.classDefaultObject(info)
	if err != nil {
		engine.Logger().Warn("default instance unavailable",
			zap.String("class", info.Name), zap.Error(err))
		return engine.Undefined(), false
	}
	v := cdo.Get(name)
	if v == nil {
		engine.Logger().Warn("no default for property",
			zap.String("class", info.Name), zap.String("property", name))
		return engine.Undefined(), false
	}
	return v, true
}

// ReloadClass re-executes the module owning the class if its source
// changed. The class keeps its id; the constructor pin and default
// instance refresh through the load hook.
func (r *Runtime) ReloadClass(id ScriptClassID) (loader.ReloadResult, error) {
	r.checkAffinity()
	info, ok := r.ScriptClass(id)
	if !ok {
		return loader.ReloadNoSuchModule, errors.ClassNotRegistered(uint32(id))
	}
	res, err := r.modules.MarkReloading(info.ModuleID)
	if err != nil || res != loader.ReloadRequested {
		return res, err
	}
	if _, err := r.modules.LoadModule("", info.ModuleID); err != nil {
		return res, err
	}
	return res, nil
}

// ConstructReasonOf maps a constructor argument back to its reason. Any
// value that is not one of this runtime's sentinels means a normal script
// initiated construction.
func (r *Runtime) ConstructReasonOf(v engine.Value) ConstructReason {
	if v == nil {
		return ReasonNormal
	}
	if v.SameAs(r.reasonCrossBind) {
		return ReasonCrossBind
	}
	if v.SameAs(r.reasonDefaults) {
		return ReasonDefaults
	}
	return ReasonNormal
}

// onModuleLoaded harvests the script class from a module's default export.
// Runs after every successful execution, so a reload refreshes the class
// in place: same id, new constructor, default instance invalidated.
func (r *Runtime) onModuleLoaded(m *loader.Module) {
	def := m.Exports.Get("default")
	ctorObj, ok := engine.AsObject(def)
	if !ok || !engine.IsCallable(def) {
		return
	}

	name := ctorObj.Get("name").String()
	props := r.parseProperties(ctorObj)
	native := r.parseNativeClass(ctorObj)

	if id, ok := r.classByModule[m.ID]; ok {
		info := &r.classes[id]
		delete(r.classByName, info.Name)
		info.ctor.Release()
		if info.cdo.Valid() {
			info.cdo.Release()
		}
		info.Name = name
		info.ctor = engine.NewStrongRef(ctorObj)
		info.Properties = props
		if native != 0 {
			info.Native = native
		}
		r.classByName[name] = id
		engine.Logger().Debug("script class refreshed",
			zap.String("class", name), zap.Uint32("id", uint32(id)))
		return
	}

	id := ScriptClassID(len(r.classes))
	r.classes = append(r.classes, ScriptClassInfo{
		ID:         id,
		Name:       name,
		ModuleID:   m.ID,
		Native:     native,
		Properties: props,
		ctor:       engine.NewStrongRef(ctorObj),
	})
	r.classByModule[m.ID] = id
	r.classByName[name] = id
	m.OwnerClass = uint32(id)
	engine.Logger().Debug("script class registered",
		zap.String("class", name),
		zap.String("module", m.ID),
		zap.Uint32("id", uint32(id)))
}

func (r *Runtime) parseProperties(ctor *engine.Object) []PropertyInfo {
	arr, ok := engine.AsObject(ctor.Get("properties"))
	if !ok {
		return nil
	}
	n := int(arr.Get("length").ToInteger())
	out := make([]PropertyInfo, 0, n)
	for i := 0; i < n; i++ {
		el, ok := engine.AsObject(arr.Get(strconv.Itoa(i)))
		if !ok {
			continue
		}
		name := el.Get("name")
		if engine.IsNullish(name) {
			continue
		}
		out = append(out, PropertyInfo{
			Name:    name.String(),
			Default: el.Get("default"),
		})
	}
	return out
}

// parseNativeClass resolves the optional nativeClass static naming the
// registered host class the script class extends.
func (r *Runtime) parseNativeClass(ctor *engine.Object) binding.NativeClassID {
	v := ctor.Get("nativeClass")
	if engine.IsNullish(v) {
		return 0
	}
	id, ok := r.nativeByName[v.String()]
	if !ok {
		engine.Logger().Warn("unknown native class reference",
			zap.String("nativeClass", v.String()))
		return 0
	}
	return id
}

func (r *Runtime) classDefaultObject(info *ScriptClassInfo) (*engine.Object, error) {
	if info.cdo.Valid() {
		return info.cdo.Object(), nil
	}
	obj, err := r.eng.Construct(info.ctor.Object(), r.reasonDefaults)
	if err != nil {
		return nil, errors.New(errors.PhaseClass, errors.KindInvalidMethodCall).
			Detail("construct default instance of %q", info.Name).
			Cause(err).
			Build()
	}
	info.cdo = engine.NewStrongRef(obj)
	return obj, nil
}

func (r *Runtime) clearScriptClasses() {
	for i := 1; i < len(r.classes); i++ {
		info := &r.classes[i]
		if info.ctor.Valid() {
			info.ctor.Release()
		}
		if info.cdo.Valid() {
			info.cdo.Release()
		}
	}
	r.classes = r.classes[:1]
	r.classByModule = make(map[string]ScriptClassID)
	r.classByName = make(map[string]ScriptClassID)
}
