package runtime

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/binding"
	"github.com/wippyai/script-runtime/bridge"
	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/envstore"
	"github.com/wippyai/script-runtime/errors"
	"github.com/wippyai/script-runtime/loader"
)

// Options configures runtime creation.
type Options struct {
	// Engine passes through to engine construction.
	Engine engine.Config

	// SearchPaths seeds the module resolver. Empty means resolvers are
	// added by hand through Modules().
	SearchPaths []string

	// ReloadInterval sets the period between source change scans driven by
	// Update. Zero disables periodic scanning.
	ReloadInterval time.Duration
}

// Runtime ties one engine to its binding registry, module cache, call
// bridge and class tables, and owns the update pump. All operations except
// Post run on the constructing goroutine.
type Runtime struct {
	eng     *engine.Engine
	reg     *binding.Registry
	modules *loader.Cache
	br      *bridge.Bridge

	token envstore.Token
	queue inbox
	spare []Message

	hosts        map[scriptruntime.NativePtr]scriptruntime.HostObject
	nativeByName map[string]binding.NativeClassID

	classes       []ScriptClassInfo
	classByModule map[string]ScriptClassID
	classByName   map[string]ScriptClassID

	reasonCrossBind *engine.Symbol
	reasonDefaults  *engine.Symbol

	ownerID        uint64
	reloadInterval time.Duration
	sinceScan      time.Duration
	disposed       bool
}

// New creates a runtime and registers it in the process-wide store.
func New(opts Options) *Runtime {
	eng := engine.NewWithConfig(opts.Engine)
	r := &Runtime{
		eng:             eng,
		hosts:           make(map[scriptruntime.NativePtr]scriptruntime.HostObject),
		nativeByName:    make(map[string]binding.NativeClassID),
		classes:         make([]ScriptClassInfo, 1), // slot 0 reserved
		classByModule:   make(map[string]ScriptClassID),
		classByName:     make(map[string]ScriptClassID),
		reasonCrossBind: engine.NewSymbol("runtime.construct.crossbind"),
		reasonDefaults:  engine.NewSymbol("runtime.construct.defaults"),
		ownerID:         goid(),
		reloadInterval:  opts.ReloadInterval,
	}
	r.reg = binding.NewRegistry(r.onCollected)
	r.br = bridge.New(eng, r.reg)
	r.modules = loader.NewCache(eng)
	if len(opts.SearchPaths) > 0 {
		r.modules.AddResolver(loader.NewPathResolver(opts.SearchPaths...))
	}
	r.modules.SetLoadHook(r.onModuleLoaded)

	r.token = envstore.Add(r)
	eng.SetEmbedderData(r.token)
	r.installGlobals()
	return r
}

// installGlobals publishes the construct reason sentinels so class code can
// branch on them.
func (r *Runtime) installGlobals() {
	reasons := r.eng.NewObject()
	_ = reasons.Set("crossbind", r.reasonCrossBind)
	_ = reasons.Set("defaults", r.reasonDefaults)
	if err := r.eng.GlobalObject().Set("Reasons", reasons); err != nil {
		engine.Logger().Error("install globals failed", zap.Error(err))
	}
}

// onCollected runs on a collector goroutine. It must not touch the runtime
// directly: the token is read back out of the engine's embedder slot and
// round-tripped through the store, which fails closed once Dispose has run.
func (r *Runtime) onCollected(ptr scriptruntime.NativePtr) {
	token, ok := r.eng.EmbedderData().(envstore.Token)
	if !ok {
		return
	}
	envstore.Access(token, func(v any) {
		v.(*Runtime).queue.push(Message{Kind: MessageCollected, Ptr: ptr})
	})
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() *engine.Engine { return r.eng }

// Registry returns the binding registry.
func (r *Runtime) Registry() *binding.Registry { return r.reg }

// Modules returns the module cache.
func (r *Runtime) Modules() *loader.Cache { return r.modules }

// Bridge returns the call bridge.
func (r *Runtime) Bridge() *bridge.Bridge { return r.br }

// Token returns the runtime's store token.
func (r *Runtime) Token() envstore.Token { return r.token }

// Bind wraps host in a fresh script object under the given class and
// policy.
func (r *Runtime) Bind(host scriptruntime.HostObject, class binding.NativeClassID, policy binding.Policy) (binding.ObjectID, *engine.Object, error) {
	r.checkAffinity()
	if r.disposed {
		return 0, nil, errors.Closed(errors.PhaseBind, "runtime")
	}
	obj := r.eng.NewObject()
	id, err := r.reg.Bind(class, host.NativeID(), obj, policy)
	if err != nil {
		return 0, nil, err
	}
	r.hosts[host.NativeID()] = host
	return id, obj, nil
}

// Reference forwards a host refcount transition for host. The return
// mirrors the registry: true means the binding does not manage the address
// and the caller keeps its normal ownership rules.
func (r *Runtime) Reference(host scriptruntime.HostObject, inc bool) bool {
	r.checkAffinity()
	return r.reg.Reference(host.NativeID(), inc)
}

// MarkPersistent pins host's binding for the life of the runtime.
func (r *Runtime) MarkPersistent(host scriptruntime.HostObject) {
	r.checkAffinity()
	r.reg.MarkPersistent(host.NativeID())
}

// Free drops host's binding. With finalize the class finalizer and the
// predelete notification run; without it the script object is only
// detached.
func (r *Runtime) Free(host scriptruntime.HostObject, finalize bool) {
	r.checkAffinity()
	r.free(host.NativeID(), finalize)
}

// HostOf returns the host object bound at ptr through this runtime.
func (r *Runtime) HostOf(ptr scriptruntime.NativePtr) (scriptruntime.HostObject, bool) {
	h, ok := r.hosts[ptr]
	return h, ok
}

// Eval runs source in the global context.
func (r *Runtime) Eval(name, source string) (engine.Value, error) {
	r.checkAffinity()
	if r.disposed {
		return nil, errors.Closed(errors.PhaseRuntime, "runtime")
	}
	v, err := r.eng.Evaluate(name, source)
	if err != nil {
		engine.Logger().Error("eval failed",
			zap.String("name", name),
			zap.String("exception", engine.FormatException(err)))
		return nil, err
	}
	return v, nil
}

// Load resolves and executes a module by id.
func (r *Runtime) Load(id string) (*loader.Module, error) {
	r.checkAffinity()
	if r.disposed {
		return nil, errors.Closed(errors.PhaseLoad, "runtime")
	}
	return r.modules.Load(id)
}

// Post enqueues a data payload for the script-side onmessage handler.
// Safe from any goroutine; silently dropped once the runtime is disposed.
func (r *Runtime) Post(payload []byte) {
	envstore.Access(r.token, func(v any) {
		v.(*Runtime).queue.push(Message{Kind: MessageData, Payload: payload})
	})
}

// PostError enqueues an error description for the script-side onerror
// handler.
func (r *Runtime) PostError(payload []byte) {
	envstore.Access(r.token, func(v any) {
		v.(*Runtime).queue.push(Message{Kind: MessageError, Payload: payload})
	})
}

// Update drains the inbox and, on the configured period, scans loaded
// modules for source changes. Returns the number of messages processed.
func (r *Runtime) Update(delta time.Duration) int {
	r.checkAffinity()
	if r.disposed {
		return 0
	}

	msgs := r.queue.swap(r.spare)
	for i := range msgs {
		r.dispatch(&msgs[i])
	}
	n := len(msgs)
	r.spare = msgs[:0]

	if r.reloadInterval > 0 {
		r.sinceScan += delta
		if r.sinceScan >= r.reloadInterval {
			r.sinceScan = 0
			r.modules.ScanChanges()
		}
	}
	return n
}

func (r *Runtime) dispatch(m *Message) {
	switch m.Kind {
	case MessageCollected:
		r.free(m.Ptr, true)
	case MessageData:
		var v any
		if err := json.Unmarshal(m.Payload, &v); err != nil {
			engine.Logger().Error("undecodable message payload", zap.Error(err))
			return
		}
		r.callHandler("onmessage", r.eng.ToValue(v))
	case MessageError:
		r.callHandler("onerror", r.eng.ToValue(string(m.Payload)))
	default:
		engine.Logger().DPanic("unknown message kind",
			zap.Uint8("kind", uint8(m.Kind)))
	}
}

func (r *Runtime) callHandler(name string, arg engine.Value) {
	fn := r.eng.GlobalObject().Get(name)
	if !engine.IsCallable(fn) {
		return
	}
	if _, err := r.eng.Call(fn, engine.Undefined(), arg); err != nil {
		engine.Logger().Error("message handler raised",
			zap.String("handler", name),
			zap.String("exception", engine.FormatException(err)))
	}
}

// GC asks the engine for a collection pass. Collection callbacks arrive
// through the inbox on a later Update.
func (r *Runtime) GC() {
	r.eng.RequestGC()
}

// Stats is a point-in-time snapshot of runtime population.
type Stats struct {
	Bindings      binding.Stats
	Modules       int
	Functions     int
	NativeClasses int
	ScriptClasses int
	Pending       int
}

// Snapshot collects current statistics.
func (r *Runtime) Snapshot() Stats {
	return Stats{
		Bindings:      r.reg.Stats(),
		Modules:       r.modules.Len(),
		Functions:     r.br.Funcs().Len(),
		NativeClasses: r.reg.ClassCount(),
		ScriptClasses: len(r.classes) - 1,
		Pending:       r.queue.len(),
	}
}

// Disposed reports whether Dispose has run.
func (r *Runtime) Disposed() bool {
	return r.disposed
}

// Dispose tears the runtime down. Store removal comes first so collector
// callbacks and cross-thread posts fail closed during the rest of
// teardown. Finalizers run for every remaining binding.
func (r *Runtime) Dispose() {
	r.checkAffinity()
	if r.disposed {
		return
	}
	r.disposed = true

	envstore.Remove(r.token)
	r.br.Funcs().Clear()

	// Finalizers may free further objects reentrantly; the registry fails
	// closed on already-removed addresses. The guard bounds a finalizer
	// that keeps binding new objects.
	for guard := r.reg.Len()*2 + 16; guard > 0; guard-- {
		ptr, ok := r.reg.AnyPointer()
		if !ok {
			break
		}
		r.free(ptr, true)
	}
	if n := r.reg.Len(); n != 0 {
		engine.Logger().DPanic("bindings survived teardown", zap.Int("count", n))
	}

	r.clearScriptClasses()
	r.modules.Close()
	r.reg.ClearClasses()
	r.nativeByName = make(map[string]binding.NativeClassID)
	r.hosts = make(map[scriptruntime.NativePtr]scriptruntime.HostObject)
	engine.Logger().Debug("runtime disposed")
}

// Close implements io.Closer over Dispose.
func (r *Runtime) Close() error {
	r.Dispose()
	return nil
}

func (r *Runtime) free(ptr scriptruntime.NativePtr, finalize bool) {
	r.reg.Free(ptr, finalize)
	delete(r.hosts, ptr)
}
