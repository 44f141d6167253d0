package runtime

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/binding"
	"github.com/wippyai/script-runtime/envstore"
	"github.com/wippyai/script-runtime/errors"
)

type fakeHost struct {
	ptr        scriptruntime.NativePtr
	refs       int
	dead       bool
	predeleted bool
}

func (h *fakeHost) NativeID() scriptruntime.NativePtr { return h.ptr }

func (h *fakeHost) InitRef() bool {
	if h.dead {
		return false
	}
	h.refs = 1
	return true
}

func (h *fakeHost) Reference() { h.refs++ }

func (h *fakeHost) Unreference() bool {
	h.refs--
	return h.refs <= 0
}

func (h *fakeHost) Predelete() { h.predeleted = true }

type harness struct {
	r         *Runtime
	thing     binding.NativeClassID
	finalized []scriptruntime.NativePtr
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{}
	h.r = New(opts)
	t.Cleanup(h.r.Dispose)
	h.thing = h.r.RegisterNativeClass(binding.NativeClassInfo{
		Name: "Thing",
		Kind: binding.ClassObject,
		Finalize: func(ptr scriptruntime.NativePtr, persistent bool) {
			h.finalized = append(h.finalized, ptr)
		},
	})
	return h
}

func writeModule(t *testing.T, dir, name, src string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestBindFreePredelete(t *testing.T) {
	h := newHarness(t, Options{})
	host := &fakeHost{ptr: 0x100}

	id, obj, err := h.r.Bind(host, h.thing, binding.PolicyExternal)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if obj == nil || id == 0 {
		t.Fatal("bind returned no object")
	}
	if got, ok := h.r.HostOf(host.ptr); !ok || got != host {
		t.Fatal("host not tracked")
	}

	h.r.Free(host, true)
	if len(h.finalized) != 1 || h.finalized[0] != host.ptr {
		t.Fatalf("finalized = %v, want [%#x]", h.finalized, uintptr(host.ptr))
	}
	if !host.predeleted {
		t.Fatal("predelete notification missed")
	}
	if _, ok := h.r.HostOf(host.ptr); ok {
		t.Fatal("host still tracked after free")
	}
}

func TestFreeDetachSkipsPredelete(t *testing.T) {
	h := newHarness(t, Options{})
	host := &fakeHost{ptr: 0x110}

	if _, _, err := h.r.Bind(host, h.thing, binding.PolicyExternal); err != nil {
		t.Fatalf("bind: %v", err)
	}
	h.r.Free(host, false)
	if len(h.finalized) != 0 {
		t.Fatal("detach ran the finalizer")
	}
	if host.predeleted {
		t.Fatal("detach ran predelete")
	}
	if _, ok := h.r.HostOf(host.ptr); ok {
		t.Fatal("host still tracked after detach")
	}
}

func TestUpdateDrainsCollectedOnce(t *testing.T) {
	h := newHarness(t, Options{})
	host := &fakeHost{ptr: 0x200}

	if _, _, err := h.r.Bind(host, h.thing, binding.PolicyManaged); err != nil {
		t.Fatalf("bind: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(h.finalized) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("collection never reached the inbox")
		}
		h.r.GC()
		time.Sleep(10 * time.Millisecond)
		h.r.Update(0)
	}
	if len(h.finalized) != 1 {
		t.Fatalf("finalized %d times, want 1", len(h.finalized))
	}

	h.r.GC()
	time.Sleep(10 * time.Millisecond)
	h.r.Update(0)
	if len(h.finalized) != 1 {
		t.Fatal("collected pointer drained twice")
	}
}

// TestEmbedderDataCarriesToken pins the contract the collector path relies
// on: the engine's embedder slot holds the runtime's store token, and the
// round-trip through it lands collections in the inbox.
func TestEmbedderDataCarriesToken(t *testing.T) {
	h := newHarness(t, Options{})
	tok, ok := h.r.Engine().EmbedderData().(envstore.Token)
	if !ok {
		t.Fatal("embedder slot does not hold a store token")
	}
	if tok != h.r.Token() {
		t.Fatalf("embedder token = %d, runtime token = %d", tok, h.r.Token())
	}

	h.r.onCollected(0x210)
	if n := h.r.Update(0); n != 1 {
		t.Fatalf("processed %d messages, want 1", n)
	}
}

func TestPostDispatch(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.r.Eval("setup.js", `
		var got = null;
		var gotErr = null;
		globalThis.onmessage = function(m) { got = m; };
		globalThis.onerror = function(e) { gotErr = e; };
	`); err != nil {
		t.Fatalf("eval: %v", err)
	}

	h.r.Post([]byte(`{"op":"ping","n":3}`))
	h.r.PostError([]byte(`worker exploded`))
	if n := h.r.Update(0); n != 2 {
		t.Fatalf("processed %d messages, want 2", n)
	}

	v, err := h.r.Eval("check.js", `got.op + ":" + got.n`)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.String() != "ping:3" {
		t.Fatalf("onmessage saw %q, want %q", v.String(), "ping:3")
	}
	v, err = h.r.Eval("check2.js", `gotErr`)
	if err != nil {
		t.Fatalf("check2: %v", err)
	}
	if v.String() != "worker exploded" {
		t.Fatalf("onerror saw %q", v.String())
	}
}

func TestPostBadPayloadIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.r.Eval("setup.js", `globalThis.onmessage = function() { throw "unreachable"; };`); err != nil {
		t.Fatalf("eval: %v", err)
	}
	h.r.Post([]byte(`{broken`))
	if n := h.r.Update(0); n != 1 {
		t.Fatalf("processed %d messages, want 1", n)
	}
}

func TestDisposeOrdering(t *testing.T) {
	h := newHarness(t, Options{})
	host := &fakeHost{ptr: 0x300}
	if _, _, err := h.r.Bind(host, h.thing, binding.PolicyExternal); err != nil {
		t.Fatalf("bind: %v", err)
	}
	tok := h.r.Token()

	h.r.Dispose()

	if envstore.Access(tok, func(any) {}) {
		t.Fatal("store still knows the disposed runtime")
	}
	if len(h.finalized) != 1 {
		t.Fatalf("teardown finalized %d bindings, want 1", len(h.finalized))
	}
	if !h.r.Disposed() {
		t.Fatal("runtime not marked disposed")
	}
	if h.r.Registry().Len() != 0 {
		t.Fatal("bindings survived teardown")
	}
	if n := h.r.Registry().ClassCount(); n != 0 {
		t.Fatalf("%d native classes survived teardown, want 0", n)
	}

	if _, err := h.r.Eval("x.js", `1`); !stderrors.Is(err, errors.Closed(errors.PhaseRuntime, "")) {
		t.Fatalf("eval after dispose: %v, want closed", err)
	}
	if _, _, err := h.r.Bind(&fakeHost{ptr: 0x301}, h.thing, binding.PolicyExternal); !stderrors.Is(err, errors.Closed(errors.PhaseBind, "")) {
		t.Fatalf("bind after dispose: %v, want closed", err)
	}

	// Cross-thread posts drop silently after disposal.
	h.r.Post([]byte(`{}`))
	if h.r.queue.len() != 0 {
		t.Fatal("post landed after dispose")
	}

	h.r.Dispose()
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	host := &fakeHost{ptr: 0x400}
	if _, _, err := h.r.Bind(host, h.thing, binding.PolicyExternal); err != nil {
		t.Fatalf("bind: %v", err)
	}

	s := h.r.Snapshot()
	if s.Bindings.Objects != 1 {
		t.Fatalf("objects = %d, want 1", s.Bindings.Objects)
	}
	if s.NativeClasses != 1 {
		t.Fatalf("native classes = %d, want 1", s.NativeClasses)
	}
	if s.ScriptClasses != 0 {
		t.Fatalf("script classes = %d, want 0", s.ScriptClasses)
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	h := newHarness(t, Options{})
	host := &fakeHost{ptr: 0x500}
	if _, _, err := h.r.Bind(host, h.thing, binding.PolicyManaged); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if h.r.Reference(host, true) {
		t.Fatal("managed binding reported self-managed")
	}
	if _, n, ok := h.r.Registry().StateOf(host.ptr); !ok || n != 1 {
		t.Fatalf("refcount = %d, want 1", n)
	}
	h.r.Reference(host, false)

	unknown := &fakeHost{ptr: 0x501}
	if !h.r.Reference(unknown, true) {
		t.Fatal("unknown host must stay caller-managed")
	}
}
