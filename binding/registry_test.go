package binding

import (
	goruntime "runtime"
	"testing"
	"time"

	scriptruntime "github.com/wippyai/script-runtime"
	"github.com/wippyai/script-runtime/engine"
)

type finalizeRecord struct {
	ptr        scriptruntime.NativePtr
	persistent bool
}

type harness struct {
	eng       *engine.Engine
	reg       *Registry
	class     NativeClassID
	finalized []finalizeRecord
	collected chan scriptruntime.NativePtr
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		eng:       engine.New(),
		collected: make(chan scriptruntime.NativePtr, 16),
	}
	h.reg = NewRegistry(func(ptr scriptruntime.NativePtr) {
		h.collected <- ptr
	})
	h.class = h.reg.RegisterClass(NativeClassInfo{
		Name: "TestObject",
		Kind: ClassObject,
		Finalize: func(ptr scriptruntime.NativePtr, persistent bool) {
			h.finalized = append(h.finalized, finalizeRecord{ptr, persistent})
		},
	})
	return h
}

func (h *harness) checkInvariant(t *testing.T, op string) {
	t.Helper()
	s := h.reg.Stats()
	if s.Objects != s.Indexed {
		t.Fatalf("after %s: objects=%d indexed=%d, cardinality invariant broken", op, s.Objects, s.Indexed)
	}
}

func TestBindAndLookup(t *testing.T) {
	h := newHarness(t)
	obj := h.eng.NewObject()
	ptr := scriptruntime.NativePtr(0x1000)

	id, err := h.reg.Bind(h.class, ptr, obj, PolicyExternal)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero object id")
	}
	h.checkInvariant(t, "bind")

	got, ok := h.reg.Lookup(ptr)
	if !ok || got != id {
		t.Fatalf("Lookup = (%d, %v), want (%d, true)", got, ok, id)
	}
	back, ok := h.reg.Object(id)
	if !ok || back != obj {
		t.Fatal("Object did not return the bound script object")
	}
	p, ok := h.reg.PointerOf(obj)
	if !ok || p != ptr {
		t.Fatalf("PointerOf = (%#x, %v), want (%#x, true)", p, ok, ptr)
	}
}

func TestBindDuplicate(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x2000)

	if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
		t.Fatalf("first Bind failed: %v", err)
	}
	if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err == nil {
		t.Fatal("expected DuplicateBinding error")
	}
	h.checkInvariant(t, "duplicate bind")
}

func TestBindUnregisteredClass(t *testing.T) {
	h := newHarness(t)
	if _, err := h.reg.Bind(99, 0x3000, h.eng.NewObject(), PolicyExternal); err == nil {
		t.Fatal("expected ClassNotRegistered error")
	}
}

func TestBindValueTypeClassRejected(t *testing.T) {
	h := newHarness(t)
	prim := h.reg.RegisterClass(NativeClassInfo{Name: "Vec2", Kind: ClassPrimitive})
	if _, err := h.reg.Bind(prim, 0x3100, h.eng.NewObject(), PolicyExternal); err == nil {
		t.Fatal("expected rejection of value-type class binding")
	}
}

func TestReferenceStateMachine(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x4000)
	obj := h.eng.NewObject()

	if _, err := h.reg.Bind(h.class, ptr, obj, PolicyExternal); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	state, count, _ := h.reg.StateOf(ptr)
	if state != StateStrong || count != 1 {
		t.Fatalf("external bind: state=%v count=%d, want strong/1", state, count)
	}

	// repeated increments stay strong, no re-transition
	h.reg.Reference(ptr, true)
	h.reg.Reference(ptr, true)
	state, count, _ = h.reg.StateOf(ptr)
	if state != StateStrong || count != 3 {
		t.Fatalf("after +2: state=%v count=%d, want strong/3", state, count)
	}
	h.checkInvariant(t, "increments")

	// decrements back to zero downgrade to weak, never finalize
	h.reg.Reference(ptr, false)
	h.reg.Reference(ptr, false)
	h.reg.Reference(ptr, false)
	state, count, _ = h.reg.StateOf(ptr)
	if state != StateWeak || count != 0 {
		t.Fatalf("after -3: state=%v count=%d, want weak/0", state, count)
	}
	if len(h.finalized) != 0 {
		t.Fatal("decrement to zero must not run the finalizer")
	}

	// unbalanced decrement on a live binding is absorbed
	h.reg.Reference(ptr, false)
	state, count, _ = h.reg.StateOf(ptr)
	if state != StateWeak || count != 0 {
		t.Fatalf("after extra -1: state=%v count=%d, want weak/0", state, count)
	}

	// weak to strong upgrade happens exactly once per zero crossing
	h.reg.Reference(ptr, true)
	state, count, _ = h.reg.StateOf(ptr)
	if state != StateStrong || count != 1 {
		t.Fatalf("after +1: state=%v count=%d, want strong/1", state, count)
	}
	h.checkInvariant(t, "state machine")
}

func TestReferenceUnknownPointer(t *testing.T) {
	h := newHarness(t)
	// unknown pointers report "caller may free itself"
	if !h.reg.Reference(0xdead, true) {
		t.Fatal("unknown pointer increment should return true")
	}
	if !h.reg.Reference(0xdead, false) {
		t.Fatal("unknown pointer decrement should return true")
	}
}

func TestManagedBindStartsWeak(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x5000)
	obj := h.eng.NewObject()

	if _, err := h.reg.Bind(h.class, ptr, obj, PolicyManaged); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	state, count, _ := h.reg.StateOf(ptr)
	if state != StateWeak || count != 0 {
		t.Fatalf("managed bind: state=%v count=%d, want weak/0", state, count)
	}
	goruntime.KeepAlive(obj)
}

func TestFreeFinalize(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x6000)

	if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	h.reg.Free(ptr, true)
	h.checkInvariant(t, "free")
	if len(h.finalized) != 1 || h.finalized[0].ptr != ptr {
		t.Fatalf("finalizer calls = %v, want exactly one for %#x", h.finalized, ptr)
	}
	if h.finalized[0].persistent {
		t.Fatal("non-persistent binding reported persistent")
	}

	// second free is a no-op
	h.reg.Free(ptr, true)
	if len(h.finalized) != 1 {
		t.Fatal("Free is not idempotent")
	}

	// the address can be bound again
	if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
		t.Fatalf("rebind after free failed: %v", err)
	}
	h.checkInvariant(t, "rebind")
}

func TestFreeDetachOnly(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x7000)
	obj := h.eng.NewObject()

	if _, err := h.reg.Bind(h.class, ptr, obj, PolicyExternal); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	// host deletes itself: only the script-side link is detached
	h.reg.Free(ptr, false)
	if len(h.finalized) != 0 {
		t.Fatal("detach must not run the finalizer")
	}
	if _, ok := h.reg.PointerOf(obj); ok {
		t.Fatal("internal slot still tagged after detach")
	}
	h.checkInvariant(t, "detach")
}

// TestFinalizeClearsSlot checks that finalizing a still reachable object
// clears its internal slot, so a stale reference can never resolve to a
// later binding at the same address.
func TestFinalizeClearsSlot(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0xd000)
	old := h.eng.NewObject()

	if _, err := h.reg.Bind(h.class, ptr, old, PolicyExternal); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	h.reg.Free(ptr, true)
	if _, ok := h.reg.PointerOf(old); ok {
		t.Fatal("internal slot still tagged after finalize")
	}

	// the address is reused by a fresh binding; the old object must not
	// resolve to it
	fresh := h.eng.NewObject()
	if _, err := h.reg.Bind(h.class, ptr, fresh, PolicyExternal); err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	if p, ok := h.reg.PointerOf(old); ok {
		t.Fatalf("finalized object resolves to %#x after rebind", p)
	}
	if p, ok := h.reg.PointerOf(fresh); !ok || p != ptr {
		t.Fatalf("fresh binding PointerOf = (%#x, %v), want (%#x, true)", p, ok, ptr)
	}
}

func TestFreeReentrant(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x8000)

	calls := 0
	class := h.reg.RegisterClass(NativeClassInfo{
		Name: "Reentrant",
		Kind: ClassObject,
		Finalize: func(p scriptruntime.NativePtr, _ bool) {
			calls++
			// host destruction machinery calls back into the registry
			h.reg.Free(p, true)
			h.reg.Reference(p, false)
		},
	})

	if _, err := h.reg.Bind(class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	h.reg.Free(ptr, true)

	if calls != 1 {
		t.Fatalf("finalizer ran %d times, want 1", calls)
	}
	h.checkInvariant(t, "reentrant free")
}

func TestMarkPersistent(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0x9000)

	// unbound pointer: logged no-op
	h.reg.MarkPersistent(ptr)
	if h.reg.Stats().Persistent != 0 {
		t.Fatal("persistent mark on unbound pointer took effect")
	}

	if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	h.reg.MarkPersistent(ptr)

	_, count, _ := h.reg.StateOf(ptr)
	if count != 2 {
		t.Fatalf("persistent mark count = %d, want 2", count)
	}
	if h.reg.Stats().Persistent != 1 {
		t.Fatal("persistent set not updated")
	}

	h.reg.Free(ptr, true)
	if len(h.finalized) != 1 || !h.finalized[0].persistent {
		t.Fatalf("finalizer did not observe persistent flag: %v", h.finalized)
	}
	if h.reg.Stats().Persistent != 0 {
		t.Fatal("persistent set not cleared on free")
	}
}

func TestOperationSequencesKeepInvariant(t *testing.T) {
	h := newHarness(t)

	type op struct {
		name string
		run  func(ptr scriptruntime.NativePtr)
	}
	ops := []op{
		{"inc", func(p scriptruntime.NativePtr) { h.reg.Reference(p, true) }},
		{"dec", func(p scriptruntime.NativePtr) { h.reg.Reference(p, false) }},
		{"free", func(p scriptruntime.NativePtr) { h.reg.Free(p, true) }},
		{"detach", func(p scriptruntime.NativePtr) { h.reg.Free(p, false) }},
	}

	ptr := scriptruntime.NativePtr(0xa000)
	for i, outer := range ops {
		for j, inner := range ops {
			if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
				t.Fatalf("bind %d/%d failed: %v", i, j, err)
			}
			h.checkInvariant(t, "bind")
			outer.run(ptr)
			h.checkInvariant(t, outer.name)
			inner.run(ptr)
			h.checkInvariant(t, inner.name)
			h.reg.Free(ptr, true)
			h.checkInvariant(t, "cleanup free")
		}
	}
}

// TestEngineCollection exercises the engine-initiated path: a managed
// binding whose script object becomes unreachable is reported through the
// collect callback, after which Free(ptr, finalize=true) runs the finalizer
// exactly once and the address can be bound again.
func TestEngineCollection(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0xb000)

	func() {
		obj := h.eng.NewObject()
		if _, err := h.reg.Bind(h.class, ptr, obj, PolicyManaged); err != nil {
			t.Fatalf("Bind failed: %v", err)
		}
	}()

	deadline := time.After(5 * time.Second)
	var collected scriptruntime.NativePtr
wait:
	for {
		goruntime.GC()
		select {
		case collected = <-h.collected:
			break wait
		case <-deadline:
			t.Fatal("weak collection callback never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if collected != ptr {
		t.Fatalf("collected %#x, want %#x", collected, ptr)
	}

	// owner's update pass converges on Free
	h.reg.Free(ptr, true)
	if len(h.finalized) != 1 {
		t.Fatalf("finalizer ran %d times, want 1", len(h.finalized))
	}
	h.checkInvariant(t, "collected free")

	if _, err := h.reg.Bind(h.class, ptr, h.eng.NewObject(), PolicyExternal); err != nil {
		t.Fatalf("rebind after collection failed: %v", err)
	}
}

// TestUpgradeCancelsWatch verifies that upgrading weak to strong stops the
// collection watch: no collect callback may fire while the binding is
// strong.
func TestUpgradeCancelsWatch(t *testing.T) {
	h := newHarness(t)
	ptr := scriptruntime.NativePtr(0xc000)
	obj := h.eng.NewObject()

	if _, err := h.reg.Bind(h.class, ptr, obj, PolicyManaged); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	h.reg.Reference(ptr, true)

	goruntime.GC()
	goruntime.GC()
	select {
	case p := <-h.collected:
		t.Fatalf("collect fired for %#x while binding is strong", p)
	case <-time.After(50 * time.Millisecond):
	}

	state, _, _ := h.reg.StateOf(ptr)
	if state != StateStrong {
		t.Fatalf("state = %v, want strong", state)
	}
	if got, ok := h.reg.Object(mustLookup(t, h.reg, ptr)); !ok || got != obj {
		t.Fatal("strong binding lost its object")
	}
}

func mustLookup(t *testing.T, r *Registry, ptr scriptruntime.NativePtr) ObjectID {
	t.Helper()
	id, ok := r.Lookup(ptr)
	if !ok {
		t.Fatalf("pointer %#x not bound", ptr)
	}
	return id
}
