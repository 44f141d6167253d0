package bridge

import (
	"github.com/wippyai/script-runtime/engine"
)

// FuncID is a stable handle to a retained script function. Zero is invalid.
type FuncID uint32

type funcEntry struct {
	ref   *engine.StrongRef
	next  FuncID
	valid bool
}

// FuncCache pins script functions for later invocation from the host, with
// identity dedup: retaining the same function twice yields the same id and
// bumps its count. Not safe for concurrent use.
type FuncCache struct {
	entries []funcEntry
	free    FuncID
	index   map[*engine.Object]FuncID
	count   int
}

// NewFuncCache creates an empty cache.
func NewFuncCache() *FuncCache {
	return &FuncCache{
		entries: make([]funcEntry, 1), // slot 0 reserved as invalid
		index:   make(map[*engine.Object]FuncID),
	}
}

// Retain pins fn and returns its id. A function already in the cache gets
// its existing id with the count incremented. Non-callable values yield
// zero.
func (c *FuncCache) Retain(fn *engine.Object) FuncID {
	if fn == nil || !engine.IsCallable(fn) {
		return 0
	}
	if id, ok := c.index[fn]; ok {
		c.entries[id].ref.Ref()
		return id
	}
	id := c.alloc()
	c.entries[id].ref = engine.NewStrongRef(fn)
	c.index[fn] = id
	c.count++
	return id
}

// Release drops one retain of id. The slot is reclaimed when the count
// reaches zero. Unknown or stale ids are ignored.
func (c *FuncCache) Release(id FuncID) {
	e := c.at(id)
	if e == nil {
		return
	}
	if e.ref.Unref() > 0 {
		return
	}
	delete(c.index, e.ref.Object())
	e.ref.Release()
	e.ref = nil
	e.valid = false
	e.next = c.free
	c.free = id
	c.count--
}

// Get returns the function behind id. Stale ids report false.
func (c *FuncCache) Get(id FuncID) (*engine.Object, bool) {
	e := c.at(id)
	if e == nil {
		return nil, false
	}
	return e.ref.Object(), true
}

// Count returns the retain count of id, or zero for stale ids.
func (c *FuncCache) Count(id FuncID) int {
	e := c.at(id)
	if e == nil {
		return 0
	}
	return e.ref.Count()
}

// Len returns the number of distinct retained functions.
func (c *FuncCache) Len() int {
	return c.count
}

// Clear drops every pin. All outstanding ids become stale.
func (c *FuncCache) Clear() {
	c.entries = make([]funcEntry, 1)
	c.free = 0
	c.index = make(map[*engine.Object]FuncID)
	c.count = 0
}

func (c *FuncCache) alloc() FuncID {
	if c.free != 0 {
		id := c.free
		c.free = c.entries[id].next
		c.entries[id] = funcEntry{valid: true}
		return id
	}
	c.entries = append(c.entries, funcEntry{valid: true})
	return FuncID(len(c.entries) - 1)
}

func (c *FuncCache) at(id FuncID) *funcEntry {
	if id == 0 || int(id) >= len(c.entries) {
		return nil
	}
	e := &c.entries[id]
	if !e.valid {
		return nil
	}
	return e
}
