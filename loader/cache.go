package loader

import (
	"path"

	"go.uber.org/zap"

	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/errors"
)

// ReloadResult reports the outcome of a reload request.
type ReloadResult uint8

const (
	// ReloadNoSuchModule means the id is not in the cache.
	ReloadNoSuchModule ReloadResult = iota
	// ReloadNoChanges means the backing source is unchanged.
	ReloadNoChanges
	// ReloadRequested means the module is flagged and will re-execute on
	// its next load or reload scan.
	ReloadRequested
)

func (r ReloadResult) String() string {
	switch r {
	case ReloadNoSuchModule:
		return "no-such-module"
	case ReloadNoChanges:
		return "no-changes"
	case ReloadRequested:
		return "requested"
	default:
		return "unknown"
	}
}

// Cache owns every loaded module of one engine. Resolution order: named
// virtual loaders by exact requested id, then the resolver chain against
// the normalized id. Not safe for concurrent use.
type Cache struct {
	eng       *engine.Engine
	loaders   map[string]Loader
	resolvers []Resolver
	modules   map[string]*Module
	mainID    string
	onLoaded  func(*Module)
	closed    bool
}

// NewCache creates an empty module cache bound to eng.
func NewCache(eng *engine.Engine) *Cache {
	return &Cache{
		eng:     eng,
		loaders: make(map[string]Loader),
		modules: make(map[string]*Module),
	}
}

// AddLoader registers a virtual loader under an exact id.
func (c *Cache) AddLoader(id string, l Loader) {
	c.loaders[id] = l
}

// AddResolver appends a resolver to the chain.
func (c *Cache) AddResolver(r Resolver) {
	c.resolvers = append(c.resolvers, r)
}

// SetLoadHook installs fn, called after every successful module execution,
// including reloads. Used by the runtime to harvest class exports.
func (c *Cache) SetLoadHook(fn func(*Module)) {
	c.onLoaded = fn
}

// Find returns the cached module for id, or nil.
func (c *Cache) Find(id string) *Module {
	return c.modules[id]
}

// Main returns the entry module, or nil before the first Load.
func (c *Cache) Main() *Module {
	return c.modules[c.mainID]
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	return len(c.modules)
}

// Each visits every cached module until fn returns false.
func (c *Cache) Each(fn func(*Module) bool) {
	for _, m := range c.modules {
		if !fn(m) {
			return
		}
	}
}

// Load resolves and executes id as a top-level module. The first
// successful Load marks the entry module.
func (c *Cache) Load(id string) (*Module, error) {
	m, err := c.LoadModule("", id)
	if err != nil {
		return nil, err
	}
	if c.mainID == "" {
		c.mainID = m.ID
	}
	return m, nil
}

// LoadModule resolves requested against the requesting module and returns
// the cached module, executing its source if it is not yet loaded or is
// flagged for reload. Loading is idempotent: a second request for the
// same id returns the same Module without re-execution.
func (c *Cache) LoadModule(parentID, requested string) (*Module, error) {
	if c.closed {
		return nil, errors.Closed(errors.PhaseLoad, "module cache")
	}

	if l, ok := c.loaders[requested]; ok {
		return c.loadVirtual(parentID, requested, l)
	}

	normalized, err := ResolveID(parentID, requested)
	if err != nil {
		return nil, err
	}

	var (
		info SourceInfo
		res  Resolver
	)
	for _, r := range c.resolvers {
		if si, ok := r.Resolve(normalized); ok {
			info, res = si, r
			break
		}
	}
	if res == nil {
		return nil, errors.NoSuchModule(normalized)
	}

	// Identity is the resolved path so that "./util" and "lib/util" meet
	// in one cache slot.
	m, fresh := c.modules[info.Path], false
	if m == nil {
		m = &Module{ID: info.Path, Exports: c.eng.NewObject()}
		c.modules[m.ID] = m
		fresh = true
	} else if !m.loaded {
		// Mid-execution: a require cycle re-entered the module. Hand back
		// the partial exports instead of recursing into the source again.
		return m, nil
	} else if !m.reloadRequested {
		return m, nil
	}
	m.source = info
	m.res = res
	m.reloadRequested = false

	src, err := res.Source(info)
	if err != nil {
		if fresh {
			delete(c.modules, m.ID)
		}
		return nil, errors.ModuleLoadFailed(m.ID, err)
	}
	if err := c.execute(m, string(src)); err != nil {
		if fresh {
			delete(c.modules, m.ID)
		}
		return nil, err
	}
	m.loaded = true

	if fresh {
		c.attachChild(parentID, m)
	}
	engine.Logger().Debug("module loaded",
		zap.String("id", m.ID), zap.Bool("fresh", fresh))
	if c.onLoaded != nil {
		c.onLoaded(m)
	}
	return m, nil
}

// MarkReloading flags id for re-execution if its backing source changed.
// Virtual modules are not reloadable and report an error alongside
// ReloadNoChanges.
func (c *Cache) MarkReloading(id string) (ReloadResult, error) {
	m, ok := c.modules[id]
	if !ok {
		return ReloadNoSuchModule, nil
	}
	if m.virtual {
		return ReloadNoChanges, errors.New(errors.PhaseLoad, errors.KindInvalidArgument).
			Detail("virtual module %q cannot be reloaded", id).
			Value(id).
			Build()
	}
	if m.reloadRequested || !m.loaded {
		m.reloadRequested = true
		return ReloadRequested, nil
	}
	si, ok := m.res.Resolve(m.ID)
	if !ok || (si.ModTime.Equal(m.source.ModTime) && si.Size == m.source.Size) {
		return ReloadNoChanges, nil
	}
	m.reloadRequested = true
	return ReloadRequested, nil
}

// ScanChanges checks every reloadable module and re-executes the changed
// ones in place. Class-owned modules are skipped; their owner reloads
// them. Returns the number of modules re-executed.
func (c *Cache) ScanChanges() int {
	var dirty []string
	for id, m := range c.modules {
		if m.virtual || m.OwnerClass != 0 {
			continue
		}
		if r, _ := c.MarkReloading(id); r == ReloadRequested {
			dirty = append(dirty, id)
		}
	}
	for _, id := range dirty {
		if _, err := c.LoadModule("", id); err != nil {
			engine.Logger().Error("module reload failed",
				zap.String("id", id), zap.Error(err))
		}
	}
	return len(dirty)
}

// Close drops every cached module. Further loads fail with a closed error.
func (c *Cache) Close() {
	c.modules = make(map[string]*Module)
	c.mainID = ""
	c.closed = true
}

func (c *Cache) loadVirtual(parentID, id string, l Loader) (*Module, error) {
	// Loaded or mid-load, an existing entry is the answer; virtual loaders
	// run at most once.
	if m, ok := c.modules[id]; ok {
		return m, nil
	}
	m := &Module{ID: id, Exports: c.eng.NewObject(), virtual: true}
	c.modules[id] = m
	if err := l.Load(c.eng, m); err != nil {
		delete(c.modules, id)
		return nil, errors.ModuleLoadFailed(id, err)
	}
	m.loaded = true
	c.attachChild(parentID, m)
	if c.onLoaded != nil {
		c.onLoaded(m)
	}
	return m, nil
}

func (c *Cache) attachChild(parentID string, m *Module) {
	if parentID == "" {
		return
	}
	p := c.modules[parentID]
	if p == nil {
		engine.Logger().Warn("requesting module not in cache",
			zap.String("parent", parentID), zap.String("child", m.ID))
		return
	}
	p.Children = append(p.Children, m)
}

// execute wraps src in a function scope and runs it against the module's
// exports object. The wrapper mirrors the usual commonjs shape so sources
// written for node-style environments load unmodified.
func (c *Cache) execute(m *Module, src string) error {
	wrapped := "(function(exports, require, module, __filename, __dirname) {\n" +
		src + "\n})"
	fn, err := c.eng.Evaluate(m.ID, wrapped)
	if err != nil {
		engine.Logger().Error("module compilation failed",
			zap.String("id", m.ID),
			zap.String("exception", engine.FormatException(err)))
		return errors.CompilationFailed(m.ID, err)
	}

	modObj := c.eng.NewObject()
	_ = modObj.Set("id", m.ID)
	_ = modObj.Set("filename", m.source.Path)
	_ = modObj.Set("exports", m.Exports)
	_ = modObj.Set("loaded", false)

	req := c.requireFor(m.ID)

	_, err = c.eng.Call(fn, engine.Undefined(),
		m.Exports,
		req,
		modObj,
		c.eng.ToValue(m.ID),
		c.eng.ToValue(path.Dir(m.ID)))
	if err != nil {
		engine.Logger().Error("module evaluation failed",
			zap.String("id", m.ID),
			zap.String("exception", engine.FormatException(err)))
		return errors.ModuleLoadFailed(m.ID, err)
	}
	_ = modObj.Set("loaded", true)
	return nil
}

// requireFor builds the require function handed to a module's scope.
// Resolution failures surface as script exceptions at the require site.
func (c *Cache) requireFor(parentID string) engine.Value {
	fn := c.eng.NewFunc(func(call engine.FunctionCall) engine.Value {
		requested := call.Argument(0).String()
		m, err := c.LoadModule(parentID, requested)
		if err != nil {
			c.eng.Throw(err)
		}
		return m.Exports
	})
	if obj, ok := engine.AsObject(fn); ok {
		if main := c.Main(); main != nil {
			_ = obj.Set("main", main.Exports)
		}
	}
	return fn
}
