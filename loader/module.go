package loader

import (
	"time"

	"github.com/wippyai/script-runtime/engine"
)

// SourceInfo describes the backing source of a module. Path is empty for
// virtual modules. ModTime and Size feed reload change detection.
type SourceInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Module is a loaded unit of script source. Identity is the resolved id;
// a module object is never destroyed except at cache teardown; reloads
// mutate it in place so script references to Exports stay valid.
type Module struct {
	// ID is the resolved, normalized identity of the module.
	ID string

	// Exports is the namespace object populated by the module source. Its
	// identity is preserved across reloads.
	Exports *engine.Object

	// Children lists modules first required by this module.
	Children []*Module

	// OwnerClass is the script class id owning this module, or zero. Class
	// owned modules are excluded from generic reload scanning; their owner
	// drives reloads explicitly.
	OwnerClass uint32

	source          SourceInfo
	res             Resolver
	virtual         bool
	loaded          bool
	reloadRequested bool
}

// Loaded reports whether the module's source has executed successfully.
func (m *Module) Loaded() bool {
	return m.loaded
}

// Virtual reports whether the module came from a named loader rather than
// a resolved source file. Virtual modules cannot be reloaded.
func (m *Module) Virtual() bool {
	return m.virtual
}

// ReloadRequested reports whether the module is flagged dirty.
func (m *Module) ReloadRequested() bool {
	return m.reloadRequested
}

// Source returns the module's backing source description.
func (m *Module) Source() SourceInfo {
	return m.source
}
