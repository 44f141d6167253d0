package loader

import (
	"os"
	"path/filepath"

	"github.com/wippyai/script-runtime/engine"
)

// Loader provides synthetic modules addressed by exact id, for builtin or
// generated namespaces. Virtual modules are matched before any path
// resolution and are never reloaded.
type Loader interface {
	Load(eng *engine.Engine, m *Module) error
}

// FuncLoader adapts a function to the Loader interface.
type FuncLoader func(eng *engine.Engine, m *Module) error

func (f FuncLoader) Load(eng *engine.Engine, m *Module) error {
	return f(eng, m)
}

// Resolver converts a normalized module id into loadable source. Resolvers
// are consulted in registration order; the first match wins.
type Resolver interface {
	// Resolve locates source for id. A false return means "not mine", and
	// the next resolver in the chain is consulted.
	Resolve(id string) (SourceInfo, bool)

	// Source reads the bytes behind a successful Resolve.
	Source(info SourceInfo) ([]byte, error)
}

// PathResolver resolves module ids against an ordered list of search
// paths. Ids that already name a file directly (absolute ids, or ids
// produced by combining a relative request with the requester's directory)
// match without consulting the search paths.
type PathResolver struct {
	searchPaths []string
	extensions  []string
}

// NewPathResolver creates a resolver over the given search paths.
func NewPathResolver(paths ...string) *PathResolver {
	return &PathResolver{
		searchPaths: paths,
		extensions:  []string{"", ".js"},
	}
}

// AddSearchPath appends a search path and returns the resolver.
func (r *PathResolver) AddSearchPath(p string) *PathResolver {
	r.searchPaths = append(r.searchPaths, p)
	return r
}

// Resolve tries the id directly, then under each search path, completing
// the extension and index file as needed.
func (r *PathResolver) Resolve(id string) (SourceInfo, bool) {
	if id == "" {
		return SourceInfo{}, false
	}
	for _, candidate := range r.candidates(id) {
		fi, err := os.Stat(candidate)
		if err != nil || fi.IsDir() {
			continue
		}
		return SourceInfo{
			Path:    filepath.ToSlash(candidate),
			ModTime: fi.ModTime(),
			Size:    fi.Size(),
		}, true
	}
	return SourceInfo{}, false
}

// Source reads the resolved file.
func (r *PathResolver) Source(info SourceInfo) ([]byte, error) {
	return os.ReadFile(filepath.FromSlash(info.Path))
}

func (r *PathResolver) candidates(id string) []string {
	bases := make([]string, 0, len(r.searchPaths)+1)
	bases = append(bases, id)
	for _, sp := range r.searchPaths {
		bases = append(bases, filepath.Join(sp, filepath.FromSlash(id)))
	}

	out := make([]string, 0, len(bases)*(len(r.extensions)+1))
	for _, base := range bases {
		for _, ext := range r.extensions {
			out = append(out, base+ext)
		}
		out = append(out, filepath.Join(base, "index.js"))
	}
	return out
}
