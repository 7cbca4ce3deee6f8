package bundler

import (
	"path"
	"strings"

	"github.com/fluxbase-eu/playground/internal/compiler"
)

// EntryID is the id of the bundle entry module
const EntryID = "input.js"

// VirtualResolver serves module ids from the in-memory module set emitted by
// the compiler. It never touches the filesystem.
type VirtualResolver struct {
	modules []compiler.ModuleArtifact
}

// NewVirtualResolver creates a resolver over modules. Order matters: Load
// scans in this order.
func NewVirtualResolver(modules []compiler.ModuleArtifact) *VirtualResolver {
	return &VirtualResolver{modules: modules}
}

// Resolve maps an import specifier to a module id.
//
// The entry request (empty importer) resolves to the specifier itself. Bare
// specifiers are declined so the bundler keeps them as external imports.
// Relative specifiers get a ".js" suffix.
func (r *VirtualResolver) Resolve(specifier, importer string) (string, bool) {
	if importer == "" {
		return specifier, true
	}
	if !strings.HasPrefix(specifier, ".") {
		return "", false
	}
	return specifier + ".js", true
}

// Load returns the code for id. A module whose path equals the normalized id
// wins; otherwise the first module whose path occurs inside id is used.
func (r *VirtualResolver) Load(id string) (string, bool) {
	m, ok := r.Lookup(id)
	return m.Code, ok
}

// Lookup is Load but returns the whole matched module
func (r *VirtualResolver) Lookup(id string) (compiler.ModuleArtifact, bool) {
	want := normalizeID(id)
	for _, m := range r.modules {
		if normalizeID(m.Path) == want {
			return m, true
		}
	}
	for _, m := range r.modules {
		if m.Path != "" && strings.Contains(id, m.Path) {
			return m, true
		}
	}
	return compiler.ModuleArtifact{}, false
}

func normalizeID(id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+id), "/")
}
