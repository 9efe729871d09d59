// Package registry is the append-only store of published module manifests.
// Entries are keyed module@version; registration validates the manifest and
// a published block or graph is never redefined, though RegisterGraph may add
// graphs to an accepted version (the entry digest tracks the addition).
// Version resolution and the lockfile live here too, next to the data they
// read.
package registry

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"loom/internal/ir"
	"loom/internal/source"
)

// Entry is one accepted module@version.
type Entry struct {
	Spec    *ir.ModuleSpec
	Version *semver.Version
	Digest  string // ir.ModuleDigest at registration time
	File    source.FileID
}

// Registry holds every registered entry. Reads are cheap and concurrent;
// registration takes the write lock.
type Registry struct {
	mu      sync.RWMutex
	modules map[string][]*Entry // name -> entries, ascending by version
}

func New() *Registry {
	return &Registry{modules: make(map[string][]*Entry)}
}

// Len returns the number of registered module@version entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, entries := range r.modules {
		n += len(entries)
	}
	return n
}

// Modules returns the registered module names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns the registered versions of a module in ascending semver
// order, empty when the module is unknown.
func (r *Registry) Versions(name string) []*semver.Version {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.modules[name]
	out := make([]*semver.Version, len(entries))
	for i, e := range entries {
		out[i] = e.Version
	}
	return out
}

// Entry returns the entry for module@version.
func (r *Registry) Entry(name, version string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(name, version)
}

func (r *Registry) lookup(name, version string) (*Entry, bool) {
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return nil, false
	}
	for _, e := range r.modules[name] {
		if e.Version.Equal(v) {
			return e, true
		}
	}
	return nil, false
}

// Module returns the manifest for module@version.
func (r *Registry) Module(name, version string) (*ir.ModuleSpec, bool) {
	e, ok := r.Entry(name, version)
	if !ok {
		return nil, false
	}
	return e.Spec, true
}

// Latest returns the highest registered version of a module.
func (r *Registry) Latest(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.modules[name]
	if len(entries) == 0 {
		return nil, false
	}
	return entries[len(entries)-1], true
}

// Block resolves "module@version:name" to a block spec.
func (r *Registry) Block(module, version, name string) (*ir.BlockSpec, bool) {
	m, ok := r.Module(module, version)
	if !ok {
		return nil, false
	}
	b := m.Block(name)
	if b == nil {
		return nil, false
	}
	return b, true
}

// Graph resolves "module@version:name" to a published graph spec.
func (r *Registry) Graph(module, version, name string) (*ir.GraphSpec, bool) {
	m, ok := r.Module(module, version)
	if !ok {
		return nil, false
	}
	g := m.Graph(name)
	if g == nil {
		return nil, false
	}
	return g, true
}

// ModuleGraphNames returns the published graph names of module@version,
// sorted, empty when the entry is unknown.
func (r *Registry) ModuleGraphNames(module, version string) []string {
	m, ok := r.Module(module, version)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(m.Graphs))
	for i := range m.Graphs {
		names = append(names, m.Graphs[i].Name)
	}
	sort.Strings(names)
	return names
}

// insert adds an entry keeping the per-module slice sorted. Caller holds the
// write lock and has already rejected duplicates.
func (r *Registry) insert(e *Entry) {
	name := e.Spec.Name
	entries := r.modules[name]
	at := sort.Search(len(entries), func(i int) bool {
		return entries[i].Version.GreaterThan(e.Version)
	})
	entries = append(entries, nil)
	copy(entries[at+1:], entries[at:])
	entries[at] = e
	r.modules[name] = entries
}
