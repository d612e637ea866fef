package plugins

import (
	"sort"
	"sync"

	"github.com/nexuscore/nexuscore/internal/core/ports"
)

// ModuleTable is the runtime-populated table of compiled-in plugin
// implementations, keyed by plugin name. Plugin behavior is attached by
// looking the name up here; there is no dynamic code loading.
type ModuleTable struct {
	mu        sync.RWMutex
	factories map[string]func() ports.Module
}

// NewModuleTable creates an empty module table.
func NewModuleTable() *ModuleTable {
	return &ModuleTable{factories: make(map[string]func() ports.Module)}
}

// Register associates a plugin name with a module factory. Registering the
// same name twice replaces the earlier factory.
func (t *ModuleTable) Register(name string, factory func() ports.Module) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = factory
}

// New instantiates the module registered under the name.
func (t *ModuleTable) New(name string) (ports.Module, bool) {
	t.mu.RLock()
	factory, ok := t.factories[name]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Has reports whether a module is registered under the name.
func (t *ModuleTable) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.factories[name]
	return ok
}

// Names returns the registered module names, sorted.
func (t *ModuleTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.factories))
	for name := range t.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
