package plugins

import (
	"sort"
	"strings"
	"sync"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
)

// FeaturedLimit caps how many featured plugins are surfaced in listings.
const FeaturedLimit = 6

// Registry is the in-memory authoritative map of currently active plugins,
// keyed by "name@version". It is constructed once at process start and
// injected into the loader, lifecycle manager, and health monitor.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*plugin.Descriptor
	cache   map[string]*plugin.CacheEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*plugin.Descriptor),
		cache:   make(map[string]*plugin.CacheEntry),
	}
}

// Insert adds a descriptor under its identity key. The first registration
// for a key wins: a later insert with the same key is a no-op and returns
// false.
func (r *Registry) Insert(d *plugin.Descriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := d.Key()
	if _, exists := r.entries[key]; exists {
		return false
	}
	r.entries[key] = d.Clone()
	return true
}

// Replace overwrites the entry for the descriptor's key, inserting it if
// absent. Used by the lifecycle manager to refresh an entry after an update.
func (r *Registry) Replace(d *plugin.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[d.Key()] = d.Clone()
}

// Remove deletes the entry and its cache bookkeeping for the given key.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	delete(r.cache, key)
	return ok
}

// Reset clears all entries and cache bookkeeping. The loader calls this at
// the start of a full reload.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*plugin.Descriptor)
	r.cache = make(map[string]*plugin.CacheEntry)
}

// Has reports whether the identity key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Get returns a copy of the entry for the key.
func (r *Registry) Get(key string) (*plugin.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// All returns copies of every entry, ordered by identity key.
func (r *Registry) All() []*plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*plugin.Descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ByCategory returns active plugins in the given category.
func (r *Registry) ByCategory(c plugin.Category) []*plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*plugin.Descriptor
	for _, d := range r.entries {
		if d.Active && d.Category == c {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByRoute returns the plugin registered under the exact route, or nil.
func (r *Registry) ByRoute(route string) *plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.entries {
		if d.Route == route {
			return d.Clone()
		}
	}
	return nil
}

// ByName returns the plugin with the given name, or nil. Names are unique
// among active plugins; if multiple versions are registered the active one
// is preferred.
func (r *Registry) ByName(name string) *plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *plugin.Descriptor
	for _, d := range r.entries {
		if d.Name != name {
			continue
		}
		if d.Active {
			return d.Clone()
		}
		if found == nil {
			found = d
		}
	}
	return found.Clone()
}

// MatchRoute resolves a request path to the active plugin owning it. The
// longest registered route that equals the path or is a segment prefix of it
// wins, so /shop/cart dispatches to /shop when no /shop/cart plugin exists.
func (r *Registry) MatchRoute(path string) *plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *plugin.Descriptor
	for _, d := range r.entries {
		if !d.Active {
			continue
		}
		if path != d.Route && !strings.HasPrefix(path, d.Route+"/") {
			continue
		}
		if best == nil || len(d.Route) > len(best.Route) {
			best = d
		}
	}
	return best.Clone()
}

// Search performs a case-insensitive substring match over name, description,
// and tags.
func (r *Registry) Search(query string) []*plugin.Descriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*plugin.Descriptor
	for _, d := range r.entries {
		if matchesQuery(d, q) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func matchesQuery(d *plugin.Descriptor, q string) bool {
	if strings.Contains(strings.ToLower(d.Name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(d.Description), q) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Categories returns the distinct categories of registered plugins, sorted.
func (r *Registry) Categories() []plugin.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[plugin.Category]struct{})
	for _, d := range r.entries {
		seen[d.Category] = struct{}{}
	}
	out := make([]plugin.Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Featured returns active plugins flagged featured, bounded to
// FeaturedLimit, sorted by name for stable listings.
func (r *Registry) Featured() []*plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*plugin.Descriptor
	for _, d := range r.entries {
		if d.Active && d.Featured {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > FeaturedLimit {
		out = out[:FeaturedLimit]
	}
	return out
}

// EnsureCacheEntry creates the cache entry for a key if it does not exist
// and returns it.
func (r *Registry) EnsureCacheEntry(key string) *plugin.CacheEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.cache[key]; ok {
		return entry
	}
	entry := plugin.NewCacheEntry()
	r.cache[key] = entry
	return entry
}

// CacheEntry returns the cache entry for a key.
func (r *Registry) CacheEntry(key string) (*plugin.CacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	return entry, ok
}
