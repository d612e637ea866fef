// Package web is the HTTP layer over the plugin registry: a catch-all
// dispatcher that resolves plugin routes against the live registry per
// request, and an admin API over the lifecycle manager.
package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/plugins"
)

// Dispatcher implements ports.RouteBinder and http.Handler. Routes are
// never bound into an immutable router; every request resolves the target
// plugin by route in the live registry, so uninstalling a plugin makes its
// route unreachable on the very next request.
type Dispatcher struct {
	registry *plugins.Registry
	logger   *log.Logger

	mu       sync.RWMutex
	handlers map[string]http.Handler
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *plugins.Registry, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		handlers: make(map[string]http.Handler),
	}
}

// Bind associates the descriptor's identity key with a handler.
func (d *Dispatcher) Bind(desc *plugin.Descriptor, h http.Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[desc.Key()] = h
	return nil
}

// Unbind removes the handler for an identity key.
func (d *Dispatcher) Unbind(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, key)
}

// Reset drops all handler bindings. The loader calls this at the start of
// a full reload, before modules re-register.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string]http.Handler)
}

// ServeHTTP dispatches a request to the plugin owning the path. Plugins
// without a bound handler get a metadata response. Panics and 5xx
// responses from plugin handlers count against the plugin's error stats.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	desc := d.registry.MatchRoute(r.URL.Path)
	if desc == nil {
		http.NotFound(w, r)
		return
	}

	entry := d.registry.EnsureCacheEntry(desc.Key())
	entry.RecordRequest()

	d.mu.RLock()
	handler, bound := d.handlers[desc.Key()]
	d.mu.RUnlock()

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			entry.RecordError()
			d.logger.Printf("[Dispatcher] plugin %s panicked: %v", desc.Key(), rec)
			http.Error(w, "plugin failure", http.StatusInternalServerError)
			return
		}
		if recorder.status >= http.StatusInternalServerError {
			entry.RecordError()
		}
	}()

	if !bound {
		serveMetadata(recorder, desc)
		return
	}
	handler.ServeHTTP(recorder, r)
}

// serveMetadata is the default handler for metadata-only plugins with no
// compiled-in module.
func serveMetadata(w http.ResponseWriter, desc *plugin.Descriptor) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"plugin":      desc.Name,
		"version":     desc.Version,
		"description": desc.Description,
		"category":    desc.Category,
		"has_view":    desc.HasView,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
