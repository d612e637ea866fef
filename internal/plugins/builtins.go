package plugins

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/core/ports"
)

// RegisterBuiltins populates the module table with the modules compiled
// into this binary. Descriptors discovered from disk or the record store
// with a matching name are served by these implementations.
func RegisterBuiltins(table *ModuleTable) {
	table.Register("welcome", func() ports.Module { return &welcomeModule{} })
	table.Register("system-status", func() ports.Module { return newStatusModule() })
}

// welcomeModule is a minimal view-contributing plugin used by fresh
// installations to verify the dispatch path end to end.
type welcomeModule struct{}

func (m *welcomeModule) RegisterRoutes(binder ports.RouteBinder, d *plugin.Descriptor) error {
	return binder.Bind(d, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Handle(w, r, d)
	}))
}

func (m *welcomeModule) Handle(w http.ResponseWriter, r *http.Request, d *plugin.Descriptor) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"plugin":  d.Name,
		"version": d.Version,
		"message": "welcome to nexuscore",
	})
}

func (m *welcomeModule) HasView() bool { return true }

// statusModule reports process uptime, a plain operational endpoint.
type statusModule struct {
	started time.Time
}

func newStatusModule() *statusModule {
	return &statusModule{started: time.Now()}
}

func (m *statusModule) RegisterRoutes(binder ports.RouteBinder, d *plugin.Descriptor) error {
	return binder.Bind(d, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Handle(w, r, d)
	}))
}

func (m *statusModule) Handle(w http.ResponseWriter, r *http.Request, d *plugin.Descriptor) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"plugin": d.Name,
		"uptime": time.Since(m.started).String(),
	})
}

func (m *statusModule) HasView() bool { return false }
