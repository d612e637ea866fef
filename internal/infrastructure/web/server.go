package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/core/ports"
	"github.com/nexuscore/nexuscore/internal/plugins"
)

// Server exposes plugin routes through the dispatcher plus an admin JSON
// API over the registry, loader, lifecycle manager, and health monitor.
type Server struct {
	registry   *plugins.Registry
	loader     *plugins.Loader
	manager    *plugins.Manager
	monitor    *plugins.HealthMonitor
	dispatcher *Dispatcher
	adminToken string
	logger     *log.Logger
	httpServer *http.Server
}

// NewServer wires the HTTP surface. adminToken guards the /admin endpoints;
// an empty token disables them entirely.
func NewServer(addr string, registry *plugins.Registry, loader *plugins.Loader, manager *plugins.Manager, monitor *plugins.HealthMonitor, dispatcher *Dispatcher, adminToken string, logger *log.Logger) *Server {
	s := &Server{
		registry:   registry,
		loader:     loader,
		manager:    manager,
		monitor:    monitor,
		dispatcher: dispatcher,
		adminToken: adminToken,
		logger:     logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /admin/plugins", s.requireAdmin(s.handleListPlugins))
	mux.HandleFunc("POST /admin/plugins", s.requireAdmin(s.handleInstall))
	mux.HandleFunc("PATCH /admin/plugins/{name}", s.requireAdmin(s.handleUpdate))
	mux.HandleFunc("DELETE /admin/plugins/{name}", s.requireAdmin(s.handleUninstall))
	mux.HandleFunc("GET /admin/health", s.requireAdmin(s.handleHealth))
	mux.HandleFunc("POST /admin/reload", s.requireAdmin(s.handleReload))
	mux.HandleFunc("POST /admin/backup", s.requireAdmin(s.handleBackup))

	mux.Handle("/", s.dispatcher)
	return mux
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("[Server] listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}

// requireAdmin enforces the bearer token and marks the request context as
// authorized for lifecycle operations.
func (s *Server) requireAdmin(next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			http.Error(w, "admin API disabled", http.StatusForbidden)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(ports.WithManagement(r.Context())))
	}
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	var list []*plugin.Descriptor
	switch {
	case r.URL.Query().Get("q") != "":
		list = s.registry.Search(r.URL.Query().Get("q"))
	case r.URL.Query().Get("category") != "":
		list = s.registry.ByCategory(plugin.Category(r.URL.Query().Get("category")))
	case r.URL.Query().Get("featured") == "true":
		list = s.registry.Featured()
	default:
		list = s.registry.All()
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(list), "plugins": list})
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Descriptor *plugin.Descriptor `json:"descriptor"`
		Payload    []byte             `json:"payload,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	result := s.manager.Install(r.Context(), body.Payload, body.Descriptor)
	writeResult(w, result)
	if result.Success {
		// Bring the new plugin online without a restart.
		if _, err := s.loader.LoadAll(r.Context()); err != nil {
			s.logger.Printf("[Server] post-install reload failed: %v", err)
		}
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch plugin.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	writeResult(w, s.manager.Update(r.Context(), r.PathValue("name"), patch))
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	purge := r.URL.Query().Get("purge") == "true"
	writeResult(w, s.manager.Uninstall(r.Context(), r.PathValue("name"), purge))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Check())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	report, err := s.loader.LoadAll(r.Context())
	if errors.Is(err, plugins.ErrLoadInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.manager.Backup(r.Context()))
}

func writeResult(w http.ResponseWriter, result plugins.Result) {
	status := http.StatusOK
	switch result.Code {
	case plugins.CodeInvalidConfig:
		status = http.StatusBadRequest
	case plugins.CodeConflict:
		status = http.StatusConflict
	case plugins.CodeNotFound:
		status = http.StatusNotFound
	case plugins.CodeUnauthorized:
		status = http.StatusForbidden
	case plugins.CodeIOFailure:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
