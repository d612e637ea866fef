package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/core/event"
	"github.com/nexuscore/nexuscore/internal/core/ports"
)

// ResultCode distinguishes lifecycle failure kinds so callers can render
// the right message without inspecting internals.
type ResultCode string

const (
	CodeOK            ResultCode = "OK"
	CodeInvalidConfig ResultCode = "INVALID_CONFIG"
	CodeConflict      ResultCode = "CONFLICT"
	CodeNotFound      ResultCode = "NOT_FOUND"
	CodeUnauthorized  ResultCode = "UNAUTHORIZED"
	CodeIOFailure     ResultCode = "IO_FAILURE"
)

// Result is the structured outcome of a lifecycle operation. Lifecycle
// errors never propagate past the manager's boundary.
type Result struct {
	Success    bool               `json:"success"`
	Code       ResultCode         `json:"code"`
	Message    string             `json:"message,omitempty"`
	Descriptor *plugin.Descriptor `json:"descriptor,omitempty"`
	Path       string             `json:"path,omitempty"`
	Count      int                `json:"count,omitempty"`
}

func failure(code ResultCode, format string, args ...any) Result {
	return Result{Success: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Manager performs install, update, uninstall, and backup operations
// against the record store and registry together.
type Manager struct {
	registry    *Registry
	store       ports.RecordStore
	binder      ports.RouteBinder
	auth        ports.Authorizer
	bus         *event.Bus
	pluginsRoot string
	uploadsRoot string
	logger      *log.Logger

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// NewManager creates a lifecycle manager. pluginsRoot receives installed
// descriptor directories; uploadsRoot holds the temp and backup areas.
func NewManager(registry *Registry, store ports.RecordStore, binder ports.RouteBinder, auth ports.Authorizer, bus *event.Bus, pluginsRoot, uploadsRoot string, logger *log.Logger) *Manager {
	return &Manager{
		registry:    registry,
		store:       store,
		binder:      binder,
		auth:        auth,
		bus:         bus,
		pluginsRoot: pluginsRoot,
		uploadsRoot: uploadsRoot,
		logger:      logger,
		names:       make(map[string]*sync.Mutex),
	}
}

// TempDir returns the uploads temp area, created on demand.
func (m *Manager) TempDir() string { return filepath.Join(m.uploadsRoot, "temp") }

// BackupDir returns the uploads backup area, created on demand.
func (m *Manager) BackupDir() string { return filepath.Join(m.uploadsRoot, "backup") }

// lockName serializes lifecycle operations per plugin name so concurrent
// installs of the same name cannot race past the conflict check.
func (m *Manager) lockName(name string) func() {
	m.mu.Lock()
	nameMu, ok := m.names[name]
	if !ok {
		nameMu = &sync.Mutex{}
		m.names[name] = nameMu
	}
	m.mu.Unlock()
	nameMu.Lock()
	return nameMu.Unlock
}

// Install validates and persists a new plugin. The registry itself is only
// refreshed by a subsequent load pass; nothing is registered when
// persistence fails.
func (m *Manager) Install(ctx context.Context, payload []byte, d *plugin.Descriptor) Result {
	if !m.auth.CanManagePlugins(ctx) {
		return failure(CodeUnauthorized, "caller is not permitted to install plugins")
	}
	if d == nil {
		return failure(CodeInvalidConfig, "descriptor is required")
	}

	unlock := m.lockName(d.Name)
	defer unlock()

	if result := ValidateDescriptor(d); !result.OK {
		return failure(CodeInvalidConfig, "invalid plugin configuration: %v", result.Reasons)
	}

	for _, existing := range m.registry.All() {
		if !existing.Active {
			continue
		}
		if existing.Name == d.Name {
			return failure(CodeConflict, "plugin name %q conflicts with installed plugin %s", d.Name, existing.Key())
		}
		if existing.Route == d.Route {
			return failure(CodeConflict, "route %q conflicts with installed plugin %s", d.Route, existing.Key())
		}
	}

	installed := d.Clone()
	installed.Active = true
	installed.InstalledAt = time.Now()
	installed.LastUpdated = installed.InstalledAt

	pluginDir := filepath.Join(m.pluginsRoot, installed.Slug())
	if err := m.writeDescriptor(pluginDir, installed); err != nil {
		return failure(CodeIOFailure, "persist plugin files: %v", err)
	}

	if len(payload) > 0 {
		artifact := filepath.Join(m.TempDir(), fmt.Sprintf("%s-%d.bin", installed.Slug(), time.Now().UnixNano()))
		if err := os.MkdirAll(m.TempDir(), 0o755); err != nil {
			return failure(CodeIOFailure, "create uploads area: %v", err)
		}
		if err := os.WriteFile(artifact, payload, 0o644); err != nil {
			return failure(CodeIOFailure, "store uploaded artifact: %v", err)
		}
	}

	if err := m.store.Upsert(ctx, installed); err != nil {
		return failure(CodeIOFailure, "persist plugin record: %v", err)
	}

	m.bus.Publish(event.New(event.TypePluginInstalled, installed.Key(), installed.Clone()))
	m.logger.Printf("[PluginManager] installed plugin %s", installed.Key())
	return Result{Success: true, Code: CodeOK, Descriptor: installed, Path: pluginDir}
}

// Uninstall deactivates a plugin: the persisted record is flagged inactive
// and the entry leaves the registry and cache, making its route unreachable
// on the next request. With purge the plugin directory is removed as well.
func (m *Manager) Uninstall(ctx context.Context, name string, purge bool) Result {
	if !m.auth.CanManagePlugins(ctx) {
		return failure(CodeUnauthorized, "caller is not permitted to uninstall plugins")
	}

	unlock := m.lockName(name)
	defer unlock()

	entry := m.registry.ByName(name)
	if entry == nil {
		return failure(CodeNotFound, "plugin %q is not installed", name)
	}

	inactive := false
	if _, err := m.store.UpdateWhere(ctx, name, plugin.Patch{Active: &inactive}); err != nil {
		return failure(CodeIOFailure, "deactivate plugin record: %v", err)
	}

	m.registry.Remove(entry.Key())
	if m.binder != nil {
		m.binder.Unbind(entry.Key())
	}

	if purge {
		pluginDir := filepath.Join(m.pluginsRoot, entry.Slug())
		if err := os.RemoveAll(pluginDir); err != nil {
			m.logger.Printf("[PluginManager] purge of %s failed: %v", pluginDir, err)
		}
		if err := m.store.DeleteWhere(ctx, name); err != nil {
			m.logger.Printf("[PluginManager] delete record for %s failed: %v", name, err)
		}
	}

	m.bus.Publish(event.New(event.TypePluginUninstalled, entry.Key(), entry))
	m.logger.Printf("[PluginManager] uninstalled plugin %s", entry.Key())
	return Result{Success: true, Code: CodeOK, Descriptor: entry}
}

// Update applies a partial update to the persisted record and refreshes the
// in-memory entry for the key.
func (m *Manager) Update(ctx context.Context, name string, patch plugin.Patch) Result {
	if !m.auth.CanManagePlugins(ctx) {
		return failure(CodeUnauthorized, "caller is not permitted to update plugins")
	}

	unlock := m.lockName(name)
	defer unlock()

	rows, err := m.store.UpdateWhere(ctx, name, patch)
	if err != nil {
		return failure(CodeIOFailure, "update plugin record: %v", err)
	}
	if rows == 0 {
		return failure(CodeNotFound, "plugin %q is not installed", name)
	}

	updated, err := m.store.FindOne(ctx, name)
	if err == nil && updated != nil {
		if entry := m.registry.ByName(name); entry != nil {
			// The version is part of the identity key and is immutable
			// through Update, so the key is stable here.
			m.registry.Replace(updated)
		}
		if dir := filepath.Join(m.pluginsRoot, updated.Slug()); dirExists(dir) {
			if werr := m.writeDescriptor(dir, updated); werr != nil {
				m.logger.Printf("[PluginManager] refresh descriptor file for %s failed: %v", name, werr)
			}
		}
	}

	m.bus.Publish(event.New(event.TypePluginUpdated, name, updated))
	m.logger.Printf("[PluginManager] updated plugin %q", name)
	return Result{Success: true, Code: CodeOK, Descriptor: updated}
}

// Backup serializes the full registry snapshot to a timestamped artifact in
// the backup area. Failures are reported in the result, never fatal.
func (m *Manager) Backup(ctx context.Context) Result {
	if !m.auth.CanManagePlugins(ctx) {
		return failure(CodeUnauthorized, "caller is not permitted to back up plugins")
	}

	snapshot := m.registry.All()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return failure(CodeIOFailure, "serialize registry snapshot: %v", err)
	}

	if err := os.MkdirAll(m.BackupDir(), 0o755); err != nil {
		return failure(CodeIOFailure, "create backup area: %v", err)
	}
	path := filepath.Join(m.BackupDir(), fmt.Sprintf("registry-%s.json", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return failure(CodeIOFailure, "write backup artifact: %v", err)
	}

	m.logger.Printf("[PluginManager] backed up %d plugins to %s", len(snapshot), path)
	return Result{Success: true, Code: CodeOK, Count: len(snapshot), Path: path}
}

func (m *Manager) writeDescriptor(dir string, d *plugin.Descriptor) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plugin directory: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	tmp := filepath.Join(dir, DescriptorFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, DescriptorFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
