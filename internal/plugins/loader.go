package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/core/event"
	"github.com/nexuscore/nexuscore/internal/core/ports"
)

const (
	// DescriptorFile is the required per-directory descriptor file name.
	DescriptorFile = "plugin.json"

	// ViewFile marks a plugin as contributing a view template by its
	// mere presence in the plugin directory.
	ViewFile = "view.html"
)

// reservedDirNames are plugin-root subdirectories that are never treated as
// plugin candidates.
var reservedDirNames = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"testdata":     {},
	"uploads":      {},
	"backups":      {},
}

// ErrLoadInProgress is returned when LoadAll is called while another load
// pass is still running. The clear-then-repopulate sequence is not atomic,
// so concurrent passes are rejected rather than interleaved.
var ErrLoadInProgress = errors.New("plugin load already in progress")

// LoadReport aggregates the outcome of one full load pass.
type LoadReport struct {
	Total     int           `json:"total"`
	Active    int           `json:"active"`
	Errors    int           `json:"errors"`
	Warnings  []string      `json:"warnings,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Loader orchestrates the two discovery passes: persisted records first,
// then the filesystem plugins root. The persisted source always wins when
// both carry the same identity key.
type Loader struct {
	registry *Registry
	store    ports.RecordStore
	binder   ports.RouteBinder
	modules  *ModuleTable
	bus      *event.Bus
	root     string
	logger   *log.Logger
	debug    bool
	loading  atomic.Bool
}

// NewLoader creates a loader over the given collaborators. root is the
// plugins directory scanned by the filesystem pass.
func NewLoader(registry *Registry, store ports.RecordStore, binder ports.RouteBinder, modules *ModuleTable, bus *event.Bus, root string, logger *log.Logger, debug bool) *Loader {
	return &Loader{
		registry: registry,
		store:    store,
		binder:   binder,
		modules:  modules,
		bus:      bus,
		root:     root,
		logger:   logger,
		debug:    debug,
	}
}

// LoadAll performs a full reload: the registry is cleared and repopulated
// from the persisted source and the filesystem. Per-directory failures are
// isolated and counted; a pass-wide failure (such as a storage outage)
// returns an error and leaves the registry in the partial state it reached.
func (l *Loader) LoadAll(ctx context.Context) (LoadReport, error) {
	if !l.loading.CompareAndSwap(false, true) {
		return LoadReport{}, ErrLoadInProgress
	}
	defer l.loading.Store(false)

	start := time.Now()
	report := LoadReport{StartedAt: start}

	l.registry.Reset()
	if l.binder != nil {
		l.binder.Reset()
	}

	passErr := l.runPass(ctx, &report)

	report.Total = l.registry.Len()
	report.Active = l.countActive()
	report.Duration = time.Since(start)

	if passErr != nil {
		report.Errors++
		l.logger.Printf("[PluginLoader] load pass failed: %v", passErr)
		l.bus.Publish(event.New(event.TypePluginsError, "", passErr.Error()))
		return report, passErr
	}

	l.debugf("loaded %d plugins (%d active, %d errors) in %s",
		report.Total, report.Active, report.Errors, report.Duration)
	l.bus.Publish(event.New(event.TypePluginsLoaded, "", report))
	return report, nil
}

// runPass runs both discovery sources. Anything that escapes the inner
// isolation, including a panic from module code, is converted into a
// pass-wide error.
func (l *Loader) runPass(ctx context.Context, report *LoadReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin load pass panicked: %v", r)
		}
	}()

	if err := l.loadPersisted(ctx); err != nil {
		return err
	}
	l.loadFilesystem(ctx, report)
	return nil
}

// loadPersisted registers all active records from the store. A store
// failure here is a pass-wide failure.
func (l *Loader) loadPersisted(ctx context.Context) error {
	records, err := l.store.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("fetch active plugin records: %w", err)
	}
	for _, d := range records {
		if l.registry.Has(d.Key()) {
			continue
		}
		l.attachModule(d)
		l.registry.Insert(d)
		l.registry.EnsureCacheEntry(d.Key())
		l.debugf("registered persisted plugin %s", d.Key())
	}
	return nil
}

// loadFilesystem scans the plugins root. Each directory is processed in
// isolation: a bad directory is logged, counted, and skipped.
func (l *Loader) loadFilesystem(ctx context.Context, report *LoadReport) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			l.debugf("plugins root %s does not exist, skipping filesystem scan", l.root)
			return
		}
		report.Errors++
		report.Warnings = append(report.Warnings, fmt.Sprintf("read plugins root: %v", err))
		l.logger.Printf("[PluginLoader] cannot read plugins root %s: %v", l.root, err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() || skipDirName(entry.Name()) {
			continue
		}
		dir := filepath.Join(l.root, entry.Name())
		if err := l.loadDirectory(ctx, dir, report); err != nil {
			report.Errors++
			warning := fmt.Sprintf("%s: %v", entry.Name(), err)
			report.Warnings = append(report.Warnings, warning)
			l.logger.Printf("[PluginLoader] skipping plugin directory %s", warning)
		}
	}
}

// loadDirectory loads one candidate plugin directory.
func (l *Loader) loadDirectory(ctx context.Context, dir string, report *LoadReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
	}()

	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return fmt.Errorf("read %s: %w", DescriptorFile, err)
	}

	var d plugin.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("parse %s: %w", DescriptorFile, err)
	}

	if result := ValidateDescriptor(&d); !result.OK {
		return fmt.Errorf("invalid descriptor: %s", strings.Join(result.Reasons, "; "))
	}

	// The persisted source was processed first and wins on key collision.
	if l.registry.Has(d.Key()) {
		l.debugf("plugin %s already registered from persisted source, skipping %s", d.Key(), dir)
		return nil
	}

	// A persisted record with active=false marks a deactivated plugin whose
	// directory is still on disk. The filesystem pass must not resurrect it.
	if rec, findErr := l.store.FindOne(ctx, d.Name); findErr == nil && rec != nil && !rec.Active {
		l.debugf("plugin %s is deactivated, skipping %s", d.Name, dir)
		return nil
	}

	d.Active = true
	l.attachModule(&d)

	if _, statErr := os.Stat(filepath.Join(dir, ViewFile)); statErr == nil {
		d.HasView = true
	}

	l.checkDependencies(&d, report)

	if d.InstalledAt.IsZero() {
		d.InstalledAt = time.Now()
	}
	if err := l.store.Upsert(ctx, &d); err != nil {
		return fmt.Errorf("persist descriptor: %w", err)
	}

	l.registry.Insert(&d)
	l.registry.EnsureCacheEntry(d.Key())
	l.bus.Publish(event.New(event.TypePluginLoaded, d.Key(), d.Clone()))
	l.debugf("loaded plugin %s from %s", d.Key(), dir)
	return nil
}

// attachModule looks the plugin name up in the module table and lets the
// implementation bind its routes. Plugins without a compiled-in module get
// a metadata-only registration served by the dispatcher's default handler.
func (l *Loader) attachModule(d *plugin.Descriptor) {
	mod, ok := l.modules.New(d.Name)
	if !ok {
		return
	}
	if l.binder != nil {
		if err := mod.RegisterRoutes(l.binder, d); err != nil {
			l.logger.Printf("[PluginLoader] plugin %s: route registration failed: %v", d.Name, err)
		}
	}
	if mod.HasView() {
		d.HasView = true
	}
}

// checkDependencies performs the soft dependency check: missing
// dependencies produce warnings but never block loading.
func (l *Loader) checkDependencies(d *plugin.Descriptor, report *LoadReport) {
	for _, dep := range d.Dependencies {
		if l.modules.Has(dep) || l.registry.ByName(dep) != nil {
			continue
		}
		warning := fmt.Sprintf("plugin %s: dependency %q is not resolvable", d.Name, dep)
		report.Warnings = append(report.Warnings, warning)
		l.logger.Printf("[PluginLoader] %s", warning)
	}
}

func (l *Loader) countActive() int {
	active := 0
	for _, d := range l.registry.All() {
		if d.Active {
			active++
		}
	}
	return active
}

func (l *Loader) debugf(format string, args ...any) {
	if l.debug {
		l.logger.Printf("[PluginLoader] "+format, args...)
	}
}

func skipDirName(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return true
	}
	_, reserved := reservedDirNames[name]
	return reserved
}
