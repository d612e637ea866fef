// Package store provides the persisted plugin catalog backing the loader
// and lifecycle manager. Records live in a single JSON file written
// atomically, so one record write is one atomic file replace.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
)

const registryFileName = "plugin-records.json"

// FileStore implements ports.RecordStore over a JSON file in a data
// directory. All operations serialize behind one mutex; the file is
// replaced atomically via rename.
type FileStore struct {
	mu       sync.Mutex
	dataDir  string
	filePath string
}

// NewFileStore creates a store rooted at dataDir. The directory is created
// on first write.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, registryFileName),
	}
}

// fileData is the persisted catalog format.
type fileData struct {
	Version     string                        `json:"version"`
	LastUpdated time.Time                     `json:"last_updated"`
	Plugins     map[string]*plugin.Descriptor `json:"plugins"`
}

// FindActive returns all records flagged active, ordered by (category, name).
func (s *FileStore) FindActive(ctx context.Context) ([]*plugin.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	var active []*plugin.Descriptor
	for _, d := range records {
		if d.Active {
			active = append(active, d.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Category != active[j].Category {
			return active[i].Category < active[j].Category
		}
		return active[i].Name < active[j].Name
	})
	return active, nil
}

// FindOne returns the record with the given name, or nil if absent.
func (s *FileStore) FindOne(ctx context.Context, name string) (*plugin.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	if d, ok := records[name]; ok {
		return d.Clone(), nil
	}
	return nil, nil
}

// Upsert inserts or replaces the record keyed by descriptor name.
func (s *FileStore) Upsert(ctx context.Context, d *plugin.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records[d.Name] = d.Clone()
	return s.save(records)
}

// UpdateWhere merges the patch into the named record. Returns the number of
// rows affected: 0 when the name is unknown, 1 otherwise.
func (s *FileStore) UpdateWhere(ctx context.Context, name string, patch plugin.Patch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}
	d, ok := records[name]
	if !ok {
		return 0, nil
	}
	d.Apply(patch)
	if err := s.save(records); err != nil {
		return 0, err
	}
	return 1, nil
}

// DeleteWhere removes the named record. Unknown names are a no-op.
func (s *FileStore) DeleteWhere(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[name]; !ok {
		return nil
	}
	delete(records, name)
	return s.save(records)
}

func (s *FileStore) load() (map[string]*plugin.Descriptor, error) {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return make(map[string]*plugin.Descriptor), nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("read plugin records: %w", err)
	}

	var catalog fileData
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse plugin records: %w", err)
	}
	if catalog.Plugins == nil {
		catalog.Plugins = make(map[string]*plugin.Descriptor)
	}
	return catalog.Plugins, nil
}

func (s *FileStore) save(records map[string]*plugin.Descriptor) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	catalog := fileData{
		Version:     "1.0",
		LastUpdated: time.Now(),
		Plugins:     records,
	}
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plugin records: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write plugin records: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save plugin records: %w", err)
	}
	return nil
}
