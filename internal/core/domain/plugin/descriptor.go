package plugin

import (
	"strings"
	"time"
)

// Category classifies a plugin in discovery listings.
type Category string

const (
	CategoryAnalytics     Category = "analytics"
	CategoryContent       Category = "content"
	CategoryCommerce      Category = "commerce"
	CategoryCommunication Category = "communication"
	CategoryIntegration   Category = "integration"
	CategorySecurity      Category = "security"
	CategoryUtility       Category = "utility"
)

// Categories returns the fixed set of valid plugin categories.
func Categories() []Category {
	return []Category{
		CategoryAnalytics,
		CategoryContent,
		CategoryCommerce,
		CategoryCommunication,
		CategoryIntegration,
		CategorySecurity,
		CategoryUtility,
	}
}

// IsValid reports whether the category is one of the fixed set.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// State tracks where a descriptor is in its lifecycle.
type State string

const (
	StateDiscovered  State = "discovered"
	StateValidated   State = "validated"
	StateRegistered  State = "registered"
	StateDeactivated State = "deactivated"
	StateRemoved     State = "removed"
)

// Descriptor is the authoritative unit of extensibility: the metadata
// describing one plugin, as persisted in the record store and as declared
// by a plugin.json file on disk.
type Descriptor struct {
	Name         string         `json:"name" yaml:"name"`
	Version      string         `json:"version" yaml:"version"`
	Description  string         `json:"description" yaml:"description"`
	Route        string         `json:"route" yaml:"route"`
	Category     Category       `json:"category" yaml:"category"`
	Active       bool           `json:"active" yaml:"active"`
	Featured     bool           `json:"featured,omitempty" yaml:"featured,omitempty"`
	Tags         []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Config       map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Settings     map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	HasView      bool           `json:"has_view,omitempty" yaml:"has_view,omitempty"`
	InstalledAt  time.Time      `json:"installed_at,omitempty" yaml:"installed_at,omitempty"`
	LastUpdated  time.Time      `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

// Key returns the identity key "name@version" used for registry uniqueness.
func (d *Descriptor) Key() string {
	return d.Name + "@" + d.Version
}

// Slug returns a filesystem-safe directory name derived from the plugin name.
func (d *Descriptor) Slug() string {
	return Slugify(d.Name)
}

// Clone returns a deep copy of the descriptor. Registry query results hand
// out clones so callers cannot mutate registry state behind the lock.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Tags = append([]string(nil), d.Tags...)
	out.Dependencies = append([]string(nil), d.Dependencies...)
	out.Config = cloneMap(d.Config)
	out.Settings = cloneMap(d.Settings)
	out.Metadata = cloneMap(d.Metadata)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Patch carries a partial update to a persisted descriptor. Nil fields are
// left untouched by Apply.
type Patch struct {
	Description *string        `json:"description,omitempty"`
	Route       *string        `json:"route,omitempty"`
	Category    *Category      `json:"category,omitempty"`
	Active      *bool          `json:"active,omitempty"`
	Featured    *bool          `json:"featured,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Apply merges the patch into the descriptor and refreshes LastUpdated.
func (d *Descriptor) Apply(p Patch) {
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Route != nil {
		d.Route = *p.Route
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Active != nil {
		d.Active = *p.Active
	}
	if p.Featured != nil {
		d.Featured = *p.Featured
	}
	if p.Tags != nil {
		d.Tags = append([]string(nil), p.Tags...)
	}
	for k, v := range p.Config {
		if d.Config == nil {
			d.Config = make(map[string]any)
		}
		d.Config[k] = v
	}
	for k, v := range p.Settings {
		if d.Settings == nil {
			d.Settings = make(map[string]any)
		}
		d.Settings[k] = v
	}
	for k, v := range p.Metadata {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any)
		}
		d.Metadata[k] = v
	}
	d.LastUpdated = time.Now()
}

// Slugify converts a plugin name into a filesystem-safe slug: lowercase
// alphanumerics with single hyphens between words.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
