// Package ports declares the interfaces between the plugin core and its
// collaborators: the persisted record store, the web layer's route binding,
// the authorization predicate, and the statically-registered plugin modules.
package ports

import (
	"context"
	"net/http"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
)

// RecordStore is the persisted catalog of plugin metadata. Implementations
// must treat a single record write as atomic; that atomicity is the real
// conflict guard for concurrent installs of the same name.
type RecordStore interface {
	// FindActive returns all records flagged active, ordered by
	// (category, name).
	FindActive(ctx context.Context) ([]*plugin.Descriptor, error)

	// FindOne returns the record with the given name, or nil if absent.
	FindOne(ctx context.Context, name string) (*plugin.Descriptor, error)

	// Upsert inserts or replaces the record keyed by descriptor name.
	Upsert(ctx context.Context, d *plugin.Descriptor) error

	// UpdateWhere merges the patch into the named record and returns the
	// number of rows affected (0 when the name is unknown).
	UpdateWhere(ctx context.Context, name string, patch plugin.Patch) (int, error)

	// DeleteWhere removes the named record. Deleting an unknown name is a
	// no-op.
	DeleteWhere(ctx context.Context, name string) error
}

// RouteBinder is supplied by the web layer. Bind associates a plugin's
// identity key with the handler serving its route; the dispatcher resolves
// routes against the live registry at request time, so Unbind makes a route
// unreachable without a restart.
type RouteBinder interface {
	Bind(d *plugin.Descriptor, h http.Handler) error
	Unbind(key string)
	Reset()
}

// Module is the capability interface a compiled-in plugin implements.
// Plugin behavior is a statically-registered value, never dynamically
// loaded code.
type Module interface {
	// RegisterRoutes lets the module bind handlers for its descriptor.
	RegisterRoutes(binder RouteBinder, d *plugin.Descriptor) error

	// Handle serves a request routed to this plugin.
	Handle(w http.ResponseWriter, r *http.Request, d *plugin.Descriptor)

	// HasView reports whether the module contributes a view template.
	HasView() bool
}

// Authorizer answers whether the current caller may perform plugin
// lifecycle operations. The web layer derives it from the session; the CLI
// supplies a local-operator implementation.
type Authorizer interface {
	CanManagePlugins(ctx context.Context) bool
}

// AllowAll is the local-operator Authorizer used by the CLI.
type AllowAll struct{}

// CanManagePlugins always returns true.
func (AllowAll) CanManagePlugins(context.Context) bool { return true }

type managementKey struct{}

// WithManagement marks a context as authorized for lifecycle operations.
// The web layer applies it after its token check succeeds; the CLI applies
// it directly for the local operator.
func WithManagement(ctx context.Context) context.Context {
	return context.WithValue(ctx, managementKey{}, true)
}

// ContextAuthorizer authorizes lifecycle operations based on the
// WithManagement context mark.
type ContextAuthorizer struct{}

// CanManagePlugins reports whether the context carries the management mark.
func (ContextAuthorizer) CanManagePlugins(ctx context.Context) bool {
	authorized, _ := ctx.Value(managementKey{}).(bool)
	return authorized
}
