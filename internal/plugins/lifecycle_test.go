package plugins_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
	"github.com/nexuscore/nexuscore/internal/core/event"
	"github.com/nexuscore/nexuscore/internal/core/ports"
	"github.com/nexuscore/nexuscore/internal/infrastructure/store"
	"github.com/nexuscore/nexuscore/internal/plugins"
)

type managerFixture struct {
	pluginsRoot string
	uploadsRoot string
	registry    *plugins.Registry
	store       *store.FileStore
	binder      *recordingBinder
	bus         *event.Bus
	manager     *plugins.Manager
	loader      *plugins.Loader
}

func newManagerFixture(t *testing.T, auth ports.Authorizer) *managerFixture {
	t.Helper()
	f := &managerFixture{
		pluginsRoot: t.TempDir(),
		uploadsRoot: t.TempDir(),
		registry:    plugins.NewRegistry(),
		store:       store.NewFileStore(t.TempDir()),
		binder:      newRecordingBinder(),
		bus:         event.NewBus(0),
	}
	f.manager = plugins.NewManager(f.registry, f.store, f.binder, auth, f.bus, f.pluginsRoot, f.uploadsRoot, testLogger())
	f.loader = plugins.NewLoader(f.registry, f.store, f.binder, plugins.NewModuleTable(), f.bus, f.pluginsRoot, testLogger(), false)
	return f
}

func localCtx() context.Context {
	return context.Background()
}

func descriptor(name, version, route string) *plugin.Descriptor {
	return &plugin.Descriptor{
		Name:        name,
		Version:     version,
		Description: name + " plugin",
		Route:       route,
		Category:    plugin.CategoryUtility,
	}
}

func TestInstall_Success(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	result := f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders"))
	require.True(t, result.Success)
	assert.Equal(t, plugins.CodeOK, result.Code)
	require.NotNil(t, result.Descriptor)
	assert.True(t, result.Descriptor.Active)
	assert.False(t, result.Descriptor.InstalledAt.IsZero())

	// The descriptor file lands under the slugged directory.
	data, err := os.ReadFile(filepath.Join(f.pluginsRoot, "orders", plugins.DescriptorFile))
	require.NoError(t, err)
	var onDisk plugin.Descriptor
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "Orders", onDisk.Name)

	// Persisted but not yet in the registry until the next load pass.
	rec, err := f.store.FindOne(localCtx(), "Orders")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Active)
	assert.False(t, f.registry.Has("Orders@1.0.0"))
}

func TestInstall_ThenLoadAllRoundTrip(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	result := f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders"))
	require.True(t, result.Success)

	_, err := f.loader.LoadAll(localCtx())
	require.NoError(t, err)

	got, ok := f.registry.Get("Orders@1.0.0")
	require.True(t, ok)
	assert.True(t, got.Active)
	assert.Equal(t, "/orders", got.Route)
}

func TestInstall_StoresUploadedArtifact(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	result := f.manager.Install(localCtx(), []byte("artifact bytes"), descriptor("Orders", "1.0.0", "/orders"))
	require.True(t, result.Success)

	entries, err := os.ReadDir(f.manager.TempDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "orders")
}

func TestInstall_InvalidDescriptor(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	bad := descriptor("Orders", "not-a-version", "/orders")
	result := f.manager.Install(localCtx(), nil, bad)
	assert.False(t, result.Success)
	assert.Equal(t, plugins.CodeInvalidConfig, result.Code)

	result = f.manager.Install(localCtx(), nil, nil)
	assert.False(t, result.Success)
	assert.Equal(t, plugins.CodeInvalidConfig, result.Code)
}

func TestInstall_NameConflict(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	existing := descriptor("Orders", "1.0.0", "/orders")
	existing.Active = true
	f.registry.Insert(existing)

	result := f.manager.Install(localCtx(), nil, descriptor("Orders", "2.0.0", "/orders-v2"))
	assert.False(t, result.Success)
	assert.Equal(t, plugins.CodeConflict, result.Code)
	assert.Contains(t, result.Message, "Orders")
}

func TestInstall_RouteConflictLeavesStateUntouched(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	existing := descriptor("Orders", "1.0.0", "/orders")
	existing.Active = true
	f.registry.Insert(existing)

	result := f.manager.Install(localCtx(), nil, descriptor("Shipping", "1.0.0", "/orders"))
	assert.False(t, result.Success)
	assert.Equal(t, plugins.CodeConflict, result.Code)

	// Nothing was written or persisted for the rejected plugin.
	assert.Equal(t, 1, f.registry.Len())
	rec, err := f.store.FindOne(localCtx(), "Shipping")
	require.NoError(t, err)
	assert.Nil(t, rec)
	_, statErr := os.Stat(filepath.Join(f.pluginsRoot, "shipping"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInstall_InactiveEntryDoesNotConflict(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	existing := descriptor("Orders", "1.0.0", "/orders")
	existing.Active = false
	f.registry.Insert(existing)

	result := f.manager.Install(localCtx(), nil, descriptor("Shipping", "1.0.0", "/orders"))
	assert.True(t, result.Success)
}

func TestUninstall_DeactivatesAndUnbinds(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	require.True(t, f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders")).Success)
	_, err := f.loader.LoadAll(localCtx())
	require.NoError(t, err)
	require.True(t, f.registry.Has("Orders@1.0.0"))

	result := f.manager.Uninstall(localCtx(), "Orders", false)
	require.True(t, result.Success)

	assert.False(t, f.registry.Has("Orders@1.0.0"))
	assert.Contains(t, f.binder.unbound, "Orders@1.0.0")

	rec, err := f.store.FindOne(localCtx(), "Orders")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Active)

	// Without purge the plugin directory stays on disk.
	_, statErr := os.Stat(filepath.Join(f.pluginsRoot, "orders"))
	assert.NoError(t, statErr)
}

func TestUninstall_PurgeRemovesDirectoryAndRecord(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	require.True(t, f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders")).Success)
	_, err := f.loader.LoadAll(localCtx())
	require.NoError(t, err)

	result := f.manager.Uninstall(localCtx(), "Orders", true)
	require.True(t, result.Success)

	_, statErr := os.Stat(filepath.Join(f.pluginsRoot, "orders"))
	assert.True(t, os.IsNotExist(statErr))

	rec, err := f.store.FindOne(localCtx(), "Orders")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUninstall_UnknownName(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	result := f.manager.Uninstall(localCtx(), "ghost", false)
	assert.False(t, result.Success)
	assert.Equal(t, plugins.CodeNotFound, result.Code)
}

func TestUpdate_MergesPatch(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	require.True(t, f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders")).Success)
	_, err := f.loader.LoadAll(localCtx())
	require.NoError(t, err)

	newDescription := "order processing"
	featured := true
	result := f.manager.Update(localCtx(), "Orders", plugin.Patch{
		Description: &newDescription,
		Featured:    &featured,
	})
	require.True(t, result.Success)
	require.NotNil(t, result.Descriptor)
	assert.Equal(t, "order processing", result.Descriptor.Description)
	assert.True(t, result.Descriptor.Featured)
	assert.False(t, result.Descriptor.LastUpdated.IsZero())

	// The in-memory entry and descriptor file follow the record.
	got, _ := f.registry.Get("Orders@1.0.0")
	assert.Equal(t, "order processing", got.Description)

	data, err := os.ReadFile(filepath.Join(f.pluginsRoot, "orders", plugins.DescriptorFile))
	require.NoError(t, err)
	var onDisk plugin.Descriptor
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "order processing", onDisk.Description)
}

func TestUpdate_UnknownName(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	result := f.manager.Update(localCtx(), "ghost", plugin.Patch{})
	assert.False(t, result.Success)
	assert.Equal(t, plugins.CodeNotFound, result.Code)
}

func TestBackup_WritesSnapshot(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	require.True(t, f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders")).Success)
	require.True(t, f.manager.Install(localCtx(), nil, descriptor("Shipping", "1.0.0", "/shipping")).Success)
	_, err := f.loader.LoadAll(localCtx())
	require.NoError(t, err)

	result := f.manager.Backup(localCtx())
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Count)
	require.NotEmpty(t, result.Path)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	var snapshot []*plugin.Descriptor
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Len(t, snapshot, 2)
}

func TestBackup_EmptyRegistry(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})

	result := f.manager.Backup(localCtx())
	require.True(t, result.Success)
	assert.Equal(t, 0, result.Count)
}

func TestLifecycle_Unauthorized(t *testing.T) {
	f := newManagerFixture(t, ports.ContextAuthorizer{})
	ctx := context.Background() // no management mark

	for name, result := range map[string]plugins.Result{
		"install":   f.manager.Install(ctx, nil, descriptor("Orders", "1.0.0", "/orders")),
		"uninstall": f.manager.Uninstall(ctx, "Orders", false),
		"update":    f.manager.Update(ctx, "Orders", plugin.Patch{}),
		"backup":    f.manager.Backup(ctx),
	} {
		assert.False(t, result.Success, name)
		assert.Equal(t, plugins.CodeUnauthorized, result.Code, name)
	}
}

func TestLifecycle_ManagementContextAuthorized(t *testing.T) {
	f := newManagerFixture(t, ports.ContextAuthorizer{})
	ctx := ports.WithManagement(context.Background())

	result := f.manager.Install(ctx, nil, descriptor("Orders", "1.0.0", "/orders"))
	assert.True(t, result.Success)
}

func TestLifecycle_EmitsEvents(t *testing.T) {
	f := newManagerFixture(t, ports.AllowAll{})
	events, cancel := f.bus.Subscribe()
	defer cancel()

	require.True(t, f.manager.Install(localCtx(), nil, descriptor("Orders", "1.0.0", "/orders")).Success)
	_, err := f.loader.LoadAll(localCtx())
	require.NoError(t, err)
	require.True(t, f.manager.Uninstall(localCtx(), "Orders", false).Success)

	var types []event.Type
	for {
		select {
		case e := <-events:
			types = append(types, e.Type)
		default:
			assert.Contains(t, types, event.TypePluginInstalled)
			assert.Contains(t, types, event.TypePluginUninstalled)
			return
		}
	}
}
