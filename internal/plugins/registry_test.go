package plugins

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
)

func testDescriptor(name, version, route string) *plugin.Descriptor {
	return &plugin.Descriptor{
		Name:        name,
		Version:     version,
		Description: "test plugin " + name,
		Route:       route,
		Category:    plugin.CategoryUtility,
		Active:      true,
	}
}

func TestRegistry_FirstInsertWins(t *testing.T) {
	r := NewRegistry()

	first := testDescriptor("Alpha", "1.0.0", "/alpha")
	second := testDescriptor("Alpha", "1.0.0", "/other")
	second.Description = "a different descriptor with the same key"

	assert.True(t, r.Insert(first))
	assert.False(t, r.Insert(second))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("Alpha@1.0.0")
	require.True(t, ok)
	assert.Equal(t, "/alpha", got.Route)
}

func TestRegistry_DifferentVersionsAreDistinctKeys(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Insert(testDescriptor("Alpha", "1.0.0", "/alpha")))
	assert.True(t, r.Insert(testDescriptor("Alpha", "2.0.0", "/alpha-v2")))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Insert(testDescriptor("Alpha", "1.0.0", "/alpha"))

	got, ok := r.Get("Alpha@1.0.0")
	require.True(t, ok)
	got.Route = "/mutated"

	again, _ := r.Get("Alpha@1.0.0")
	assert.Equal(t, "/alpha", again.Route)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Insert(testDescriptor("Alpha", "1.0.0", "/alpha"))
	r.EnsureCacheEntry("Alpha@1.0.0")

	assert.True(t, r.Remove("Alpha@1.0.0"))
	assert.False(t, r.Has("Alpha@1.0.0"))
	_, ok := r.CacheEntry("Alpha@1.0.0")
	assert.False(t, ok)

	assert.False(t, r.Remove("Alpha@1.0.0"))
}

func TestRegistry_ByCategoryActiveOnly(t *testing.T) {
	r := NewRegistry()

	active := testDescriptor("Analytics", "1.0.0", "/analytics")
	active.Category = plugin.CategoryAnalytics
	inactive := testDescriptor("OldAnalytics", "1.0.0", "/old-analytics")
	inactive.Category = plugin.CategoryAnalytics
	inactive.Active = false
	other := testDescriptor("Shop", "1.0.0", "/shop")
	other.Category = plugin.CategoryCommerce

	r.Insert(active)
	r.Insert(inactive)
	r.Insert(other)

	got := r.ByCategory(plugin.CategoryAnalytics)
	require.Len(t, got, 1)
	assert.Equal(t, "Analytics", got[0].Name)
}

func TestRegistry_ByRouteAndByName(t *testing.T) {
	r := NewRegistry()
	r.Insert(testDescriptor("Alpha", "1.0.0", "/alpha"))

	assert.NotNil(t, r.ByRoute("/alpha"))
	assert.Nil(t, r.ByRoute("/beta"))
	assert.NotNil(t, r.ByName("Alpha"))
	assert.Nil(t, r.ByName("Beta"))
}

func TestRegistry_MatchRoute(t *testing.T) {
	r := NewRegistry()
	r.Insert(testDescriptor("Shop", "1.0.0", "/shop"))
	r.Insert(testDescriptor("Cart", "1.0.0", "/shop/cart"))

	assert.Equal(t, "Shop", r.MatchRoute("/shop").Name)
	assert.Equal(t, "Cart", r.MatchRoute("/shop/cart").Name)
	// Longest matching route wins for nested paths.
	assert.Equal(t, "Cart", r.MatchRoute("/shop/cart/items").Name)
	assert.Equal(t, "Shop", r.MatchRoute("/shop/checkout").Name)
	assert.Nil(t, r.MatchRoute("/shopping"))
	assert.Nil(t, r.MatchRoute("/other"))
}

func TestRegistry_MatchRouteIgnoresInactive(t *testing.T) {
	r := NewRegistry()
	d := testDescriptor("Alpha", "1.0.0", "/alpha")
	d.Active = false
	r.Insert(d)

	assert.Nil(t, r.MatchRoute("/alpha"))
}

func TestRegistry_Search(t *testing.T) {
	r := NewRegistry()

	alpha := testDescriptor("Alpha", "1.0.0", "/alpha")
	alpha.Tags = []string{"reporting"}
	beta := testDescriptor("Beta", "1.0.0", "/beta")
	beta.Description = "advanced reporting suite"
	gamma := testDescriptor("Gamma", "1.0.0", "/gamma")

	r.Insert(alpha)
	r.Insert(beta)
	r.Insert(gamma)

	got := r.Search("REPORT")
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, "Beta", got[1].Name)

	assert.Empty(t, r.Search(""))
	assert.Empty(t, r.Search("missing"))
}

func TestRegistry_Categories(t *testing.T) {
	r := NewRegistry()

	a := testDescriptor("A", "1.0.0", "/a")
	a.Category = plugin.CategoryUtility
	b := testDescriptor("B", "1.0.0", "/b")
	b.Category = plugin.CategoryAnalytics
	c := testDescriptor("C", "1.0.0", "/c")
	c.Category = plugin.CategoryAnalytics

	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	assert.Equal(t, []plugin.Category{plugin.CategoryAnalytics, plugin.CategoryUtility}, r.Categories())
}

func TestRegistry_FeaturedBounded(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < FeaturedLimit+3; i++ {
		d := testDescriptor(fmt.Sprintf("Plugin%02d", i), "1.0.0", fmt.Sprintf("/plugin-%02d", i))
		d.Featured = true
		r.Insert(d)
	}

	got := r.Featured()
	assert.Len(t, got, FeaturedLimit)
	// Stable name ordering means the cap keeps the same plugins each call.
	assert.Equal(t, "Plugin00", got[0].Name)
}

func TestRegistry_FeaturedExcludesInactive(t *testing.T) {
	r := NewRegistry()
	d := testDescriptor("Alpha", "1.0.0", "/alpha")
	d.Featured = true
	d.Active = false
	r.Insert(d)

	assert.Empty(t, r.Featured())
}

func TestRegistry_KeyUniquenessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()

		names := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}`), 1, 20).Draw(t, "names")
		versions := rapid.SliceOfN(rapid.StringMatching(`\d{1,2}\.\d{1,2}\.\d{1,2}`), 1, 20).Draw(t, "versions")

		seen := make(map[string]struct{})
		for i, name := range names {
			version := versions[i%len(versions)]
			d := testDescriptor(name, version, "/"+name)
			inserted := r.Insert(d)

			_, dup := seen[d.Key()]
			if inserted == dup {
				t.Fatalf("insert of %s returned %v but duplicate=%v", d.Key(), inserted, dup)
			}
			seen[d.Key()] = struct{}{}
		}

		if r.Len() != len(seen) {
			t.Fatalf("registry has %d entries, want %d", r.Len(), len(seen))
		}
	})
}
