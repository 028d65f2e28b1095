package composition

import (
	"context"
	"testing"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/domain/theme"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage/memory"
)

func fixtureThemes() themes.StaticSource {
	return themes.StaticSource{
		"base": theme.Manifest{
			Name: "Base",
			Sections: map[string]theme.SectionDef{
				"announcement-bar": {Component: "base/AnnouncementBar", Schema: &theme.Schema{
					Fields: []theme.SchemaField{
						{Key: "text", Type: "string", Default: ""},
						{Key: "colors.background", Type: "color", Default: "#1a1a2e"},
					},
				}},
				"header": {Component: "base/Header"},
				"footer": {Component: "base/Footer", Schema: &theme.Schema{
					Fields: []theme.SchemaField{
						{Key: "copyright", Type: "string", Default: "© base"},
					},
				}},
				"hero": {Component: "base/Hero", Schema: &theme.Schema{
					Fields: []theme.SchemaField{
						{Key: "heading", Type: "string", Default: "Welcome"},
					},
				}},
				"rich-text": {Component: "base/RichText"},
			},
			Blocks: map[string]theme.BlockDef{
				"text": {Component: "base/blocks/Text"},
				"button": {Component: "base/blocks/Button", Schema: &theme.Schema{
					Fields: []theme.SchemaField{
						{Key: "label", Type: "string", Default: "Shop now"},
						{Key: "style", Type: "select", Default: "primary"},
					},
				}},
			},
		},
		"commerce": theme.Manifest{
			Name: "Commerce",
			Sections: map[string]theme.SectionDef{
				"header": {Component: "commerce/MegaHeader"},
				"hero": {Component: "commerce/HeroCarousel", Schema: &theme.Schema{
					Fields: []theme.SchemaField{
						{Key: "autoplay", Type: "boolean", Default: true},
					},
				}},
				"featured-products": {Component: "commerce/ProductGrid", Schema: &theme.Schema{
					Fields: []theme.SchemaField{
						{Key: "max_items", Type: "number", Default: 8},
					},
				}},
			},
			Blocks: map[string]theme.BlockDef{
				"product-card": {Component: "commerce/blocks/ProductCard"},
			},
		},
	}
}

// fixture seeds a storefront on the commerce theme with a homepage template
// carrying the three global sections plus a hero, and a product template.
type fixture struct {
	store      *memory.Store
	sf         storefront.Storefront
	homepage   template.Template
	product    template.Template
	announceID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	sf, err := store.CreateStorefront(ctx, storefront.Storefront{
		OwnerID:   "owner-1",
		Subdomain: "acme",
		Name:      "Acme",
		ThemeCode: "commerce",
	})
	if err != nil {
		t.Fatalf("create storefront: %v", err)
	}

	homepage, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID,
		TemplateType: template.TypeHomepage,
		Name:         "Home",
		IsDefault:    true,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("create homepage: %v", err)
	}

	sections := []template.SectionInstance{
		{TemplateID: homepage.ID, SectionType: "announcement-bar", Position: 0, Enabled: true,
			Settings: map[string]interface{}{"text": "Free shipping"}},
		{TemplateID: homepage.ID, SectionType: "header", Position: 1, Enabled: true},
		{TemplateID: homepage.ID, SectionType: "hero", Position: 2, Enabled: true},
		{TemplateID: homepage.ID, SectionType: "footer", Position: 3, Enabled: true},
	}
	var announceID string
	for _, sec := range sections {
		created, err := store.CreateSection(ctx, sec)
		if err != nil {
			t.Fatalf("create section %s: %v", sec.SectionType, err)
		}
		if created.SectionType == "announcement-bar" {
			announceID = created.ID
		}
	}

	product, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID,
		TemplateType: template.TypeProduct,
		Name:         "Product",
		IsDefault:    true,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("create product template: %v", err)
	}
	for i, sectionType := range []string{"hero", "featured-products"} {
		if _, err := store.CreateSection(ctx, template.SectionInstance{
			TemplateID:  product.ID,
			SectionType: sectionType,
			Position:    i,
			Enabled:     true,
		}); err != nil {
			t.Fatalf("create product section %s: %v", sectionType, err)
		}
	}

	return &fixture{store: store, sf: sf, homepage: homepage, product: product, announceID: announceID}
}

func TestGlobalSectionsFromHomepage(t *testing.T) {
	fx := newFixture(t)
	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)

	globals, err := loader.GlobalSections(context.Background(), "acme", "commerce", template.TypeProduct)
	if err != nil {
		t.Fatalf("load globals: %v", err)
	}
	if globals.AnnouncementBar == nil || globals.Header == nil || globals.Footer == nil {
		t.Fatalf("expected full triple, got %+v", globals)
	}
	if globals.AnnouncementBar.Settings["text"] != "Free shipping" {
		t.Fatalf("unexpected announcement settings: %v", globals.AnnouncementBar.Settings)
	}
}

func TestGlobalSectionsMissingSlotIsNil(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Drop the footer from the homepage; the slot comes back nil, not an error.
	secs, err := fx.store.ListSections(ctx, fx.homepage.ID, false)
	if err != nil {
		t.Fatalf("list sections: %v", err)
	}
	for _, sec := range secs {
		if sec.SectionType == "footer" {
			if err := fx.store.DeleteSection(ctx, sec.ID); err != nil {
				t.Fatalf("delete footer: %v", err)
			}
		}
	}

	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)
	globals, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("load globals: %v", err)
	}
	if globals.Footer != nil {
		t.Fatalf("expected nil footer, got %+v", globals.Footer)
	}
	if globals.Header == nil || globals.AnnouncementBar == nil {
		t.Fatalf("remaining slots should still resolve, got %+v", globals)
	}
}

func TestGlobalSectionsIgnoreEnabled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	secs, err := fx.store.ListSections(ctx, fx.homepage.ID, false)
	if err != nil {
		t.Fatalf("list sections: %v", err)
	}
	for _, sec := range secs {
		if sec.SectionType == "header" {
			sec.Enabled = false
			if _, err := fx.store.UpdateSection(ctx, sec); err != nil {
				t.Fatalf("disable header: %v", err)
			}
		}
	}

	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)
	globals, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("load globals: %v", err)
	}
	if globals.Header == nil {
		t.Fatal("disabled header must still be returned as a global")
	}
}

func TestGlobalSectionsFirstInstanceWins(t *testing.T) {
	fx := newFixture(t)
	// A second header later in the homepage must not displace the first.
	if _, err := fx.store.CreateSection(context.Background(), template.SectionInstance{
		TemplateID:  fx.homepage.ID,
		SectionType: "header",
		Position:    9,
		Enabled:     true,
		Settings:    map[string]interface{}{"variant": "second"},
	}); err != nil {
		t.Fatalf("create second header: %v", err)
	}

	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)
	globals, err := loader.GlobalSections(context.Background(), "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("load globals: %v", err)
	}
	if globals.Header.Settings["variant"] == "second" {
		t.Fatal("later header instance displaced the first")
	}
}

func TestGlobalSectionsCached(t *testing.T) {
	fx := newFixture(t)
	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)
	ctx := context.Background()

	first, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	// Mutate storage behind the cache; the cached value must still be served.
	sec, err := fx.store.GetSection(ctx, fx.announceID)
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	sec.Settings = map[string]interface{}{"text": "changed"}
	if _, err := fx.store.UpdateSection(ctx, sec); err != nil {
		t.Fatalf("update section: %v", err)
	}

	second, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.AnnouncementBar.Settings["text"] != first.AnnouncementBar.Settings["text"] {
		t.Fatal("cache miss on second load")
	}

	// After invalidation the fresh value is visible.
	loader.ClearCache("acme")
	third, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("third load: %v", err)
	}
	if third.AnnouncementBar.Settings["text"] != "changed" {
		t.Fatalf("expected fresh value after invalidation, got %v", third.AnnouncementBar.Settings)
	}
}

func TestGlobalSectionsUnknownSubdomainNotCached(t *testing.T) {
	fx := newFixture(t)
	cache := NewGlobalsCache()
	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, cache, nil)

	globals, err := loader.GlobalSections(context.Background(), "ghost", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if globals.AnnouncementBar != nil || globals.Header != nil || globals.Footer != nil {
		t.Fatalf("expected empty triple, got %+v", globals)
	}
	if cache.Len() != 0 {
		t.Fatalf("absence must not be cached, cache has %d entries", cache.Len())
	}
}

func TestGlobalSectionsNoHomepageNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if _, err := store.CreateStorefront(ctx, storefront.Storefront{
		OwnerID: "o", Subdomain: "bare", Name: "Bare", ThemeCode: "base",
	}); err != nil {
		t.Fatalf("create storefront: %v", err)
	}

	cache := NewGlobalsCache()
	loader := NewGlobalsLoader(store, store, store, cache, nil)
	globals, err := loader.GlobalSections(ctx, "bare", "base", template.TypeHomepage)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if globals.Header != nil {
		t.Fatalf("expected empty triple, got %+v", globals)
	}
	if cache.Len() != 0 {
		t.Fatal("missing homepage must not be cached")
	}
}

func TestGlobalSectionsReturnsClones(t *testing.T) {
	fx := newFixture(t)
	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)
	ctx := context.Background()

	first, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first.AnnouncementBar.Settings["text"] = "tampered"

	second, err := loader.GlobalSections(ctx, "acme", "commerce", template.TypeHomepage)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if second.AnnouncementBar.Settings["text"] == "tampered" {
		t.Fatal("cache entry mutated through returned value")
	}
}

func TestCacheInvalidatePerSubdomain(t *testing.T) {
	cache := NewGlobalsCache()
	cache.put(globalsKey{Subdomain: "a", ThemeCode: "base"}, template.GlobalSections{})
	cache.put(globalsKey{Subdomain: "a", ThemeCode: "commerce"}, template.GlobalSections{})
	cache.put(globalsKey{Subdomain: "b", ThemeCode: "base"}, template.GlobalSections{})

	if dropped := cache.Invalidate("a"); dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", cache.Len())
	}
}

func TestCacheSweepOlderThan(t *testing.T) {
	cache := NewGlobalsCache()
	cache.put(globalsKey{Subdomain: "a", ThemeCode: "base"}, template.GlobalSections{})

	if dropped := cache.SweepOlderThan(0); dropped != 1 {
		t.Fatalf("expected sweep to drop entry, dropped %d", dropped)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Len())
	}
}
