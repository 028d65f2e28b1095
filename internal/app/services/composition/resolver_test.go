package composition

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/services/themes"
)

func newResolver(fx *fixture) *Resolver {
	catalog := themes.NewCatalog(themes.NewRegistry(fixtureThemes(), nil))
	loader := NewGlobalsLoader(fx.store, fx.store, fx.store, nil, nil)
	return NewResolver(fx.store, fx.store, fx.store, catalog, loader, nil)
}

func sectionTypes(sections []ResolvedSection) []string {
	out := make([]string, len(sections))
	for i, sec := range sections {
		out[i] = sec.SectionType
	}
	return out
}

func TestResolveProductPageSplicesGlobals(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)

	sections, err := resolver.ResolvePage(context.Background(), "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := []string{"announcement-bar", "header", "hero", "featured-products", "footer"}
	if got := sectionTypes(sections); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got %v want %v", got, want)
	}

	// Globals are flagged; the template's own sections are not.
	for _, sec := range sections {
		switch sec.SectionType {
		case "announcement-bar", "header", "footer":
			if !sec.Global {
				t.Fatalf("%s should be global", sec.SectionType)
			}
		default:
			if sec.Global {
				t.Fatalf("%s should not be global", sec.SectionType)
			}
		}
	}
}

func TestResolveUsesThemeRenderersWithBaseFallback(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)

	sections, err := resolver.ResolvePage(context.Background(), "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	byType := make(map[string]ResolvedSection, len(sections))
	for _, sec := range sections {
		byType[sec.SectionType] = sec
	}

	// header exists in commerce; announcement-bar and footer only in base.
	if byType["header"].Renderer.Component != "commerce/MegaHeader" {
		t.Fatalf("header renderer: %+v", byType["header"].Renderer)
	}
	if byType["announcement-bar"].Renderer.Component != "base/AnnouncementBar" {
		t.Fatalf("announcement renderer: %+v", byType["announcement-bar"].Renderer)
	}
	if byType["footer"].Renderer.Theme != "base" {
		t.Fatalf("footer should resolve from base, got %+v", byType["footer"].Renderer)
	}
}

func TestResolveMergesSchemaDefaults(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)

	sections, err := resolver.ResolvePage(context.Background(), "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, sec := range sections {
		switch sec.SectionType {
		case "hero":
			// No instance settings, so the commerce schema default applies.
			if sec.Settings["autoplay"] != true {
				t.Fatalf("hero defaults not applied: %v", sec.Settings)
			}
		case "announcement-bar":
			// Instance text overrides the default, color default survives.
			if sec.Settings["text"] != "Free shipping" {
				t.Fatalf("announcement override lost: %v", sec.Settings)
			}
			colors, ok := sec.Settings["colors"].(map[string]interface{})
			if !ok || colors["background"] != "#1a1a2e" {
				t.Fatalf("announcement color default lost: %v", sec.Settings)
			}
		}
	}
}

func TestResolveHomepageOwnGlobalsNotDuplicated(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)

	sections, err := resolver.ResolvePage(context.Background(), "acme", template.TypeHomepage, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	counts := make(map[string]int)
	for _, sec := range sections {
		counts[sec.SectionType]++
	}
	for _, sectionType := range []string{"announcement-bar", "header", "footer"} {
		if counts[sectionType] != 1 {
			t.Fatalf("%s appears %d times", sectionType, counts[sectionType])
		}
	}
}

func TestResolveUnknownSubdomain(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)

	_, err := resolver.ResolvePage(context.Background(), "ghost", template.TypeHomepage, ResolveOptions{})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestResolveNoTemplateForPageType(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)

	_, err := resolver.ResolvePage(context.Background(), "acme", template.TypeCollection, ResolveOptions{})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestResolveSkipsDisabledSections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	secs, err := fx.store.ListSections(ctx, fx.product.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, sec := range secs {
		if sec.SectionType == "hero" {
			sec.Enabled = false
			if _, err := fx.store.UpdateSection(ctx, sec); err != nil {
				t.Fatalf("disable hero: %v", err)
			}
		}
	}

	resolver := newResolver(fx)
	sections, err := resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, sec := range sections {
		if sec.SectionType == "hero" {
			t.Fatal("disabled section rendered")
		}
	}
}

func TestResolveSkipsUnknownSectionType(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if _, err := fx.store.CreateSection(ctx, template.SectionInstance{
		TemplateID:  fx.product.ID,
		SectionType: "countdown",
		Position:    5,
		Enabled:     true,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	resolver := newResolver(fx)
	sections, err := resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve should degrade, got: %v", err)
	}
	for _, sec := range sections {
		if sec.SectionType == "countdown" {
			t.Fatal("unrenderable section included")
		}
	}
}

func TestResolveBlocks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	secs, err := fx.store.ListSections(ctx, fx.product.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var heroID string
	for _, sec := range secs {
		if sec.SectionType == "hero" {
			heroID = sec.ID
		}
	}

	for i, blk := range []template.BlockInstance{
		{SectionID: heroID, BlockType: "button", Position: 0, Enabled: true,
			Settings: map[string]interface{}{"label": "Buy"}},
		{SectionID: heroID, BlockType: "mystery", Position: 1, Enabled: true},
	} {
		blk.Position = i
		if _, err := fx.store.CreateBlock(ctx, blk); err != nil {
			t.Fatalf("create block: %v", err)
		}
	}

	resolver := newResolver(fx)
	sections, err := resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, sec := range sections {
		if sec.SectionType != "hero" {
			continue
		}
		if len(sec.Blocks) != 1 {
			t.Fatalf("expected unknown block skipped, got %d blocks", len(sec.Blocks))
		}
		blk := sec.Blocks[0]
		if blk.Settings["label"] != "Buy" {
			t.Fatalf("block override lost: %v", blk.Settings)
		}
		if blk.Settings["style"] != "primary" {
			t.Fatalf("block default lost: %v", blk.Settings)
		}
		if blk.Renderer.Component != "base/blocks/Button" {
			t.Fatalf("block renderer: %+v", blk.Renderer)
		}
	}
}

func TestResolveExplicitTemplate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alt, err := fx.store.CreateTemplate(ctx, template.Template{
		StorefrontID: fx.sf.ID,
		TemplateType: template.TypeProduct,
		Name:         "Alt product",
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("create alt: %v", err)
	}
	if _, err := fx.store.CreateSection(ctx, template.SectionInstance{
		TemplateID:  alt.ID,
		SectionType: "rich-text",
		Enabled:     true,
	}); err != nil {
		t.Fatalf("create alt section: %v", err)
	}

	resolver := newResolver(fx)
	sections, err := resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{TemplateID: alt.ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	found := false
	for _, sec := range sections {
		if sec.SectionType == "rich-text" {
			found = true
		}
		if sec.SectionType == "featured-products" {
			t.Fatal("default template rendered despite explicit ID")
		}
	}
	if !found {
		t.Fatal("explicit template sections missing")
	}

	// A bogus explicit ID falls back to the default template.
	sections, err = resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{TemplateID: "does-not-exist"})
	if err != nil {
		t.Fatalf("fallback resolve: %v", err)
	}
	found = false
	for _, sec := range sections {
		if sec.SectionType == "featured-products" {
			found = true
		}
	}
	if !found {
		t.Fatal("fallback to default template failed")
	}
}

func TestResolveDeterministic(t *testing.T) {
	fx := newFixture(t)
	resolver := newResolver(fx)
	ctx := context.Background()

	first, err := resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := resolver.ResolvePage(ctx, "acme", template.TypeProduct, ResolveOptions{})
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("resolution %d differs", i)
		}
	}
}
