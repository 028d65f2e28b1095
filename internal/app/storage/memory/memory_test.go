package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/storage"
)

func seedTemplate(t *testing.T, store *Store) template.Template {
	t.Helper()
	ctx := context.Background()
	sf, err := store.CreateStorefront(ctx, storefront.Storefront{
		OwnerID: "o", Subdomain: "acme", Name: "Acme",
	})
	if err != nil {
		t.Fatalf("create storefront: %v", err)
	}
	tpl, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID,
		TemplateType: template.TypeHomepage,
		Enabled:      true,
		IsDefault:    true,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func TestNotFoundErrors(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetStorefront(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("storefront: %v", err)
	}
	if _, err := store.GetStorefrontBySubdomain(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("subdomain: %v", err)
	}
	if _, err := store.GetTemplate(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("template: %v", err)
	}
	if _, err := store.GetSection(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("section: %v", err)
	}
	if err := store.DeleteSection(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete section: %v", err)
	}
}

func TestListSectionsOrdering(t *testing.T) {
	store := New()
	tpl := seedTemplate(t, store)
	ctx := context.Background()

	// Same position for b and c: creation order breaks the tie.
	for _, spec := range []struct {
		sectionType string
		position    int
	}{
		{"b", 1},
		{"c", 1},
		{"a", 0},
	} {
		if _, err := store.CreateSection(ctx, template.SectionInstance{
			TemplateID:  tpl.ID,
			SectionType: spec.sectionType,
			Position:    spec.position,
			Enabled:     true,
		}); err != nil {
			t.Fatalf("create %s: %v", spec.sectionType, err)
		}
	}

	secs, err := store.ListSections(ctx, tpl.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{secs[0].SectionType, secs[1].SectionType, secs[2].SectionType}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
}

func TestListSectionsEnabledOnly(t *testing.T) {
	store := New()
	tpl := seedTemplate(t, store)
	ctx := context.Background()

	if _, err := store.CreateSection(ctx, template.SectionInstance{
		TemplateID: tpl.ID, SectionType: "on", Enabled: true,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateSection(ctx, template.SectionInstance{
		TemplateID: tpl.ID, SectionType: "off", Enabled: false, Position: 1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	secs, err := store.ListSections(ctx, tpl.ID, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(secs) != 1 || secs[0].SectionType != "on" {
		t.Fatalf("enabled filter wrong: %+v", secs)
	}

	all, err := store.ListSections(ctx, tpl.ID, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(all))
	}
}

func TestReorderSectionsAtomic(t *testing.T) {
	store := New()
	tpl := seedTemplate(t, store)
	ctx := context.Background()

	var ids []string
	for i, sectionType := range []string{"a", "b", "c"} {
		sec, err := store.CreateSection(ctx, template.SectionInstance{
			TemplateID: tpl.ID, SectionType: sectionType, Position: i, Enabled: true,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, sec.ID)
	}

	// Unknown ID in the list must fail without changing anything.
	if _, err := store.ReorderSections(ctx, tpl.ID, []string{ids[0], "ghost", ids[2]}); err == nil {
		t.Fatal("expected reorder failure")
	}
	secs, err := store.ListSections(ctx, tpl.ID, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if secs[0].SectionType != "a" {
		t.Fatal("failed reorder mutated order")
	}

	reordered, err := store.ReorderSections(ctx, tpl.ID, []string{ids[2], ids[0], ids[1]})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if reordered[0].ID != ids[2] || reordered[0].Position != 0 {
		t.Fatalf("positions not rewritten: %+v", reordered)
	}
}

func TestDeleteSectionCascadesBlocks(t *testing.T) {
	store := New()
	tpl := seedTemplate(t, store)
	ctx := context.Background()

	sec, err := store.CreateSection(ctx, template.SectionInstance{
		TemplateID: tpl.ID, SectionType: "hero", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create section: %v", err)
	}
	blk, err := store.CreateBlock(ctx, template.BlockInstance{
		SectionID: sec.ID, BlockType: "text", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create block: %v", err)
	}

	if err := store.DeleteSection(ctx, sec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetBlock(ctx, blk.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("block survived cascade: %v", err)
	}
}

func TestFindTemplateMostRecentlyUpdatedWins(t *testing.T) {
	store := New()
	ctx := context.Background()
	sf, err := store.CreateStorefront(ctx, storefront.Storefront{
		OwnerID: "o", Subdomain: "acme", Name: "Acme",
	})
	if err != nil {
		t.Fatalf("create storefront: %v", err)
	}

	first, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID, TemplateType: template.TypeHomepage, Enabled: true, Name: "first",
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID, TemplateType: template.TypeHomepage, Enabled: true, Name: "second",
	}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Touch the first template so it becomes the most recently updated.
	first.Name = "first touched"
	if _, err := store.UpdateTemplate(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}

	found, err := store.FindTemplate(ctx, sf.ID, template.TypeHomepage, true)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("expected most recently updated template, got %q", found.Name)
	}
}

func TestFindTemplateEnabledOnly(t *testing.T) {
	store := New()
	ctx := context.Background()
	sf, err := store.CreateStorefront(ctx, storefront.Storefront{
		OwnerID: "o", Subdomain: "acme", Name: "Acme",
	})
	if err != nil {
		t.Fatalf("create storefront: %v", err)
	}
	if _, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID, TemplateType: template.TypeProduct, Enabled: false,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.FindTemplate(ctx, sf.ID, template.TypeProduct, true); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for disabled-only, got %v", err)
	}
	if _, err := store.FindTemplate(ctx, sf.ID, template.TypeProduct, false); err != nil {
		t.Fatalf("disabled template should be findable without filter: %v", err)
	}
}

func TestClonesIsolateCallers(t *testing.T) {
	store := New()
	tpl := seedTemplate(t, store)
	ctx := context.Background()

	sec, err := store.CreateSection(ctx, template.SectionInstance{
		TemplateID:  tpl.ID,
		SectionType: "hero",
		Enabled:     true,
		Settings:    map[string]interface{}{"heading": "original"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sec.Settings["heading"] = "mutated"
	fresh, err := store.GetSection(ctx, sec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.Settings["heading"] != "original" {
		t.Fatal("store state mutated through returned value")
	}
}
