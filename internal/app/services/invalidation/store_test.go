package invalidation

import (
	"context"
	"testing"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/storage/memory"
)

// seededStore is a memory store with one storefront and a homepage template
// carrying a header section, enough for the globals loader to cache.
type seededStore struct {
	*memory.Store
}

func newSeededStore(t *testing.T) *seededStore {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	sf, err := store.CreateStorefront(ctx, storefront.Storefront{
		OwnerID: "o", Subdomain: "acme", Name: "Acme", ThemeCode: "base",
	})
	if err != nil {
		t.Fatalf("create storefront: %v", err)
	}
	tpl, err := store.CreateTemplate(ctx, template.Template{
		StorefrontID: sf.ID,
		TemplateType: template.TypeHomepage,
		IsDefault:    true,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if _, err := store.CreateSection(ctx, template.SectionInstance{
		TemplateID:  tpl.ID,
		SectionType: template.SectionHeader,
		Enabled:     true,
	}); err != nil {
		t.Fatalf("create section: %v", err)
	}
	return &seededStore{Store: store}
}
