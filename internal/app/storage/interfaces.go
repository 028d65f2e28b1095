package storage

import (
	"context"
	"errors"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
)

// ErrNotFound is returned by the in-memory store when a record is absent.
// The postgres store surfaces sql.ErrNoRows instead; callers that care
// should check both.
var ErrNotFound = errors.New("record not found")

// StorefrontStore persists storefront records.
type StorefrontStore interface {
	CreateStorefront(ctx context.Context, sf storefront.Storefront) (storefront.Storefront, error)
	UpdateStorefront(ctx context.Context, sf storefront.Storefront) (storefront.Storefront, error)
	GetStorefront(ctx context.Context, id string) (storefront.Storefront, error)
	GetStorefrontBySubdomain(ctx context.Context, subdomain string) (storefront.Storefront, error)
	ListStorefronts(ctx context.Context, ownerID string) ([]storefront.Storefront, error)
}

// TemplateStore persists page templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tpl template.Template) (template.Template, error)
	UpdateTemplate(ctx context.Context, tpl template.Template) (template.Template, error)
	GetTemplate(ctx context.Context, id string) (template.Template, error)
	ListTemplates(ctx context.Context, storefrontID string) ([]template.Template, error)

	// FindTemplate returns the template for (storefront, templateType). When
	// several match, the most recently updated wins so reads stay
	// deterministic. Absence is reported via the store's not-found error.
	FindTemplate(ctx context.Context, storefrontID, templateType string, enabledOnly bool) (template.Template, error)
}

// SectionStore persists section instances and their nested blocks. Listing
// returns sections ordered by position ascending (ties broken by creation
// order) with blocks ordered the same way.
type SectionStore interface {
	CreateSection(ctx context.Context, sec template.SectionInstance) (template.SectionInstance, error)
	UpdateSection(ctx context.Context, sec template.SectionInstance) (template.SectionInstance, error)
	GetSection(ctx context.Context, id string) (template.SectionInstance, error)
	DeleteSection(ctx context.Context, id string) error
	ListSections(ctx context.Context, templateID string, enabledOnly bool) ([]template.SectionInstance, error)

	// ReorderSections atomically rewrites the positions of a template's
	// sections to match the given id order.
	ReorderSections(ctx context.Context, templateID string, orderedIDs []string) ([]template.SectionInstance, error)

	CreateBlock(ctx context.Context, blk template.BlockInstance) (template.BlockInstance, error)
	UpdateBlock(ctx context.Context, blk template.BlockInstance) (template.BlockInstance, error)
	GetBlock(ctx context.Context, id string) (template.BlockInstance, error)
	DeleteBlock(ctx context.Context, id string) error
	ReorderBlocks(ctx context.Context, sectionID string, orderedIDs []string) ([]template.BlockInstance, error)
}
