package composition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shoplight/storefront/internal/app/domain/theme"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage"
	"github.com/shoplight/storefront/pkg/logger"
)

// ErrTemplateNotFound is returned when no enabled template matches the
// requested storefront and page type. It is fatal to the render; the caller
// shows a platform fallback page.
var ErrTemplateNotFound = errors.New("template not found")

// ResolvedBlock is one block ready for rendering: renderer reference plus
// settings merged over the block type's theme defaults.
type ResolvedBlock struct {
	ID        string                 `json:"id"`
	BlockType string                 `json:"block_type"`
	Renderer  theme.RendererRef      `json:"renderer"`
	Settings  map[string]interface{} `json:"settings"`
	Enabled   bool                   `json:"enabled"`
}

// ResolvedSection is one section ready for rendering. For sections the
// template owns, Enabled is always true (disabled ones are filtered out);
// for spliced global sections it carries the stored flag so the rendering
// layer decides visibility.
type ResolvedSection struct {
	ID          string                 `json:"id"`
	SectionType string                 `json:"section_type"`
	Renderer    theme.RendererRef      `json:"renderer"`
	Settings    map[string]interface{} `json:"settings"`
	Enabled     bool                   `json:"enabled"`
	Global      bool                   `json:"global"`
	Blocks      []ResolvedBlock        `json:"blocks"`
}

// ResolveOptions tune a single resolution.
type ResolveOptions struct {
	// TemplateID selects an explicit template (e.g. a product assigned a
	// non-default layout). When it does not resolve to a usable template for
	// the storefront, the default template for the page type is used.
	TemplateID string
}

// Resolver composes the final ordered section list for a storefront page.
type Resolver struct {
	storefronts storage.StorefrontStore
	templates   storage.TemplateStore
	sections    storage.SectionStore
	catalog     *themes.Catalog
	globals     *GlobalsLoader
	log         *logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(storefronts storage.StorefrontStore, templates storage.TemplateStore, sections storage.SectionStore, catalog *themes.Catalog, globals *GlobalsLoader, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewDefault("composition")
	}
	return &Resolver{
		storefronts: storefronts,
		templates:   templates,
		sections:    sections,
		catalog:     catalog,
		globals:     globals,
		log:         log,
	}
}

// ResolvePage resolves the ordered, settings-merged section list for one
// page render. ErrTemplateNotFound (and theme resolution failure) are fatal;
// a missing renderer or schema for an individual section degrades to
// skipping that section.
func (r *Resolver) ResolvePage(ctx context.Context, subdomain, pageType string, opts ResolveOptions) ([]ResolvedSection, error) {
	start := time.Now()
	resolved, err := r.resolvePage(ctx, subdomain, pageType, opts)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordPageResolution(pageType, status, time.Since(start))
	return resolved, err
}

func (r *Resolver) resolvePage(ctx context.Context, subdomain, pageType string, opts ResolveOptions) ([]ResolvedSection, error) {
	sf, err := r.storefronts.GetStorefrontBySubdomain(ctx, subdomain)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("storefront %s: %w", subdomain, ErrTemplateNotFound)
		}
		return nil, err
	}

	tpl, err := r.selectTemplate(ctx, sf.ID, pageType, opts)
	if err != nil {
		return nil, err
	}

	instances, err := r.sections.ListSections(ctx, tpl.ID, true)
	if err != nil {
		return nil, err
	}

	themeCode := sf.ThemeCode
	if tpl.ThemeCode != "" {
		themeCode = tpl.ThemeCode
	}

	own := make([]ResolvedSection, 0, len(instances))
	ownTypes := make(map[string]bool, len(instances))
	for _, sec := range instances {
		ownTypes[sec.SectionType] = true
		resolved, err := r.resolveSection(themeCode, sec, false)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			r.log.WithField("section_type", sec.SectionType).
				WithField("theme", themeCode).
				Warn("no renderer for section, skipping")
			continue
		}
		own = append(own, *resolved)
	}

	globals, err := r.globals.GlobalSections(ctx, subdomain, themeCode, pageType)
	if err != nil {
		return nil, err
	}

	result := make([]ResolvedSection, 0, len(own)+3)
	// Announcement bar then header go in front, footer at the end. A
	// template that places its own section of a global type keeps it and the
	// global for that slot is suppressed, so a page never renders two
	// headers.
	for _, global := range []*template.SectionInstance{globals.AnnouncementBar, globals.Header} {
		if global == nil || ownTypes[global.SectionType] {
			continue
		}
		resolved, err := r.resolveSection(themeCode, *global, true)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			result = append(result, *resolved)
		}
	}
	result = append(result, own...)
	if footer := globals.Footer; footer != nil && !ownTypes[footer.SectionType] {
		resolved, err := r.resolveSection(themeCode, *footer, true)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			result = append(result, *resolved)
		}
	}

	return result, nil
}

// selectTemplate picks the template to render: an explicitly referenced one
// when valid, otherwise the storefront's enabled template for the page type.
func (r *Resolver) selectTemplate(ctx context.Context, storefrontID, pageType string, opts ResolveOptions) (template.Template, error) {
	if opts.TemplateID != "" {
		tpl, err := r.templates.GetTemplate(ctx, opts.TemplateID)
		if err == nil && tpl.StorefrontID == storefrontID && tpl.Enabled {
			return tpl, nil
		}
		if err != nil && !isNotFound(err) {
			return template.Template{}, err
		}
		r.log.WithField("template_id", opts.TemplateID).
			WithField("page_type", pageType).
			Warn("explicit template unusable, falling back to default")
	}

	tpl, err := r.templates.FindTemplate(ctx, storefrontID, pageType, true)
	if err != nil {
		if isNotFound(err) {
			return template.Template{}, fmt.Errorf("%s for storefront %s: %w", pageType, storefrontID, ErrTemplateNotFound)
		}
		return template.Template{}, err
	}
	return tpl, nil
}

// resolveSection resolves one section instance: renderer lookup (with base
// fallback via the catalog), settings merged over the schema defaults, and
// its blocks. Returns nil when no renderer exists anywhere for the type.
// Global sections keep disabled blocks; template sections arrive already
// filtered by the store.
func (r *Resolver) resolveSection(themeCode string, sec template.SectionInstance, global bool) (*ResolvedSection, error) {
	ref, err := r.catalog.LoadSection(themeCode, sec.SectionType)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}

	schema, err := r.catalog.LoadSchema(themeCode, sec.SectionType)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedSection{
		ID:          sec.ID,
		SectionType: sec.SectionType,
		Renderer:    *ref,
		Settings:    template.MergeSettings(schema.Defaults(), sec.Settings),
		Enabled:     sec.Enabled,
		Global:      global,
		Blocks:      make([]ResolvedBlock, 0, len(sec.Blocks)),
	}

	for _, blk := range sec.Blocks {
		blockRef, err := r.catalog.LoadBlock(themeCode, blk.BlockType)
		if err != nil {
			return nil, err
		}
		if blockRef == nil {
			r.log.WithField("block_type", blk.BlockType).
				WithField("theme", themeCode).
				Warn("no renderer for block, skipping")
			continue
		}
		blockSchema, err := r.catalog.LoadBlockSchema(themeCode, blk.BlockType)
		if err != nil {
			return nil, err
		}
		resolved.Blocks = append(resolved.Blocks, ResolvedBlock{
			ID:        blk.ID,
			BlockType: blk.BlockType,
			Renderer:  *blockRef,
			Settings:  template.MergeSettings(blockSchema.Defaults(), blk.Settings),
			Enabled:   blk.Enabled,
		})
	}

	return resolved, nil
}
