package themes

import (
	"github.com/shoplight/storefront/internal/app/domain/theme"
)

// Catalog resolves section and block type names within a loaded theme, with
// a per-type fallback to the base theme. A type absent everywhere resolves
// to nil, not an error: callers render nothing for that slot.
type Catalog struct {
	registry *Registry
}

// NewCatalog creates a catalog over the registry.
func NewCatalog(registry *Registry) *Catalog {
	return &Catalog{registry: registry}
}

// LoadSection resolves a section type to its renderer reference. A miss in
// the requested theme retries against base; nil means the type is not
// registered anywhere.
func (c *Catalog) LoadSection(themeCode, sectionType string) (*theme.RendererRef, error) {
	module, err := c.registry.LoadTheme(themeCode)
	if err != nil {
		return nil, err
	}
	if ref, ok := module.Section(sectionType); ok {
		return &ref, nil
	}
	if module.Code == theme.BaseCode {
		return nil, nil
	}
	base, err := c.registry.LoadTheme(theme.BaseCode)
	if err != nil {
		return nil, nil
	}
	if ref, ok := base.Section(sectionType); ok {
		return &ref, nil
	}
	return nil, nil
}

// LoadBlock resolves a block type to its renderer reference, with the same
// base-theme fallback as sections.
func (c *Catalog) LoadBlock(themeCode, blockType string) (*theme.RendererRef, error) {
	module, err := c.registry.LoadTheme(themeCode)
	if err != nil {
		return nil, err
	}
	if ref, ok := module.Block(blockType); ok {
		return &ref, nil
	}
	if module.Code == theme.BaseCode {
		return nil, nil
	}
	base, err := c.registry.LoadTheme(theme.BaseCode)
	if err != nil {
		return nil, nil
	}
	if ref, ok := base.Block(blockType); ok {
		return &ref, nil
	}
	return nil, nil
}

// LoadSchema returns the settings schema for a section type, or nil when the
// theme defines none for it. The base fallback applies only when the
// requested theme does not register the type at all; a registered type
// without a schema stays schema-less.
func (c *Catalog) LoadSchema(themeCode, sectionType string) (*theme.Schema, error) {
	module, err := c.registry.LoadTheme(themeCode)
	if err != nil {
		return nil, err
	}
	if _, ok := module.Section(sectionType); ok {
		return module.SectionSchema(sectionType), nil
	}
	if module.Code == theme.BaseCode {
		return nil, nil
	}
	base, err := c.registry.LoadTheme(theme.BaseCode)
	if err != nil {
		return nil, nil
	}
	return base.SectionSchema(sectionType), nil
}

// LoadBlockSchema returns the settings schema for a block type, mirroring
// LoadSchema.
func (c *Catalog) LoadBlockSchema(themeCode, blockType string) (*theme.Schema, error) {
	module, err := c.registry.LoadTheme(themeCode)
	if err != nil {
		return nil, err
	}
	if _, ok := module.Block(blockType); ok {
		return module.BlockSchema(blockType), nil
	}
	if module.Code == theme.BaseCode {
		return nil, nil
	}
	base, err := c.registry.LoadTheme(theme.BaseCode)
	if err != nil {
		return nil, nil
	}
	return base.BlockSchema(blockType), nil
}

// HasSection reports membership in the named theme only; no base fallback.
func (c *Catalog) HasSection(themeCode, sectionType string) bool {
	module, err := c.registry.LoadTheme(themeCode)
	if err != nil {
		return false
	}
	_, ok := module.Section(sectionType)
	return ok
}

// HasBlock reports membership in the named theme only; no base fallback.
func (c *Catalog) HasBlock(themeCode, blockType string) bool {
	module, err := c.registry.LoadTheme(themeCode)
	if err != nil {
		return false
	}
	_, ok := module.Block(blockType)
	return ok
}
