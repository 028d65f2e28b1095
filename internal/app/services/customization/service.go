// Package customization is the merchant write path for templates, sections,
// and blocks. Every mutation validates before touching storage and
// invalidates the global-sections cache only after the write commits.
package customization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage"
	"github.com/shoplight/storefront/pkg/logger"
)

// ErrUnauthorized is returned when the acting user does not own the
// storefront being edited.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError reports a rejected write before any persistence happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GlobalsInvalidator receives cache invalidations for a storefront after a
// global-section edit commits. Implementations: the local cache, or a
// broadcasting wrapper for multi-instance deployments.
type GlobalsInvalidator interface {
	InvalidateGlobals(ctx context.Context, subdomain string)
}

// Service applies merchant edits.
type Service struct {
	storefronts storage.StorefrontStore
	templates   storage.TemplateStore
	sections    storage.SectionStore
	catalog     *themes.Catalog
	invalidator GlobalsInvalidator
	log         *logger.Logger
}

// New constructs the write-path service. invalidator may be nil when no
// globals cache is in play (tests of pure persistence behavior).
func New(storefronts storage.StorefrontStore, templates storage.TemplateStore, sections storage.SectionStore, catalog *themes.Catalog, invalidator GlobalsInvalidator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("customization")
	}
	return &Service{
		storefronts: storefronts,
		templates:   templates,
		sections:    sections,
		catalog:     catalog,
		invalidator: invalidator,
		log:         log,
	}
}

// SectionParams carries optional field updates; nil means unchanged.
type SectionParams struct {
	SectionType *string
	Settings    map[string]interface{}
	Position    *int
	Enabled     *bool
}

// BlockParams carries optional block field updates; nil means unchanged.
type BlockParams struct {
	BlockType *string
	Settings  map[string]interface{}
	Position  *int
	Enabled   *bool
}

// --- Templates --------------------------------------------------------------

// CreateTemplate creates a page template. When the new template is an
// enabled default, any previous enabled default for the same page type is
// demoted so at most one exists.
func (s *Service) CreateTemplate(ctx context.Context, actorID string, tpl template.Template) (template.Template, error) {
	sf, err := s.authorizeStorefront(ctx, actorID, tpl.StorefrontID)
	if err != nil {
		return template.Template{}, err
	}
	if strings.TrimSpace(tpl.TemplateType) == "" {
		return template.Template{}, &ValidationError{Field: "template_type", Reason: "is required"}
	}
	if tpl.ThemeCode == "" {
		tpl.ThemeCode = sf.ThemeCode
	}

	if tpl.IsDefault && tpl.Enabled {
		if err := s.demoteDefaults(ctx, tpl.StorefrontID, tpl.TemplateType, ""); err != nil {
			return template.Template{}, fmt.Errorf("demote previous default: %w", err)
		}
	}

	created, err := s.templates.CreateTemplate(ctx, tpl)
	if err != nil {
		return template.Template{}, fmt.Errorf("persist template: %w", err)
	}
	if created.IsDefault && created.Enabled {
		s.invalidateIfHomepage(ctx, sf, created.TemplateType)
	}
	s.log.WithField("template_id", created.ID).
		WithField("storefront_id", created.StorefrontID).
		WithField("template_type", created.TemplateType).
		Info("template created")
	return created, nil
}

// UpdateTemplate updates template metadata and settings, keeping the single
// enabled default invariant.
func (s *Service) UpdateTemplate(ctx context.Context, actorID string, tpl template.Template) (template.Template, error) {
	existing, err := s.templates.GetTemplate(ctx, tpl.ID)
	if err != nil {
		return template.Template{}, fmt.Errorf("load template: %w", err)
	}
	sf, err := s.authorizeStorefront(ctx, actorID, existing.StorefrontID)
	if err != nil {
		return template.Template{}, err
	}
	if strings.TrimSpace(tpl.TemplateType) == "" {
		tpl.TemplateType = existing.TemplateType
	}

	if tpl.IsDefault && tpl.Enabled {
		if err := s.demoteDefaults(ctx, existing.StorefrontID, tpl.TemplateType, tpl.ID); err != nil {
			return template.Template{}, fmt.Errorf("demote previous default: %w", err)
		}
	}

	updated, err := s.templates.UpdateTemplate(ctx, tpl)
	if err != nil {
		return template.Template{}, fmt.Errorf("persist template: %w", err)
	}
	// Homepage templates feed the globals cache; disabling or re-pointing
	// one must not leave stale globals behind.
	s.invalidateIfHomepage(ctx, sf, existing.TemplateType, updated.TemplateType)
	return updated, nil
}

// GetTemplate returns a template after checking ownership.
func (s *Service) GetTemplate(ctx context.Context, actorID, templateID string) (template.Template, error) {
	_, tpl, err := s.authorizeTemplate(ctx, actorID, templateID)
	if err != nil {
		return template.Template{}, err
	}
	return tpl, nil
}

// ListSections returns a template's sections with blocks attached, in
// position order.
func (s *Service) ListSections(ctx context.Context, actorID, templateID string) ([]template.SectionInstance, error) {
	if _, _, err := s.authorizeTemplate(ctx, actorID, templateID); err != nil {
		return nil, err
	}
	return s.sections.ListSections(ctx, templateID, false)
}

// ListTemplates lists a storefront's templates.
func (s *Service) ListTemplates(ctx context.Context, actorID, storefrontID string) ([]template.Template, error) {
	if _, err := s.authorizeStorefront(ctx, actorID, storefrontID); err != nil {
		return nil, err
	}
	return s.templates.ListTemplates(ctx, storefrontID)
}

func (s *Service) demoteDefaults(ctx context.Context, storefrontID, templateType, keepID string) error {
	all, err := s.templates.ListTemplates(ctx, storefrontID)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID == keepID || other.TemplateType != templateType {
			continue
		}
		if !other.IsDefault || !other.Enabled {
			continue
		}
		other.IsDefault = false
		if _, err := s.templates.UpdateTemplate(ctx, other); err != nil {
			return err
		}
	}
	return nil
}

// --- Sections ---------------------------------------------------------------

// CreateSection places a new section on a template.
func (s *Service) CreateSection(ctx context.Context, actorID, templateID string, sec template.SectionInstance) (template.SectionInstance, error) {
	sf, tpl, err := s.authorizeTemplate(ctx, actorID, templateID)
	if err != nil {
		return template.SectionInstance{}, err
	}

	sec.TemplateID = tpl.ID
	if err := s.validateSection(themeCodeFor(sf, tpl), sec.SectionType, sec.Settings); err != nil {
		return template.SectionInstance{}, err
	}

	created, err := s.sections.CreateSection(ctx, sec)
	if err != nil {
		return template.SectionInstance{}, fmt.Errorf("persist section: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, created.SectionType)
	s.log.WithField("section_id", created.ID).
		WithField("section_type", created.SectionType).
		WithField("template_id", tpl.ID).
		Info("section created")
	return created, nil
}

// UpdateSection applies partial changes to a section.
func (s *Service) UpdateSection(ctx context.Context, actorID, sectionID string, params SectionParams) (template.SectionInstance, error) {
	sf, _, sec, err := s.authorizeSection(ctx, actorID, sectionID)
	if err != nil {
		return template.SectionInstance{}, err
	}

	previousType := sec.SectionType
	if params.SectionType != nil {
		sec.SectionType = strings.TrimSpace(*params.SectionType)
	}
	if params.Settings != nil {
		sec.Settings = params.Settings
	}
	if params.Position != nil {
		sec.Position = *params.Position
	}
	if params.Enabled != nil {
		sec.Enabled = *params.Enabled
	}

	tpl, err := s.templates.GetTemplate(ctx, sec.TemplateID)
	if err != nil {
		return template.SectionInstance{}, fmt.Errorf("load template: %w", err)
	}
	if err := s.validateSection(themeCodeFor(sf, tpl), sec.SectionType, sec.Settings); err != nil {
		return template.SectionInstance{}, err
	}

	updated, err := s.sections.UpdateSection(ctx, sec)
	if err != nil {
		return template.SectionInstance{}, fmt.Errorf("persist section: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, previousType, updated.SectionType)
	return updated, nil
}

// DeleteSection removes a section and its blocks.
func (s *Service) DeleteSection(ctx context.Context, actorID, sectionID string) error {
	sf, _, sec, err := s.authorizeSection(ctx, actorID, sectionID)
	if err != nil {
		return err
	}

	if err := s.sections.DeleteSection(ctx, sectionID); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, sec.SectionType)
	s.log.WithField("section_id", sectionID).
		WithField("section_type", sec.SectionType).
		Info("section deleted")
	return nil
}

// ReorderSections atomically rewrites a template's section order to match
// orderedIDs.
func (s *Service) ReorderSections(ctx context.Context, actorID, templateID string, orderedIDs []string) ([]template.SectionInstance, error) {
	sf, _, err := s.authorizeTemplate(ctx, actorID, templateID)
	if err != nil {
		return nil, err
	}
	if len(orderedIDs) == 0 {
		return nil, &ValidationError{Field: "section_ids", Reason: "must not be empty"}
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return nil, &ValidationError{Field: "section_ids", Reason: "contains duplicate " + id}
		}
		seen[id] = true
	}

	// A partial list would assign positions colliding with the unlisted
	// sections, so the reorder must cover every section on the template.
	current, err := s.sections.ListSections(ctx, templateID, false)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	if len(orderedIDs) != len(current) {
		return nil, &ValidationError{Field: "section_ids", Reason: "must list every section of the template"}
	}
	for _, sec := range current {
		if !seen[sec.ID] {
			return nil, &ValidationError{Field: "section_ids", Reason: "missing section " + sec.ID}
		}
	}

	reordered, err := s.sections.ReorderSections(ctx, templateID, orderedIDs)
	if err != nil {
		return nil, fmt.Errorf("persist reorder: %w", err)
	}

	types := make([]string, 0, len(reordered))
	for _, sec := range reordered {
		types = append(types, sec.SectionType)
	}
	s.invalidateIfGlobal(ctx, sf, types...)
	return reordered, nil
}

// --- Blocks -----------------------------------------------------------------

// CreateBlock adds a block to a section.
func (s *Service) CreateBlock(ctx context.Context, actorID, sectionID string, blk template.BlockInstance) (template.BlockInstance, error) {
	sf, tpl, sec, err := s.authorizeSection(ctx, actorID, sectionID)
	if err != nil {
		return template.BlockInstance{}, err
	}

	blk.SectionID = sec.ID
	if err := s.validateBlock(themeCodeFor(sf, tpl), blk.BlockType, blk.Settings); err != nil {
		return template.BlockInstance{}, err
	}

	created, err := s.sections.CreateBlock(ctx, blk)
	if err != nil {
		return template.BlockInstance{}, fmt.Errorf("persist block: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, sec.SectionType)
	return created, nil
}

// UpdateBlock applies partial changes to a block.
func (s *Service) UpdateBlock(ctx context.Context, actorID, blockID string, params BlockParams) (template.BlockInstance, error) {
	blk, err := s.sections.GetBlock(ctx, blockID)
	if err != nil {
		return template.BlockInstance{}, fmt.Errorf("load block: %w", err)
	}
	sf, tpl, sec, err := s.authorizeSection(ctx, actorID, blk.SectionID)
	if err != nil {
		return template.BlockInstance{}, err
	}

	if params.BlockType != nil {
		blk.BlockType = strings.TrimSpace(*params.BlockType)
	}
	if params.Settings != nil {
		blk.Settings = params.Settings
	}
	if params.Position != nil {
		blk.Position = *params.Position
	}
	if params.Enabled != nil {
		blk.Enabled = *params.Enabled
	}

	if err := s.validateBlock(themeCodeFor(sf, tpl), blk.BlockType, blk.Settings); err != nil {
		return template.BlockInstance{}, err
	}

	updated, err := s.sections.UpdateBlock(ctx, blk)
	if err != nil {
		return template.BlockInstance{}, fmt.Errorf("persist block: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, sec.SectionType)
	return updated, nil
}

// DeleteBlock removes a block.
func (s *Service) DeleteBlock(ctx context.Context, actorID, blockID string) error {
	blk, err := s.sections.GetBlock(ctx, blockID)
	if err != nil {
		return fmt.Errorf("load block: %w", err)
	}
	sf, _, sec, err := s.authorizeSection(ctx, actorID, blk.SectionID)
	if err != nil {
		return err
	}

	if err := s.sections.DeleteBlock(ctx, blockID); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, sec.SectionType)
	return nil
}

// ReorderBlocks atomically rewrites a section's block order.
func (s *Service) ReorderBlocks(ctx context.Context, actorID, sectionID string, orderedIDs []string) ([]template.BlockInstance, error) {
	sf, _, sec, err := s.authorizeSection(ctx, actorID, sectionID)
	if err != nil {
		return nil, err
	}
	if len(orderedIDs) == 0 {
		return nil, &ValidationError{Field: "block_ids", Reason: "must not be empty"}
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return nil, &ValidationError{Field: "block_ids", Reason: "contains duplicate " + id}
		}
		seen[id] = true
	}
	if len(orderedIDs) != len(sec.Blocks) {
		return nil, &ValidationError{Field: "block_ids", Reason: "must list every block of the section"}
	}
	for _, blk := range sec.Blocks {
		if !seen[blk.ID] {
			return nil, &ValidationError{Field: "block_ids", Reason: "missing block " + blk.ID}
		}
	}

	reordered, err := s.sections.ReorderBlocks(ctx, sectionID, orderedIDs)
	if err != nil {
		return nil, fmt.Errorf("persist reorder: %w", err)
	}

	s.invalidateIfGlobal(ctx, sf, sec.SectionType)
	return reordered, nil
}

// --- Helpers ----------------------------------------------------------------

// authorizeStorefront loads the storefront and checks ownership. An empty
// actorID bypasses the check: internal tooling calls carry no user.
func (s *Service) authorizeStorefront(ctx context.Context, actorID, storefrontID string) (storefront.Storefront, error) {
	sf, err := s.storefronts.GetStorefront(ctx, storefrontID)
	if err != nil {
		return storefront.Storefront{}, fmt.Errorf("load storefront: %w", err)
	}
	if actorID != "" && sf.OwnerID != actorID {
		return storefront.Storefront{}, fmt.Errorf("storefront %s: %w", storefrontID, ErrUnauthorized)
	}
	return sf, nil
}

func (s *Service) authorizeTemplate(ctx context.Context, actorID, templateID string) (storefront.Storefront, template.Template, error) {
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return storefront.Storefront{}, template.Template{}, fmt.Errorf("load template: %w", err)
	}
	sf, err := s.authorizeStorefront(ctx, actorID, tpl.StorefrontID)
	if err != nil {
		return storefront.Storefront{}, template.Template{}, err
	}
	return sf, tpl, nil
}

func (s *Service) authorizeSection(ctx context.Context, actorID, sectionID string) (storefront.Storefront, template.Template, template.SectionInstance, error) {
	sec, err := s.sections.GetSection(ctx, sectionID)
	if err != nil {
		return storefront.Storefront{}, template.Template{}, template.SectionInstance{}, fmt.Errorf("load section: %w", err)
	}
	sf, tpl, err := s.authorizeTemplate(ctx, actorID, sec.TemplateID)
	if err != nil {
		return storefront.Storefront{}, template.Template{}, template.SectionInstance{}, err
	}
	return sf, tpl, sec, nil
}

func (s *Service) validateSection(themeCode, sectionType string, settings map[string]interface{}) error {
	if strings.TrimSpace(sectionType) == "" {
		return &ValidationError{Field: "section_type", Reason: "is required"}
	}
	ref, err := s.catalog.LoadSection(themeCode, sectionType)
	if err != nil {
		return err
	}
	if ref == nil {
		return &ValidationError{Field: "section_type", Reason: "unknown type " + sectionType}
	}
	return validateSettings(settings)
}

func (s *Service) validateBlock(themeCode, blockType string, settings map[string]interface{}) error {
	if strings.TrimSpace(blockType) == "" {
		return &ValidationError{Field: "block_type", Reason: "is required"}
	}
	ref, err := s.catalog.LoadBlock(themeCode, blockType)
	if err != nil {
		return err
	}
	if ref == nil {
		return &ValidationError{Field: "block_type", Reason: "unknown type " + blockType}
	}
	return validateSettings(settings)
}

func validateSettings(settings map[string]interface{}) error {
	if settings == nil {
		return nil
	}
	if _, err := json.Marshal(settings); err != nil {
		return &ValidationError{Field: "settings", Reason: "not serializable"}
	}
	return nil
}

// invalidateIfGlobal drops the storefront's globals cache entries when any
// of the mutated section types is a global slot. Called only after the
// write committed.
func (s *Service) invalidateIfGlobal(ctx context.Context, sf storefront.Storefront, sectionTypes ...string) {
	if s.invalidator == nil {
		return
	}
	for _, sectionType := range sectionTypes {
		if template.IsGlobalSectionType(sectionType) {
			s.invalidator.InvalidateGlobals(ctx, sf.Subdomain)
			return
		}
	}
}

// invalidateIfHomepage drops the storefront's globals cache entries when any
// of the given template types is homepage. Globals are derived from the
// homepage template, so enabling, disabling, or retyping one changes them.
func (s *Service) invalidateIfHomepage(ctx context.Context, sf storefront.Storefront, templateTypes ...string) {
	if s.invalidator == nil {
		return
	}
	for _, templateType := range templateTypes {
		if templateType == template.TypeHomepage {
			s.invalidator.InvalidateGlobals(ctx, sf.Subdomain)
			return
		}
	}
}

func themeCodeFor(sf storefront.Storefront, tpl template.Template) string {
	if tpl.ThemeCode != "" {
		return tpl.ThemeCode
	}
	return sf.ThemeCode
}
