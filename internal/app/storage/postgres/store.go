package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Settings
// maps are flattened to dot-qualified keys before they hit the JSON columns
// and unflattened back to nested form on read.
type Store struct {
	db *sql.DB
}

var _ storage.StorefrontStore = (*Store)(nil)
var _ storage.TemplateStore = (*Store)(nil)
var _ storage.SectionStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func marshalSettings(settings map[string]interface{}) ([]byte, error) {
	if settings == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(template.FlattenSettings(settings))
}

func unmarshalSettings(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil || len(flat) == 0 {
		return nil
	}
	return template.UnflattenSettings(flat)
}

// --- StorefrontStore --------------------------------------------------------

func (s *Store) CreateStorefront(ctx context.Context, sf storefront.Storefront) (storefront.Storefront, error) {
	if sf.ID == "" {
		sf.ID = uuid.NewString()
	}
	sf.Subdomain = strings.ToLower(strings.TrimSpace(sf.Subdomain))
	now := time.Now().UTC()
	sf.CreatedAt = now
	sf.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storefronts (id, owner_id, subdomain, name, theme_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sf.ID, sf.OwnerID, sf.Subdomain, sf.Name, sf.ThemeCode, sf.CreatedAt, sf.UpdatedAt)
	if err != nil {
		return storefront.Storefront{}, err
	}
	return sf, nil
}

func (s *Store) UpdateStorefront(ctx context.Context, sf storefront.Storefront) (storefront.Storefront, error) {
	existing, err := s.GetStorefront(ctx, sf.ID)
	if err != nil {
		return storefront.Storefront{}, err
	}

	sf.Subdomain = existing.Subdomain
	sf.CreatedAt = existing.CreatedAt
	sf.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE storefronts
		SET owner_id = $2, name = $3, theme_code = $4, updated_at = $5
		WHERE id = $1
	`, sf.ID, sf.OwnerID, sf.Name, sf.ThemeCode, sf.UpdatedAt)
	if err != nil {
		return storefront.Storefront{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storefront.Storefront{}, sql.ErrNoRows
	}
	return sf, nil
}

func (s *Store) GetStorefront(ctx context.Context, id string) (storefront.Storefront, error) {
	return s.scanStorefront(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, subdomain, name, theme_code, created_at, updated_at
		FROM storefronts
		WHERE id = $1
	`, id))
}

func (s *Store) GetStorefrontBySubdomain(ctx context.Context, subdomain string) (storefront.Storefront, error) {
	return s.scanStorefront(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, subdomain, name, theme_code, created_at, updated_at
		FROM storefronts
		WHERE subdomain = $1
	`, strings.ToLower(strings.TrimSpace(subdomain))))
}

func (s *Store) scanStorefront(row *sql.Row) (storefront.Storefront, error) {
	var sf storefront.Storefront
	if err := row.Scan(&sf.ID, &sf.OwnerID, &sf.Subdomain, &sf.Name, &sf.ThemeCode, &sf.CreatedAt, &sf.UpdatedAt); err != nil {
		return storefront.Storefront{}, err
	}
	return sf, nil
}

func (s *Store) ListStorefronts(ctx context.Context, ownerID string) ([]storefront.Storefront, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, subdomain, name, theme_code, created_at, updated_at
		FROM storefronts
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []storefront.Storefront
	for rows.Next() {
		var sf storefront.Storefront
		if err := rows.Scan(&sf.ID, &sf.OwnerID, &sf.Subdomain, &sf.Name, &sf.ThemeCode, &sf.CreatedAt, &sf.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, sf)
	}
	return result, rows.Err()
}

// --- TemplateStore ----------------------------------------------------------

func (s *Store) CreateTemplate(ctx context.Context, tpl template.Template) (template.Template, error) {
	if tpl.StorefrontID == "" {
		return template.Template{}, fmt.Errorf("storefront_id required")
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	settingsJSON, err := marshalSettings(tpl.Settings)
	if err != nil {
		return template.Template{}, err
	}
	seoJSON, err := marshalSettings(tpl.SEOSettings)
	if err != nil {
		return template.Template{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO page_templates (id, storefront_id, theme_code, template_type, name, is_default, enabled, settings, seo_settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tpl.ID, tpl.StorefrontID, tpl.ThemeCode, tpl.TemplateType, tpl.Name, tpl.IsDefault, tpl.Enabled, settingsJSON, seoJSON, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return template.Template{}, err
	}
	return tpl, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, tpl template.Template) (template.Template, error) {
	existing, err := s.GetTemplate(ctx, tpl.ID)
	if err != nil {
		return template.Template{}, err
	}

	tpl.StorefrontID = existing.StorefrontID
	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatedAt = time.Now().UTC()

	settingsJSON, err := marshalSettings(tpl.Settings)
	if err != nil {
		return template.Template{}, err
	}
	seoJSON, err := marshalSettings(tpl.SEOSettings)
	if err != nil {
		return template.Template{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE page_templates
		SET theme_code = $2, template_type = $3, name = $4, is_default = $5, enabled = $6, settings = $7, seo_settings = $8, updated_at = $9
		WHERE id = $1
	`, tpl.ID, tpl.ThemeCode, tpl.TemplateType, tpl.Name, tpl.IsDefault, tpl.Enabled, settingsJSON, seoJSON, tpl.UpdatedAt)
	if err != nil {
		return template.Template{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return template.Template{}, sql.ErrNoRows
	}
	return tpl, nil
}

const templateColumns = `id, storefront_id, theme_code, template_type, name, is_default, enabled, settings, seo_settings, created_at, updated_at`

func scanTemplate(scan func(...interface{}) error) (template.Template, error) {
	var (
		tpl         template.Template
		settingsRaw []byte
		seoRaw      []byte
	)
	if err := scan(&tpl.ID, &tpl.StorefrontID, &tpl.ThemeCode, &tpl.TemplateType, &tpl.Name, &tpl.IsDefault, &tpl.Enabled, &settingsRaw, &seoRaw, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return template.Template{}, err
	}
	tpl.Settings = unmarshalSettings(settingsRaw)
	tpl.SEOSettings = unmarshalSettings(seoRaw)
	return tpl, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (template.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM page_templates
		WHERE id = $1
	`, id)
	return scanTemplate(row.Scan)
}

func (s *Store) ListTemplates(ctx context.Context, storefrontID string) ([]template.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM page_templates
		WHERE $1 = '' OR storefront_id = $1
		ORDER BY created_at
	`, storefrontID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []template.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	return result, rows.Err()
}

func (s *Store) FindTemplate(ctx context.Context, storefrontID, templateType string, enabledOnly bool) (template.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM page_templates
		WHERE storefront_id = $1 AND template_type = $2 AND ($3 = false OR enabled = true)
		ORDER BY updated_at DESC, id
		LIMIT 1
	`, storefrontID, templateType, enabledOnly)
	return scanTemplate(row.Scan)
}

// --- SectionStore -----------------------------------------------------------

func (s *Store) CreateSection(ctx context.Context, sec template.SectionInstance) (template.SectionInstance, error) {
	if sec.TemplateID == "" {
		return template.SectionInstance{}, fmt.Errorf("template_id required")
	}
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sec.CreatedAt = now
	sec.UpdatedAt = now

	settingsJSON, err := marshalSettings(sec.Settings)
	if err != nil {
		return template.SectionInstance{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO template_sections (id, template_id, section_type, settings, position, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sec.ID, sec.TemplateID, sec.SectionType, settingsJSON, sec.Position, sec.Enabled, sec.CreatedAt, sec.UpdatedAt)
	if err != nil {
		return template.SectionInstance{}, err
	}
	sec.Blocks = []template.BlockInstance{}
	return sec, nil
}

func (s *Store) UpdateSection(ctx context.Context, sec template.SectionInstance) (template.SectionInstance, error) {
	existing, err := s.GetSection(ctx, sec.ID)
	if err != nil {
		return template.SectionInstance{}, err
	}

	sec.TemplateID = existing.TemplateID
	sec.CreatedAt = existing.CreatedAt
	sec.UpdatedAt = time.Now().UTC()

	settingsJSON, err := marshalSettings(sec.Settings)
	if err != nil {
		return template.SectionInstance{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE template_sections
		SET section_type = $2, settings = $3, position = $4, enabled = $5, updated_at = $6
		WHERE id = $1
	`, sec.ID, sec.SectionType, settingsJSON, sec.Position, sec.Enabled, sec.UpdatedAt)
	if err != nil {
		return template.SectionInstance{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return template.SectionInstance{}, sql.ErrNoRows
	}
	sec.Blocks = existing.Blocks
	return sec, nil
}

const sectionColumns = `id, template_id, section_type, settings, position, enabled, created_at, updated_at`

func scanSection(scan func(...interface{}) error) (template.SectionInstance, error) {
	var (
		sec         template.SectionInstance
		settingsRaw []byte
	)
	if err := scan(&sec.ID, &sec.TemplateID, &sec.SectionType, &settingsRaw, &sec.Position, &sec.Enabled, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
		return template.SectionInstance{}, err
	}
	sec.Settings = unmarshalSettings(settingsRaw)
	return sec, nil
}

func (s *Store) GetSection(ctx context.Context, id string) (template.SectionInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM template_sections
		WHERE id = $1
	`, id)
	sec, err := scanSection(row.Scan)
	if err != nil {
		return template.SectionInstance{}, err
	}
	blocks, err := s.listBlocksForSections(ctx, []string{sec.ID}, false)
	if err != nil {
		return template.SectionInstance{}, err
	}
	sec.Blocks = blocks[sec.ID]
	if sec.Blocks == nil {
		sec.Blocks = []template.BlockInstance{}
	}
	return sec, nil
}

func (s *Store) DeleteSection(ctx context.Context, id string) error {
	// section_blocks rows go with it via ON DELETE CASCADE.
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM template_sections WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListSections(ctx context.Context, templateID string, enabledOnly bool) ([]template.SectionInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sectionColumns+`
		FROM template_sections
		WHERE template_id = $1 AND ($2 = false OR enabled = true)
		ORDER BY position, created_at, id
	`, templateID, enabledOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []template.SectionInstance
	var ids []string
	for rows.Next() {
		sec, err := scanSection(rows.Scan)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
		ids = append(ids, sec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return []template.SectionInstance{}, nil
	}

	blocksBySection, err := s.listBlocksForSections(ctx, ids, enabledOnly)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		sections[i].Blocks = blocksBySection[sections[i].ID]
		if sections[i].Blocks == nil {
			sections[i].Blocks = []template.BlockInstance{}
		}
	}
	return sections, nil
}

func (s *Store) ReorderSections(ctx context.Context, templateID string, orderedIDs []string) ([]template.SectionInstance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for pos, id := range orderedIDs {
		result, err := tx.ExecContext(ctx, `
			UPDATE template_sections
			SET position = $3, updated_at = $4
			WHERE id = $1 AND template_id = $2
		`, id, templateID, pos, now)
		if err != nil {
			return nil, err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return nil, fmt.Errorf("section %s not on template %s: %w", id, templateID, sql.ErrNoRows)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.ListSections(ctx, templateID, false)
}

// --- Blocks -----------------------------------------------------------------

func (s *Store) CreateBlock(ctx context.Context, blk template.BlockInstance) (template.BlockInstance, error) {
	if blk.SectionID == "" {
		return template.BlockInstance{}, fmt.Errorf("section_id required")
	}
	if blk.ID == "" {
		blk.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	blk.CreatedAt = now
	blk.UpdatedAt = now

	settingsJSON, err := marshalSettings(blk.Settings)
	if err != nil {
		return template.BlockInstance{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO section_blocks (id, section_id, block_type, settings, position, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, blk.ID, blk.SectionID, blk.BlockType, settingsJSON, blk.Position, blk.Enabled, blk.CreatedAt, blk.UpdatedAt)
	if err != nil {
		return template.BlockInstance{}, err
	}
	return blk, nil
}

func (s *Store) UpdateBlock(ctx context.Context, blk template.BlockInstance) (template.BlockInstance, error) {
	existing, err := s.GetBlock(ctx, blk.ID)
	if err != nil {
		return template.BlockInstance{}, err
	}

	blk.SectionID = existing.SectionID
	blk.CreatedAt = existing.CreatedAt
	blk.UpdatedAt = time.Now().UTC()

	settingsJSON, err := marshalSettings(blk.Settings)
	if err != nil {
		return template.BlockInstance{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE section_blocks
		SET block_type = $2, settings = $3, position = $4, enabled = $5, updated_at = $6
		WHERE id = $1
	`, blk.ID, blk.BlockType, settingsJSON, blk.Position, blk.Enabled, blk.UpdatedAt)
	if err != nil {
		return template.BlockInstance{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return template.BlockInstance{}, sql.ErrNoRows
	}
	return blk, nil
}

const blockColumns = `id, section_id, block_type, settings, position, enabled, created_at, updated_at`

func scanBlock(scan func(...interface{}) error) (template.BlockInstance, error) {
	var (
		blk         template.BlockInstance
		settingsRaw []byte
	)
	if err := scan(&blk.ID, &blk.SectionID, &blk.BlockType, &settingsRaw, &blk.Position, &blk.Enabled, &blk.CreatedAt, &blk.UpdatedAt); err != nil {
		return template.BlockInstance{}, err
	}
	blk.Settings = unmarshalSettings(settingsRaw)
	return blk, nil
}

func (s *Store) GetBlock(ctx context.Context, id string) (template.BlockInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+blockColumns+`
		FROM section_blocks
		WHERE id = $1
	`, id)
	return scanBlock(row.Scan)
}

func (s *Store) DeleteBlock(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM section_blocks WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ReorderBlocks(ctx context.Context, sectionID string, orderedIDs []string) ([]template.BlockInstance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for pos, id := range orderedIDs {
		result, err := tx.ExecContext(ctx, `
			UPDATE section_blocks
			SET position = $3, updated_at = $4
			WHERE id = $1 AND section_id = $2
		`, id, sectionID, pos, now)
		if err != nil {
			return nil, err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return nil, fmt.Errorf("block %s not in section %s: %w", id, sectionID, sql.ErrNoRows)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	blocks, err := s.listBlocksForSections(ctx, []string{sectionID}, false)
	if err != nil {
		return nil, err
	}
	result := blocks[sectionID]
	if result == nil {
		result = []template.BlockInstance{}
	}
	return result, nil
}

func (s *Store) listBlocksForSections(ctx context.Context, sectionIDs []string, enabledOnly bool) (map[string][]template.BlockInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+blockColumns+`
		FROM section_blocks
		WHERE section_id = ANY($1) AND ($2 = false OR enabled = true)
		ORDER BY position, created_at, id
	`, pq.Array(sectionIDs), enabledOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]template.BlockInstance)
	for rows.Next() {
		blk, err := scanBlock(rows.Scan)
		if err != nil {
			return nil, err
		}
		result[blk.SectionID] = append(result[blk.SectionID], blk)
	}
	return result, rows.Err()
}
