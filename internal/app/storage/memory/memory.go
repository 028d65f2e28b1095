package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	nextSeq     int64
	storefronts map[string]storefront.Storefront
	bySubdomain map[string]string
	templates   map[string]template.Template
	sections    map[string]template.SectionInstance
	blocks      map[string]template.BlockInstance
	seq         map[string]int64
}

var _ storage.StorefrontStore = (*Store)(nil)
var _ storage.TemplateStore = (*Store)(nil)
var _ storage.SectionStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		nextSeq:     1,
		storefronts: make(map[string]storefront.Storefront),
		bySubdomain: make(map[string]string),
		templates:   make(map[string]template.Template),
		sections:    make(map[string]template.SectionInstance),
		blocks:      make(map[string]template.BlockInstance),
		seq:         make(map[string]int64),
	}
}

func (m *Store) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("%d", id)
}

func (m *Store) nextSeqLocked(id string) {
	m.seq[id] = m.nextSeq
	m.nextSeq++
}

// StorefrontStore implementation ----------------------------------------------

func (m *Store) CreateStorefront(_ context.Context, sf storefront.Storefront) (storefront.Storefront, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sf.Subdomain = strings.ToLower(strings.TrimSpace(sf.Subdomain))
	if sf.Subdomain == "" {
		return storefront.Storefront{}, fmt.Errorf("subdomain is required")
	}
	if _, taken := m.bySubdomain[sf.Subdomain]; taken {
		return storefront.Storefront{}, fmt.Errorf("subdomain %s already in use", sf.Subdomain)
	}
	if sf.ID == "" {
		sf.ID = m.nextIDLocked()
	} else if _, exists := m.storefronts[sf.ID]; exists {
		return storefront.Storefront{}, fmt.Errorf("storefront %s already exists", sf.ID)
	}

	now := time.Now().UTC()
	sf.CreatedAt = now
	sf.UpdatedAt = now

	m.storefronts[sf.ID] = sf
	m.bySubdomain[sf.Subdomain] = sf.ID
	return sf, nil
}

func (m *Store) UpdateStorefront(_ context.Context, sf storefront.Storefront) (storefront.Storefront, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.storefronts[sf.ID]
	if !ok {
		return storefront.Storefront{}, fmt.Errorf("storefront %s: %w", sf.ID, storage.ErrNotFound)
	}

	sf.Subdomain = original.Subdomain
	sf.CreatedAt = original.CreatedAt
	sf.UpdatedAt = time.Now().UTC()

	m.storefronts[sf.ID] = sf
	return sf, nil
}

func (m *Store) GetStorefront(_ context.Context, id string) (storefront.Storefront, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sf, ok := m.storefronts[id]
	if !ok {
		return storefront.Storefront{}, fmt.Errorf("storefront %s: %w", id, storage.ErrNotFound)
	}
	return sf, nil
}

func (m *Store) GetStorefrontBySubdomain(_ context.Context, subdomain string) (storefront.Storefront, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySubdomain[strings.ToLower(strings.TrimSpace(subdomain))]
	if !ok {
		return storefront.Storefront{}, fmt.Errorf("storefront %s: %w", subdomain, storage.ErrNotFound)
	}
	return m.storefronts[id], nil
}

func (m *Store) ListStorefronts(_ context.Context, ownerID string) ([]storefront.Storefront, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]storefront.Storefront, 0)
	for _, sf := range m.storefronts {
		if ownerID == "" || sf.OwnerID == ownerID {
			result = append(result, sf)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// TemplateStore implementation ------------------------------------------------

func (m *Store) CreateTemplate(_ context.Context, tpl template.Template) (template.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tpl.StorefrontID == "" {
		return template.Template{}, fmt.Errorf("storefront_id is required")
	}
	if tpl.ID == "" {
		tpl.ID = m.nextIDLocked()
	} else if _, exists := m.templates[tpl.ID]; exists {
		return template.Template{}, fmt.Errorf("template %s already exists", tpl.ID)
	}

	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	tpl = tpl.Clone()

	m.templates[tpl.ID] = tpl
	m.nextSeqLocked(tpl.ID)
	return tpl.Clone(), nil
}

func (m *Store) UpdateTemplate(_ context.Context, tpl template.Template) (template.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.templates[tpl.ID]
	if !ok {
		return template.Template{}, fmt.Errorf("template %s: %w", tpl.ID, storage.ErrNotFound)
	}

	tpl.StorefrontID = original.StorefrontID
	tpl.CreatedAt = original.CreatedAt
	tpl.UpdatedAt = time.Now().UTC()
	tpl = tpl.Clone()

	m.templates[tpl.ID] = tpl
	return tpl.Clone(), nil
}

func (m *Store) GetTemplate(_ context.Context, id string) (template.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tpl, ok := m.templates[id]
	if !ok {
		return template.Template{}, fmt.Errorf("template %s: %w", id, storage.ErrNotFound)
	}
	return tpl.Clone(), nil
}

func (m *Store) ListTemplates(_ context.Context, storefrontID string) ([]template.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]template.Template, 0)
	for _, tpl := range m.templates {
		if storefrontID == "" || tpl.StorefrontID == storefrontID {
			result = append(result, tpl.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return m.seq[result[i].ID] < m.seq[result[j].ID] })
	return result, nil
}

func (m *Store) FindTemplate(_ context.Context, storefrontID, templateType string, enabledOnly bool) (template.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []template.Template
	for _, tpl := range m.templates {
		if tpl.StorefrontID != storefrontID || tpl.TemplateType != templateType {
			continue
		}
		if enabledOnly && !tpl.Enabled {
			continue
		}
		matches = append(matches, tpl)
	}
	if len(matches) == 0 {
		return template.Template{}, fmt.Errorf("template %s/%s: %w", storefrontID, templateType, storage.ErrNotFound)
	}
	// Most recently updated wins, id as a stable tie-break.
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches[0].Clone(), nil
}

// SectionStore implementation -------------------------------------------------

func (m *Store) CreateSection(_ context.Context, sec template.SectionInstance) (template.SectionInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[sec.TemplateID]; !ok {
		return template.SectionInstance{}, fmt.Errorf("template %s: %w", sec.TemplateID, storage.ErrNotFound)
	}
	if sec.ID == "" {
		sec.ID = m.nextIDLocked()
	} else if _, exists := m.sections[sec.ID]; exists {
		return template.SectionInstance{}, fmt.Errorf("section %s already exists", sec.ID)
	}

	now := time.Now().UTC()
	sec.CreatedAt = now
	sec.UpdatedAt = now
	sec.Blocks = nil
	sec = sec.Clone()

	m.sections[sec.ID] = sec
	m.nextSeqLocked(sec.ID)
	return m.sectionWithBlocksLocked(sec, false), nil
}

func (m *Store) UpdateSection(_ context.Context, sec template.SectionInstance) (template.SectionInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.sections[sec.ID]
	if !ok {
		return template.SectionInstance{}, fmt.Errorf("section %s: %w", sec.ID, storage.ErrNotFound)
	}

	sec.TemplateID = original.TemplateID
	sec.CreatedAt = original.CreatedAt
	sec.UpdatedAt = time.Now().UTC()
	sec.Blocks = nil
	sec = sec.Clone()

	m.sections[sec.ID] = sec
	return m.sectionWithBlocksLocked(sec, false), nil
}

func (m *Store) GetSection(_ context.Context, id string) (template.SectionInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sec, ok := m.sections[id]
	if !ok {
		return template.SectionInstance{}, fmt.Errorf("section %s: %w", id, storage.ErrNotFound)
	}
	return m.sectionWithBlocksLocked(sec, false), nil
}

func (m *Store) DeleteSection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sections[id]; !ok {
		return fmt.Errorf("section %s: %w", id, storage.ErrNotFound)
	}
	delete(m.sections, id)
	for blockID, blk := range m.blocks {
		if blk.SectionID == id {
			delete(m.blocks, blockID)
		}
	}
	return nil
}

func (m *Store) ListSections(_ context.Context, templateID string, enabledOnly bool) ([]template.SectionInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]template.SectionInstance, 0)
	for _, sec := range m.sections {
		if sec.TemplateID != templateID {
			continue
		}
		if enabledOnly && !sec.Enabled {
			continue
		}
		result = append(result, m.sectionWithBlocksLocked(sec, enabledOnly))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return m.seq[result[i].ID] < m.seq[result[j].ID]
	})
	return result, nil
}

func (m *Store) ReorderSections(_ context.Context, templateID string, orderedIDs []string) ([]template.SectionInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range orderedIDs {
		sec, ok := m.sections[id]
		if !ok {
			return nil, fmt.Errorf("section %s: %w", id, storage.ErrNotFound)
		}
		if sec.TemplateID != templateID {
			return nil, fmt.Errorf("section %s does not belong to template %s", id, templateID)
		}
	}

	now := time.Now().UTC()
	result := make([]template.SectionInstance, 0, len(orderedIDs))
	for pos, id := range orderedIDs {
		sec := m.sections[id]
		sec.Position = pos
		sec.UpdatedAt = now
		m.sections[id] = sec
		result = append(result, m.sectionWithBlocksLocked(sec, false))
	}
	return result, nil
}

// Blocks ----------------------------------------------------------------------

func (m *Store) CreateBlock(_ context.Context, blk template.BlockInstance) (template.BlockInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sections[blk.SectionID]; !ok {
		return template.BlockInstance{}, fmt.Errorf("section %s: %w", blk.SectionID, storage.ErrNotFound)
	}
	if blk.ID == "" {
		blk.ID = m.nextIDLocked()
	} else if _, exists := m.blocks[blk.ID]; exists {
		return template.BlockInstance{}, fmt.Errorf("block %s already exists", blk.ID)
	}

	now := time.Now().UTC()
	blk.CreatedAt = now
	blk.UpdatedAt = now
	blk = blk.Clone()

	m.blocks[blk.ID] = blk
	m.nextSeqLocked(blk.ID)
	return blk.Clone(), nil
}

func (m *Store) UpdateBlock(_ context.Context, blk template.BlockInstance) (template.BlockInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.blocks[blk.ID]
	if !ok {
		return template.BlockInstance{}, fmt.Errorf("block %s: %w", blk.ID, storage.ErrNotFound)
	}

	blk.SectionID = original.SectionID
	blk.CreatedAt = original.CreatedAt
	blk.UpdatedAt = time.Now().UTC()
	blk = blk.Clone()

	m.blocks[blk.ID] = blk
	return blk.Clone(), nil
}

func (m *Store) GetBlock(_ context.Context, id string) (template.BlockInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blk, ok := m.blocks[id]
	if !ok {
		return template.BlockInstance{}, fmt.Errorf("block %s: %w", id, storage.ErrNotFound)
	}
	return blk.Clone(), nil
}

func (m *Store) DeleteBlock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[id]; !ok {
		return fmt.Errorf("block %s: %w", id, storage.ErrNotFound)
	}
	delete(m.blocks, id)
	return nil
}

func (m *Store) ReorderBlocks(_ context.Context, sectionID string, orderedIDs []string) ([]template.BlockInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range orderedIDs {
		blk, ok := m.blocks[id]
		if !ok {
			return nil, fmt.Errorf("block %s: %w", id, storage.ErrNotFound)
		}
		if blk.SectionID != sectionID {
			return nil, fmt.Errorf("block %s does not belong to section %s", id, sectionID)
		}
	}

	now := time.Now().UTC()
	result := make([]template.BlockInstance, 0, len(orderedIDs))
	for pos, id := range orderedIDs {
		blk := m.blocks[id]
		blk.Position = pos
		blk.UpdatedAt = now
		m.blocks[id] = blk
		result = append(result, blk.Clone())
	}
	return result, nil
}

// Helpers ----------------------------------------------------------------------

func (m *Store) sectionWithBlocksLocked(sec template.SectionInstance, enabledOnly bool) template.SectionInstance {
	out := sec.Clone()
	blocks := make([]template.BlockInstance, 0)
	for _, blk := range m.blocks {
		if blk.SectionID != sec.ID {
			continue
		}
		if enabledOnly && !blk.Enabled {
			continue
		}
		blocks = append(blocks, blk.Clone())
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Position != blocks[j].Position {
			return blocks[i].Position < blocks[j].Position
		}
		return m.seq[blocks[i].ID] < m.seq[blocks[j].ID]
	})
	out.Blocks = blocks
	return out
}
