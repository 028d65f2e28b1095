// Package composition resolves storefront pages: it loads the applicable
// template, merges stored section settings over theme defaults, and splices
// in the per-store global sections (announcement bar, header, footer).
package composition

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shoplight/storefront/internal/app/domain/template"
	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/internal/app/storage"
	"github.com/shoplight/storefront/pkg/logger"
)

// globalsKey identifies one cache entry. The page-type component of the
// lookup is always forced to the homepage template, so it is not part of the
// key: global sections have a single source of truth per storefront+theme.
type globalsKey struct {
	Subdomain string
	ThemeCode string
}

type globalsEntry struct {
	value    template.GlobalSections
	storedAt time.Time
}

// GlobalsCache is the process-local cache of resolved global section
// triples. Entries are immutable once published; invalidation removes them
// so the next read repopulates. A stale write racing an invalidation is
// tolerated (last writer wins) because any later edit invalidates again.
type GlobalsCache struct {
	mu      sync.RWMutex
	entries map[globalsKey]globalsEntry
}

// NewGlobalsCache creates an empty cache.
func NewGlobalsCache() *GlobalsCache {
	return &GlobalsCache{entries: make(map[globalsKey]globalsEntry)}
}

func (c *GlobalsCache) get(key globalsKey) (template.GlobalSections, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return template.GlobalSections{}, false
	}
	return entry.value.Clone(), true
}

func (c *GlobalsCache) put(key globalsKey, value template.GlobalSections) {
	entry := globalsEntry{value: value.Clone(), storedAt: time.Now()}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Invalidate removes every entry for the given subdomain, across theme
// codes. Returns the number of entries dropped.
func (c *GlobalsCache) Invalidate(subdomain string) int {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key := range c.entries {
		if key.Subdomain == subdomain {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Clear drops all entries.
func (c *GlobalsCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[globalsKey]globalsEntry)
	c.mu.Unlock()
}

// SweepOlderThan drops entries stored longer ago than ttl and returns how
// many were removed. Bounds staleness for deployments without an
// invalidation broadcast.
func (c *GlobalsCache) SweepOlderThan(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of cached entries.
func (c *GlobalsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GlobalsLoader derives the announcement-bar/header/footer triple for a
// storefront from its homepage template and caches the result.
type GlobalsLoader struct {
	storefronts storage.StorefrontStore
	templates   storage.TemplateStore
	sections    storage.SectionStore
	cache       *GlobalsCache
	log         *logger.Logger
}

// NewGlobalsLoader creates a loader. A nil cache gets a fresh one; tests use
// that to isolate cache state per case.
func NewGlobalsLoader(storefronts storage.StorefrontStore, templates storage.TemplateStore, sections storage.SectionStore, cache *GlobalsCache, log *logger.Logger) *GlobalsLoader {
	if cache == nil {
		cache = NewGlobalsCache()
	}
	if log == nil {
		log = logger.NewDefault("globals")
	}
	return &GlobalsLoader{
		storefronts: storefronts,
		templates:   templates,
		sections:    sections,
		cache:       cache,
		log:         log,
	}
}

// Cache exposes the underlying cache for invalidation wiring.
func (l *GlobalsLoader) Cache() *GlobalsCache {
	return l.cache
}

// GlobalSections returns the global section triple for a storefront. The
// pageType argument is accepted for call-site symmetry but the lookup always
// resolves against the homepage template: globals are defined once per
// storefront+theme and reused on every page. Absence at any level (unknown
// subdomain, no homepage template, missing slot) yields nil slots, never an
// error; the enabled flag is ignored, visibility is the renderer's call.
func (l *GlobalsLoader) GlobalSections(ctx context.Context, subdomain, themeCode, pageType string) (template.GlobalSections, error) {
	_ = pageType // forced to homepage, see above
	key := globalsKey{
		Subdomain: strings.ToLower(strings.TrimSpace(subdomain)),
		ThemeCode: strings.TrimSpace(themeCode),
	}

	if cached, ok := l.cache.get(key); ok {
		metrics.RecordGlobalsCache(true)
		return cached, nil
	}
	metrics.RecordGlobalsCache(false)

	sf, err := l.storefronts.GetStorefrontBySubdomain(ctx, key.Subdomain)
	if err != nil {
		if isNotFound(err) {
			return template.GlobalSections{}, nil
		}
		return template.GlobalSections{}, err
	}

	homepage, err := l.templates.FindTemplate(ctx, sf.ID, template.TypeHomepage, true)
	if err != nil {
		if isNotFound(err) {
			return template.GlobalSections{}, nil
		}
		return template.GlobalSections{}, err
	}

	instances, err := l.sections.ListSections(ctx, homepage.ID, false)
	if err != nil {
		return template.GlobalSections{}, err
	}

	var globals template.GlobalSections
	for i := range instances {
		sec := instances[i]
		switch sec.SectionType {
		case template.SectionAnnouncementBar:
			if globals.AnnouncementBar == nil {
				globals.AnnouncementBar = &sec
			}
		case template.SectionHeader:
			if globals.Header == nil {
				globals.Header = &sec
			}
		case template.SectionFooter:
			if globals.Footer == nil {
				globals.Footer = &sec
			}
		}
	}

	l.cache.put(key, globals)
	return globals.Clone(), nil
}

// ClearCache drops cache entries: all of them when subdomain is empty,
// otherwise only the given storefront's.
func (l *GlobalsLoader) ClearCache(subdomain string) {
	if strings.TrimSpace(subdomain) == "" {
		l.cache.Clear()
		return
	}
	l.cache.Invalidate(subdomain)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
