package themes

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shoplight/storefront/internal/app/domain/theme"
	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/pkg/logger"
)

// ErrThemeNotFound is returned when neither the requested theme nor the base
// fallback can be loaded. It is fatal to a render.
var ErrThemeNotFound = errors.New("theme not found")

// Registry loads theme modules and memoizes them per theme code for the
// process lifetime. A memoized module is immutable; ClearCache drops all
// entries (development hot-reload only).
type Registry struct {
	source ManifestSource
	log    *logger.Logger

	mu      sync.RWMutex
	modules map[string]*theme.Module
}

// NewRegistry creates a registry over the given manifest source.
func NewRegistry(source ManifestSource, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("themes")
	}
	return &Registry{
		source:  source,
		log:     log,
		modules: make(map[string]*theme.Module),
	}
}

// LoadTheme resolves a theme code to its module. A code that resolves to
// nothing (or whose manifest fails to load) falls back to the base theme
// once; only when base itself is unavailable does the call fail with
// ErrThemeNotFound. Results, including fallback results, are memoized under
// the requested code so repeat lookups cost one map read.
func (r *Registry) LoadTheme(themeCode string) (*theme.Module, error) {
	code := strings.TrimSpace(themeCode)
	if code == "" {
		code = theme.BaseCode
	}

	r.mu.RLock()
	module, ok := r.modules[code]
	r.mu.RUnlock()
	if ok {
		metrics.RecordThemeCache(true)
		return module, nil
	}
	metrics.RecordThemeCache(false)

	manifest, err := r.source.Load(code)
	if err != nil {
		if code == theme.BaseCode {
			return nil, fmt.Errorf("theme %s: %w", code, ErrThemeNotFound)
		}
		r.log.WithField("theme", code).WithError(err).Warn("theme unavailable, falling back to base")
		base, baseErr := r.LoadTheme(theme.BaseCode)
		if baseErr != nil {
			return nil, fmt.Errorf("theme %s (and base fallback): %w", code, ErrThemeNotFound)
		}
		r.memoize(code, base)
		return base, nil
	}

	module = theme.NewModule(manifest)
	r.memoize(code, module)
	r.log.WithField("theme", code).WithField("version", manifest.Version).Info("theme module loaded")
	return module, nil
}

func (r *Registry) memoize(code string, module *theme.Module) {
	r.mu.Lock()
	// Keep the first published entry if another request populated it.
	if _, ok := r.modules[code]; !ok {
		r.modules[code] = module
	}
	r.mu.Unlock()
}

// ClearCache drops every memoized module. Intended for development
// hot-reload; steady-state production never needs it.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.modules = make(map[string]*theme.Module)
	r.mu.Unlock()
}
