// Package storefronts manages storefront records: the tenant anchor that
// templates, sections, and globals hang off.
package storefronts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shoplight/storefront/internal/app/domain/storefront"
	"github.com/shoplight/storefront/internal/app/domain/theme"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage"
	"github.com/shoplight/storefront/pkg/logger"
)

// Subdomains become DNS labels, so the shape is strict.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Service owns storefront CRUD.
type Service struct {
	store    storage.StorefrontStore
	registry *themes.Registry
	log      *logger.Logger
}

// New constructs the service. registry may be nil to skip theme validation.
func New(store storage.StorefrontStore, registry *themes.Registry, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("storefronts")
	}
	return &Service{store: store, registry: registry, log: log}
}

// Create registers a storefront. The theme code defaults to the base theme
// and must resolve to a loadable module.
func (s *Service) Create(ctx context.Context, sf storefront.Storefront) (storefront.Storefront, error) {
	sf.Subdomain = strings.ToLower(strings.TrimSpace(sf.Subdomain))
	if err := s.validate(&sf); err != nil {
		return storefront.Storefront{}, err
	}
	if _, err := s.store.GetStorefrontBySubdomain(ctx, sf.Subdomain); err == nil {
		return storefront.Storefront{}, fmt.Errorf("subdomain %s already taken", sf.Subdomain)
	}

	created, err := s.store.CreateStorefront(ctx, sf)
	if err != nil {
		return storefront.Storefront{}, fmt.Errorf("persist storefront: %w", err)
	}
	s.log.WithField("storefront_id", created.ID).
		WithField("subdomain", created.Subdomain).
		Info("storefront created")
	return created, nil
}

// Update applies changes to an existing storefront. The subdomain is
// immutable once assigned.
func (s *Service) Update(ctx context.Context, sf storefront.Storefront) (storefront.Storefront, error) {
	existing, err := s.store.GetStorefront(ctx, sf.ID)
	if err != nil {
		return storefront.Storefront{}, fmt.Errorf("load storefront: %w", err)
	}
	sf.Subdomain = existing.Subdomain
	sf.OwnerID = existing.OwnerID
	if err := s.validate(&sf); err != nil {
		return storefront.Storefront{}, err
	}

	updated, err := s.store.UpdateStorefront(ctx, sf)
	if err != nil {
		return storefront.Storefront{}, fmt.Errorf("persist storefront: %w", err)
	}
	return updated, nil
}

// Get returns a storefront by ID.
func (s *Service) Get(ctx context.Context, id string) (storefront.Storefront, error) {
	return s.store.GetStorefront(ctx, id)
}

// GetBySubdomain returns a storefront by its subdomain.
func (s *Service) GetBySubdomain(ctx context.Context, subdomain string) (storefront.Storefront, error) {
	return s.store.GetStorefrontBySubdomain(ctx, strings.ToLower(subdomain))
}

// List returns an owner's storefronts, or all storefronts when ownerID is
// empty.
func (s *Service) List(ctx context.Context, ownerID string) ([]storefront.Storefront, error) {
	return s.store.ListStorefronts(ctx, ownerID)
}

func (s *Service) validate(sf *storefront.Storefront) error {
	if sf.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !subdomainPattern.MatchString(sf.Subdomain) {
		return fmt.Errorf("invalid subdomain %q", sf.Subdomain)
	}
	if sf.ThemeCode == "" {
		sf.ThemeCode = theme.BaseCode
	}
	if s.registry != nil {
		if _, err := s.registry.LoadTheme(sf.ThemeCode); err != nil {
			return fmt.Errorf("theme %s: %w", sf.ThemeCode, err)
		}
	}
	return nil
}
