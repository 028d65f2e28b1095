package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shoplight/storefront/internal/app/services/composition"
	"github.com/shoplight/storefront/internal/app/services/customization"
	"github.com/shoplight/storefront/internal/app/services/invalidation"
	storefrontsvc "github.com/shoplight/storefront/internal/app/services/storefronts"
	"github.com/shoplight/storefront/internal/app/services/themes"
	"github.com/shoplight/storefront/internal/app/storage"
	"github.com/shoplight/storefront/internal/app/storage/memory"
	"github.com/shoplight/storefront/internal/app/system"
	"github.com/shoplight/storefront/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Storefronts storage.StorefrontStore
	Templates   storage.TemplateStore
	Sections    storage.SectionStore
}

// Options tunes optional application behavior.
type Options struct {
	// Manifests supplies theme manifests. Defaults to reading ./themes.
	Manifests themes.ManifestSource
	// GlobalsTTL bounds the age of cached global sections. Zero uses the
	// janitor default.
	GlobalsTTL time.Duration
	// Redis, when set, broadcasts cache invalidations to peer instances.
	Redis *redis.Client
	// InvalidationChannel overrides the pub/sub channel name.
	InvalidationChannel string
}

// Application ties the storefront services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Storefronts   *storefrontsvc.Service
	Themes        *themes.Registry
	Catalog       *themes.Catalog
	Globals       *composition.GlobalsLoader
	Resolver      *composition.Resolver
	Customization *customization.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Storefronts == nil {
		stores.Storefronts = mem
	}
	if stores.Templates == nil {
		stores.Templates = mem
	}
	if stores.Sections == nil {
		stores.Sections = mem
	}
	if opts.Manifests == nil {
		opts.Manifests = themes.NewDirSource("themes")
	}

	manager := system.NewManager()

	registry := themes.NewRegistry(opts.Manifests, log)
	catalog := themes.NewCatalog(registry)

	cache := composition.NewGlobalsCache()
	globals := composition.NewGlobalsLoader(stores.Storefronts, stores.Templates, stores.Sections, cache, log)
	resolver := composition.NewResolver(stores.Storefronts, stores.Templates, stores.Sections, catalog, globals, log)

	var invalidator customization.GlobalsInvalidator = invalidation.NewLocal(cache)
	if opts.Redis != nil {
		publisher := invalidation.NewRedisPublisher(opts.Redis)
		invalidator = invalidation.NewBroadcaster(cache, publisher, opts.InvalidationChannel, log)
		subscriber := invalidation.NewSubscriber(opts.Redis, cache, opts.InvalidationChannel, log)
		if err := manager.Register(subscriber); err != nil {
			return nil, fmt.Errorf("register %s: %w", subscriber.Name(), err)
		}
	}

	custom := customization.New(stores.Storefronts, stores.Templates, stores.Sections, catalog, invalidator, log)
	sfService := storefrontsvc.New(stores.Storefronts, registry, log)

	janitor := composition.NewJanitor(cache, opts.GlobalsTTL, log)
	if err := manager.Register(janitor); err != nil {
		return nil, fmt.Errorf("register %s: %w", janitor.Name(), err)
	}

	return &Application{
		manager:       manager,
		log:           log,
		Storefronts:   sfService,
		Themes:        registry,
		Catalog:       catalog,
		Globals:       globals,
		Resolver:      resolver,
		Customization: custom,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
