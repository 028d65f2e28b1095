package composition

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/internal/app/system"
	"github.com/shoplight/storefront/pkg/logger"
)

var _ system.Service = (*Janitor)(nil)

// Janitor periodically drops aged global-sections cache entries. It bounds
// staleness in deployments where write-path invalidation cannot reach every
// instance (no broadcast configured).
type Janitor struct {
	cache *GlobalsCache
	ttl   time.Duration
	log   *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewJanitor creates a janitor sweeping the cache with the given TTL. A
// non-positive TTL defaults to five minutes.
func NewJanitor(cache *GlobalsCache, ttl time.Duration, log *logger.Logger) *Janitor {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault("globals-janitor")
	}
	return &Janitor{cache: cache, ttl: ttl, log: log}
}

func (j *Janitor) Name() string { return "globals-cache-janitor" }

func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	runner := cron.New()
	runner.Schedule(cron.Every(j.ttl/2), cron.FuncJob(func() {
		if dropped := j.cache.SweepOlderThan(j.ttl); dropped > 0 {
			metrics.RecordGlobalsInvalidation("ttl")
			j.log.WithField("dropped", dropped).Debug("swept aged globals cache entries")
		}
	}))
	runner.Start()

	j.cron = runner
	j.running = true
	j.log.WithField("ttl", j.ttl.String()).Info("globals cache janitor started")
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return nil
	}

	stopCtx := j.cron.Stop()
	j.cron = nil
	j.running = false

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	j.log.Info("globals cache janitor stopped")
	return nil
}
