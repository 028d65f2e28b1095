// Package invalidation propagates global-sections cache invalidations,
// either to the in-process cache alone or across instances over redis
// pub/sub.
package invalidation

import (
	"context"

	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/internal/app/services/composition"
	"github.com/shoplight/storefront/pkg/logger"
)

// Local invalidates the in-process globals cache. It is the default
// invalidator for single-instance deployments.
type Local struct {
	cache *composition.GlobalsCache
}

// NewLocal wraps cache. A nil cache yields a no-op invalidator.
func NewLocal(cache *composition.GlobalsCache) *Local {
	return &Local{cache: cache}
}

// InvalidateGlobals drops the storefront's cached entries.
func (l *Local) InvalidateGlobals(_ context.Context, subdomain string) {
	if l.cache == nil {
		return
	}
	if dropped := l.cache.Invalidate(subdomain); dropped > 0 {
		metrics.RecordGlobalsInvalidation("write")
	}
}

// Broadcaster invalidates the local cache and publishes the invalidation so
// peer instances drop their copies too.
type Broadcaster struct {
	local     *Local
	publisher Publisher
	channel   string
	log       *logger.Logger
}

// Publisher is the redis subset the broadcaster needs.
type Publisher interface {
	Publish(ctx context.Context, channel, payload string) error
}

// NewBroadcaster builds a broadcaster over the local cache and publisher.
func NewBroadcaster(cache *composition.GlobalsCache, publisher Publisher, channel string, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.NewDefault("invalidation")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{
		local:     NewLocal(cache),
		publisher: publisher,
		channel:   channel,
		log:       log,
	}
}

// InvalidateGlobals drops local entries and tells peers to do the same. A
// failed publish is logged, not returned: the write already committed and
// the local cache is already correct.
func (b *Broadcaster) InvalidateGlobals(ctx context.Context, subdomain string) {
	b.local.InvalidateGlobals(ctx, subdomain)
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, b.channel, subdomain); err != nil {
		b.log.WithError(err).WithField("subdomain", subdomain).Warn("publish invalidation")
	}
}
