package invalidation

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/shoplight/storefront/internal/app/metrics"
	"github.com/shoplight/storefront/internal/app/services/composition"
	"github.com/shoplight/storefront/pkg/logger"
)

// DefaultChannel is the pub/sub channel invalidations travel on.
const DefaultChannel = "storefront.globals.invalidate"

// RedisPublisher adapts a redis client to the Publisher interface.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends payload on channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel, payload string) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscriber listens for invalidations published by peer instances and
// applies them to the local globals cache. It runs as a managed service.
type Subscriber struct {
	client  *redis.Client
	cache   *composition.GlobalsCache
	channel string
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber builds the subscriber. channel defaults to DefaultChannel.
func NewSubscriber(client *redis.Client, cache *composition.GlobalsCache, channel string, log *logger.Logger) *Subscriber {
	if log == nil {
		log = logger.NewDefault("invalidation-subscriber")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{
		client:  client,
		cache:   cache,
		channel: channel,
		log:     log,
	}
}

// Name implements system.Service.
func (s *Subscriber) Name() string { return "globals-invalidation-subscriber" }

// Start subscribes and begins applying invalidations.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("subscriber already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(runCtx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.apply(msg.Payload)
			}
		}
	}()

	s.log.WithField("channel", s.channel).Info("invalidation subscriber started")
	return nil
}

// Stop unsubscribes and waits for the receive loop to exit.
func (s *Subscriber) Stop(_ context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	return nil
}

func (s *Subscriber) apply(subdomain string) {
	if s.cache == nil || subdomain == "" {
		return
	}
	if dropped := s.cache.Invalidate(subdomain); dropped > 0 {
		metrics.RecordGlobalsInvalidation("broadcast")
		s.log.WithField("subdomain", subdomain).Debug("globals invalidated by peer")
	}
}
