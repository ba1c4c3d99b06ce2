// Package events carries administrator broadcast items over Redis Pub/Sub.
// The queue has at-least-once semantics; consumers are responsible for
// dedup.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// broadcastChannel is the single Redis channel for admin push items.
const broadcastChannel = "broadcast:push"

// Config holds configuration for RedisBroadcaster.
type Config struct {
	PublishTimeout  time.Duration
	EventBufferSize int
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		PublishTimeout:  5 * time.Second,
		EventBufferSize: 100,
	}
}

// Broadcaster publishes and subscribes to broadcast change events.
type Broadcaster interface {
	Publish(ctx context.Context, item types.BroadcastItem) error
	Subscribe(ctx context.Context, consumerID string) (<-chan types.ChangeEvent, error)
	Unsubscribe(ctx context.Context, consumerID string) error
	Shutdown(ctx context.Context) error
}

// metrics holds Prometheus metrics for the broadcaster.
type metrics struct {
	publishLatency    prometheus.Histogram
	errorCount        *prometheus.CounterVec
	eventCount        *prometheus.CounterVec
	activeSubscribers prometheus.Gauge
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

// newMetrics initializes and registers Prometheus metrics using a singleton
// pattern to avoid double registration in tests.
func newMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			publishLatency: promauto.With(defaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "broadcast_publish_duration_seconds",
				Help:    "Time taken to publish broadcast items",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			}),
			errorCount: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "broadcast_errors_total",
				Help: "Total number of broadcast-related errors",
			}, []string{"operation", "type"}),
			eventCount: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "broadcast_events_total",
				Help: "Total number of broadcast events by operation",
			}, []string{"operation"}),
			activeSubscribers: promauto.With(defaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "broadcast_active_subscribers",
				Help: "Current number of active broadcast subscribers",
			}),
		}
	})
	return metricsInstance
}

// RedisBroadcaster implements Broadcaster using Redis Pub/Sub.
type RedisBroadcaster struct {
	rdb     *redis.Client
	log     *zap.SugaredLogger
	metrics *metrics
	config  Config
	mu      sync.RWMutex
	subs    map[string]*subscription
	wg      sync.WaitGroup
}

type subscription struct {
	pubsub    *redis.PubSub
	cancelCtx context.CancelFunc
	closeOnce sync.Once // Ensures pubsub is closed exactly once
}

// NewRedisBroadcaster creates a new RedisBroadcaster instance.
func NewRedisBroadcaster(rdb *redis.Client, cfg ...Config) *RedisBroadcaster {
	config := DefaultConfig()
	if len(cfg) > 0 {
		config = cfg[0]
	}

	return &RedisBroadcaster{
		rdb:     rdb,
		log:     logger.GetLogger().Named("broadcast"),
		metrics: newMetrics(),
		config:  config,
		subs:    make(map[string]*subscription),
	}
}

// Publish validates and publishes a broadcast item as an "added" change
// event. Missing id and timestamp are assigned here, keeping store order
// and event order aligned.
func (b *RedisBroadcaster) Publish(ctx context.Context, item types.BroadcastItem) error {
	start := time.Now()
	defer func() {
		b.metrics.publishLatency.Observe(time.Since(start).Seconds())
	}()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.Mode == "" {
		item.Mode = types.DeliveryModeLocal
	}

	if err := item.Validate(); err != nil {
		b.metrics.errorCount.WithLabelValues("publish", "validation").Inc()
		return fmt.Errorf("invalid broadcast item: %w", err)
	}

	event := types.ChangeEvent{Type: types.ChangeAdded, Item: item}
	data, err := json.Marshal(event)
	if err != nil {
		b.metrics.errorCount.WithLabelValues("publish", "marshal").Inc()
		return fmt.Errorf("marshal change event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, broadcastChannel, data).Err(); err != nil {
		b.metrics.errorCount.WithLabelValues("publish", "redis").Inc()
		return fmt.Errorf("redis publish: %w", err)
	}

	b.metrics.eventCount.WithLabelValues("publish").Inc()
	return nil
}

// Subscribe opens a change-event stream for one consumer. Events arrive in
// publish order; the returned channel closes on Unsubscribe or Shutdown.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, consumerID string) (<-chan types.ChangeEvent, error) {
	b.mu.Lock()
	if _, exists := b.subs[consumerID]; exists {
		b.mu.Unlock()
		b.metrics.errorCount.WithLabelValues("subscribe", "duplicate").Inc()
		return nil, fmt.Errorf("subscription already exists for consumer %s", consumerID)
	}

	pubsub := b.rdb.Subscribe(ctx, broadcastChannel)
	subCtx, cancel := context.WithCancel(context.Background())
	b.subs[consumerID] = &subscription{pubsub: pubsub, cancelCtx: cancel}
	b.mu.Unlock()

	b.metrics.activeSubscribers.Inc()

	events := make(chan types.ChangeEvent, b.config.EventBufferSize)
	readyCh := make(chan struct{})

	b.wg.Add(1)
	go b.processMessages(subCtx, pubsub, events, consumerID, readyCh)

	select {
	case <-readyCh:
		// Subscription established
	case <-time.After(5 * time.Second):
		b.log.Warnw("Subscription ready timeout", "consumerID", consumerID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return events, nil
}

// processMessages decodes incoming Redis messages into change events.
func (b *RedisBroadcaster) processMessages(ctx context.Context, pubsub *redis.PubSub, events chan<- types.ChangeEvent, consumerID string, readyCh chan<- struct{}) {
	defer b.wg.Done()
	defer func() {
		b.mu.RLock()
		sub, exists := b.subs[consumerID]
		b.mu.RUnlock()

		if exists {
			sub.closeOnce.Do(func() {
				if err := pubsub.Close(); err != nil {
					b.log.Errorw("Error closing pubsub", "error", err, "consumerID", consumerID)
				}
			})
		}

		close(events)
		b.metrics.activeSubscribers.Dec()
		b.log.Infow("Subscription closed", "consumerID", consumerID)
	}()

	ch := pubsub.Channel()
	close(readyCh)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event types.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.metrics.errorCount.WithLabelValues("process", "unmarshal").Inc()
				b.log.Errorw("Failed to unmarshal change event", "error", err, "consumerID", consumerID)
				continue
			}

			// Try to send, drop if the consumer's buffer is full.
			select {
			case events <- event:
				b.metrics.eventCount.WithLabelValues("receive").Inc()
			default:
				b.metrics.errorCount.WithLabelValues("process", "channel_full").Inc()
				b.log.Warnw("Dropped change event due to full channel", "consumerID", consumerID, "itemID", event.Item.ID)
			}
		}
	}
}

// Unsubscribe removes a consumer's subscription.
func (b *RedisBroadcaster) Unsubscribe(ctx context.Context, consumerID string) error {
	b.mu.Lock()
	sub, exists := b.subs[consumerID]
	if !exists {
		b.mu.Unlock()
		return fmt.Errorf("no subscription found for consumer %s", consumerID)
	}

	sub.cancelCtx()

	// Close the pubsub connection exactly once; processMessages may also
	// try to close it on its way out.
	sub.closeOnce.Do(func() {
		if err := sub.pubsub.Close(); err != nil {
			b.log.Errorw("Error closing pubsub during unsubscribe", "error", err, "consumerID", consumerID)
		}
	})

	delete(b.subs, consumerID)
	b.mu.Unlock()

	return nil
}

// Shutdown cancels all subscriptions and waits for their goroutines.
func (b *RedisBroadcaster) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	localSubs := make(map[string]*subscription, len(b.subs))
	for k, v := range b.subs {
		localSubs[k] = v
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	b.log.Infow("Shutting down broadcaster, cancelling subscriptions", "count", len(localSubs))

	for consumerID, sub := range localSubs {
		b.log.Debugw("Cancelling subscription context", "consumerID", consumerID)
		sub.cancelCtx()
	}

	b.wg.Wait()
	b.log.Info("Broadcaster shutdown complete")

	return nil
}
