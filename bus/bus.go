// Package bus implements the in-process publish/subscribe mechanism
// decoupling the protocol engine from the transport, discovery and audit
// collaborators. Events are fanned out to all subscribers of a topic
// sequentially and the publisher awaits each subscriber before Publish
// returns: publish-order equals delivery-order per topic, with no ordering
// guarantee across different topics published concurrently by different
// sessions. Handlers must not assume a global total order.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/feedmesh/logging"
	"github.com/hupe1980/feedmesh/metrics"
)

// Handler processes a single event. Returning an error does not stop the
// fan-out to the remaining subscribers; all handler errors are joined and
// returned to the publisher.
type Handler func(ctx context.Context, ev Event) error

// Options configures a Bus instance.
type Options struct {
	// Logger used for subscriber bookkeeping and handler failures.
	// Defaults to NoOp if nil.
	Logger logging.Logger
}

// Bus is a synchronous topic-based event dispatcher. The zero value is not
// usable; construct with New. Safe for concurrent Publish/Subscribe, and
// handlers may themselves publish or subscribe without deadlocking.
type Bus struct {
	logger logging.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]*subscription
}

type subscription struct {
	id      int
	handler Handler
}

// New constructs an empty Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		logger: opts.Logger,
		subs:   make(map[Topic][]*subscription),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Subscribers are invoked in subscription order. Unsubscribing
// twice is a no-op.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: h}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber of its topic, sequentially, in
// subscription order, awaiting each before moving on. Zero subscribers is
// legal and returns nil. Handler errors are collected and joined; a failing
// handler never prevents delivery to the rest.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	topic := ev.Topic()

	// Snapshot under read lock so handlers can publish or (un)subscribe
	// without deadlocking the fan-out.
	b.mu.RLock()
	snapshot := make([]*subscription, len(b.subs[topic]))
	copy(snapshot, b.subs[topic])
	b.mu.RUnlock()

	start := time.Now()
	var errs []error
	for _, sub := range snapshot {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := sub.handler(ctx, ev); err != nil {
			b.logger.Warn("bus subscriber failed", "topic", string(topic), "error", err)
			errs = append(errs, err)
		}
	}
	metrics.BusPublishDuration.WithLabelValues(string(topic)).Observe(time.Since(start).Seconds())

	return errors.Join(errs...)
}

// SubscriberCount returns the number of active subscriptions for a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
