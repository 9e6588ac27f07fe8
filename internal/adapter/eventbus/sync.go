// Package eventbus delivers domain events from the services to whoever
// listens: the CLI, tests, or a future UI.
package eventbus

import (
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

// ErrClosed is returned by Close on a bus that is already closed.
var ErrClosed = errors.New("event bus closed")

// SyncEventBus delivers events on the publishing goroutine, to handlers in
// the order they subscribed, regardless of how they subscribed. A download
// task publishes from its own goroutine, so its progress events always reach
// a handler before its terminal event.
//
// It is safe for concurrent use.
type SyncEventBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []subscription
	seq    uint64
	closed bool
}

// subscription matches events either by type or by filter. A subscription
// with neither matches everything.
type subscription struct {
	id        domain.SubscriptionID
	eventType domain.EventType
	filter    domain.EventFilter
	handler   domain.EventHandler
}

func (s subscription) matches(event domain.Event) bool {
	if s.eventType != "" && s.eventType != event.Type() {
		return false
	}
	return s.filter == nil || s.filter(event)
}

// NewSyncEventBus creates an empty bus.
func NewSyncEventBus() *SyncEventBus {
	return &SyncEventBus{}
}

// SetLogger sets the logger used for handler panics and debug tracing.
func (bus *SyncEventBus) SetLogger(logger *slog.Logger) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.logger = logger
}

// Publish hands the event to every matching handler. A panicking handler is
// logged and skipped. Publishing on a closed bus drops the event.
func (bus *SyncEventBus) Publish(event domain.Event) {
	if event == nil {
		return
	}

	bus.mu.RLock()
	logger := bus.logger
	if bus.closed {
		bus.mu.RUnlock()
		if logger != nil {
			logger.Debug("event dropped on closed bus", slog.String("event_type", string(event.Type())))
		}
		return
	}
	// Filters run outside the lock; they may call back into the bus.
	subs := slices.Clone(bus.subs)
	bus.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if !sub.matches(event) {
			continue
		}
		delivered++
		bus.deliver(logger, sub, event)
	}

	if logger != nil && delivered > 0 {
		logger.Debug("event published",
			slog.String("event_type", string(event.Type())),
			slog.Int("handlers", delivered))
	}
}

func (bus *SyncEventBus) deliver(logger *slog.Logger, sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("event handler panicked",
				slog.Any("panic", r),
				slog.String("subscription", string(sub.id)),
				slog.String("event_type", string(event.Type())))
		}
	}()
	sub.handler(event)
}

// Subscribe registers a handler for one event type.
func (bus *SyncEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID {
	return bus.add(subscription{eventType: eventType, handler: handler})
}

// SubscribeAll registers a handler for every event.
func (bus *SyncEventBus) SubscribeAll(handler domain.EventHandler) domain.SubscriptionID {
	return bus.add(subscription{handler: handler})
}

// SubscribeWhere registers a handler for the events the filter accepts. A nil
// filter behaves like SubscribeAll.
func (bus *SyncEventBus) SubscribeWhere(filter domain.EventFilter, handler domain.EventHandler) domain.SubscriptionID {
	return bus.add(subscription{filter: filter, handler: handler})
}

// add appends the subscription. Subscribing to a closed bus returns an empty
// id and the handler is never called.
func (bus *SyncEventBus) add(sub subscription) domain.SubscriptionID {
	if sub.handler == nil {
		panic("eventbus: nil handler")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		if bus.logger != nil {
			bus.logger.Debug("subscription ignored on closed bus", slog.String("event_type", string(sub.eventType)))
		}
		return ""
	}

	bus.seq++
	sub.id = domain.SubscriptionID("sub-" + strconv.FormatUint(bus.seq, 10))
	bus.subs = append(bus.subs, sub)
	return sub.id
}

// Unsubscribe removes a subscription, keeping the others in order. Unknown
// ids are ignored.
func (bus *SyncEventBus) Unsubscribe(id domain.SubscriptionID) {
	if id == "" {
		return
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.subs = slices.DeleteFunc(bus.subs, func(s subscription) bool { return s.id == id })
}

// HasSubscribers reports whether an event of the given type could reach any
// handler. Filtered subscriptions count since their filter is only known at
// publish time.
func (bus *SyncEventBus) HasSubscribers(eventType domain.EventType) bool {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	return slices.ContainsFunc(bus.subs, func(s subscription) bool {
		return s.eventType == "" || s.eventType == eventType
	})
}

// SubscriberCount returns the number of live subscriptions.
func (bus *SyncEventBus) SubscriberCount() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.subs)
}

// Close drops every subscription. Later publishes are ignored.
func (bus *SyncEventBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return ErrClosed
	}
	bus.closed = true
	bus.subs = nil
	return nil
}

var _ ports.EventBus = (*SyncEventBus)(nil)
