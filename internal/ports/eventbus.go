// Package ports declares the contracts between the services and the
// adapters that back them.
package ports

import (
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
)

// EventBus carries notifications from the services to their listeners.
// Services publish song state changes, download progress and outcomes,
// index loads and user-facing errors; the CLI and tests subscribe.
//
//	id := bus.SubscribeWhere(domain.ForVariant(uniqueID), func(event domain.Event) {
//	    if e, ok := event.(domain.DownloadProgressEvent); ok {
//	        bar.Set(e.Progress)
//	    }
//	})
//	defer bus.Unsubscribe(id)
//
// Implementations must be safe for concurrent use: download tasks publish
// from their own goroutines.
type EventBus interface {
	// Publish delivers the event to every matching handler. Handlers must
	// return quickly; they run on the publisher's goroutine.
	Publish(event domain.Event)

	// Subscribe registers a handler for one event type.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// SubscribeAll registers a handler for every event.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// SubscribeWhere registers a handler for every event the filter accepts,
	// whatever its type.
	SubscribeWhere(filter domain.EventFilter, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes a subscription. Unknown ids are ignored.
	Unsubscribe(id domain.SubscriptionID)

	// HasSubscribers reports whether publishing eventType could reach a handler.
	HasSubscribers(eventType domain.EventType) bool

	// Close drops all subscriptions. Later publishes are ignored.
	Close() error
}
