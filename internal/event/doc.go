// Package event provides a pub-sub event bus for decoupled communication
// between the run engine and its observers in gantry.
//
// The progress aggregator publishes events as items move through the
// pipeline; the dashboard, the plain-mode renderer, and log hooks subscribe
// without the engine knowing who is listening. Publishers never block on
// slow observers beyond the synchronous handler call itself.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// Concrete event types for item transitions live in the progress package,
// which owns the sequence-stamped record of a run. This package defines only
// the run-scoped events ([RunStartedEvent], [RunFinishedEvent]) that carry no
// sequence number.
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics: a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	// Subscribe to specific event types
//	bus.Subscribe("item.transitioned", func(e event.Event) {
//	    // re-render the affected row
//	})
//
//	// Subscribe to all events (useful for debug logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    logger.Debug("event", "type", e.EventType())
//	})
//
//	// Unsubscribe when done
//	id := bus.Subscribe("run.finished", handler)
//	bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - run.started, run.finished
//   - item.transitioned
package event
