// Package telemetry delivers crawl events to their sinks. Delivery is
// fire-and-forget: a sink outage never delays or fails the request that
// produced the event.
package telemetry

import "github.com/crawlable/edge/internal/backend"

// Emitter is a crawl-event sink.
type Emitter interface {
	// Emit sends an event. Non-blocking; errors are logged internally,
	// never returned to the caller.
	Emit(event backend.CrawlEvent)

	// Close flushes and shuts down the emitter.
	Close() error
}

// NoopEmitter drops every event. Used in tests and when telemetry is
// disabled.
type NoopEmitter struct{}

func (NoopEmitter) Emit(event backend.CrawlEvent) {}

func (NoopEmitter) Close() error { return nil }
