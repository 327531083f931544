package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/backend"
)

// deliveryTimeout bounds one backend delivery attempt. Events are
// best-effort; there is no retry queue.
const deliveryTimeout = 10 * time.Second

// crawlLogger is the slice of the backend client this emitter needs.
type crawlLogger interface {
	LogCrawl(ctx context.Context, event backend.CrawlEvent) error
}

// BackendEmitter reports crawl events to the SaaS backend. Each event is
// delivered on its own goroutine so the rendering path never waits on the
// backend.
type BackendEmitter struct {
	client    crawlLogger
	logger    *zap.Logger
	onFailure func()

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewBackendEmitter creates a backend emitter. onFailure, if non-nil, is
// invoked once per failed delivery (used for metrics).
func NewBackendEmitter(client crawlLogger, logger *zap.Logger, onFailure func()) *BackendEmitter {
	return &BackendEmitter{
		client:    client,
		logger:    logger,
		onFailure: onFailure,
	}
}

func (b *BackendEmitter) Emit(event backend.CrawlEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := b.client.LogCrawl(ctx, event); err != nil {
			if b.onFailure != nil {
				b.onFailure()
			}
			b.logger.Warn("Crawl event delivery failed",
				zap.String("domain", event.Domain),
				zap.String("url", event.URL),
				zap.Error(err))
			return
		}

		b.logger.Debug("Crawl event delivered",
			zap.String("domain", event.Domain),
			zap.String("url", event.URL),
			zap.Int64("render_time_ms", event.RenderTimeMS))
	}()
}

// Close waits for in-flight deliveries to finish. New events emitted after
// Close are dropped.
func (b *BackendEmitter) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
