package telemetry

import (
	"errors"

	"github.com/crawlable/edge/internal/backend"
)

// MultiEmitter fans each event out to every configured sink.
type MultiEmitter struct {
	emitters []Emitter
}

func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event backend.CrawlEvent) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

// Close closes all sinks and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
