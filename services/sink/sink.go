// Package sink persists batches of scraped products.
package sink

import (
	"context"
	stderrors "errors"

	"sjsage522/grocerycrawler/internal/product"
)

// Sink receives validated product batches. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Name identifies the sink in logs
	Name() string

	// SaveBatch attempts every record and reports per-record failures. The
	// error is reserved for failures of the whole sink.
	SaveBatch(ctx context.Context, records []product.ScrapedProduct) (BatchResult, error)

	// Close releases the sink's connections
	Close() error
}

// RecordFailure describes one record a sink could not store
type RecordFailure struct {
	Sink       string
	Index      int
	ProductURL string
	Err        error
}

// BatchResult is the outcome of one SaveBatch call
type BatchResult struct {
	Saved    int
	Failures []RecordFailure
}

// MultiSink fans a batch out to several sinks. Saved counts the first sink;
// failures of every sink are reported.
type MultiSink struct {
	sinks []Sink
}

var _ Sink = (*MultiSink)(nil)

// NewMultiSink combines sinks in order
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Name returns the name of the first sink
func (m *MultiSink) Name() string {
	if len(m.sinks) == 0 {
		return "none"
	}
	name := m.sinks[0].Name()
	for _, s := range m.sinks[1:] {
		name += "+" + s.Name()
	}
	return name
}

// SaveBatch writes the batch to every sink, continuing past failed sinks
func (m *MultiSink) SaveBatch(ctx context.Context, records []product.ScrapedProduct) (BatchResult, error) {
	var result BatchResult
	var errs []error
	for i, s := range m.sinks {
		r, err := s.SaveBatch(ctx, records)
		if err != nil {
			errs = append(errs, err)
		}
		if i == 0 {
			result.Saved = r.Saved
		}
		result.Failures = append(result.Failures, r.Failures...)
	}
	return result, stderrors.Join(errs...)
}

// Close closes every sink
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
