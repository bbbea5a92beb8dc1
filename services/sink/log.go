package sink

import (
	"context"

	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/logger"
)

const logSample = 5

// LogSink writes a preview of each batch to the log instead of storing it
type LogSink struct {
	log *logger.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a log sink
func NewLogSink() *LogSink {
	return &LogSink{log: logger.ForSink("log")}
}

func (s *LogSink) Name() string { return "log" }

// SaveBatch logs the batch size and the first few records
func (s *LogSink) SaveBatch(ctx context.Context, records []product.ScrapedProduct) (BatchResult, error) {
	s.log.Info().Int("count", len(records)).Msg("Received batch")
	for i, p := range records {
		if i == logSample {
			break
		}
		event := s.log.Info().
			Str("name", p.Name).
			Float64("price", p.Price).
			Str("store", p.Store).
			Str("category", p.Category).
			Str("url", p.ProductURL)
		if p.OldPrice != nil {
			event = event.Float64("old_price", *p.OldPrice)
		}
		event.Msg("Product")
	}
	return BatchResult{Saved: len(records)}, nil
}

func (s *LogSink) Close() error { return nil }
