package sink

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// MessageKey is the stream field holding a base64 encoded JSON product
const MessageKey = "b64_product"

// RedisSink publishes each product to a Redis stream for downstream consumers
type RedisSink struct {
	client          *redis.Client
	stream          string
	streamMaxLength int
	log             *logger.Logger
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a new Redis stream sink
func NewRedisSink(addr string, db int, stream string, streamMaxLength int) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisSink{
		client:          client,
		stream:          stream,
		streamMaxLength: streamMaxLength,
		log:             logger.ForSink("redis"),
	}
}

func (s *RedisSink) Name() string { return "redis" }

// Ping checks the connection
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveBatch adds one stream entry per product and trims the stream afterwards.
// The message is base64 encoded before publishing.
func (s *RedisSink) SaveBatch(ctx context.Context, records []product.ScrapedProduct) (BatchResult, error) {
	var result BatchResult
	if len(records) == 0 {
		return result, nil
	}
	if err := s.Ping(ctx); err != nil {
		return result, errors.NewSink(s.Name(), "redis unavailable", err)
	}

	for i, p := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		body, err := json.Marshal(p)
		if err != nil {
			result.Failures = append(result.Failures, RecordFailure{Sink: s.Name(), Index: i, ProductURL: p.ProductURL, Err: err})
			continue
		}

		err = s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				MessageKey: base64.StdEncoding.EncodeToString(body),
			},
		}).Err()
		if err != nil {
			s.log.Error().Err(err).Int("index", i).Str("url", p.ProductURL).Msg("Failed to publish product")
			result.Failures = append(result.Failures, RecordFailure{Sink: s.Name(), Index: i, ProductURL: p.ProductURL, Err: err})
			continue
		}
		result.Saved++
	}

	if err := s.TrimStream(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to trim stream")
	}
	return result, nil
}

// TrimStream trims the stream to the configured maximum length
func (s *RedisSink) TrimStream(ctx context.Context) error {
	if s.streamMaxLength <= 0 {
		return nil
	}
	return s.client.XTrimMaxLen(ctx, s.stream, int64(s.streamMaxLength)).Err()
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	return s.client.Close()
}
