package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is the part of a pgx pool the sink uses
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

type connectFunc func(ctx context.Context, databaseURL string) (execer, error)

// PostgresSink inserts products into an existing table. The pool is opened
// on the first batch and reused until Close.
type PostgresSink struct {
	databaseURL string
	insertSQL   string
	connect     connectFunc
	log         *logger.Logger

	mu sync.Mutex
	db execer
}

var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink creates a sink writing to table. The table may be schema qualified.
func NewPostgresSink(databaseURL, table string) *PostgresSink {
	return &PostgresSink{
		databaseURL: databaseURL,
		insertSQL:   insertStatement(table),
		connect:     connectPool,
		log:         logger.ForSink("postgres"),
	}
}

func connectPool(ctx context.Context, databaseURL string) (execer, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func insertStatement(table string) string {
	ident := pgx.Identifier(strings.Split(table, "."))
	return `INSERT INTO ` + ident.Sanitize() + ` (name, price, "oldPrice", "imageUrl", store, category, "categoryUrl", "lastUpdated", product_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) conn(ctx context.Context) (execer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := s.connect(ctx, s.databaseURL)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.log.Info().Msg("Connected to database")
	return db, nil
}

// SaveBatch inserts every record independently. Failed inserts are reported
// and the rest of the batch continues; nothing is rolled back.
func (s *PostgresSink) SaveBatch(ctx context.Context, records []product.ScrapedProduct) (BatchResult, error) {
	var result BatchResult
	if len(records) == 0 {
		return result, nil
	}

	db, err := s.conn(ctx)
	if err != nil {
		return result, errors.NewSink(s.Name(), "database unavailable", err)
	}

	for i, p := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := db.Exec(ctx, s.insertSQL,
			p.Name, p.Price, p.OldPrice, nullable(p.ImageURL), p.Store, p.Category,
			nullable(p.CategoryURL), p.LastUpdated, p.ProductURL,
		)
		if err != nil {
			s.log.Error().Err(err).Int("index", i).Str("url", p.ProductURL).Msg("Failed to save product")
			result.Failures = append(result.Failures, RecordFailure{Sink: s.Name(), Index: i, ProductURL: p.ProductURL, Err: err})
			continue
		}
		result.Saved++
	}

	s.log.Debug().Int("saved", result.Saved).Int("failed", len(result.Failures)).Msg("Batch stored")
	return result, nil
}

// Close closes the pool if it was opened
func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
