package worker

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"sjsage522/grocerycrawler/config"
	"sjsage522/grocerycrawler/internal/crawler"
	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"
	"sjsage522/grocerycrawler/services/sink"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockScraper implements Scraper for testing
type MockScraper struct {
	mu      sync.Mutex
	results map[string]crawler.ExtractionResult
	errs    map[string]error
	calls   []string
	active  int
	peak    int
	delay   time.Duration
}

// Ensure MockScraper implements Scraper
var _ Scraper = (*MockScraper)(nil)

func NewMockScraper() *MockScraper {
	return &MockScraper{
		results: make(map[string]crawler.ExtractionResult),
		errs:    make(map[string]error),
	}
}

func jobKey(site, category string) string {
	return site + "/" + category
}

func (m *MockScraper) ScrapeCategory(ctx context.Context, profile config.SiteProfile, job config.CategoryJob) (crawler.ExtractionResult, error) {
	key := jobKey(profile.Key, job.CategoryKey)
	m.mu.Lock()
	m.calls = append(m.calls, key)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return crawler.ExtractionResult{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[key], m.errs[key]
}

func (m *MockScraper) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockSink implements sink.Sink for testing
type MockSink struct {
	mu      sync.Mutex
	batches [][]product.ScrapedProduct
	err     error
}

// Ensure MockSink implements sink.Sink
var _ sink.Sink = (*MockSink)(nil)

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) SaveBatch(ctx context.Context, records []product.ScrapedProduct) (sink.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sink.BatchResult{}, m.err
	}
	m.batches = append(m.batches, records)
	return sink.BatchResult{Saved: len(records)}, nil
}

func (m *MockSink) Close() error { return nil }

func (m *MockSink) Products() []product.ScrapedProduct {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.ScrapedProduct
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

type staticBlocker map[string]bool

func (b staticBlocker) IsBlocked(site string) bool { return b[site] }

func testSites() []config.SiteProfile {
	selectors := config.Selectors{Card: ".card", Name: ".name", Price: ".price"}
	return []config.SiteProfile{
		{
			Key: "alpha", Name: "Alpha", BaseURL: "https://alpha.example", Driver: config.DriverHTTP,
			Categories: map[string]string{"meat": "/meat", "fish": "/fish", "drinks": "/drinks"},
			Selectors:  selectors,
		},
		{
			Key: "beta", Name: "Beta", BaseURL: "https://beta.example", Driver: config.DriverHTTP,
			Categories: map[string]string{"meat": "/m"},
			Selectors:  selectors,
		},
	}
}

func products(store string, n int) []product.ScrapedProduct {
	var out []product.ScrapedProduct
	for i := 0; i < n; i++ {
		out = append(out, product.ScrapedProduct{
			Name: fmt.Sprintf("%s item %d", store, i), Price: float64(i + 1), Store: store,
			Category: "Meat", LastUpdated: time.Now().UTC(), ProductURL: fmt.Sprintf("https://%s.example/p/%d", store, i),
		})
	}
	return out
}

func TestRunOnce(t *testing.T) {
	scraper := NewMockScraper()
	scraper.results[jobKey("alpha", "meat")] = crawler.ExtractionResult{Products: products("alpha", 2), Attempted: 3, Skipped: 1}
	scraper.results[jobKey("alpha", "fish")] = crawler.ExtractionResult{Attempted: 0}
	scraper.errs[jobKey("alpha", "drinks")] = fmt.Errorf("unexpected page shape")
	scraper.results[jobKey("beta", "meat")] = crawler.ExtractionResult{Products: products("beta", 1), Attempted: 1}

	mockSink := &MockSink{}
	w := NewWorker(testSites(), scraper, mockSink, nil, Options{Verbose: true})

	summary, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Sites)
	assert.Equal(t, 4, summary.Categories())
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Empty)
	assert.Equal(t, 1, summary.Failure)
	assert.Equal(t, 0, summary.Blocked)
	assert.Equal(t, 3, summary.Products)
	assert.Equal(t, 3, summary.Saved)
	assert.Equal(t, 1, summary.Skipped)

	assert.Len(t, mockSink.Products(), 3)

	// Sequential by default: categories in canonical order, sites in table order
	assert.Equal(t, []string{"alpha/meat", "alpha/fish", "alpha/drinks", "beta/meat"}, scraper.Calls())
}

func TestRunOnceLogsSampleProduct(t *testing.T) {
	scraper := NewMockScraper()
	batch := products("beta", 2)
	batch[0].ImageURL = "https://beta.example/img/0.png"
	scraper.results[jobKey("beta", "meat")] = crawler.ExtractionResult{Products: batch, Attempted: 2}

	var buf bytes.Buffer
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{})
	w.log = logger.New(zerolog.New(&buf))

	_, err := w.RunOnce(context.Background(), "beta")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"message":"Sample product"`)
	assert.Contains(t, out, `"name":"beta item 0"`)
	assert.Contains(t, out, `"imageUrl":"OK"`)
	assert.NotContains(t, out, "img/0.png")
}

func TestRunOnceFilter(t *testing.T) {
	scraper := NewMockScraper()
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{})

	summary, err := w.RunOnce(context.Background(), "BETA")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sites)
	assert.Equal(t, []string{"beta/meat"}, scraper.Calls())

	_, err = w.RunOnce(context.Background(), "gamma")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRunOnceBlockedSite(t *testing.T) {
	scraper := NewMockScraper()
	w := NewWorker(testSites(), scraper, &MockSink{}, staticBlocker{"alpha": true}, Options{})

	summary, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Blocked)
	assert.Equal(t, []string{"beta/meat"}, scraper.Calls())
}

func TestRunOnceFatalAborts(t *testing.T) {
	scraper := NewMockScraper()
	scraper.errs[jobKey("alpha", "meat")] = errors.NewSession("alpha", "failed to start chrome", fmt.Errorf("exec: not found"))

	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{})
	_, err := w.RunOnce(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, []string{"alpha/meat"}, scraper.Calls())
}

func TestRunOnceSinkFailure(t *testing.T) {
	scraper := NewMockScraper()
	scraper.results[jobKey("beta", "meat")] = crawler.ExtractionResult{Products: products("beta", 2), Attempted: 2}

	w := NewWorker(testSites(), scraper, &MockSink{err: errors.NewSink("mock", "down", nil)}, nil, Options{})
	summary, err := w.RunOnce(context.Background(), "beta")
	require.NoError(t, err, "sink failures do not abort the run")
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Saved)
	assert.Equal(t, 2, summary.SaveFailed)
}

func TestRunOnceConcurrency(t *testing.T) {
	scraper := NewMockScraper()
	scraper.delay = 30 * time.Millisecond
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{MaxConcurrentSites: 2, SiteConcurrency: 3})

	summary, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Empty)

	calls := scraper.Calls()
	sort.Strings(calls)
	assert.Equal(t, []string{"alpha/drinks", "alpha/fish", "alpha/meat", "beta/meat"}, calls)
	assert.LessOrEqual(t, scraper.peak, 4)
	assert.Greater(t, scraper.peak, 1)
}

func TestRunOnceRateLimited(t *testing.T) {
	scraper := NewMockScraper()
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{SiteRequestsPerMinute: 1200})

	start := time.Now()
	_, err := w.RunOnce(context.Background(), "alpha")
	require.NoError(t, err)
	// Three navigations at one per 50ms need at least two intervals
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRunOnceCancelled(t *testing.T) {
	scraper := NewMockScraper()
	scraper.delay = time.Second
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := w.RunOnce(ctx, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, scraper.Calls(), 1)
}

func TestStartStopsOnCancel(t *testing.T) {
	scraper := NewMockScraper()
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{CrawlInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	assert.NoError(t, w.Start(ctx, "beta"))
	assert.GreaterOrEqual(t, len(scraper.Calls()), 2)
}

func TestStartReturnsFatal(t *testing.T) {
	scraper := NewMockScraper()
	w := NewWorker(testSites(), scraper, &MockSink{}, nil, Options{CrawlInterval: time.Millisecond})

	err := w.Start(context.Background(), "delta")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "empty", OutcomeEmpty.String())
	assert.Equal(t, "failure", OutcomeFailure.String())
	assert.Equal(t, "blocked", OutcomeBlocked.String())
}
