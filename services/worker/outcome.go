package worker

import (
	"sync"
	"time"

	"sjsage522/grocerycrawler/config"
	"sjsage522/grocerycrawler/internal/crawler"
	"sjsage522/grocerycrawler/logger"
)

// OutcomeKind classifies a finished category job
type OutcomeKind int

const (
	// OutcomeSuccess means at least one product was extracted
	OutcomeSuccess OutcomeKind = iota
	// OutcomeEmpty means the page yielded nothing, including soft failures
	OutcomeEmpty
	// OutcomeFailure means the scrape returned an error
	OutcomeFailure
	// OutcomeBlocked means the site was rate limited earlier and was not contacted
	OutcomeBlocked
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// CategoryOutcome is the result of one category job
type CategoryOutcome struct {
	Kind       OutcomeKind
	Job        config.CategoryJob
	Result     crawler.ExtractionResult
	Err        error
	Saved      int
	SaveFailed int
}

func classify(job config.CategoryJob, result crawler.ExtractionResult, err error) *CategoryOutcome {
	switch {
	case err != nil:
		return &CategoryOutcome{Kind: OutcomeFailure, Job: job, Err: err}
	case len(result.Products) == 0:
		return &CategoryOutcome{Kind: OutcomeEmpty, Job: job, Result: result}
	default:
		return &CategoryOutcome{Kind: OutcomeSuccess, Job: job, Result: result}
	}
}

// RunSummary totals one crawl pass
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Sites      int
	Success    int
	Empty      int
	Failure    int
	Blocked    int
	Attempted  int
	Skipped    int
	Products   int
	Saved      int
	SaveFailed int
}

// Categories returns the number of category jobs that finished
func (s RunSummary) Categories() int {
	return s.Success + s.Empty + s.Failure + s.Blocked
}

func (s RunSummary) log(log *logger.Logger) {
	log.Info().
		Int("sites", s.Sites).
		Int("categories", s.Categories()).
		Int("success", s.Success).
		Int("empty", s.Empty).
		Int("failure", s.Failure).
		Int("blocked", s.Blocked).
		Int("products", s.Products).
		Int("skipped", s.Skipped).
		Int("saved", s.Saved).
		Int("save_failed", s.SaveFailed).
		Dur("duration", s.Duration).
		Msg("Crawl pass summary")
}

// collector accumulates outcomes from concurrent jobs
type collector struct {
	mu      sync.Mutex
	summary RunSummary
}

func newCollector(runID string, sites int) *collector {
	return &collector{summary: RunSummary{RunID: runID, StartedAt: time.Now(), Sites: sites}}
}

func (c *collector) record(o *CategoryOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.summary
	switch o.Kind {
	case OutcomeSuccess:
		s.Success++
	case OutcomeEmpty:
		s.Empty++
	case OutcomeFailure:
		s.Failure++
	case OutcomeBlocked:
		s.Blocked++
	}
	s.Attempted += o.Result.Attempted
	s.Skipped += o.Result.Skipped
	s.Products += len(o.Result.Products)
	s.Saved += o.Saved
	s.SaveFailed += o.SaveFailed
}

func (c *collector) finish() RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Duration = time.Since(c.summary.StartedAt)
	return c.summary
}
