package worker

import (
	"context"
	"encoding/json"
	"time"

	"sjsage522/grocerycrawler/config"
	"sjsage522/grocerycrawler/internal/crawler"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"
	"sjsage522/grocerycrawler/services/sink"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Scraper extracts products from one category page
type Scraper interface {
	ScrapeCategory(ctx context.Context, profile config.SiteProfile, job config.CategoryJob) (crawler.ExtractionResult, error)
}

// BlockChecker reports sites that must not be contacted right now
type BlockChecker interface {
	IsBlocked(site string) bool
}

// Options tune scheduling
type Options struct {
	MaxConcurrentSites    int
	SiteConcurrency       int
	SiteRequestsPerMinute int
	CrawlInterval         time.Duration
	// Verbose logs the elapsed time of each pass
	Verbose bool
}

// OptionsFromConfig builds worker options from the application config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxConcurrentSites:    cfg.MaxConcurrentSites,
		SiteConcurrency:       cfg.SiteConcurrency,
		SiteRequestsPerMinute: cfg.SiteRequestsPerMinute,
		CrawlInterval:         cfg.CrawlInterval,
		Verbose:               !cfg.IsProduction(),
	}
}

// Worker runs every category of every selected site and hands the results to a sink
type Worker struct {
	sites   []config.SiteProfile
	scraper Scraper
	sink    sink.Sink
	blocker BlockChecker
	opts    Options
	log     *logger.Logger
}

// NewWorker creates a new worker. blocker may be nil.
func NewWorker(sites []config.SiteProfile, scraper Scraper, s sink.Sink, blocker BlockChecker, opts Options) *Worker {
	if opts.MaxConcurrentSites < 1 {
		opts.MaxConcurrentSites = 1
	}
	if opts.SiteConcurrency < 1 {
		opts.SiteConcurrency = 1
	}
	return &Worker{
		sites:   sites,
		scraper: scraper,
		sink:    s,
		blocker: blocker,
		opts:    opts,
		log:     logger.ForWorker(),
	}
}

// Start runs a pass every crawl interval until ctx is cancelled or a pass
// fails fatally.
func (w *Worker) Start(ctx context.Context, filter string) error {
	for {
		start := time.Now()
		if _, err := w.RunOnce(ctx, filter); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.IsFatal(err) {
				return err
			}
			w.log.Error().Err(err).Msg("Crawl pass failed")
		}
		if w.opts.Verbose {
			w.log.Info().Dur("elapsed", time.Since(start)).Msg("Crawl pass finished")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.opts.CrawlInterval):
		}
	}
}

// RunOnce scrapes every category of the sites matching filter once. Only
// fatal errors and cancellation are returned; everything else is recorded in
// the summary.
func (w *Worker) RunOnce(ctx context.Context, filter string) (RunSummary, error) {
	sites, err := config.SelectSites(w.sites, filter)
	if err != nil {
		return RunSummary{}, errors.NewConfiguration("invalid site filter", err)
	}

	runID := uuid.NewString()
	log := w.log.WithStr("run_id", runID)
	col := newCollector(runID, len(sites))
	log.Info().Int("sites", len(sites)).Msg("Starting crawl pass")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.MaxConcurrentSites)
	for _, site := range sites {
		g.Go(func() error {
			return w.runSite(gctx, log, site, col)
		})
	}
	err = g.Wait()

	summary := col.finish()
	summary.log(log)
	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

func (w *Worker) runSite(ctx context.Context, log *logger.Logger, site config.SiteProfile, col *collector) error {
	log = log.WithStr("site", site.Name)
	limiter := w.newLimiter()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.SiteConcurrency)
	for _, job := range site.Jobs() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := w.runJob(gctx, site, job, limiter)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			w.handle(gctx, log.WithStr("category", job.DisplayName), outcome)
			col.record(outcome)
			if outcome.Kind == OutcomeFailure && errors.IsFatal(outcome.Err) {
				return outcome.Err
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) newLimiter() *rate.Limiter {
	if w.opts.SiteRequestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(w.opts.SiteRequestsPerMinute)), 1)
}

func (w *Worker) runJob(ctx context.Context, site config.SiteProfile, job config.CategoryJob, limiter *rate.Limiter) *CategoryOutcome {
	if err := ctx.Err(); err != nil {
		return &CategoryOutcome{Kind: OutcomeFailure, Job: job, Err: err}
	}
	if w.blocker != nil && w.blocker.IsBlocked(site.Key) {
		return &CategoryOutcome{Kind: OutcomeBlocked, Job: job}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return &CategoryOutcome{Kind: OutcomeFailure, Job: job, Err: err}
		}
	}

	result, err := w.scraper.ScrapeCategory(ctx, site, job)
	return classify(job, result, err)
}

// handle logs an outcome and forwards successful batches to the sink
func (w *Worker) handle(ctx context.Context, log *logger.Logger, outcome *CategoryOutcome) {
	switch outcome.Kind {
	case OutcomeSuccess:
		products := outcome.Result.Products
		res, err := w.sink.SaveBatch(ctx, products)
		outcome.Saved = res.Saved
		outcome.SaveFailed = len(res.Failures)
		if err != nil {
			outcome.SaveFailed = len(products) - res.Saved
			log.Error().Err(err).Str("sink", w.sink.Name()).Msg("Failed to save batch")
		}
		log.Info().
			Int("products", len(products)).
			Int("saved", outcome.Saved).
			Int("failed", outcome.SaveFailed).
			Msg("Category saved")
		w.logSample(log, outcome)
	case OutcomeEmpty:
		log.Warn().
			Str("url", outcome.Job.URL).
			Int("attempted", outcome.Result.Attempted).
			Int("skipped", outcome.Result.Skipped).
			Msg("No products extracted")
	case OutcomeBlocked:
		log.Warn().Msg("Site is rate limited; category skipped")
	case OutcomeFailure:
		log.Error().Err(outcome.Err).Str("url", outcome.Job.URL).Msg("Category failed")
	}
}

// logSample logs the first product of a batch with its image url elided
func (w *Worker) logSample(log *logger.Logger, outcome *CategoryOutcome) {
	data, err := json.Marshal(outcome.Result.Products[0])
	if err != nil {
		return
	}
	var sample map[string]interface{}
	if err := json.Unmarshal(data, &sample); err != nil {
		return
	}
	if _, exists := sample["imageUrl"]; exists {
		sample["imageUrl"] = "OK"
	}
	log.Info().Interface("sample", sample).Msg("Sample product")
}
