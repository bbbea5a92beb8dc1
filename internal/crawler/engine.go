// Package crawler scrapes one category page at a time through a page
// automation session and turns its cards into validated products.
package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"sjsage522/grocerycrawler/config"
	"sjsage522/grocerycrawler/internal/browser"
	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"
)

// ExtractionResult is the outcome of one category scrape
type ExtractionResult struct {
	Products  []product.ScrapedProduct
	Attempted int
	Skipped   int
}

// Engine runs category scrapes. It holds no per-job state and is safe for
// concurrent use.
type Engine struct {
	launchers    map[config.Driver]browser.Launcher
	navTimeout   time.Duration
	readyTimeout time.Duration
	filter       browser.RequestFilter
	blocker      *SiteBlocker
	now          func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithBlocker blocks sites that answer with a rate limit
func WithBlocker(b *SiteBlocker) Option {
	return func(e *Engine) { e.blocker = b }
}

// WithRequestFilter replaces browser.DefaultBlockPolicy
func WithRequestFilter(f browser.RequestFilter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithClock sets the capture time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine using launchers keyed by driver
func NewEngine(launchers map[config.Driver]browser.Launcher, navTimeout, readyTimeout time.Duration, opts ...Option) *Engine {
	e := &Engine{
		launchers:    launchers,
		navTimeout:   navTimeout,
		readyTimeout: readyTimeout,
		filter:       browser.DefaultBlockPolicy,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Blocker returns the engine's site blocker, which may be nil
func (e *Engine) Blocker() *SiteBlocker {
	return e.blocker
}

// ScrapeCategory scrapes the first page of one category. Navigation,
// readiness and rate limit failures are logged and yield an empty result with
// a nil error. The session is closed on every path.
func (e *Engine) ScrapeCategory(ctx context.Context, profile config.SiteProfile, job config.CategoryJob) (result ExtractionResult, err error) {
	log := logger.ForSite(profile.Name).WithStr("category", job.DisplayName)

	launcher, ok := e.launchers[profile.Driver]
	if !ok {
		return result, errors.NewConfiguration(fmt.Sprintf("no launcher for driver %q of site %s", profile.Driver, profile.Key), nil)
	}

	url := config.ResolveURL(job.URL, profile.BaseURL)
	if profile.Selectors.NextPage != "" {
		log.Debug().Msg("Pagination is not followed; scraping the first page only")
	}

	defer func() {
		if r := recover(); r != nil {
			result = ExtractionResult{}
			err = errors.NewEvaluation(profile.Key, fmt.Sprintf("panic while scraping %s", url), fmt.Errorf("%v", r))
		}
	}()

	session, err := launcher.Launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if errors.TypeOf(err) == "" {
			err = errors.NewSession(profile.Key, "failed to launch session", err)
		}
		return result, withSite(err, profile.Key)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close session")
		}
	}()

	if err := session.SetRequestFilter(ctx, e.filter); err != nil {
		return result, withSite(err, profile.Key)
	}

	log.Info().Str("url", url).Msg("Navigating to category page")
	if err := session.Navigate(ctx, url, e.navTimeout); err != nil {
		return e.soft(ctx, log, profile, err)
	}

	if err := session.WaitForSelector(ctx, profile.Selectors.Card, e.readyTimeout); err != nil {
		return e.soft(ctx, log, profile, err)
	}

	cards, err := session.Evaluate(ctx, browser.CardQuery{Selectors: profile.Selectors})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, withSite(err, profile.Key)
	}

	pctx := product.Context{
		Store:       profile.Name,
		Category:    job.DisplayName,
		CategoryURL: url,
	}
	now := e.now()
	parse := profile.PriceParser()

	for i, raw := range cards {
		result.Attempted++
		p, nerr := product.Normalize(raw, pctx, now, parse)
		if nerr != nil {
			result.Skipped++
			log.Debug().Int("card", i).Err(nerr).Msg("Skipping card")
			continue
		}
		result.Products = append(result.Products, p)
	}

	log.Info().
		Int("attempted", result.Attempted).
		Int("skipped", result.Skipped).
		Int("products", len(result.Products)).
		Msg("Category page extracted")

	return result, nil
}

// soft converts anticipated page failures into an empty result
func (e *Engine) soft(ctx context.Context, log *logger.Logger, profile config.SiteProfile, err error) (ExtractionResult, error) {
	if ctx.Err() != nil {
		return ExtractionResult{}, ctx.Err()
	}
	err = withSite(err, profile.Key)
	if !errors.IsSoft(err) {
		return ExtractionResult{}, err
	}

	if errors.TypeOf(err) == errors.ErrorTypeRateLimit {
		if berr := e.blocker.Block(profile.Key); berr != nil {
			log.Error().Err(berr).Msg("Failed to block site")
		}
	}
	log.Warn().Err(err).Msg("Category page not available; skipping")
	return ExtractionResult{}, nil
}

// withSite fills in the site of a ScrapeError raised below the engine
func withSite(err error, site string) error {
	var se *errors.ScrapeError
	if stderrors.As(err, &se) && se.Site == "" {
		se.Site = site
	}
	return err
}
