// Package browsertest provides an in-memory page automation driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/grocerycrawler/internal/browser"
	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/pkg/errors"
)

// Page scripts what a fake session does for one URL
type Page struct {
	Cards       []product.RawCard
	NavigateErr error
	WaitErr     error
	EvaluateErr error
	// PanicOnEvaluate makes Evaluate panic with this value when non-nil
	PanicOnEvaluate interface{}
}

// Launcher is a fake browser.Launcher that counts sessions
type Launcher struct {
	mu        sync.Mutex
	pages     map[string]Page
	launchErr error
	launches  int
	closes    int
	navigated []string
	filters   int
	queries   []browser.CardQuery
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher creates a launcher serving pages keyed by URL. Unknown URLs
// behave like pages without any cards.
func NewLauncher(pages map[string]Page) *Launcher {
	if pages == nil {
		pages = make(map[string]Page)
	}
	return &Launcher{pages: pages}
}

// FailLaunch makes every following Launch fail with err
func (l *Launcher) FailLaunch(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
}

// SetPage replaces the script for url
func (l *Launcher) SetPage(url string, page Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[url] = page
}

// Launch opens a fake session
func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launches++
	return &session{launcher: l}, nil
}

// Launches returns how many sessions were opened
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Closes returns how many sessions were closed
func (l *Launcher) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// Navigated returns the visited URLs in order
func (l *Launcher) Navigated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.navigated...)
}

// Filters returns how many request filters were installed
func (l *Launcher) Filters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filters
}

// Queries returns the card queries passed to Evaluate
func (l *Launcher) Queries() []browser.CardQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.CardQuery(nil), l.queries...)
}

type session struct {
	launcher *Launcher
	page     *Page
	once     sync.Once
}

func (s *session) SetRequestFilter(ctx context.Context, allow browser.RequestFilter) error {
	s.launcher.mu.Lock()
	defer s.launcher.mu.Unlock()
	s.launcher.filters++
	return nil
}

func (s *session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.launcher.mu.Lock()
	page := s.launcher.pages[url]
	s.launcher.navigated = append(s.launcher.navigated, url)
	s.launcher.mu.Unlock()

	if page.NavigateErr != nil {
		return page.NavigateErr
	}
	s.page = &page
	return nil
}

func (s *session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if s.page == nil {
		return errors.NewReadiness("", selector, timeout, fmt.Errorf("no page loaded"))
	}
	if s.page.WaitErr != nil {
		return s.page.WaitErr
	}
	return nil
}

func (s *session) Evaluate(ctx context.Context, query browser.CardQuery) ([]product.RawCard, error) {
	s.launcher.mu.Lock()
	s.launcher.queries = append(s.launcher.queries, query)
	s.launcher.mu.Unlock()

	if s.page == nil {
		return nil, errors.NewEvaluation("", "no page loaded", nil)
	}
	if s.page.PanicOnEvaluate != nil {
		panic(s.page.PanicOnEvaluate)
	}
	if s.page.EvaluateErr != nil {
		return nil, s.page.EvaluateErr
	}
	return append([]product.RawCard(nil), s.page.Cards...), nil
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.launcher.mu.Lock()
		s.launcher.closes++
		s.launcher.mu.Unlock()
	})
	return nil
}
