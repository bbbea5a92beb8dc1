package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"sjsage522/grocerycrawler/helpers"
	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// StaticLauncher creates sessions that fetch server-rendered HTML over plain
// HTTP. Scripts never run, so it only suits sites whose cards are in the markup.
type StaticLauncher struct {
	opts Options
}

// NewStaticLauncher creates a launcher for the http driver
func NewStaticLauncher(opts Options) *StaticLauncher {
	return &StaticLauncher{opts: opts}
}

// Launch returns a new session; it never fails
func (l *StaticLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticSession{opts: l.opts}, nil
}

type staticSession struct {
	opts Options

	mu      sync.Mutex
	allow   RequestFilter
	doc     *goquery.Document
	pageURL *url.URL
	closed  bool
}

var _ Session = (*staticSession)(nil)

func (s *staticSession) SetRequestFilter(ctx context.Context, allow RequestFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow = allow
	return nil
}

func (s *staticSession) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	s.mu.Lock()
	closed, allow := s.closed, s.allow
	s.mu.Unlock()
	if closed {
		return errors.NewSession("", "session already closed", nil)
	}
	if allow != nil && !allow(ResourceDocument) {
		return errors.NewNavigation("", fmt.Sprintf("document request to %s blocked by filter", rawURL), nil)
	}

	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.NewNavigation("", "invalid url "+rawURL, err)
	}

	reader, err := helpers.FetchPage(ctx, rawURL, helpers.FetchOptions{
		UserAgent: s.opts.UserAgent,
		Language:  s.opts.Language,
		Timeout:   timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var statusErr *helpers.StatusError
		if stderrors.As(err, &statusErr) && statusErr.IsRateLimited() {
			return errors.NewRateLimit("", statusErr.StatusCode)
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.NewNavigation("", fmt.Sprintf("navigation to %s timed out after %v", rawURL, timeout), err)
		}
		return errors.NewNavigation("", fmt.Sprintf("navigation to %s failed", rawURL), err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return errors.NewNavigation("", "failed to parse document", err)
	}

	s.mu.Lock()
	s.doc, s.pageURL = doc, pageURL
	s.mu.Unlock()
	return nil
}

func (s *staticSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()

	if doc == nil {
		return errors.NewReadiness("", selector, timeout, fmt.Errorf("no document loaded"))
	}
	// Static markup never changes, so the selector either matches now or never
	if doc.Find(selector).Length() == 0 {
		return errors.NewReadiness("", selector, timeout, nil)
	}
	return nil
}

func (s *staticSession) Evaluate(ctx context.Context, query CardQuery) ([]product.RawCard, error) {
	s.mu.Lock()
	doc, pageURL := s.doc, s.pageURL
	s.mu.Unlock()

	if doc == nil {
		return nil, errors.NewEvaluation("", "no document loaded", nil)
	}
	if query.Selectors.Card == "" {
		return nil, errors.NewEvaluation("", "card selector is empty", nil)
	}

	var cards []product.RawCard
	doc.Find(query.Selectors.Card).Each(func(i int, card *goquery.Selection) {
		cards = append(cards, readCard(card, query, pageURL))
	})
	return cards, nil
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}

// readCard reads one card; a panic while reading it becomes the card's error
func readCard(card *goquery.Selection, query CardQuery, pageURL *url.URL) (raw product.RawCard) {
	defer func() {
		if r := recover(); r != nil {
			raw = product.RawCard{Err: fmt.Sprintf("%v", r)}
		}
	}()

	sel := query.Selectors
	raw.Name = text(pick(card, sel.Name))
	raw.Price = text(pick(card, sel.Price))
	raw.OldPrice = text(pick(card, sel.OldPrice))

	if img := pick(card, sel.Image); img != nil {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		raw.Image = absolute(pageURL, src)
	}
	if link := pick(card, sel.Link); link != nil {
		raw.Link = absolute(pageURL, link.AttrOr("href", ""))
	}
	return raw
}

func pick(root *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return nil
	}
	if root.Is(selector) {
		return root
	}
	found := root.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

func text(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func absolute(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
