package browser

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"sjsage522/grocerycrawler/internal/product"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// cardRoutine runs inside the page. Each card is read in its own try block so
// a broken card is reported through its error field instead of aborting the list.
const cardRoutine = `(function (query) {
	const s = query.selectors;
	const pick = (root, sel) => {
		if (!sel) return null;
		if (root.matches && root.matches(sel)) return root;
		return root.querySelector(sel);
	};
	const text = (root, sel) => {
		const el = pick(root, sel);
		return el ? (el.textContent || "").replace(/\s+/g, " ").trim() : "";
	};
	const image = (root, sel) => {
		const el = pick(root, sel);
		if (!el) return "";
		return el.currentSrc || el.src || el.getAttribute("data-src") || "";
	};
	const link = (root, sel) => {
		const el = pick(root, sel);
		return el && el.href ? String(el.href) : "";
	};
	return Array.from(document.querySelectorAll(s.card)).map((card) => {
		try {
			return {
				name: text(card, s.name),
				price: text(card, s.price),
				oldPrice: text(card, s.oldPrice),
				image: image(card, s.image),
				link: link(card, s.link),
			};
		} catch (e) {
			return { error: String((e && e.message) || e) };
		}
	});
})`

// ChromeLauncher starts one headless Chrome per session
type ChromeLauncher struct {
	opts Options
	log  *logger.Logger
}

// NewChromeLauncher creates a launcher for local Chrome
func NewChromeLauncher(opts Options) *ChromeLauncher {
	return &ChromeLauncher{
		opts: opts,
		log:  logger.ForBrowser("chrome"),
	}
}

// Launch starts a browser and opens a blank tab
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	width, height := l.opts.viewport()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)
	if l.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.Language != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", l.opts.Language))
	}
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx: browserCtx,
		release: func() {
			_ = chromedp.Cancel(browserCtx)
			browserCancel()
			allocCancel()
		},
		log: l.log,
	}
	chromedp.ListenTarget(browserCtx, s.onEvent)

	setup := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(int64(width), int64(height)),
	}
	if l.opts.Language != "" {
		setup = append(setup, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": l.opts.Language}))
	}

	// The first Run starts the browser process
	if err := chromedp.Run(browserCtx, setup...); err != nil {
		s.Close()
		return nil, errors.NewSession("", "failed to start chrome", err)
	}

	l.log.Debug().Int("width", width).Int("height", height).Msg("Chrome session started")
	return s, nil
}

type chromeSession struct {
	ctx     context.Context
	release func()
	once    sync.Once
	log     *logger.Logger

	mu     sync.Mutex
	allow  RequestFilter
	status int
	// domReady is closed when the pending navigation's document is parsed
	domReady chan struct{}
}

var _ Session = (*chromeSession)(nil)

func (s *chromeSession) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *fetch.EventRequestPaused:
		go s.handlePaused(ev)
	case *page.EventDomContentEventFired:
		s.mu.Lock()
		if s.domReady != nil {
			close(s.domReady)
			s.domReady = nil
		}
		s.mu.Unlock()
	case *network.EventResponseReceived:
		if ev.Type == network.ResourceTypeDocument && ev.Response != nil {
			s.mu.Lock()
			s.status = int(ev.Response.Status)
			s.mu.Unlock()
		}
	}
}

func (s *chromeSession) handlePaused(ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(s.ctx, c.Target)

	s.mu.Lock()
	allow := s.allow
	s.mu.Unlock()

	kind := ResourceType(strings.ToLower(string(ev.ResourceType)))
	var err error
	if allow == nil || allow(kind) {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	} else {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	}
	if err != nil && s.ctx.Err() == nil {
		s.log.Debug().Err(err).Str("resource", string(kind)).Msg("Failed to resolve paused request")
	}
}

// run executes actions against the tab, bounded by timeout and by ctx
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) SetRequestFilter(ctx context.Context, allow RequestFilter) error {
	s.mu.Lock()
	s.allow = allow
	s.mu.Unlock()

	if err := s.run(ctx, 0, fetch.Enable()); err != nil {
		return errors.NewSession("", "failed to enable request interception", err)
	}
	return nil
}

// expectDocument resets the document status and returns a channel closed once
// the next document has been parsed
func (s *chromeSession) expectDocument() <-chan struct{} {
	ready := make(chan struct{})
	s.mu.Lock()
	s.status = 0
	s.domReady = ready
	s.mu.Unlock()
	return ready
}

// navigate loads url and returns after DOMContentLoaded. Subresources may
// still be loading.
func navigate(url string, ready <-chan struct{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("page load error %s", res.ErrorText)
		}
		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (s *chromeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	ready := s.expectDocument()
	err := s.run(ctx, timeout, navigate(url, ready))
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	if status == http.StatusTooManyRequests || status == 430 {
		return errors.NewRateLimit("", status)
	}

	if err != nil {
		if s.ctx.Err() == nil && isDeadline(err) {
			return errors.NewNavigation("", fmt.Sprintf("navigation to %s timed out after %v", url, timeout), err)
		}
		return errors.NewNavigation("", fmt.Sprintf("navigation to %s failed", url), err)
	}
	return nil
}

func (s *chromeSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return errors.NewReadiness("", selector, timeout, err)
	}
	return nil
}

func (s *chromeSession) Evaluate(ctx context.Context, query CardQuery) ([]product.RawCard, error) {
	arg, err := json.Marshal(query)
	if err != nil {
		return nil, errors.NewEvaluation("", "failed to encode card query", err)
	}

	var cards []product.RawCard
	script := fmt.Sprintf("%s(%s)", cardRoutine, arg)
	if err := s.run(ctx, 0, chromedp.Evaluate(script, &cards)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewEvaluation("", "card routine failed", err)
	}
	return cards, nil
}

func (s *chromeSession) Close() error {
	s.once.Do(s.release)
	return nil
}

func isDeadline(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), context.DeadlineExceeded.Error())
}
