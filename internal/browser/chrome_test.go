package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chromeOrSkip(t *testing.T) Options {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Chrome test in short mode")
	}
	path := os.Getenv("CHROME_PATH")
	if path == "" {
		for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
			if p, err := exec.LookPath(name); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		t.Skip("Chrome not available, skipping test")
	}
	return Options{Headless: true, ExecPath: path, UserAgent: "test-agent", Language: "uk-UA"}
}

func TestChromeSession(t *testing.T) {
	opts := chromeOrSkip(t)

	var imageRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		imageRequests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/stalled", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(30 * time.Second):
		}
	})
	mux.HandleFunc("/slow-frame", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><iframe src="/stalled"></iframe>` + catalogPage + `</body></html>`))
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(catalogPage))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	session, err := NewChromeLauncher(opts).Launch(ctx)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.SetRequestFilter(ctx, DefaultBlockPolicy))
	require.NoError(t, session.Navigate(ctx, server.URL+"/catalog", 20*time.Second))
	require.NoError(t, session.WaitForSelector(ctx, "article.catalog-item", 5*time.Second))

	cards, err := session.Evaluate(ctx, CardQuery{Selectors: atbSelectors()})
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, "Молоко 2,5% 900г", cards[0].Name)
	assert.Equal(t, server.URL+"/product/moloko", cards[0].Link)
	assert.Equal(t, int32(0), imageRequests.Load(), "images are blocked")

	// the iframe holds back the load event but not document parsing
	require.NoError(t, session.Navigate(ctx, server.URL+"/slow-frame", 3*time.Second))
	require.NoError(t, session.WaitForSelector(ctx, "article.catalog-item", 5*time.Second))

	err = session.WaitForSelector(ctx, ".missing", 200*time.Millisecond)
	assert.Equal(t, errors.ErrorTypeReadiness, errors.TypeOf(err))

	err = session.Navigate(ctx, server.URL+"/limited", 20*time.Second)
	assert.Equal(t, errors.ErrorTypeRateLimit, errors.TypeOf(err))

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())
}

func TestChromeSessionDocumentEvents(t *testing.T) {
	s := &chromeSession{log: logger.ForBrowser("chrome")}

	ready := s.expectDocument()
	s.onEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: http.StatusTooManyRequests},
	})
	s.onEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: http.StatusOK},
	})

	select {
	case <-ready:
		t.Fatal("document reported ready before DOMContentLoaded")
	default:
	}

	s.onEvent(&page.EventDomContentEventFired{})
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("DOMContentLoaded did not release the navigation")
	}
	assert.Equal(t, http.StatusTooManyRequests, s.status)

	// a late event for an old document is ignored
	assert.NotPanics(t, func() { s.onEvent(&page.EventDomContentEventFired{}) })

	next := s.expectDocument()
	assert.Equal(t, 0, s.status)
	assert.NotEqual(t, ready, next)
}
