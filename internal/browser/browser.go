// Package browser drives page automation sessions used to read product cards
// from category pages.
package browser

import (
	"context"
	"fmt"
	"time"

	"sjsage522/grocerycrawler/config"
	"sjsage522/grocerycrawler/internal/product"
)

// ResourceType is the lowercased kind of a network request issued by a page
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceImage      ResourceType = "image"
	ResourceMedia      ResourceType = "media"
	ResourceFont       ResourceType = "font"
	ResourceScript     ResourceType = "script"
	ResourceXHR        ResourceType = "xhr"
	ResourceFetch      ResourceType = "fetch"
	ResourceOther      ResourceType = "other"
)

// RequestFilter decides whether a request may proceed
type RequestFilter func(ResourceType) bool

// DefaultBlockPolicy blocks heavy resources that card extraction never reads
func DefaultBlockPolicy(t ResourceType) bool {
	switch t {
	case ResourceImage, ResourceStylesheet, ResourceFont, ResourceMedia:
		return false
	default:
		return true
	}
}

// CardQuery is the argument of the in-page card routine. It crosses the
// process boundary as JSON.
type CardQuery struct {
	Selectors config.Selectors `json:"selectors"`
}

// Session is one isolated page automation session
type Session interface {
	// SetRequestFilter installs a filter consulted for every subsequent request
	SetRequestFilter(ctx context.Context, allow RequestFilter) error
	// Navigate loads url; it fails with a navigation or rate limit error
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitForSelector blocks until selector matches or fails with a readiness error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs the card routine over every card on the page
	Evaluate(ctx context.Context, query CardQuery) ([]product.RawCard, error)
	// Close releases the session; calling it more than once is a no-op
	Close() error
}

// Launcher creates sessions
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Options configure how sessions present themselves to sites
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	Language  string
	Width     int
	Height    int
}

// OptionsFromConfig builds session options from the application config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Headless:  cfg.Headless,
		ExecPath:  cfg.ChromePath,
		UserAgent: cfg.UserAgent,
		Language:  cfg.Language,
		Width:     1920,
		Height:    1080,
	}
}

func (o Options) viewport() (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 1920
	}
	if h <= 0 {
		h = 1080
	}
	return w, h
}

// NewLauncher returns the launcher implementing driver
func NewLauncher(driver config.Driver, opts Options) (Launcher, error) {
	switch driver {
	case config.DriverChrome:
		return NewChromeLauncher(opts), nil
	case config.DriverHTTP:
		return NewStaticLauncher(opts), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}
