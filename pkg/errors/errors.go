package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents navigation failures and navigation timeouts
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeReadiness represents a card selector that never appeared
	ErrorTypeReadiness ErrorType = "readiness"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeEvaluation represents failures of the in-page extraction routine
	ErrorTypeEvaluation ErrorType = "evaluation"
	// ErrorTypeSession represents a page automation session that could not be established
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeParsing represents raw card text that could not be parsed
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeSink represents persistence errors
	ErrorTypeSink ErrorType = "sink"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a scraping pipeline error
type ScrapeError struct {
	Type    ErrorType
	Site    string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Site, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Site, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsSoft returns true for anticipated category-level failures that yield an empty result
func (e *ScrapeError) IsSoft() bool {
	switch e.Type {
	case ErrorTypeNavigation, ErrorTypeReadiness, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error must abort the whole run
func (e *ScrapeError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeSession, ErrorTypeConfiguration:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, site, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Site:    site,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(site, message string, err error) *ScrapeError {
	return New(ErrorTypeNavigation, site, message, err)
}

// NewReadiness creates a new readiness timeout error
func NewReadiness(site, selector string, timeout time.Duration, err error) *ScrapeError {
	message := fmt.Sprintf("selector %q not ready after %v", selector, timeout)
	return New(ErrorTypeReadiness, site, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(site string, status int) *ScrapeError {
	message := fmt.Sprintf("rate limited (status %d)", status)
	return New(ErrorTypeRateLimit, site, message, nil)
}

// NewEvaluation creates a new evaluation error
func NewEvaluation(site, message string, err error) *ScrapeError {
	return New(ErrorTypeEvaluation, site, message, err)
}

// NewSession creates a new session error
func NewSession(site, message string, err error) *ScrapeError {
	return New(ErrorTypeSession, site, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(site, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, site, message, err)
}

// NewValidation creates a new validation error
func NewValidation(site, message string) *ScrapeError {
	return New(ErrorTypeValidation, site, message, nil)
}

// NewSink creates a new sink error
func NewSink(sink, message string, err error) *ScrapeError {
	return New(ErrorTypeSink, sink, message, err)
}

// NewCache creates a new cache error
func NewCache(site, message string, err error) *ScrapeError {
	return New(ErrorTypeCache, site, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the ErrorType of the first ScrapeError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var se *ScrapeError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsSoft reports whether err wraps a soft ScrapeError
func IsSoft(err error) bool {
	var se *ScrapeError
	return stderrors.As(err, &se) && se.IsSoft()
}

// IsFatal reports whether err wraps a fatal ScrapeError
func IsFatal(err error) bool {
	var se *ScrapeError
	return stderrors.As(err, &se) && se.IsFatal()
}
