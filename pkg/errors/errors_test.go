package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrapeErrorMessage(t *testing.T) {
	err := NewNavigation("silpo", "goto failed", stderrors.New("net::ERR_NAME_NOT_RESOLVED"))
	assert.Equal(t, "[navigation] silpo: goto failed - net::ERR_NAME_NOT_RESOLVED", err.Error())

	err = NewValidation("atb", "empty name")
	assert.Equal(t, "[validation] atb: empty name", err.Error())
}

func TestSoftAndFatalClassification(t *testing.T) {
	testCases := []struct {
		err   *ScrapeError
		soft  bool
		fatal bool
	}{
		{NewNavigation("s", "m", nil), true, false},
		{NewReadiness("s", ".card", 20*time.Second, nil), true, false},
		{NewRateLimit("s", 429), true, false},
		{NewEvaluation("s", "m", nil), false, false},
		{NewSession("s", "m", nil), false, true},
		{NewConfiguration("m", nil), false, true},
		{NewSink("postgres", "m", nil), false, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.soft, tc.err.IsSoft(), tc.err.Error())
		assert.Equal(t, tc.fatal, tc.err.IsFatal(), tc.err.Error())
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("scrape dairy: %w", NewReadiness("silpo", ".card", time.Second, nil))
	assert.True(t, IsSoft(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrorTypeReadiness, TypeOf(wrapped))

	fatal := fmt.Errorf("launch: %w", NewSession("atb", "chrome not found", nil))
	assert.True(t, IsFatal(fatal))

	plain := stderrors.New("boom")
	assert.False(t, IsSoft(plain))
	assert.False(t, IsFatal(plain))
	assert.Equal(t, ErrorType(""), TypeOf(plain))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewSink("postgres", "connect", cause)
	assert.ErrorIs(t, err, cause)
}
