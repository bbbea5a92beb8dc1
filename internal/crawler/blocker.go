package crawler

import (
	stderrors "errors"
	"strconv"
	"time"

	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/pkg/errors"
	"sjsage522/grocerycrawler/services/cache"
)

// SiteBlocker stops requests to a site for a while after it rate limited us
type SiteBlocker struct {
	cache     cache.CacheService
	blockTime time.Duration
	log       *logger.Logger
}

// NewSiteBlocker creates a blocker storing block markers in c
func NewSiteBlocker(c cache.CacheService, blockTime time.Duration) *SiteBlocker {
	return &SiteBlocker{
		cache:     c,
		blockTime: blockTime,
		log:       logger.ForCache(),
	}
}

func blockKey(site string) string {
	return site + "_rate_limited"
}

// IsBlocked reports whether site is currently blocked. Cache failures count
// as not blocked.
func (b *SiteBlocker) IsBlocked(site string) bool {
	if b == nil || b.cache == nil {
		return false
	}
	_, err := b.cache.Get(blockKey(site))
	if err == nil {
		return true
	}
	if !stderrors.Is(err, cache.ErrMiss) {
		b.log.Warn().Err(err).Str("site", site).Msg("Failed to read block marker")
	}
	return false
}

// Block marks site as blocked for the configured block time
func (b *SiteBlocker) Block(site string) error {
	if b == nil || b.cache == nil || b.blockTime <= 0 {
		return nil
	}
	seconds := strconv.Itoa(int(b.blockTime / time.Second))
	if err := b.cache.Set(blockKey(site), []byte(seconds), b.blockTime); err != nil {
		return errors.NewCache(site, "failed to store block marker", err)
	}
	b.log.Warn().
		Str("site", site).
		Dur("block_time", b.blockTime).
		Msg("Site rate limited; pausing requests")
	return nil
}
