package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("silpo_rate_limited", []byte("500"), 2*time.Second)
	require.NoError(t, err)

	value, err := mc.Get("silpo_rate_limited")
	require.NoError(t, err)
	assert.Equal(t, "500", string(value))

	_, err = mc.Get("never_set")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }

	_, err := mc.Get("atb_rate_limited")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, mc.Set("atb_rate_limited", []byte("500"), 500*time.Second))
	value, err := mc.Get("atb_rate_limited")
	require.NoError(t, err)
	assert.Equal(t, "500", string(value))

	now = now.Add(499 * time.Second)
	_, err = mc.Get("atb_rate_limited")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = mc.Get("atb_rate_limited")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, mc.Set("forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, err = mc.Get("forever")
	assert.NoError(t, err)
}
