package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testConfig() *Config {
	return &Config{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             3,
		Whitelist:         map[string]bool{},
		EndpointConfigs:   DefaultEndpointConfigs(),
	}
}

func TestLimiter_AllowBurstThenDeny(t *testing.T) {
	limiter := NewLimiter(testConfig())
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/jobs", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 3, info.Limit)
	}

	allowed, info := limiter.Allow("127.0.0.1", "/jobs", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, info.RetryAfter, time.Second)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := NewLimiter(testConfig())
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("10.0.0.1", "/jobs", "GET")
	}
	allowed, _ := limiter.Allow("10.0.0.1", "/jobs", "GET")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow("10.0.0.2", "/jobs", "GET")
	assert.True(t, allowed)
}

func TestLimiter_EndpointLimit(t *testing.T) {
	limiter := NewLimiter(testConfig())
	defer limiter.Stop()

	// /matching/run allows a burst of two
	for i := 0; i < 2; i++ {
		allowed, info := limiter.Allow("c", "/matching/run", "POST")
		require.True(t, allowed)
		assert.Equal(t, 2, info.Limit)
	}
	allowed, info := limiter.Allow("c", "/matching/run", "POST")
	assert.False(t, allowed)
	assert.Greater(t, info.RetryAfter, time.Minute)

	// other endpoints are unaffected
	allowed, _ = limiter.Allow("c", "/jobs", "GET")
	assert.True(t, allowed)
}

func TestLimiter_PrefixEntriesShareBucket(t *testing.T) {
	cfg := testConfig()
	cfg.EndpointConfigs = []EndpointConfig{{Path: "/applications/", Method: "PUT", Limit: rate.Every(time.Hour), Burst: 1}}
	limiter := NewLimiter(cfg)
	defer limiter.Stop()

	allowed, _ := limiter.Allow("c", "/applications/a/notes", "PUT")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("c", "/applications/b/notes", "PUT")
	assert.False(t, allowed)
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	limiter := NewLimiter(testConfig())
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		allowed, _ := limiter.Allow("c", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_DisabledAndWhitelist(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: false})
	defer limiter.Stop()
	for i := 0; i < 10; i++ {
		allowed, _ := limiter.Allow("c", "/jobs", "GET")
		require.True(t, allowed)
	}

	cfg := testConfig()
	cfg.Whitelist["10.1.1.1"] = true
	limiter = NewLimiter(cfg)
	defer limiter.Stop()
	for i := 0; i < 10; i++ {
		allowed, _ := limiter.Allow("10.1.1.1", "/jobs", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		Burst:             10,
	})
	defer limiter.Stop()

	var mu sync.Mutex
	allowedCount := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow("c", "/jobs", "GET"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowedCount)
}

func TestLimiter_CleanupBuckets(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = time.Minute
	limiter := NewLimiter(cfg)
	defer limiter.Stop()

	limiter.Allow("a", "/jobs", "GET")
	limiter.Allow("b", "/jobs", "GET")

	assert.Equal(t, 0, limiter.cleanupBuckets(time.Now()))
	assert.Equal(t, 2, limiter.cleanupBuckets(time.Now().Add(2*time.Minute)))
}

func TestLimiter_StopTwice(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Millisecond})
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()

	tests := []struct {
		name   string
		path   string
		method string
		want   string
	}{
		{"exact", "/matching/run", "POST", "/matching/run"},
		{"exact before prefix", "/jobs/ingest", "POST", "/jobs/ingest"},
		{"prefix", "/jobs/123/applications", "POST", "/jobs/"},
		{"method mismatch", "/matching/run", "GET", ""},
		{"no match", "/matching/top", "GET", ""},
		{"health", "/health", "GET", "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Path)
		})
	}
	assert.Equal(t, rate.Inf, MatchEndpoint("/health", "GET", nil).Limit)
}
