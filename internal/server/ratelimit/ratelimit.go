// Package ratelimit limits requests per client and endpoint with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// RequestsPerSecond and Burst apply to endpoints without a specific entry
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
	// IdleTimeout drops buckets that have not been used for this long
	IdleTimeout     time.Duration
	Whitelist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// DefaultConfig returns an enabled configuration with the default endpoint limits
func DefaultConfig(requestsPerSecond float64, burst int) *Config {
	return &Config{
		Enabled:           true,
		RequestsPerSecond: requestsPerSecond,
		Burst:             burst,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       time.Hour,
		Whitelist:         map[string]bool{},
		EndpointConfigs:   DefaultEndpointConfigs(),
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages one token bucket per client and endpoint.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	config   *Config
	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig(5, 20)
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanup(config.CleanupInterval)
	}
	return l
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
func (l *Limiter) Allow(clientID string, path string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}

	endpoint := MatchEndpoint(path, method, l.config.EndpointConfigs)
	if endpoint == nil {
		endpoint = &EndpointConfig{
			Path:  "*",
			Limit: rate.Limit(l.config.RequestsPerSecond),
			Burst: l.config.Burst,
		}
	}
	if endpoint.Limit == rate.Inf {
		return true, Info{Allowed: true}
	}
	burst := max(endpoint.Burst, 1)

	// prefix entries share one bucket across every path they cover
	key := clientID + ":" + method + ":" + endpoint.Path
	lim := l.bucketFor(key, endpoint.Limit, burst)

	now := time.Now()
	if lim.AllowN(now, 1) {
		return true, Info{Allowed: true, Limit: burst, Remaining: int(lim.TokensAt(now))}
	}

	r := lim.ReserveN(now, 1)
	retryAfter := r.DelayFrom(now)
	r.CancelAt(now)
	return false, Info{Limit: burst, RetryAfter: retryAfter}
}

func (l *Limiter) bucketFor(key string, limit rate.Limit, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(limit, burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanupBuckets(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanupBuckets removes buckets idle since before now - IdleTimeout.
func (l *Limiter) cleanupBuckets(now time.Time) int {
	idle := l.config.IdleTimeout
	if idle <= 0 {
		idle = time.Hour
	}
	cutoff := now.Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
