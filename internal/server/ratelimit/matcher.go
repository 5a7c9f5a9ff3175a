package ratelimit

import (
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string     // Endpoint path pattern (a trailing "/" matches by prefix)
	Method string     // HTTP method
	Limit  rate.Limit // Sustained requests per second
	Burst  int        // Bucket capacity
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 1: embedding every pending job is the most expensive call
		{Path: "/matching/run", Method: "POST", Limit: rate.Every(6 * time.Minute), Burst: 2},

		// Tier 2: writes
		{Path: "/jobs/ingest", Method: "POST", Limit: rate.Every(time.Second), Burst: 10},
		{Path: "/jobs/", Method: "POST", Limit: rate.Every(600 * time.Millisecond), Burst: 10},
		{Path: "/jobs/", Method: "DELETE", Limit: rate.Every(600 * time.Millisecond), Burst: 10},
		{Path: "/applications/", Method: "POST", Limit: rate.Every(600 * time.Millisecond), Burst: 10},
		{Path: "/applications/", Method: "PUT", Limit: rate.Every(600 * time.Millisecond), Burst: 10},

		// Tier 3: reads use the default limit
	}
}

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Returns the matching EndpointConfig or nil if no match is found.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	// health checks are never limited
	if path == "/health" && method == "GET" {
		return &EndpointConfig{Path: path, Method: method, Limit: rate.Inf}
	}

	for i := range configs {
		config := &configs[i]
		if config.Path == path && config.Method == method {
			return config
		}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method == method && strings.HasSuffix(config.Path, "/") && strings.HasPrefix(path, config.Path) {
			return config
		}
	}
	return nil
}
