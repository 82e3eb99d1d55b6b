package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache in front of the
// read-only catalog endpoints (permission list).  Entries are keyed by
// route and query and dropped wholesale when the catalog changes.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 5*time.Minute),
		Prefix:       strings.TrimSuffix(envStr("CACHE_PREFIX", "cache"), ":"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}
