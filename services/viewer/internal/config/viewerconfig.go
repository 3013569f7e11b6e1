package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ViewerConfig holds the viewer edge's own settings on top of the shared
// platform config.
type ViewerConfig struct {
	UpstreamBaseURL string
	UpstreamAPIKey  string
	JWTSecret       []byte

	NATSURL                string // empty disables NATS (analytics + cache invalidation)
	CacheInvalidateSubject string
	RedisURL               string // empty keeps the cache in-process
	CacheTTLSec            int

	ThreadTTL           time.Duration
	ThreadSweepInterval time.Duration
}

func LoadViewer() (ViewerConfig, error) {
	cfg := ViewerConfig{
		UpstreamBaseURL:        strings.TrimSpace(os.Getenv("MOVIEHUB_API_URL")),
		UpstreamAPIKey:         strings.TrimSpace(os.Getenv("MOVIEHUB_API_KEY")),
		NATSURL:                strings.TrimSpace(os.Getenv("NATS_URL")),
		CacheInvalidateSubject: strings.TrimSpace(os.Getenv("CACHE_INVALIDATE_SUBJECT")),
		RedisURL:               strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTLSec:            envInt("CACHE_TTL_SECONDS", 60),
		ThreadTTL:              envDuration("THREAD_TTL", 30*time.Minute),
		ThreadSweepInterval:    envDuration("THREAD_SWEEP_INTERVAL", time.Minute),
	}
	if cfg.UpstreamBaseURL == "" {
		return ViewerConfig{}, errors.New("MOVIEHUB_API_URL is required")
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return ViewerConfig{}, errors.New("JWT_SECRET is required")
	}
	cfg.JWTSecret = []byte(secret)
	if cfg.CacheInvalidateSubject == "" {
		cfg.CacheInvalidateSubject = "moviehub.cache.invalidate"
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
