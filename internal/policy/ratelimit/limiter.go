// Package ratelimit implements per-domain token buckets for retrieval strategies.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/changelog-watch/internal/retrieval"
)

// DelayObserver records how long a request waited for a token.
type DelayObserver func(domain string, delay time.Duration)

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	observe      DelayObserver
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// OnDelay is called when a Wait blocked for more than a millisecond. Optional.
	OnDelay DelayObserver
}

// New creates a new Limiter. A non-positive rate means unlimited.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		observe:      cfg.OnDelay,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond && l.observe != nil {
		l.observe(domain, delay)
	}
	return nil
}

// Wrap returns a strategy that waits on l before every attempt.
// Wrapped strategies keep their name and Close method.
func Wrap(s retrieval.Strategy, l *Limiter) retrieval.Strategy {
	if l == nil {
		return s
	}
	return &limited{Strategy: s, limiter: l}
}

type limited struct {
	retrieval.Strategy
	limiter *Limiter
}

func (s *limited) Attempt(ctx context.Context, url string) (string, error) {
	if err := s.limiter.Wait(ctx, url); err != nil {
		return "", err
	}
	return s.Strategy.Attempt(ctx, url)
}

func (s *limited) Close() error {
	if c, ok := s.Strategy.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
