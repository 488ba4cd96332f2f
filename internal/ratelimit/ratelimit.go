// Package ratelimit paces calls to external translation services and enforces
// an optional daily call budget, overall and per provider.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned by Use once a daily budget is spent.
var ErrBudgetExhausted = errors.New("daily translation budget exhausted")

type Limiter struct {
	mu          sync.Mutex
	pace        *rate.Limiter
	maxTotal    int
	maxProvider map[string]int
	used        map[string]int
	totalCount  int
	resetTime   time.Time
	cacheHits   int
	cacheMisses int
	now         func() time.Time
	log         *slog.Logger
}

// New returns a limiter that lets one call through every interval (0 = no
// pacing) and at most maxTotal calls per 24h (0 = unlimited).
func New(interval time.Duration, maxTotal int) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := &Limiter{
		pace:        rate.NewLimiter(limit, 1),
		maxTotal:    maxTotal,
		maxProvider: make(map[string]int),
		used:        make(map[string]int),
		now:         time.Now,
		log:         slog.Default(),
	}
	l.resetTime = l.now().Add(24 * time.Hour)
	return l
}

// SetProviderLimit caps one provider's daily calls. 0 removes the cap.
func (l *Limiter) SetProviderLimit(provider string, max int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxProvider[provider] = max
}

// Wait blocks until the next call slot or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.pace.Wait(ctx)
}

// Use consumes one call from provider's and the overall budget.
func (l *Limiter) Use(provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkReset()

	if err := l.allowLocked(provider); err != nil {
		return err
	}
	l.used[provider]++
	l.totalCount++
	l.cacheMisses++
	return nil
}

func (l *Limiter) allowLocked(provider string) error {
	if max := l.maxProvider[provider]; max > 0 && l.used[provider] >= max {
		return fmt.Errorf("%s: %w (%d/%d)", provider, ErrBudgetExhausted, l.used[provider], max)
	}
	if l.maxTotal > 0 && l.totalCount >= l.maxTotal {
		return fmt.Errorf("%w (%d/%d)", ErrBudgetExhausted, l.totalCount, l.maxTotal)
	}
	return nil
}

// RecordCacheHit counts a translation served from the memo.
func (l *Limiter) RecordCacheHit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheHits++
}

func (l *Limiter) cacheHitRate() float64 {
	total := l.cacheHits + l.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(l.cacheHits) / float64(total) * 100
}

func (l *Limiter) GetStats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	used := make(map[string]int, len(l.used))
	for k, v := range l.used {
		used[k] = v
	}
	limits := make(map[string]int, len(l.maxProvider))
	for k, v := range l.maxProvider {
		if v > 0 {
			limits[k] = v
		}
	}
	return map[string]interface{}{
		"used":            used,
		"provider_limits": limits,
		"total_used":      l.totalCount,
		"total_limit":     l.maxTotal,
		"cache_hits":      l.cacheHits,
		"cache_misses":    l.cacheMisses,
		"cache_hit_rate":  l.cacheHitRate(),
		"reset_time":      l.resetTime.UTC().Format(time.RFC3339),
	}
}

// checkReset clears the counters once the 24h window has passed. Caller holds mu.
func (l *Limiter) checkReset() {
	now := l.now()
	if now.Before(l.resetTime) {
		return
	}
	l.log.Info("resetting translation budget",
		"total_used", l.totalCount, "cache_hits", l.cacheHits, "cache_misses", l.cacheMisses)
	l.used = make(map[string]int)
	l.totalCount = 0
	l.cacheHits = 0
	l.cacheMisses = 0
	l.resetTime = now.Add(24 * time.Hour)
}
