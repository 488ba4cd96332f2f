package translate

import (
	"context"
	"time"

	"github.com/deusflow/sarawaknews/internal/cache"
	"github.com/deusflow/sarawaknews/internal/ratelimit"
	"github.com/deusflow/sarawaknews/internal/retry"
)

// Memo serves repeated (lang, text) pairs from a TTL cache.
type Memo struct {
	next    Translator
	cache   *cache.Cache
	ttl     time.Duration
	limiter *ratelimit.Limiter
}

// NewMemo wraps next. limiter may be nil; when set it is told about hits.
func NewMemo(next Translator, c *cache.Cache, ttl time.Duration, limiter *ratelimit.Limiter) *Memo {
	return &Memo{next: next, cache: c, ttl: ttl, limiter: limiter}
}

func (m *Memo) Name() string { return m.next.Name() }

func (m *Memo) Translate(ctx context.Context, text string, lang Lang) (string, error) {
	key := cache.Key(string(lang), text)
	if v, ok := m.cache.Get(key); ok {
		if m.limiter != nil {
			m.limiter.RecordCacheHit()
		}
		return v, nil
	}
	out, err := m.next.Translate(ctx, text, lang)
	if err != nil {
		return "", err
	}
	m.cache.Set(key, out, m.ttl)
	return out, nil
}

// Limited spends one unit of the daily budget per call and retries
// transient failures. An exhausted budget is not retried.
type Limited struct {
	next    Translator
	limiter *ratelimit.Limiter
	retry   retry.Config
}

func NewLimited(next Translator, limiter *ratelimit.Limiter, cfg retry.Config) *Limited {
	return &Limited{next: next, limiter: limiter, retry: cfg}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Translate(ctx context.Context, text string, lang Lang) (string, error) {
	var out string
	err := retry.WithRetry(ctx, l.retry, func() error {
		if err := l.limiter.Use(l.next.Name()); err != nil {
			return retry.Permanent(err)
		}
		var err error
		out, err = l.next.Translate(ctx, text, lang)
		if ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return err
	})
	return out, err
}
