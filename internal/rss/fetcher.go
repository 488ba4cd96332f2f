// Package rss retrieves and parses one feed into candidate items.
package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "sarawaknews/1.0 (+https://github.com/deusflow/sarawaknews)"
	// MaxSnippetRunes bounds the stored snippet.
	MaxSnippetRunes = 500
	maxBodyBytes    = 10 << 20
)

// ErrStatus is wrapped by StatusError.
var ErrStatus = errors.New("unexpected http status")

// ErrParse marks a body that is not a usable feed.
var ErrParse = errors.New("feed parse failed")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http status %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Item is one candidate entry from a feed.
type Item struct {
	Title       string
	Link        string
	Snippet     string
	PublishedAt *time.Time
}

// Fetcher downloads feeds with a bounded timeout and optional per-host pacing.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	limiter   *HostLimiter
	userAgent string
	log       *slog.Logger
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithHostLimiter paces requests per host.
func WithHostLimiter(l *HostLimiter) Option { return func(f *Fetcher) { f.limiter = l } }

func WithUserAgent(ua string) Option { return func(f *Fetcher) { f.userAgent = ua } }

func WithLogger(l *slog.Logger) Option { return func(f *Fetcher) { f.log = l } }

// NewFetcher builds a Fetcher. timeout <= 0 uses DefaultTimeout.
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		userAgent: DefaultUserAgent,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch retrieves and parses url. The whole call, including waiting on the host
// limiter, is bounded by the fetcher timeout.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("wait for host slot: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, url, err)
	}

	items := Convert(feed)
	f.log.Debug("feed fetched", "url", url, "feed_title", feed.Title, "items", len(items))
	return items, nil
}

// Parse reads a feed document that is already in memory.
func Parse(body string) ([]Item, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return Convert(feed), nil
}

// Convert maps gofeed items, cleaning titles and snippets. Items are returned
// as-is otherwise; filtering malformed entries is the caller's job.
func Convert(feed *gofeed.Feed) []Item {
	if feed == nil {
		return nil
	}
	out := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		snippet := it.Description
		if strings.TrimSpace(snippet) == "" {
			snippet = it.Content
		}
		item := Item{
			Title:   PlainText(it.Title),
			Link:    strings.TrimSpace(it.Link),
			Snippet: Snippet(snippet),
		}
		switch {
		case it.PublishedParsed != nil:
			t := it.PublishedParsed.UTC()
			item.PublishedAt = &t
		case it.UpdatedParsed != nil:
			t := it.UpdatedParsed.UTC()
			item.PublishedAt = &t
		}
		out = append(out, item)
	}
	return out
}
