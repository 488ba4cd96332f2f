// Package ingest runs one source through fetch, classify and insert, and
// records the attempt against the source's health counters.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/deusflow/sarawaknews/internal/classify"
	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/report"
	"github.com/deusflow/sarawaknews/internal/rss"
	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/storage"
)

const component = "ingest"

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]rss.Item, error)
}

type Store interface {
	InsertArticleIfAbsent(ctx context.Context, a storage.Article) (bool, error)
	RecordSourceSuccess(ctx context.Context, id int64, at time.Time) error
	RecordSourceFailure(ctx context.Context, id int64, message string, at time.Time) error
}

type Reporter interface {
	Report(ctx context.Context, e report.Event)
}

// Result is the outcome for one source. Err is set when the feed could not be
// fetched or parsed; Seen and Added are zero then.
type Result struct {
	SourceID   int64
	SourceName string
	Seen       int // well-formed in-scope items that reached the insert step
	Added      int
	Skipped    int // malformed or out of scope
	Failed     int // insert errors
	Err        error
}

type Worker struct {
	fetcher  Fetcher
	store    Store
	rules    classify.Rules
	reporter Reporter
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Worker)

func WithRules(r classify.Rules) Option     { return func(w *Worker) { w.rules = r } }
func WithReporter(r Reporter) Option        { return func(w *Worker) { w.reporter = r } }
func WithMetrics(m *metrics.Metrics) Option { return func(w *Worker) { w.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(w *Worker) { w.log = l } }
func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

func New(f Fetcher, s Store, opts ...Option) *Worker {
	w := &Worker{
		fetcher:  f,
		store:    s,
		rules:    classify.Default(),
		reporter: report.Nop(),
		metrics:  metrics.Global,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// IngestSource fetches src and stores its new in-scope items. A fetch or
// parse failure is returned in Result.Err, never as a panic or a partial
// insert run.
func (w *Worker) IngestSource(ctx context.Context, src sources.Source) Result {
	res := Result{SourceID: src.ID, SourceName: src.Name}
	log := w.log.With("source", src.Name, "url", src.URL)

	items, err := w.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		res.Err = err
		w.fail(ctx, src, err)
		log.Warn("source fetch failed", "error", err)
		return res
	}

	for _, it := range items {
		if it.Title == "" || it.Link == "" {
			res.Skipped++
			continue
		}
		verdict := w.rules.Classify(it.Title, it.Snippet, src.AlwaysRelevant)
		if !verdict.InScope {
			res.Skipped++
			continue
		}
		res.Seen++

		now := w.now()
		published := now
		if it.PublishedAt != nil {
			published = *it.PublishedAt
		}
		inserted, err := w.store.InsertArticleIfAbsent(ctx, storage.Article{
			URL:         it.Link,
			Title:       it.Title,
			Snippet:     it.Snippet,
			SourceName:  src.Name,
			Category:    verdict.Category,
			Subregion:   verdict.Subregion,
			PublishedAt: published,
			CreatedAt:   now,
		})
		if err != nil {
			res.Failed++
			w.reporter.Report(ctx, report.Event{
				Component: component,
				Kind:      report.KindInsertFailed,
				Source:    src.Name,
				Message:   err.Error(),
			})
			continue
		}
		if inserted {
			res.Added++
			log.Debug("article added", "link", it.Link, "category", verdict.Category, "subregion", verdict.Subregion)
		}
	}

	w.metrics.RecordSourceFetch(true)
	if err := w.store.RecordSourceSuccess(context.WithoutCancel(ctx), src.ID, w.now()); err != nil {
		w.reporter.Report(ctx, report.Event{
			Component: component,
			Kind:      report.KindHealthUpdateFailed,
			Source:    src.Name,
			Message:   err.Error(),
		})
	}

	log.Info("source ingested", "items", len(items), "seen", res.Seen, "added", res.Added, "skipped", res.Skipped, "failed", res.Failed)
	return res
}

// fail records the attempt as failed. The health write uses a context detached
// from ctx so a cancelled cycle does not lose it.
func (w *Worker) fail(ctx context.Context, src sources.Source, err error) {
	kind := report.KindFetchFailed
	if errors.Is(err, rss.ErrParse) {
		kind = report.KindParseFailed
	}
	w.metrics.RecordSourceFetch(false)
	w.reporter.Report(ctx, report.Event{
		Component: component,
		Kind:      kind,
		Source:    src.Name,
		Message:   err.Error(),
	})

	if herr := w.store.RecordSourceFailure(context.WithoutCancel(ctx), src.ID, err.Error(), w.now()); herr != nil {
		w.reporter.Report(ctx, report.Event{
			Component: component,
			Kind:      report.KindHealthUpdateFailed,
			Source:    src.Name,
			Message:   herr.Error(),
		})
	}
}
