package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/report"
	"github.com/deusflow/sarawaknews/internal/storage"
)

const (
	component        = "translate"
	DefaultBatchSize = 100
)

// ErrBackfillRunning is returned when a backfill is already in progress.
var ErrBackfillRunning = errors.New("translation backfill already running")

type Store interface {
	GetUntranslatedArticles(ctx context.Context, limit int) ([]storage.Article, error)
	SetArticleTranslations(ctx context.Context, id int64, zh, ms *string, at time.Time) error
}

// Pacer spaces out per-item work. *ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

type Reporter interface {
	Report(ctx context.Context, e report.Event)
}

type Backfiller struct {
	store      Store
	translator Translator
	pacer      Pacer
	reporter   Reporter
	metrics    *metrics.Metrics
	log        *slog.Logger
	batch      int
	timeout    time.Duration
	now        func() time.Time
	running    atomic.Bool
}

type BackfillOption func(*Backfiller)

func WithBatchSize(n int) BackfillOption                    { return func(b *Backfiller) { b.batch = n } }
func WithCallTimeout(d time.Duration) BackfillOption        { return func(b *Backfiller) { b.timeout = d } }
func WithPacer(p Pacer) BackfillOption                      { return func(b *Backfiller) { b.pacer = p } }
func WithBackfillReporter(r Reporter) BackfillOption        { return func(b *Backfiller) { b.reporter = r } }
func WithBackfillMetrics(m *metrics.Metrics) BackfillOption { return func(b *Backfiller) { b.metrics = m } }
func WithBackfillLogger(l *slog.Logger) BackfillOption      { return func(b *Backfiller) { b.log = l } }
func WithBackfillClock(now func() time.Time) BackfillOption { return func(b *Backfiller) { b.now = now } }

func NewBackfiller(s Store, t Translator, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		store:      s,
		translator: t,
		pacer:      noPace{},
		reporter:   report.Nop(),
		metrics:    metrics.Global,
		log:        slog.Default(),
		batch:      DefaultBatchSize,
		timeout:    15 * time.Second,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type noPace struct{}

func (noPace) Wait(context.Context) error { return nil }

// Run translates one batch of articles with missing titles and returns how
// many had at least one translation persisted. Only one Run executes at a time.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	if !b.running.CompareAndSwap(false, true) {
		return 0, ErrBackfillRunning
	}
	defer b.running.Store(false)

	articles, err := b.store.GetUntranslatedArticles(ctx, b.batch)
	if err != nil {
		return 0, fmt.Errorf("load untranslated articles: %w", err)
	}
	if len(articles) == 0 {
		return 0, nil
	}
	b.log.Info("translation backfill started", "articles", len(articles), "translator", b.translator.Name())

	done := 0
	for i, a := range articles {
		if i > 0 {
			if err := b.pacer.Wait(ctx); err != nil {
				return done, err
			}
		}
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		ok, err := b.translateArticle(ctx, a)
		if err != nil {
			b.log.Error("failed to persist translations", "article_id", a.ID, "error", err)
			continue
		}
		if ok {
			done++
		}
	}

	b.log.Info("translation backfill finished", "articles", len(articles), "translated", done)
	return done, nil
}

// translateArticle fills the missing languages of a in parallel. The attempt
// is stamped even when every language failed.
func (b *Backfiller) translateArticle(ctx context.Context, a storage.Article) (bool, error) {
	have := map[Lang]*string{LangZH: a.TitleZH, LangMS: a.TitleMS}
	got := make([]*string, len(Targets))
	var g errgroup.Group
	for i, lang := range Targets {
		if have[lang] != nil {
			continue
		}
		g.Go(func() error {
			got[i] = b.translateOne(ctx, a, lang)
			return nil
		})
	}
	_ = g.Wait()

	var zh, ms *string
	for i, lang := range Targets {
		switch lang {
		case LangZH:
			zh = got[i]
		case LangMS:
			ms = got[i]
		}
	}

	if err := b.store.SetArticleTranslations(context.WithoutCancel(ctx), a.ID, zh, ms, b.now()); err != nil {
		return false, err
	}
	return zh != nil || ms != nil, nil
}

func (b *Backfiller) translateOne(ctx context.Context, a storage.Article, lang Lang) *string {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.translator.Translate(cctx, a.Title, lang)
	if err == nil && out == "" {
		err = errors.New("empty translation")
	}
	b.metrics.RecordTranslation(string(lang), err == nil)
	if err != nil {
		b.reporter.Report(ctx, report.Event{
			Component: component,
			Kind:      report.KindTranslateFailed,
			Source:    a.SourceName,
			Message:   fmt.Sprintf("article %d %s: %v", a.ID, lang, err),
		})
		return nil
	}
	return &out
}
