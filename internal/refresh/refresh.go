// Package refresh runs ingestion cycles over the feed registry, enforces the
// cooldown for automatic triggers and persists each cycle's outcome.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/deusflow/sarawaknews/internal/ingest"
	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/report"
	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/translate"
)

const (
	component       = "refresh"
	DefaultCooldown = 10 * time.Minute
	flightKey       = "cycle"
)

type MetadataStore interface {
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	GetMetadataKeys(ctx context.Context, keys ...string) (map[string]string, error)
	SetMetadata(ctx context.Context, values map[string]string) error
}

type Store interface {
	MetadataStore
	ListActiveSources(ctx context.Context) ([]sources.Source, error)
}

type Ingester interface {
	IngestSource(ctx context.Context, src sources.Source) ingest.Result
}

type Backfiller interface {
	Run(ctx context.Context) (int, error)
}

type Reporter interface {
	Report(ctx context.Context, e report.Event)
	AlertsEnabled() bool
	Alert(ctx context.Context, title string, lines ...string)
}

// Mode says which trigger asked for a cycle.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAutomatic Mode = "automatic"
)

// Outcome is what a trigger gets back. A throttled request carries only
// Throttled and RetryAfter.
type Outcome struct {
	RunID       string    `json:"runId,omitempty"`
	Added       int       `json:"added"`
	Total       int       `json:"total"`
	Errors      []string  `json:"errors"`
	Status      Status    `json:"status"`
	RefreshedAt time.Time `json:"refreshedAt"`
	Throttled   bool      `json:"-"`
	RetryAfter  int       `json:"-"`
}

type Orchestrator struct {
	store      Store
	ingester   Ingester
	backfiller Backfiller
	reporter   Reporter
	metrics    *metrics.Metrics
	log        *slog.Logger
	cooldown   time.Duration
	now        func() time.Time

	group singleflight.Group
	bg    context.Context
	wg    sync.WaitGroup
}

type Option func(*Orchestrator)

func WithBackfiller(b Backfiller) Option               { return func(o *Orchestrator) { o.backfiller = b } }
func WithReporter(r Reporter) Option                   { return func(o *Orchestrator) { o.reporter = r } }
func WithMetrics(m *metrics.Metrics) Option            { return func(o *Orchestrator) { o.metrics = m } }
func WithLogger(l *slog.Logger) Option                 { return func(o *Orchestrator) { o.log = l } }
func WithCooldown(d time.Duration) Option              { return func(o *Orchestrator) { o.cooldown = d } }
func WithClock(now func() time.Time) Option            { return func(o *Orchestrator) { o.now = now } }
func WithBackgroundContext(ctx context.Context) Option { return func(o *Orchestrator) { o.bg = ctx } }

func New(s Store, ing Ingester, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		ingester: ing,
		reporter: report.Nop(),
		metrics:  metrics.Global,
		log:      slog.Default(),
		cooldown: DefaultCooldown,
		now:      func() time.Time { return time.Now().UTC() },
		bg:       context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Manual runs a cycle regardless of the cooldown.
func (o *Orchestrator) Manual(ctx context.Context) (Outcome, error) {
	for {
		out, err := o.run(ctx, ModeManual)
		// A throttled result can only come from joining an automatic flight.
		if err != nil || !out.Throttled {
			return out, err
		}
	}
}

// Automatic runs a cycle unless the last one finished less than the cooldown
// ago, in which case the outcome is Throttled with RetryAfter seconds.
func (o *Orchestrator) Automatic(ctx context.Context) (Outcome, error) {
	if out, err := o.throttled(ctx); err != nil || out.Throttled {
		return out, err
	}
	return o.run(ctx, ModeAutomatic)
}

// RetryAfter returns the whole seconds until an automatic cycle may run, 0 if
// it may run now. It reads the persisted timestamp each call and takes no lock.
func (o *Orchestrator) RetryAfter(ctx context.Context) (int, error) {
	raw, ok, err := o.store.GetMetadata(ctx, KeyLastRefresh)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", KeyLastRefresh, err)
	}
	if !ok {
		return 0, nil
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		o.log.Warn("ignoring unparseable refresh timestamp", "value", raw, "error", err)
		return 0, nil
	}

	remaining := o.cooldown - o.now().Sub(last)
	if remaining <= 0 {
		return 0, nil
	}
	if remaining > o.cooldown {
		remaining = o.cooldown
	}
	return int(math.Ceil(remaining.Seconds())), nil
}

// NextAllowedAt is when the automatic path will next run a cycle.
func (o *Orchestrator) NextAllowedAt(st State) time.Time {
	if st.LastRefresh == nil {
		return o.now()
	}
	next := st.LastRefresh.Add(o.cooldown)
	if now := o.now(); next.Before(now) {
		return now
	}
	return next
}

func (o *Orchestrator) Cooldown() time.Duration { return o.cooldown }

func (o *Orchestrator) throttled(ctx context.Context) (Outcome, error) {
	secs, err := o.RetryAfter(ctx)
	if err != nil || secs == 0 {
		return Outcome{}, err
	}
	o.metrics.RecordThrottled()
	o.log.Info("automatic refresh throttled", "retry_after", secs)
	return Outcome{Throttled: true, RetryAfter: secs}, nil
}

// run executes at most one cycle per process at a time. Callers arriving while
// a cycle runs share its outcome.
func (o *Orchestrator) run(ctx context.Context, mode Mode) (Outcome, error) {
	ch := o.group.DoChan(flightKey, func() (interface{}, error) {
		// The cycle outlives any one caller.
		cctx := context.WithoutCancel(ctx)
		if mode == ModeAutomatic {
			if out, err := o.throttled(cctx); err != nil || out.Throttled {
				return out, err
			}
		}
		return o.cycle(cctx, mode)
	})

	select {
	case res := <-ch:
		out, _ := res.Val.(Outcome)
		return out, res.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (o *Orchestrator) cycle(ctx context.Context, mode Mode) (Outcome, error) {
	runID := uuid.NewString()
	log := o.log.With("run_id", runID, "mode", string(mode))
	start := time.Now()
	log.Info("refresh started")

	srcs, err := o.store.ListActiveSources(ctx)
	if err != nil {
		return Outcome{RunID: runID}, o.systemic(ctx, log, fmt.Errorf("list active sources: %w", err))
	}

	out := Outcome{RunID: runID, Errors: []string{}}
	for _, src := range srcs {
		res := o.ingester.IngestSource(ctx, src)
		out.Total += res.Seen
		out.Added += res.Added
		if res.Err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", src.Name, res.Err))
		}
	}
	out.Status = DeriveStatus(len(out.Errors), out.Added)
	out.RefreshedAt = o.now().UTC()

	st := State{
		LastRefresh: &out.RefreshedAt,
		Status:      out.Status,
		Added:       out.Added,
		Total:       out.Total,
		ErrorCount:  len(out.Errors),
	}
	if err := o.store.SetMetadata(ctx, st.values()); err != nil {
		return out, o.systemic(ctx, log, fmt.Errorf("persist refresh state: %w", err))
	}

	elapsed := time.Since(start)
	o.metrics.RecordRefresh(string(out.Status), out.Added, out.Total, elapsed)
	log.Info("refresh finished",
		"sources", len(srcs),
		"added", out.Added,
		"total", out.Total,
		"errors", len(out.Errors),
		"status", string(out.Status),
		"duration", elapsed.Round(time.Millisecond).String(),
	)

	if out.Status != StatusError {
		o.startBackfill(runID)
	}
	o.alert(ctx, out)
	return out, nil
}

func (o *Orchestrator) systemic(ctx context.Context, log *slog.Logger, err error) error {
	log.Error("refresh failed", "error", err)
	o.metrics.SetError(err.Error())
	o.reporter.Report(ctx, report.Event{Component: component, Kind: report.KindRefreshFailed, Message: err.Error()})
	o.reporter.Alert(ctx, "Sarawak news refresh failed", err.Error())
	return err
}

// startBackfill runs the translation backfill in the background. Wait blocks
// until it returns.
func (o *Orchestrator) startBackfill(runID string) {
	if o.backfiller == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		log := o.log.With("run_id", runID)
		n, err := o.backfiller.Run(o.bg)
		switch {
		case errors.Is(err, translate.ErrBackfillRunning):
			log.Debug("backfill already running")
		case errors.Is(err, context.Canceled):
			log.Info("backfill stopped", "translated", n)
		case err != nil:
			log.Error("backfill failed", "translated", n, "error", err)
			o.reporter.Report(o.bg, report.Event{Component: component, Kind: report.KindTranslateFailed, Message: err.Error()})
		default:
			log.Info("backfill finished", "translated", n)
		}
	}()
}

// Wait blocks until background backfills started by past cycles return.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// alert tells the operator about a failed cycle and about sources that just
// crossed the unhealthy threshold.
func (o *Orchestrator) alert(ctx context.Context, out Outcome) {
	if !o.reporter.AlertsEnabled() {
		return
	}
	if out.Status == StatusError {
		lines := []string{"added " + strconv.Itoa(out.Added) + ", seen " + strconv.Itoa(out.Total)}
		o.reporter.Alert(ctx, "Sarawak news refresh finished with errors", append(lines, TruncateErrors(out.Errors, 10)...)...)
	}

	srcs, err := o.store.ListActiveSources(ctx)
	if err != nil {
		o.log.Warn("failed to list sources for health alert", "error", err)
		return
	}
	for _, s := range srcs {
		if s.ErrorCount == sources.UnhealthyErrorCount {
			o.reporter.Alert(ctx, "Feed source unhealthy: "+s.Name,
				fmt.Sprintf("%d consecutive failures", s.ErrorCount), s.LastError)
		}
	}
}

// TruncateErrors caps an error list for display.
func TruncateErrors(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return append(list[:n:n], fmt.Sprintf("... and %d more", len(list)-n))
}
