// Package report is the side channel components write failures into. Entries
// go to the structured log, the error_log table and, for alerts, Telegram.
// Reporting never fails the caller.
package report

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/deusflow/sarawaknews/internal/logger"
	"github.com/deusflow/sarawaknews/internal/storage"
)

type Kind string

const (
	KindFetchFailed        Kind = "fetch_failed"
	KindParseFailed        Kind = "parse_failed"
	KindInsertFailed       Kind = "insert_failed"
	KindTranslateFailed    Kind = "translate_failed"
	KindRefreshFailed      Kind = "refresh_failed"
	KindHealthUpdateFailed Kind = "health_update_failed"
)

// Event is one reported failure.
type Event struct {
	Component string
	Kind      Kind
	Source    string
	Message   string
}

// Sink persists events.
type Sink interface {
	RecordError(ctx context.Context, e storage.ErrorEntry) error
}

// Alerter delivers operator alerts.
type Alerter interface {
	SendMessage(ctx context.Context, text string) error
}

type Reporter struct {
	sink    Sink
	alerter Alerter
	log     *slog.Logger
	now     func() time.Time
}

// New builds a Reporter. sink and alerter may be nil.
func New(sink Sink, alerter Alerter, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{sink: sink, alerter: alerter, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Nop returns a Reporter that drops everything.
func Nop() *Reporter {
	return New(nil, nil, logger.Discard())
}

// Report records e. Persisting uses a context detached from ctx's
// cancellation: entries from a timed-out fetch are still written.
func (r *Reporter) Report(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	r.log.Warn("pipeline error",
		"component", e.Component,
		"kind", string(e.Kind),
		"source", e.Source,
		"error", e.Message,
	)
	if r.sink == nil {
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := r.sink.RecordError(wctx, storage.ErrorEntry{
		Component: e.Component,
		Kind:      string(e.Kind),
		Source:    e.Source,
		Message:   e.Message,
		CreatedAt: r.now(),
	})
	if err != nil {
		r.log.Error("failed to persist error entry", "kind", string(e.Kind), "error", err)
	}
}

// AlertsEnabled reports whether Alert can deliver anything.
func (r *Reporter) AlertsEnabled() bool {
	return r != nil && r.alerter != nil
}

// Alert sends an operator message. title is bold, lines follow; all text is escaped.
func (r *Reporter) Alert(ctx context.Context, title string, lines ...string) {
	if !r.AlertsEnabled() {
		return
	}
	msg := fmt.Sprintf("<b>%s</b>", html.EscapeString(title))
	for _, l := range lines {
		msg += "\n" + html.EscapeString(l)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := r.alerter.SendMessage(wctx, msg); err != nil {
		r.log.Error("failed to send alert", "title", title, "error", err)
	}
}
