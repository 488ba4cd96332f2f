// Package scheduler fires the automatic refresh path on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deusflow/sarawaknews/internal/refresh"
)

type Refresher interface {
	Automatic(ctx context.Context) (refresh.Outcome, error)
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	timeout   time.Duration
	log       *slog.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New schedules r.Automatic on spec (standard 5-field cron or a descriptor
// such as @every 15m). Each tick is bounded by timeout.
func New(spec string, r Refresher, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{refresher: r, timeout: timeout, log: log}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		cron.WithLocation(time.UTC),
	)
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running tick.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("refresh scheduler stopped")
}

// Next is the next scheduled tick.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now())
}

// Tick runs one automatic refresh.
func (s *Scheduler) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.refresher.Automatic(ctx)
	switch {
	case err != nil:
		s.log.Error("scheduled refresh failed", "error", err)
	case out.Throttled:
		s.log.Info("scheduled refresh skipped", "retry_after", out.RetryAfter)
	default:
		s.log.Info("scheduled refresh done", "status", string(out.Status), "added", out.Added, "total", out.Total)
	}
}
