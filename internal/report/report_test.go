package report

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sarawaknews/internal/logger"
	"github.com/deusflow/sarawaknews/internal/storage"
)

type memSink struct {
	mu      sync.Mutex
	entries []storage.ErrorEntry
	err     error
}

func (m *memSink) RecordError(_ context.Context, e storage.ErrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type memAlerter struct{ msgs []string }

func (m *memAlerter) SendMessage(_ context.Context, text string) error {
	m.msgs = append(m.msgs, text)
	return nil
}

func TestReportPersistsEvenWhenCallerContextIsDone(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	r := New(sink, nil, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Report(ctx, Event{Component: "ingest", Kind: KindFetchFailed, Source: "Borneo Post", Message: "timeout"})

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "fetch_failed", sink.entries[0].Kind)
	assert.Equal(t, "Borneo Post", sink.entries[0].Source)
	assert.False(t, sink.entries[0].CreatedAt.IsZero())
}

func TestReportSwallowsSinkErrors(t *testing.T) {
	t.Parallel()

	r := New(&memSink{err: errors.New("db down")}, nil, logger.Discard())
	assert.NotPanics(t, func() {
		r.Report(context.Background(), Event{Kind: KindInsertFailed, Message: "x"})
	})

	var nilReporter *Reporter
	assert.NotPanics(t, func() { nilReporter.Report(context.Background(), Event{}) })
}

func TestAlertEscapesHTML(t *testing.T) {
	t.Parallel()

	a := &memAlerter{}
	r := New(nil, a, logger.Discard())
	require.True(t, r.AlertsEnabled())

	r.Alert(context.Background(), "Refresh <error>", "A: 502 & retry")
	require.Len(t, a.msgs, 1)
	assert.Equal(t, "<b>Refresh &lt;error&gt;</b>\nA: 502 &amp; retry", a.msgs[0])

	assert.False(t, Nop().AlertsEnabled())
}
