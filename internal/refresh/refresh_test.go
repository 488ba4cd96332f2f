package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sarawaknews/internal/ingest"
	"github.com/deusflow/sarawaknews/internal/logger"
	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/report"
	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/storage"
	"github.com/deusflow/sarawaknews/internal/testutil"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeIngester returns canned results per source name and counts calls.
type fakeIngester struct {
	results map[string]ingest.Result
	gate    chan struct{}

	mu    sync.Mutex
	order []string
	calls atomic.Int32
}

func (f *fakeIngester) IngestSource(_ context.Context, src sources.Source) ingest.Result {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.order = append(f.order, src.Name)
	f.mu.Unlock()
	r := f.results[src.Name]
	r.SourceID, r.SourceName = src.ID, src.Name
	return r
}

type fakeBackfiller struct {
	runs atomic.Int32
}

func (b *fakeBackfiller) Run(context.Context) (int, error) {
	b.runs.Add(1)
	return 0, nil
}

func newOrchestrator(st Store, ing Ingester, opts ...Option) *Orchestrator {
	base := []Option{
		WithMetrics(&metrics.Metrics{}),
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return fixedNow }),
	}
	return New(st, ing, append(base, opts...)...)
}

func setLastRefresh(t *testing.T, s *storage.Store, at time.Time) {
	t.Helper()
	require.NoError(t, s.SetMetadata(context.Background(), map[string]string{KeyLastRefresh: at.Format(time.RFC3339)}))
}

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusSuccess, DeriveStatus(0, 0))
	assert.Equal(t, StatusSuccess, DeriveStatus(0, 5))
	assert.Equal(t, StatusWarning, DeriveStatus(2, 1))
	assert.Equal(t, StatusError, DeriveStatus(1, 0))
}

func TestAutomaticThrottledWithinCooldown(t *testing.T) {
	st := testutil.OpenTestStore(t)
	testutil.AddSource(t, st, "Borneo Post", "https://feed.example/bp", false)
	setLastRefresh(t, st, fixedNow.Add(-5*time.Minute))

	ing := &fakeIngester{}
	out, err := newOrchestrator(st, ing).Automatic(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Throttled)
	assert.Equal(t, 300, out.RetryAfter)
	assert.Zero(t, ing.calls.Load())
}

func TestAutomaticProceedsAfterCooldown(t *testing.T) {
	st := testutil.OpenTestStore(t)
	testutil.AddSource(t, st, "Borneo Post", "https://feed.example/bp", false)
	setLastRefresh(t, st, fixedNow.Add(-11*time.Minute))

	ing := &fakeIngester{results: map[string]ingest.Result{"Borneo Post": {Seen: 4, Added: 2}}}
	out, err := newOrchestrator(st, ing).Automatic(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Throttled)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 2, out.Added)
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, int32(1), ing.calls.Load())
}

func TestRetryAfterRoundsUp(t *testing.T) {
	st := testutil.OpenTestStore(t)
	o := newOrchestrator(st, &fakeIngester{})

	secs, err := o.RetryAfter(context.Background())
	require.NoError(t, err)
	assert.Zero(t, secs, "no previous refresh")

	require.NoError(t, st.SetMetadata(context.Background(), map[string]string{KeyLastRefresh: "yesterday-ish"}))
	secs, err = o.RetryAfter(context.Background())
	require.NoError(t, err)
	assert.Zero(t, secs, "unparseable timestamp does not block")

	setLastRefresh(t, st, fixedNow.Add(-9*time.Minute-30*time.Second))
	secs, err = o.RetryAfter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, secs)

	setLastRefresh(t, st, fixedNow.Add(time.Hour))
	secs, err = o.RetryAfter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 600, secs, "a future timestamp never blocks longer than the cooldown")
}

func TestManualIgnoresCooldown(t *testing.T) {
	st := testutil.OpenTestStore(t)
	testutil.AddSource(t, st, "Borneo Post", "https://feed.example/bp", false)
	setLastRefresh(t, st, fixedNow.Add(-time.Minute))

	ing := &fakeIngester{}
	out, err := newOrchestrator(st, ing).Manual(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Throttled)
	assert.Equal(t, int32(1), ing.calls.Load())
}

func TestCycleIsolatesFailingSource(t *testing.T) {
	st := testutil.OpenTestStore(t)
	for _, name := range []string{"Borneo Post", "Dayak Daily", "Malay Mail"} {
		testutil.AddSource(t, st, name, "https://feed.example/"+name, false)
	}
	ing := &fakeIngester{results: map[string]ingest.Result{
		"Borneo Post": {Seen: 3, Added: 2},
		"Dayak Daily": {Err: errors.New("timeout after 10s")},
		"Malay Mail":  {Seen: 5, Added: 1},
	}}
	bf := &fakeBackfiller{}
	o := newOrchestrator(st, ing, WithBackfiller(bf))

	out, err := o.Manual(context.Background())
	require.NoError(t, err)
	o.Wait()

	assert.Equal(t, StatusWarning, out.Status)
	assert.Equal(t, 3, out.Added)
	assert.Equal(t, 8, out.Total)
	assert.Equal(t, []string{"Dayak Daily: timeout after 10s"}, out.Errors)
	assert.Equal(t, []string{"Borneo Post", "Dayak Daily", "Malay Mail"}, ing.order)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, int32(1), bf.runs.Load(), "warning still triggers backfill")

	state, err := ReadState(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, state.LastRefresh)
	assert.Equal(t, fixedNow, *state.LastRefresh)
	assert.Equal(t, State{LastRefresh: state.LastRefresh, Status: StatusWarning, Added: 3, Total: 8, ErrorCount: 1}, state)
}

func TestCycleAllFailedIsErrorAndSkipsBackfill(t *testing.T) {
	st := testutil.OpenTestStore(t)
	testutil.AddSource(t, st, "A", "https://a.example/feed", false)
	testutil.AddSource(t, st, "B", "https://b.example/feed", false)
	ing := &fakeIngester{results: map[string]ingest.Result{
		"A": {Err: errors.New("503")},
		"B": {Err: errors.New("bad xml")},
	}}
	bf := &fakeBackfiller{}
	o := newOrchestrator(st, ing, WithBackfiller(bf))

	out, err := o.Manual(context.Background())
	require.NoError(t, err, "per-source failures are not systemic")
	o.Wait()

	assert.Equal(t, StatusError, out.Status)
	assert.Len(t, out.Errors, 2)
	assert.Zero(t, bf.runs.Load())

	v, ok, err := st.GetMetadata(context.Background(), KeyLastStatus)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "error", v)
}

type failingMetadata struct {
	*storage.Store
}

func (failingMetadata) SetMetadata(context.Context, map[string]string) error {
	return errors.New("database is locked")
}

func TestPersistFailureIsSystemic(t *testing.T) {
	st := testutil.OpenTestStore(t)
	testutil.AddSource(t, st, "A", "https://a.example/feed", false)
	bf := &fakeBackfiller{}
	o := newOrchestrator(failingMetadata{st}, &fakeIngester{}, WithBackfiller(bf),
		WithReporter(report.New(st, nil, logger.Discard())))

	_, err := o.Manual(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist refresh state")
	o.Wait()
	assert.Zero(t, bf.runs.Load())

	_, ok, err := st.GetMetadata(context.Background(), KeyLastRefresh)
	require.NoError(t, err)
	assert.False(t, ok, "prior state stays authoritative")

	entries, err := st.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(report.KindRefreshFailed), entries[0].Kind)
}

func TestOverlappingCyclesRunOnce(t *testing.T) {
	st := testutil.OpenTestStore(t)
	testutil.AddSource(t, st, "A", "https://a.example/feed", false)
	ing := &fakeIngester{
		results: map[string]ingest.Result{"A": {Seen: 1, Added: 1}},
		gate:    make(chan struct{}),
	}
	o := newOrchestrator(st, ing)

	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := o.Manual(context.Background())
			assert.NoError(t, err)
			outs[i] = out
		}(i)
	}

	require.Eventually(t, func() bool { return ing.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the second caller time to join the running flight.
	time.Sleep(20 * time.Millisecond)
	close(ing.gate)
	wg.Wait()

	assert.Equal(t, int32(1), ing.calls.Load())
	assert.Equal(t, outs[0].RunID, outs[1].RunID)
	assert.Equal(t, 1, outs[0].Added)
}

func TestNextAllowedAt(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(nil, nil)
	assert.Equal(t, fixedNow, o.NextAllowedAt(State{}))

	recent := fixedNow.Add(-4 * time.Minute)
	assert.Equal(t, fixedNow.Add(6*time.Minute), o.NextAllowedAt(State{LastRefresh: &recent}))

	old := fixedNow.Add(-time.Hour)
	assert.Equal(t, fixedNow, o.NextAllowedAt(State{LastRefresh: &old}))
}

func TestTruncateErrors(t *testing.T) {
	t.Parallel()

	list := []string{"a", "b", "c"}
	assert.Equal(t, list, TruncateErrors(list, 10))
	assert.Equal(t, []string{"a", "b", "... and 1 more"}, TruncateErrors(list, 2))
	assert.Equal(t, []string{"a", "b", "c"}, list, "input is not modified")
}
