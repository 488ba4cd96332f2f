package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sarawaknews/internal/logger"
	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/report"
	"github.com/deusflow/sarawaknews/internal/rss"
	"github.com/deusflow/sarawaknews/internal/storage"
	"github.com/deusflow/sarawaknews/internal/testutil"
)

type fakeFetcher map[string]struct {
	items []rss.Item
	err   error
}

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]rss.Item, error) {
	r, ok := f[url]
	if !ok {
		return nil, fmt.Errorf("no route for %s", url)
	}
	return r.items, r.err
}

// failingInserts wraps a store and fails inserts for the listed links.
type failingInserts struct {
	*storage.Store
	links map[string]bool
}

func (f failingInserts) InsertArticleIfAbsent(ctx context.Context, a storage.Article) (bool, error) {
	if f.links[a.URL] {
		return false, errors.New("disk full")
	}
	return f.Store.InsertArticleIfAbsent(ctx, a)
}

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newWorker(f Fetcher, s Store, st *storage.Store) *Worker {
	return New(f, s,
		WithReporter(report.New(st, nil, logger.Discard())),
		WithMetrics(&metrics.Metrics{}),
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestIngestSourceIsIdempotent(t *testing.T) {
	st := testutil.OpenTestStore(t)
	src := testutil.AddSource(t, st, "Borneo Post", "https://feed.example/bp", false)
	pub := time.Date(2026, 4, 30, 10, 0, 0, 0, time.UTC)

	fetcher := fakeFetcher{src.URL: {items: []rss.Item{
		{Title: "Kuching unveils new bridge", Link: "https://bp.example/bridge", PublishedAt: &pub},
		{Title: "Miri flood update", Link: "https://bp.example/flood"},
		{Title: "Global markets slide", Link: "https://bp.example/markets"},
		{Title: "", Link: ""},
		{Title: "Sibu story without link"},
	}}}
	w := newWorker(fetcher, st, st)

	first := w.IngestSource(context.Background(), src)
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.Seen)
	assert.Equal(t, 2, first.Added)
	assert.Equal(t, 3, first.Skipped)

	second := w.IngestSource(context.Background(), src)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Seen, second.Seen)
	assert.Zero(t, second.Added)

	counts, err := st.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Articles)

	bridge, err := st.GetArticleByURL(context.Background(), "https://bp.example/bridge")
	require.NoError(t, err)
	assert.Equal(t, "infrastructure", bridge.Category)
	assert.Equal(t, "Kuching", bridge.Subregion)
	assert.Equal(t, "Borneo Post", bridge.SourceName)
	assert.WithinDuration(t, pub, bridge.PublishedAt, time.Second)

	flood, err := st.GetArticleByURL(context.Background(), "https://bp.example/flood")
	require.NoError(t, err)
	assert.WithinDuration(t, fixedNow, flood.PublishedAt, time.Second, "missing publish date falls back to ingestion time")

	got, err := st.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ErrorCount)
	require.NotNil(t, got.LastSuccessAt)
}

func TestIngestSourceAlwaysRelevant(t *testing.T) {
	st := testutil.OpenTestStore(t)
	src := testutil.AddSource(t, st, "Local Sports", "https://feed.example/sports", true)

	fetcher := fakeFetcher{src.URL: {items: []rss.Item{
		{Title: "Local team wins badminton championship", Link: "https://sp.example/1"},
	}}}
	res := newWorker(fetcher, st, st).IngestSource(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Added)

	a, err := st.GetArticleByURL(context.Background(), "https://sp.example/1")
	require.NoError(t, err)
	assert.Equal(t, "sports", a.Category)
}

func TestIngestSourceFetchFailureRecordsHealth(t *testing.T) {
	st := testutil.OpenTestStore(t)
	src := testutil.AddSource(t, st, "Flaky", "https://feed.example/flaky", false)

	fetcher := fakeFetcher{src.URL: {err: &rss.StatusError{URL: src.URL, Code: 503}}}
	w := newWorker(fetcher, st, st)

	res := w.IngestSource(context.Background(), src)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, rss.ErrStatus)
	assert.Zero(t, res.Added)

	_ = w.IngestSource(context.Background(), src)

	got, err := st.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Contains(t, got.LastError, "503")
	require.NotNil(t, got.LastFetchedAt)
	assert.Nil(t, got.LastSuccessAt)

	entries, err := st.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(report.KindFetchFailed), entries[0].Kind)
	assert.Equal(t, "Flaky", entries[0].Source)
}

func TestIngestSourceParseFailureKind(t *testing.T) {
	st := testutil.OpenTestStore(t)
	src := testutil.AddSource(t, st, "Broken", "https://feed.example/broken", false)

	fetcher := fakeFetcher{src.URL: {err: fmt.Errorf("%w: bad xml", rss.ErrParse)}}
	res := newWorker(fetcher, st, st).IngestSource(context.Background(), src)
	require.Error(t, res.Err)

	entries, err := st.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(report.KindParseFailed), entries[0].Kind)
}

func TestIngestSourceInsertFailureOnlyAffectsThatItem(t *testing.T) {
	st := testutil.OpenTestStore(t)
	src := testutil.AddSource(t, st, "Dayak Daily", "https://feed.example/dd", false)

	fetcher := fakeFetcher{src.URL: {items: []rss.Item{
		{Title: "Kapit longhouse festival", Link: "https://dd.example/1"},
		{Title: "Sarikei pepper prices rise", Link: "https://dd.example/2"},
	}}}
	store := failingInserts{Store: st, links: map[string]bool{"https://dd.example/1": true}}

	res := newWorker(fetcher, store, st).IngestSource(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Failed)

	got, err := st.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ErrorCount, "an insert error does not count against the source")

	entries, err := st.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(report.KindInsertFailed), entries[0].Kind)
}
