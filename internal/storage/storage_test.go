package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/storage"
	"github.com/deusflow/sarawaknews/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestInsertArticleIfAbsentIsIdempotent(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	a := storage.Article{
		URL:        "https://example.com/a",
		Title:      "Kuching unveils new bridge",
		SourceName: "Borneo Post",
		Category:   "infrastructure",
		Subregion:  "Kuching",
	}

	inserted, err := s.InsertArticleIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)

	a.Title = "changed"
	inserted, err = s.InsertArticleIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetArticleByURL(ctx, a.URL)
	require.NoError(t, err)
	assert.Equal(t, "Kuching unveils new bridge", got.Title)
	assert.Nil(t, got.TitleZH)
	assert.False(t, got.PublishedAt.IsZero(), "published falls back to ingestion time")

	st, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Articles)
	assert.Equal(t, 1, st.Untranslated)
}

func TestSourceOutcomeCounters(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	src := testutil.AddSource(t, s, "Feed", "https://example.com/feed", false)

	assert.Nil(t, src.LastFetchedAt)
	assert.Equal(t, sources.StatusPending, sources.Evaluate(src, time.Now()).Status)

	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSourceSuccess(ctx, src.ID, t0))
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.RecordSourceFailure(ctx, src.ID, "timeout", t0.Add(time.Duration(i)*time.Minute)))
	}

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ErrorCount)
	assert.Equal(t, "timeout", got.LastError)
	require.NotNil(t, got.LastFetchedAt)
	require.NotNil(t, got.LastSuccessAt)
	assert.WithinDuration(t, t0.Add(3*time.Minute), *got.LastFetchedAt, time.Second)
	assert.WithinDuration(t, t0, *got.LastSuccessAt, time.Second)
	assert.Equal(t, sources.StatusUnhealthy, sources.Evaluate(got, t0.Add(time.Hour)).Status)

	t1 := t0.Add(time.Hour)
	require.NoError(t, s.RecordSourceSuccess(ctx, src.ID, t1))
	got, err = s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ErrorCount)
	assert.Empty(t, got.LastError)
	assert.WithinDuration(t, t1, *got.LastSuccessAt, time.Second)

	assert.ErrorIs(t, s.RecordSourceFailure(ctx, 999, "x", t1), storage.ErrNotFound)
}

func TestListActiveSourcesInRegistryOrder(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	a := testutil.AddSource(t, s, "A", "https://a.example/feed", false)
	b := testutil.AddSource(t, s, "B", "https://b.example/feed", true)
	c := testutil.AddSource(t, s, "C", "https://c.example/feed", false)
	require.NoError(t, s.SetSourceActive(ctx, b.ID, false))

	active, err := s.ListActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, a.ID, active[0].ID)
	assert.Equal(t, c.ID, active[1].ID)

	all, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[1].AlwaysRelevant)
	assert.False(t, all[1].Active)

	assert.ErrorIs(t, s.SetSourceActive(ctx, 42, true), storage.ErrNotFound)
	_, err = s.GetSource(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddSourceRejectsDuplicateURL(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	_, err := s.AddSource(ctx, sources.Source{Name: "A", URL: "https://a.example/feed", Active: true})
	require.NoError(t, err)
	_, err = s.AddSource(ctx, sources.Source{Name: "A2", URL: "https://a.example/feed", Active: true})
	assert.Error(t, err)
}

func TestSeedSourcesIsIdempotent(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	list := []sources.Source{
		{Name: "A", URL: "https://a.example/feed", Active: true},
		{Name: "B", URL: "https://b.example/feed", Active: true, AlwaysRelevant: true},
	}
	added, err := s.SeedSources(ctx, list)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	all, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetSourceActive(ctx, all[0].ID, false))

	added, err = s.SeedSources(ctx, list)
	require.NoError(t, err)
	assert.Zero(t, added)

	got, err := s.GetSource(ctx, all[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Active, "seeding leaves existing rows alone")
}

func TestGetUntranslatedArticles(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, u := range []string{"https://x/1", "https://x/2", "https://x/3", "https://x/4"} {
		_, err := s.InsertArticleIfAbsent(ctx, storage.Article{
			URL: u, Title: "t", SourceName: "s", Category: "general", Subregion: "Sarawak",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	byURL := func(u string) storage.Article {
		a, err := s.GetArticleByURL(ctx, u)
		require.NoError(t, err)
		return a
	}

	// 1: zh missing, ms present. 2: both present. 3: attempted already. 4: untouched.
	require.NoError(t, s.SetArticleTranslations(ctx, byURL("https://x/1").ID, nil, strPtr("x"), base.Add(time.Hour)))
	require.NoError(t, s.SetArticleTranslations(ctx, byURL("https://x/2").ID, strPtr("中"), strPtr("ms"), base.Add(time.Hour)))
	require.NoError(t, s.SetArticleTranslations(ctx, byURL("https://x/3").ID, nil, nil, base.Add(30*time.Minute)))

	got, err := s.GetUntranslatedArticles(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)

	urls := []string{got[0].URL, got[1].URL, got[2].URL}
	assert.Equal(t, []string{"https://x/4", "https://x/3", "https://x/1"}, urls)
	for _, a := range got {
		assert.NotEqual(t, "https://x/2", a.URL)
	}
	require.NotNil(t, got[2].TitleMS)
	assert.Equal(t, "x", *got[2].TitleMS)
	assert.Nil(t, got[2].TitleZH)

	limited, err := s.GetUntranslatedArticles(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSetArticleTranslationsKeepsExistingOnNil(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	_, err := s.InsertArticleIfAbsent(ctx, storage.Article{URL: "https://x/1", Title: "t", SourceName: "s", Category: "general", Subregion: "Sarawak"})
	require.NoError(t, err)
	a, err := s.GetArticleByURL(ctx, "https://x/1")
	require.NoError(t, err)

	require.NoError(t, s.SetArticleTranslations(ctx, a.ID, strPtr("标题"), nil, time.Now()))
	require.NoError(t, s.SetArticleTranslations(ctx, a.ID, nil, strPtr("tajuk"), time.Now()))

	a, err = s.GetArticleByURL(ctx, "https://x/1")
	require.NoError(t, err)
	require.NotNil(t, a.TitleZH)
	require.NotNil(t, a.TitleMS)
	assert.Equal(t, "标题", *a.TitleZH)
	assert.Equal(t, "tajuk", *a.TitleMS)
	assert.NotNil(t, a.TranslationAttemptedAt)

	assert.ErrorIs(t, s.SetArticleTranslations(ctx, 999, nil, nil, time.Now()), storage.ErrNotFound)
}

func TestMetadata(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMetadata(ctx, "last_refresh")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata(ctx, map[string]string{"last_refresh": "a", "last_refresh_added": "1"}))
	require.NoError(t, s.SetMetadata(ctx, map[string]string{"last_refresh": "b"}))

	v, ok, err := s.GetMetadata(ctx, "last_refresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	all, err := s.GetMetadataKeys(ctx, "last_refresh", "last_refresh_added", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"last_refresh": "b", "last_refresh_added": "1"}, all)
}

func TestErrorLog(t *testing.T) {
	s := testutil.OpenTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordError(ctx, storage.ErrorEntry{Component: "ingest", Kind: "fetch_failed", Source: "A", Message: "timeout", CreatedAt: base}))
	require.NoError(t, s.RecordError(ctx, storage.ErrorEntry{Component: "translate", Kind: "translate_failed", Message: "429", CreatedAt: base.Add(time.Minute)}))

	got, err := s.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "translate_failed", got[0].Kind)
	assert.Equal(t, "A", got[1].Source)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}
