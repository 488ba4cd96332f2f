package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Article is one ingested news item.
type Article struct {
	ID                     int64
	URL                    string
	Title                  string
	TitleZH                *string
	TitleMS                *string
	Snippet                string
	SourceName             string
	Category               string
	Subregion              string
	PublishedAt            time.Time
	CreatedAt              time.Time
	TranslationAttemptedAt *time.Time
}

var articleColumns = []string{
	"id", "url", "title", "title_zh", "title_ms", "snippet", "source_name",
	"category", "subregion", "published_at", "created_at", "translation_attempted_at",
}

var untranslated = sq.Or{sq.Eq{"title_zh": nil}, sq.Eq{"title_ms": nil}}

// InsertArticleIfAbsent stores a new article keyed by URL. An existing URL is a
// no-op and reports inserted=false.
func (s *Store) InsertArticleIfAbsent(ctx context.Context, a Article) (bool, error) {
	created := a.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	published := a.PublishedAt
	if published.IsZero() {
		published = created
	}

	query, args, err := s.sb.Insert("articles").
		Columns("url", "title", "snippet", "source_name", "category", "subregion", "published_at", "created_at").
		Values(a.URL, a.Title, a.Snippet, a.SourceName, a.Category, a.Subregion, published.UTC(), created.UTC()).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert article: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	return n > 0, nil
}

// GetUntranslatedArticles returns up to limit articles missing a translated title,
// never-attempted first, then least recently attempted, then oldest.
func (s *Store) GetUntranslatedArticles(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 100
	}
	query, args, err := s.sb.Select(articleColumns...).
		From("articles").
		Where(untranslated).
		OrderBy("translation_attempted_at IS NOT NULL", "translation_attempted_at", "created_at", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build untranslated query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query untranslated: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SetArticleTranslations writes the non-nil titles and stamps the attempt
// time. A nil title keeps whatever is stored.
func (s *Store) SetArticleTranslations(ctx context.Context, id int64, zh, ms *string, at time.Time) error {
	b := s.sb.Update("articles").Set("translation_attempted_at", at.UTC()).Where(sq.Eq{"id": id})
	if zh != nil {
		b = b.Set("title_zh", *zh)
	}
	if ms != nil {
		b = b.Set("title_ms", *ms)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build set translations: %w", err)
	}
	return s.execOne(ctx, query, args, fmt.Sprintf("set translations for article %d", id))
}

// GetArticleByURL loads one article.
func (s *Store) GetArticleByURL(ctx context.Context, url string) (Article, error) {
	query, args, err := s.sb.Select(articleColumns...).From("articles").Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return Article{}, fmt.Errorf("build get article: %w", err)
	}

	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	if err != nil {
		return Article{}, fmt.Errorf("get article %s: %w", url, err)
	}
	return a, nil
}

func scanArticle(r rowScanner) (Article, error) {
	var (
		a         Article
		zh, ms    sql.NullString
		attempted sql.NullTime
	)
	if err := r.Scan(&a.ID, &a.URL, &a.Title, &zh, &ms, &a.Snippet, &a.SourceName,
		&a.Category, &a.Subregion, &a.PublishedAt, &a.CreatedAt, &attempted); err != nil {
		return Article{}, err
	}
	a.TitleZH = stringPtr(zh)
	a.TitleMS = stringPtr(ms)
	a.TranslationAttemptedAt = timePtr(attempted)
	a.PublishedAt = a.PublishedAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}
