// Package metrics exposes Prometheus collectors and an in-process snapshot
// used by the /health endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sarawaknews"

var (
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Completed refresh cycles by status",
	}, []string{"status"})

	RefreshThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_throttled_total",
		Help:      "Automatic refresh requests rejected by the cooldown",
	})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of refresh cycles",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	})

	ArticlesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "articles_added_total",
		Help:      "Articles newly inserted",
	})

	ArticlesSeen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "articles_seen_total",
		Help:      "In-scope feed items processed, duplicates included",
	})

	SourceFetch = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_fetch_total",
		Help:      "Feed fetch attempts by result",
	}, []string{"result"})

	Translations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translations_total",
		Help:      "Title translation attempts by language and result",
	}, []string{"lang", "result"})
)

// Metrics is the snapshot shown on /health.
type Metrics struct {
	mu sync.RWMutex

	RefreshCount       int64
	ArticlesAdded      int64
	TranslationsOK     int64
	TranslationsFailed int64
	SourceFailures     int64

	LastRefreshDuration time.Duration
	LastRunTime         time.Time
	LastErrorTime       time.Time
	LastError           string
	IsHealthy           bool
}

var Global = &Metrics{IsHealthy: true}

// RecordRefresh folds a finished cycle into both the collectors and the snapshot.
func (m *Metrics) RecordRefresh(status string, added, total int, d time.Duration) {
	RefreshTotal.WithLabelValues(status).Inc()
	RefreshDuration.Observe(d.Seconds())
	ArticlesAdded.Add(float64(added))
	ArticlesSeen.Add(float64(total))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshCount++
	m.ArticlesAdded += int64(added)
	m.LastRefreshDuration = d
	m.LastRunTime = time.Now()
	m.IsHealthy = status != "error"
}

func (m *Metrics) RecordThrottled() {
	RefreshThrottled.Inc()
}

func (m *Metrics) RecordSourceFetch(ok bool) {
	if ok {
		SourceFetch.WithLabelValues("ok").Inc()
		return
	}
	SourceFetch.WithLabelValues("error").Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourceFailures++
}

func (m *Metrics) RecordTranslation(lang string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	Translations.WithLabelValues(lang, result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.TranslationsOK++
	} else {
		m.TranslationsFailed++
	}
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"refresh_count":            m.RefreshCount,
		"articles_added":           m.ArticlesAdded,
		"translations_ok":          m.TranslationsOK,
		"translations_failed":      m.TranslationsFailed,
		"source_failures":          m.SourceFailures,
		"last_refresh_duration_ms": m.LastRefreshDuration.Milliseconds(),
		"last_error":               m.LastError,
		"is_healthy":               m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.UTC().Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.UTC().Format(time.RFC3339)
	}
	return stats
}
