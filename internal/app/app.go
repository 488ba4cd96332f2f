// Package app builds the pipeline from configuration and runs its long-lived
// parts.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/sarawaknews/internal/api"
	"github.com/deusflow/sarawaknews/internal/cache"
	"github.com/deusflow/sarawaknews/internal/config"
	"github.com/deusflow/sarawaknews/internal/gemini"
	"github.com/deusflow/sarawaknews/internal/ingest"
	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/ratelimit"
	"github.com/deusflow/sarawaknews/internal/refresh"
	"github.com/deusflow/sarawaknews/internal/report"
	"github.com/deusflow/sarawaknews/internal/retry"
	"github.com/deusflow/sarawaknews/internal/rss"
	"github.com/deusflow/sarawaknews/internal/scheduler"
	"github.com/deusflow/sarawaknews/internal/storage"
	"github.com/deusflow/sarawaknews/internal/telegram"
	"github.com/deusflow/sarawaknews/internal/translate"
)

// tickTimeout bounds one scheduled refresh.
const tickTimeout = 15 * time.Minute

type App struct {
	Config     *config.Config
	Store      *storage.Store
	Limiter    *ratelimit.Limiter
	Reporter   *report.Reporter
	Ingester   *ingest.Worker
	Backfiller *translate.Backfiller
	Refresh    *refresh.Orchestrator

	log     *slog.Logger
	memo    *cache.Cache
	closers []func()
	bg      context.Context
	stopBG  context.CancelFunc
}

// New opens the store and wires every component. Close releases them.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: store, log: log}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	})
	a.bg, a.stopBG = context.WithCancel(context.WithoutCancel(ctx))

	var alerter report.Alerter
	if cfg.AlertsEnabled() {
		alerter = telegram.New(cfg.TelegramToken, cfg.TelegramChatID)
	}
	a.Reporter = report.New(store, alerter, log.With("component", "report"))

	fetcher := rss.NewFetcher(cfg.FetchTimeout,
		rss.WithHostLimiter(rss.NewHostLimiter(cfg.FetchHostInterval)),
		rss.WithLogger(log),
	)
	a.Ingester = ingest.New(fetcher, store,
		ingest.WithReporter(a.Reporter),
		ingest.WithLogger(log.With("component", "ingest")),
	)

	a.Limiter = ratelimit.New(cfg.TranslateInterval, cfg.TranslateDailyLimit)
	translator, err := a.buildTranslator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Backfiller = translate.NewBackfiller(store, translator,
		translate.WithBatchSize(cfg.TranslateBatch),
		translate.WithCallTimeout(cfg.TranslateTimeout),
		translate.WithPacer(a.Limiter),
		translate.WithBackfillReporter(a.Reporter),
		translate.WithBackfillLogger(log.With("component", "translate")),
	)

	a.Refresh = refresh.New(store, a.Ingester,
		refresh.WithBackfiller(a.Backfiller),
		refresh.WithReporter(a.Reporter),
		refresh.WithCooldown(cfg.RefreshCooldown),
		refresh.WithBackgroundContext(a.bg),
		refresh.WithLogger(log.With("component", "refresh")),
	)
	return a, nil
}

// buildTranslator layers memo, sanitising chain, budget and retry over the
// configured providers.
func (a *App) buildTranslator(ctx context.Context) (translate.Translator, error) {
	cfg := a.Config
	var providers []translate.Translator

	addGoogle := func() {
		g := translate.NewGoogleTranslator(cfg.TranslateTimeout)
		if cfg.GoogleTranslateURL != "" {
			g.WithBaseURL(cfg.GoogleTranslateURL)
		}
		providers = append(providers, g)
	}
	addOpenAI := func() {
		providers = append(providers, translate.NewOpenAITranslator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL))
	}
	addGemini := func() error {
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, "")
		if err != nil {
			return err
		}
		a.closers = append(a.closers, c.Close)
		providers = append(providers, translate.NewGeminiTranslator(c))
		return nil
	}

	switch cfg.TranslateProvider {
	case "google":
		addGoogle()
	case "openai":
		addOpenAI()
	case "gemini":
		if err := addGemini(); err != nil {
			return nil, err
		}
	case "chain":
		addGoogle()
		if cfg.OpenAIAPIKey != "" {
			addOpenAI()
		}
		if cfg.GeminiAPIKey != "" {
			if err := addGemini(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown translate provider %q", cfg.TranslateProvider)
	}

	rc := retry.Config{MaxAttempts: cfg.TranslateRetries, Delay: time.Second, Backoff: true, MaxDelay: 10 * time.Second}
	chain := make(translate.Chain, 0, len(providers))
	for _, p := range providers {
		a.Limiter.SetProviderLimit(p.Name(), cfg.ProviderDailyLimit(p.Name()))
		chain = append(chain, translate.NewLimited(p, a.Limiter, rc))
	}

	a.memo = cache.New(time.Hour)
	a.closers = append(a.closers, a.memo.Close)
	a.log.Info("translator ready", "translator", chain.Name())
	return translate.NewMemo(chain, a.memo, cfg.TranslateCacheTTL, a.Limiter), nil
}

// Serve runs the HTTP API and, when a schedule is configured, the cron
// trigger until ctx is done. In-flight backfills are stopped and awaited.
func (a *App) Serve(ctx context.Context) error {
	var sched *scheduler.Scheduler
	if a.Config.RefreshSchedule != "" {
		s, err := scheduler.New(a.Config.RefreshSchedule, a.Refresh, tickTimeout, a.log.With("component", "scheduler"))
		if err != nil {
			return err
		}
		sched = s
		sched.Start()
	}

	srv := api.New(a.Refresh, a.Store,
		api.WithCronSecret(a.Config.CronSecret),
		api.WithAdminToken(a.Config.AdminToken),
		api.WithStats("translation", a.Limiter.GetStats),
		api.WithLogger(a.log.With("component", "api")),
	)
	err := srv.Serve(ctx, a.Config.HTTPAddr)

	if sched != nil {
		sched.Stop()
	}
	a.Shutdown()
	return err
}

// Shutdown stops background backfills and waits for them.
func (a *App) Shutdown() {
	a.stopBG()
	a.Refresh.Wait()
}

// Close releases the store, clients and caches. Call Shutdown first when
// refreshes may still be running.
func (a *App) Close() {
	a.stopBG()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Stats is the in-process metrics snapshot plus translation usage.
func (a *App) Stats() map[string]interface{} {
	stats := metrics.Global.GetStats()
	stats["translation"] = a.Limiter.GetStats()
	return stats
}
