// Command concierge runs the family concierge: the Telegram reply loop, the
// daily greeting and reminder scheduler, and the operator HTTP API.
//
// @title       Family concierge ops API
// @version     1.0
// @description Operator endpoints for the concierge: state, commitments and manual triggers.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/psemmelhack/fm-agent/internal/alert"
	"github.com/psemmelhack/fm-agent/internal/channel/telegram"
	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/config"
	httpapi "github.com/psemmelhack/fm-agent/internal/http"
	"github.com/psemmelhack/fm-agent/internal/http/handlers"
	"github.com/psemmelhack/fm-agent/internal/llm"
	"github.com/psemmelhack/fm-agent/internal/observability"
	"github.com/psemmelhack/fm-agent/internal/poller"
	"github.com/psemmelhack/fm-agent/internal/repo"
	"github.com/psemmelhack/fm-agent/internal/scheduler"
	"github.com/psemmelhack/fm-agent/internal/search"
	"github.com/psemmelhack/fm-agent/internal/services"
	"github.com/psemmelhack/fm-agent/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("concierge exited")
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateRuntime(); err != nil {
		return err
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL,
		observability.NewServiceInfo(cfg.OTEL.ServiceName, version, cfg.Timezone))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return fmt.Errorf("gorm tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	store := repo.NewStore(db)
	if err := store.EnsureState(ctx); err != nil {
		return fmt.Errorf("ensure state: %w", err)
	}

	clk := clock.Real()
	alerts := alert.New(cfg.OperatorWebhookURL)

	gen := llm.New(llm.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: float32(cfg.OpenAI.Temperature),
	}, llm.Persona{
		Name:      cfg.PersonaName,
		Principal: cfg.Principal,
		Location:  cfg.Place,
		Timezone:  cfg.Timezone,
	})

	tg := telegram.New(telegram.Config{
		BaseURL: cfg.Telegram.APIURL,
		Token:   cfg.Telegram.Token,
		ChatID:  cfg.Telegram.ChatID,
		SendRPS: cfg.Telegram.SendRPS,
		Timeout: cfg.CollaboratorTimeout,
	})

	searcher, err := newSearcher(cfg, gen, clk)
	if err != nil {
		return err
	}

	concierge := &services.Concierge{
		Store:         store,
		Generator:     gen,
		Searcher:      searcher,
		Out:           tg,
		Clock:         clk,
		TZ:            cfg.Location,
		Principal:     cfg.Principal,
		Persona:       cfg.PersonaName,
		MaxCandidates: cfg.MaxCandidates,
		HistoryLimit:  cfg.HistoryLimit,
		Lookahead:     cfg.Lookahead,
		CallTimeout:   cfg.CollaboratorTimeout,
		StoreRetry:    withAttempts(services.DefaultStoreRetry, cfg.StoreRetryAttempts),
		SendRetry:     withAttempts(services.DefaultSendRetry, cfg.SendRetryAttempts),
		GenerateRetry: withAttempts(services.DefaultGenerateRetry, cfg.GenerateRetryAttempts),
	}

	sched := scheduler.New(scheduler.Config{
		Location:    cfg.Location,
		GreetHour:   cfg.GreetHour,
		GreetMinute: cfg.GreetMinute,
		SweepEvery:  cfg.SweepInterval,
	}, clk, store, concierge, concierge, alerts)
	sched.Start(ctx)
	defer sched.Stop()

	p := &poller.Poller{
		Channel:     telegram.ChannelName,
		In:          tg,
		Handler:     concierge,
		Checkpoints: store,
		Alerts:      alerts,
		Clock:       clk,
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.MaxDeliveryAttempts,
	}
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		p.Run(ctx)
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, handlers.Deps{
		Ops:      services.NewOpsService(store),
		Triggers: concierge,
		Claims:   store,
		DB:       store,
		Stats:    store.CommitmentStats,
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("timezone", cfg.Timezone).
			Str("greeting_time", cfg.GreetingTime).
			Str("search", cfg.Search.Backend).
			Str("version", version).
			Msg("concierge started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-srvErr:
		if err != nil {
			stop()
			<-pollDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	<-pollDone
	return nil
}

func newSearcher(cfg config.Config, extractor llm.Completer, clk clock.Clock) (search.Searcher, error) {
	switch cfg.Search.Backend {
	case config.SearchWeb:
		return search.NewWeb(search.WebConfig{
			APIKey:     cfg.Search.TavilyAPIKey,
			BaseURL:    cfg.Search.TavilyAPIURL,
			MaxResults: cfg.MaxCandidates,
			Location:   cfg.Place,
			Timeout:    cfg.CollaboratorTimeout,
		}, extractor, cfg.Location, clk), nil
	default:
		cat, err := search.LoadCatalog(cfg.Search.CatalogPath, cfg.Location, clk)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", cfg.Search.CatalogPath, err)
		}
		log.Info().Int("events", cat.Len()).Str("path", cfg.Search.CatalogPath).Msg("event catalog loaded")
		return cat, nil
	}
}

func withAttempts(p services.RetryPolicy, n int) services.RetryPolicy {
	if n > 0 {
		p.Attempts = n
	}
	return p
}
