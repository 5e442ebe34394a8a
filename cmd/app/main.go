// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-media-relay/internal/application"
	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain/ports/repository"
	tele "telegram-media-relay/internal/infra/adapters/telegram"
	"telegram-media-relay/internal/infra/api"
	pg "telegram-media-relay/internal/infra/db/postgres"
	"telegram-media-relay/internal/infra/fetcher"
	"telegram-media-relay/internal/infra/i18n"
	"telegram-media-relay/internal/infra/logging"
	"telegram-media-relay/internal/infra/memstore"
	"telegram-media-relay/internal/infra/metrics"
	red "telegram-media-relay/internal/infra/redis"
	"telegram-media-relay/internal/infra/sched"
	"telegram-media-relay/internal/infra/storage"
	"telegram-media-relay/internal/infra/uploader"
	"telegram-media-relay/internal/infra/worker"
	"telegram-media-relay/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

const shutdownGrace = 30 * time.Second

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("relay stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info().Msg("relay stopped")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting relay")

	// ---- Transient storage ----
	dir, err := storage.Open(cfg.Relay.StorageDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	sweeper := sched.NewSweepWorker(cfg.Relay.SweepInterval, cfg.Relay.SweepMaxAge, dir, logger)
	sweeper.RunOnce()

	// ---- Redis (optional) ----
	var (
		access      repository.AccessRepository   = memstore.NewAccess()
		settings    repository.SettingsRepository = memstore.NewSettings()
		rateLimiter tele.RateLimiter              = memstore.NewRateLimiter()
	)
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		access = red.NewAccessRepo(redisClient)
		settings = red.NewSettingsRepo(redisClient, cfg.Redis.TTL)
		rateLimiter = red.NewRateLimiter(redisClient)
		logger.Info().Msg("redis connected")
	} else {
		logger.Warn().Msg("redis.url not set; settings and allow-list are kept in memory")
	}

	// ---- Postgres (optional) ----
	var history repository.JobHistoryRepository = memstore.NewHistory(cfg.Relay.HistoryLimit)
	g, gctx := errgroup.WithContext(ctx)
	if strings.TrimSpace(cfg.Database.URL) != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		history = pg.NewJobHistoryRepo(pool, cfg.Relay.HistoryRetain)
		g.Go(func() error {
			pg.ReportPoolStats(gctx, pool, 15*time.Second, logger)
			return nil
		})
		logger.Info().Msg("postgres connected")
	}

	// ---- i18n & use cases ----
	catalog, err := i18n.NewCatalog(i18n.LocalesFS, cfg.Bot.DefaultLang)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	userUC := usecase.NewUserUseCase(cfg.Bot.CreatorID, cfg.Bot.DefaultLang, catalog.Languages(), cfg.Upload.DefaultTarget, access, settings, logger)
	catalog = catalog.WithLangSource(userUC)

	// ---- Fetch & upload ----
	downloader := fetcher.NewHTTPDownloader(&http.Client{}, cfg.Relay.ChunkSize, cfg.Relay.MaxDownloadBytes)
	client, err := tele.NewClient(cfg.Bot, downloader, logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if !cfg.Bot.SessionConfigured() {
		logger.Warn().Msg("bot.api_endpoint not set; attachments above 20 MB will be rejected")
	}
	sourceFetcher := fetcher.NewSourceFetcher(downloader, client, cfg.Relay.FetchTimeout, logger)

	up, err := uploader.New(ctx, cfg.Upload, cfg.Relay.UploadTimeout, logger)
	if err != nil {
		return fmt.Errorf("uploader: %w", err)
	}
	if c, ok := up.(io.Closer); ok {
		defer c.Close()
	}
	logger.Info().Str("backend", up.Name()).Msg("uploader ready")

	// ---- Relay ----
	processor := worker.NewRelayProcessor(worker.RelayProcessorDeps{
		Fetcher:  sourceFetcher,
		Uploader: up,
		Targets:  userUC,
		Sink:     client,
		Texts:    catalog,
		Storage:  dir,
		History:  history,
	}, worker.RelayProcessorOptions{
		JobPause:     cfg.Relay.JobPause,
		EditInterval: cfg.Relay.EditInterval,
	}, logger)
	relayUC := usecase.NewRelayUseCase(processor, history, logger)

	// ---- Telegram front-end ----
	facade := application.NewBotFacade(userUC, relayUC, catalog, catalog.Languages(), cfg.Log.File, cfg.Relay.HistoryLimit, logger)
	bot, err := tele.NewRealTelegramBotAdapter(client, facade, rateLimiter, cfg.Bot.Workers, logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if strings.ToLower(cfg.Bot.Mode) != "polling" {
		logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented; falling back to polling")
	}

	g.Go(func() error { return bot.StartPolling(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	// ---- Admin HTTP ----
	if cfg.Admin.Port > 0 {
		srv := api.NewServer(cfg.Admin, relayUC, logger)
		g.Go(func() error { return srv.Run(gctx) })
	} else {
		logger.Info().Msg("admin.port not set; admin api disabled")
	}

	err = g.Wait()
	logger.Info().Msg("shutdown requested; waiting for running jobs")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if serr := processor.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("relay workers did not stop in time")
	}
	return err
}
