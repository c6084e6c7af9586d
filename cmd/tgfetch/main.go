package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tgfetch/tgfetch/internal/bot"
	"github.com/tgfetch/tgfetch/internal/config"
	"github.com/tgfetch/tgfetch/internal/extractor"
	"github.com/tgfetch/tgfetch/internal/fetch"
	"github.com/tgfetch/tgfetch/internal/http/rest"
	"github.com/tgfetch/tgfetch/internal/logctx"
	"github.com/tgfetch/tgfetch/internal/notifier"
	"github.com/tgfetch/tgfetch/internal/storage/sqlite"
	"github.com/tgfetch/tgfetch/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("tgfetch starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.TelemetryEnabled,
		ServiceName: "tgfetch",
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	cacheRepo := sqlite.NewInstrumentedCacheRepository(database, tel)
	lockRepo := sqlite.NewInstrumentedLockRepository(database, tel)

	// =========================================================================
	// Start Chat Transport
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to connect to the bot API: %w", err)
	}

	// =========================================================================
	// Start Fetch Pipeline
	orch := fetch.NewOrchestrator(
		fetch.NewCache(cacheRepo, cfg.CacheTTL),
		fetch.NewGuard(lockRepo, cfg.LockAcquireTTL, cfg.LockTTL),
		extractor.New(cfg.DataDir),
		bot.NewDeliverer(api),
		buildNotifier(api, cfg),
		tel,
		cfg.MaxUploadBytes,
	)

	b := bot.New(api, orch, bot.NewChannelGate(api, cfg.RequiredChannel, cfg.RequireSubscribe))

	// =========================================================================
	// Start Ops Service
	server := setupServer(ctx, database, tel, cfg)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("initializing ops endpoint", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		logger.Info("waiting for downloads...",
			"data_dir", cfg.DataDir,
			"cache_ttl", cfg.CacheTTL.String(),
			"lock_ttl", cfg.LockTTL.String(),
		)

		return b.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("start shutdown")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(sctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

// buildNotifier assembles the best-effort operator channels.
func buildNotifier(api *tgbotapi.BotAPI, cfg *config.Config) notifier.Notifier {
	var channels notifier.Broadcast

	if cfg.OwnerID != 0 {
		channels = append(channels, &notifier.TelegramNotifier{API: api, ChatID: cfg.OwnerID})
	}

	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL})
	}

	return channels
}

// setupServer prepares the handlers and services to create the ops http server.
func setupServer(ctx context.Context, database *sql.DB, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Mount("/", rest.NewStatusHandler(database, tel).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "ops"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
