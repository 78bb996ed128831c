package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"resume-printer/internal/config"
	"resume-printer/internal/http/server"
	"resume-printer/internal/infra/cache"
	"resume-printer/internal/infra/chrome"
	"resume-printer/internal/infra/logging"
	"resume-printer/internal/infra/postgres"
	"resume-printer/internal/infra/ratelimit"
	"resume-printer/internal/infra/storage"
	"resume-printer/internal/printer"
	"resume-printer/internal/tokens"
)

func main() {
	cfg := config.Load()
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		logging.Error("Cannot create log directory, logging to stdout only", "file", cfg.Logger.File, "error", err)
		cfg.Logger.File = ""
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialise printer", "error", err)
		os.Exit(1)
	}

	app := server.New(deps)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

func buildDeps(ctx context.Context, cfg config.Config) (server.Deps, error) {
	connector, err := chrome.NewConnector(cfg.Chrome)
	if err != nil {
		return server.Deps{}, err
	}

	uploader, err := storage.NewS3Uploader(cfg.Storage, cfg.Printer.StorageURL)
	if err != nil {
		return server.Deps{}, err
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := uploader.EnsureBucket(ctx); err != nil {
			logging.Warn("Storage bucket not available yet", "bucket", cfg.Storage.Bucket, "error", err)
		}
	}()

	table := printer.NewRewriteTable(cfg.Printer.PublicURL, cfg.Printer.StorageURL, cfg.Printer.Rewrite)
	renderer := printer.NewRenderer(connector, table, cfg.Printer.PreviewPath, cfg.Printer.NavigationTimeout)

	var urlCache printer.URLCache
	if cfg.Cache.URLCacheEnabled && cfg.Cache.RedisHost != "" {
		rdb, err := cache.NewClient(ctx, cfg.Cache.RedisHost, cfg.Cache.URLCacheDB)
		if err != nil {
			logging.Warn("URL cache disabled, Redis unavailable", "addr", cfg.Cache.RedisHost, "error", err)
		} else {
			urlCache = cache.NewURLCache(rdb, cfg.Cache.URLCacheTTL)
		}
	}

	svc := printer.NewService(connector, renderer, uploader, urlCache, printer.RetryPolicyFrom(cfg.Printer.Retry))

	deps := server.Deps{
		Config:  cfg,
		Printer: svc,
		Stats:   connector,
		RateStore: ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		}),
	}

	if cfg.Auth.Enabled {
		dsn, err := postgres.DSN(cfg.Auth.Postgres)
		if err != nil {
			return server.Deps{}, err
		}
		tokenCache := tokens.NewCache()
		reloader := tokens.NewReloader(postgres.NewTokenRepository(postgres.NewDB(), dsn), tokenCache, cfg.Auth.ReloadInterval)
		if err := reloader.LoadOnce(ctx); err != nil {
			logging.Error("Failed to load API tokens", "error", err)
		}
		reloader.Start(ctx)
		deps.Tokens = tokenCache
	}

	logging.Info("Printer ready",
		"preview_url", renderer.PreviewURL(),
		"rewrite", table.Active(),
		"url_cache", urlCache != nil,
		"auth", cfg.Auth.Enabled,
	)
	return deps, nil
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}

func ensureLogDir(file string) error {
	if file == "" {
		return nil
	}
	dir := filepath.Dir(file)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
