package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/modsentinel/sentinel/internal/cache"
	"github.com/modsentinel/sentinel/internal/goldenset"
	"github.com/modsentinel/sentinel/internal/notifications"
	"github.com/modsentinel/sentinel/internal/remote"
	"github.com/modsentinel/sentinel/internal/resolver"
	"github.com/modsentinel/sentinel/internal/syncstate"
	"github.com/modsentinel/sentinel/internal/webserver"
)

func main() {
	ctx := context.Background()

	// Initialize Logrus
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	syncOnly := flag.Bool("sync", false, "Sync the local cache from the golden set and exit")
	goldenSetFlag := flag.String("golden-set", "", "Path to the golden set dataset")
	flag.Parse()

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found. Proceeding with environment variables.")
	}

	settings, err := resolver.LoadSettings()
	if err != nil {
		logger.Fatalf("Failed to load resolver settings: %v", err)
	}
	if *goldenSetFlag != "" {
		settings.GoldenSetPath = *goldenSetFlag
	}

	cacheCfg, err := cache.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load cache configuration: %v", err)
	}

	store, err := cache.NewSQLiteStore(cacheCfg.Path, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize cache store: %v", err)
	}
	defer store.Close(ctx)
	logger.WithField("path", cacheCfg.Path).Info("Cache store initialized")

	syncStatePath := os.Getenv("SYNC_STATE_PATH")
	if syncStatePath == "" {
		syncStatePath = "cache/syncstate.db"
	}
	syncState, err := syncstate.Open(syncStatePath, logger)
	if err != nil {
		logger.Fatalf("Failed to open sync state store: %v", err)
	}
	defer syncState.Close()

	// Notifications are optional; skip when no URLs are configured.
	var notifier *notifications.Notifier
	notificationCfg, err := notifications.LoadNotificationConfig()
	if err != nil {
		logger.Fatalf("Failed to load notification configuration: %v", err)
	}
	if len(notificationCfg.ShoutrrrURLs) > 0 {
		notifier, err = notifications.NewNotifier(notificationCfg.ShoutrrrURLs)
		if err != nil {
			logger.Fatalf("Failed to initialize notifier: %v", err)
		}
		logger.Info("Notifier initialized")
	} else {
		logger.Warn("No notification URLs configured. Skipping revocation alerts.")
	}

	remoteCfg, err := remote.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load remote client configuration: %v", err)
	}
	client := remote.NewClient(remoteCfg.BaseURL, remoteCfg.Timeout)
	if remoteCfg.Rate > 0 {
		client.SetRateLimiter(rate.NewLimiter(remoteCfg.Rate, remoteCfg.Burst))
		logger.Infof("Rate limiter set for verification client: %v req/s, burst %d",
			remoteCfg.Rate, remoteCfg.Burst)
	}
	logger.WithField("base_url", remoteCfg.BaseURL).Info("Verification client initialized")

	engine := resolver.New(resolver.Config{
		Client:        client,
		Store:         store,
		SyncState:     syncState,
		Notifier:      notifier,
		Logger:        logger,
		GoldenSetPath: settings.GoldenSetPath,
	})

	if *syncOnly {
		count, err := engine.SyncCache(ctx)
		if err != nil {
			logger.Fatalf("Cache sync failed: %v", err)
		}
		logger.WithField("rows", count).Info("Cache sync complete")
		return
	}

	// Warm the fallback cache at startup when it is empty. A missing dataset
	// is not fatal here; the remote path still works and the operator can
	// sync later.
	count, err := store.Count(ctx)
	if err != nil {
		logger.Fatalf("Failed to count cache entries: %v", err)
	}
	if count == 0 {
		rows, err := engine.SyncCache(ctx)
		switch {
		case errors.Is(err, goldenset.ErrDatasetNotFound):
			logger.Warn("Golden set dataset not found. Fallback cache is empty.")
		case err != nil:
			logger.Fatalf("Failed to warm cache from golden set: %v", err)
		default:
			logger.WithField("rows", rows).Info("Cache warmed from golden set")
		}
	} else {
		logger.WithField("cache_entries", count).Info("Loaded existing cache")
	}

	webServerConfig, err := webserver.NewWebserverConfig()
	if err != nil {
		logger.Fatalf("Failed to load webserver configuration: %v", err)
	}

	webServer := webserver.NewWebServer(engine, webServerConfig, logger)

	ctxCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	server, err := webserver.StartWebServer(ctxCancel, webServer)
	if err != nil {
		logger.Fatalf("Failed to start web server: %v", err)
	}

	// Listen for OS signals to handle graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	logger.Infof("Received signal: %s. Initiating shutdown...", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Failed to gracefully shutdown the server: %v", err)
	}

	logger.Info("Shutdown complete. Exiting.")
}
