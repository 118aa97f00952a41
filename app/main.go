package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"feedsync/app/accounts"
	"feedsync/app/api"
	"feedsync/app/cfg"
	"feedsync/app/database"
	"feedsync/app/model"
	"feedsync/app/provider"
	"feedsync/app/secrets"
	"feedsync/app/store"
	"feedsync/app/sync"
	"feedsync/app/tasks"
)

func main() {
	// Optional .env file for local development; real deployments set the
	// environment directly.
	godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting FeedSync server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	accountRepo := database.NewAccountRepository(db)
	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)
	pendingRepo := database.NewSyncStatusRepository(db)
	conditionalRepo := database.NewConditionalGetRepository(db)

	st := store.New(accountRepo, feedRepo, articleRepo)

	secretStore, err := secrets.Load(appCfg.SecretsFile)
	if err != nil {
		slog.Error("Failed to load secrets", "path", appCfg.SecretsFile, "error", err)
		os.Exit(1)
	}

	accountCache := accounts.NewCache(appCfg.AccountsFile)
	if err := accountCache.Run(); err != nil {
		slog.Error("Failed to load accounts file", "path", appCfg.AccountsFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Accounts configuration loaded", "path", appCfg.AccountsFile, "accounts", accountCache.GetEntryCount())

	tracker := sync.NewTracker()
	hub := api.NewHub()
	hub.Start()
	defer hub.Stop()
	tracker.AddObserver(hub.Broadcast)
	st.AddObserver(hub.BroadcastChanges)

	registry := sync.NewRegistry()
	deps := sync.Deps{
		Store:       st,
		Accounts:    accountRepo,
		Pending:     pendingRepo,
		Conditional: conditionalRepo,
		HTTPClient:  provider.NewHTTPClient(),
		Progress:    tracker,
		Logger:      slog.Default(),
		UserAgent:   appCfg.UserAgent,
		Timeout:     time.Duration(appCfg.RequestTimeout) * time.Second,
		PageSize:    appCfg.PageSize,
		SendBatchSizes: map[model.Provider]int{
			model.ProviderFeedbin:      appCfg.FeedbinBatchSize,
			model.ProviderFeedly:       appCfg.FeedlyBatchSize,
			model.ProviderNewsBlur:     appCfg.NewsBlurBatchSize,
			model.ProviderFeedWrangler: appCfg.FeedWranglerBatchSize,
		},
		Lookback: time.Duration(appCfg.SyncLookbackDays) * 24 * time.Hour,
		Backdate: time.Duration(appCfg.SyncBackdateHours) * time.Hour,
	}

	rebuild := func() {
		if err := rebuildCoordinators(context.Background(), accountCache, secretStore, accountRepo, registry, deps); err != nil {
			slog.Error("Failed to rebuild coordinators", "error", err)
		}
	}
	rebuild()

	watcher, err := accounts.NewWatcher(accountCache, rebuild)
	if err != nil {
		slog.Error("Failed to watch accounts file", "path", appCfg.AccountsFile, "error", err)
		os.Exit(1)
	}
	watcher.Start()
	defer watcher.Stop()

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(registry)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(st, accountRepo, pendingRepo, registry, tracker, scheduler, hub)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("FeedSync server started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler, watcher and hub are stopped via defer
	slog.Info("Shutdown complete")
}
