package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/job-comb/app/api"
	"github.com/lysyi3m/job-comb/app/cfg"
	"github.com/lysyi3m/job-comb/app/database"
	"github.com/lysyi3m/job-comb/app/export"
	"github.com/lysyi3m/job-comb/app/index"
	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/lysyi3m/job-comb/app/lock"
	"github.com/lysyi3m/job-comb/app/notify"
	"github.com/lysyi3m/job-comb/app/source"
	"github.com/lysyi3m/job-comb/app/tasks"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if appCfg == nil {
		return 0
	}

	setupLogging(appCfg.Debug)

	slog.Info("Starting Job Comb", "version", appCfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, appCfg.StorageURL)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		return 1
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return 1
	}
	slog.Info("Storage ready", "dialect", db.Dialect, "schema_version", version, "dirty", dirty)

	categories := jobs.NewCategoryCache(appCfg.CategoriesDir)
	if err := categories.Run(); err != nil {
		slog.Error("Failed to load categories", "dir", appCfg.CategoriesDir, "error", err)
		return 1
	}
	slog.Info("Categories loaded", "count", categories.GetCategoryCount())

	var (
		searcher database.Searcher
		indexer  tasks.Indexer
	)
	if appCfg.IndexPath != "" {
		idx, err := index.Open(appCfg.IndexPath)
		if err != nil {
			slog.Error("Failed to open search index", "path", appCfg.IndexPath, "error", err)
			return 1
		}
		defer idx.Close()
		searcher, indexer = idx, idx
	}

	var rdb *redis.Client
	if appCfg.RedisURL != "" {
		rdb, err = connectRedis(ctx, appCfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			return 1
		}
		defer rdb.Close()
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, lock.DefaultTTL)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}

	services := &tasks.Services{
		Categories:   categories,
		Fetcher:      source.NewRegistry(httpClient, appCfg.UserAgent),
		Normalizer:   jobs.NewNormalizer(time.Local),
		Reconciler:   jobs.NewReconciler(time.Now),
		Locker:       locker,
		Postings:     database.NewPostingRepository(db, searcher),
		Runs:         database.NewRunRepository(db),
		CategoryRepo: database.NewCategoryRepository(db),
		Indexer:      indexer,
		Notifier:     buildNotifier(appCfg, rdb),
	}
	if appCfg.XLSXPath != "" {
		services.Exporter = export.NewXLSXExporter(appCfg.XLSXPath)
	}
	if appCfg.CachePath != "" {
		services.Cache = export.NewFileCache(appCfg.CachePath)
	}

	options := tasks.Options{
		WorkerCount:  appCfg.WorkerCount,
		Schedule:     appCfg.Schedule,
		SyncOnStart:  appCfg.SyncOnStart,
		FetchRetries: appCfg.FetchRetries,
		RunTimeout:   appCfg.RunTimeout,
		Silent:       appCfg.Silent,
	}

	switch {
	case appCfg.ImportPath != "":
		return runImport(ctx, services, options, appCfg.ImportPath)
	case appCfg.Once:
		return runOnce(ctx, services, options)
	default:
		return serve(ctx, appCfg, services, options)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr)
	return rdb, nil
}

func buildNotifier(appCfg *cfg.Cfg, rdb *redis.Client) notify.Deliverer {
	var deliverers notify.Multi

	switch appCfg.Notify {
	case cfg.NotifyDialog:
		deliverers = append(deliverers, notify.NewDialogDeliverer(appCfg.XLSXPath))
	case cfg.NotifyLog:
		deliverers = append(deliverers, notify.NewLogDeliverer())
	}

	if rdb != nil && appCfg.RedisChannel != "" {
		deliverers = append(deliverers, notify.NewRedisDeliverer(rdb, appCfg.RedisChannel))
	}

	if len(deliverers) == 0 {
		return nil
	}
	return deliverers
}

func runOnce(ctx context.Context, services *tasks.Services, options tasks.Options) int {
	options.Schedule = ""
	options.SyncOnStart = false

	scheduler := tasks.NewScheduler(services, options)
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer scheduler.Stop()

	report, err := scheduler.RunOnce(ctx, database.RunTypeManual)
	if err != nil {
		slog.Error("Sync failed to start", "error", err)
		return 1
	}

	if ctx.Err() != nil {
		slog.Info("Sync interrupted", "run_id", report.ID)
		return 0
	}

	slog.Info("Sync finished", "run_id", report.ID, "status", report.Status, "duration", report.Duration)
	return 0
}

func runImport(ctx context.Context, services *tasks.Services, options tasks.Options, path string) int {
	snapshots, err := export.NewFileCache(path).Load()
	if err != nil {
		slog.Error("Failed to read import file", "path", path, "error", err)
		return 1
	}

	options.Schedule = ""
	options.SyncOnStart = false
	scheduler := tasks.NewScheduler(services, options)

	if err := scheduler.Import(ctx, snapshots); err != nil {
		slog.Error("Import finished with errors", "path", path, "error", err)
		return 1
	}

	total := 0
	for _, snapshot := range snapshots {
		total += len(snapshot.Postings)
	}
	slog.Info("Import completed", "path", path, "categories", len(snapshots), "postings", total)
	return 0
}

func serve(ctx context.Context, appCfg *cfg.Cfg, services *tasks.Services, options tasks.Options) int {
	scheduler := tasks.NewScheduler(services, options)
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer scheduler.Stop()

	generator := api.NewGenerator(appCfg.BaseUrl, appCfg.Port, appCfg.Version)
	handler := api.NewHandler(services.Categories, services.Postings, services.Runs,
		services.CategoryRepo, generator, scheduler, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Job Comb shutdown complete")
	return exitCode
}
