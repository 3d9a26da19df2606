package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/divyansh2401/email-intel/internal/api"
	"github.com/divyansh2401/email-intel/internal/config"
	"github.com/divyansh2401/email-intel/internal/db"
	"github.com/divyansh2401/email-intel/internal/scan"
	"github.com/divyansh2401/email-intel/internal/scheduler"
	"github.com/divyansh2401/email-intel/internal/store"
	"github.com/divyansh2401/email-intel/web"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── Logging (initial — overridden below once config is loaded) ─────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ─────────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Re-configure logging with the level from config (default: info).
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("email-intel starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath)

	// ── Database ───────────────────────────────────────────────────────────
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	jobs := store.NewJobs(database)
	registry := store.NewRegistry(database)

	// Mark any jobs that were running when the last process exited as failed.
	if err := jobs.MarkStaleFailed(context.Background()); err != nil {
		slog.Warn("mark stale jobs", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Scan manager ───────────────────────────────────────────────────────
	extractor := scan.NewExtractor(cfg.RipgrepPath)
	scanCfg := scan.Config{
		BatchSize:    cfg.BatchSize,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		EnumWorkers:  cfg.EnumerateWorkers,
	}
	mgr := scan.NewManager(ctx, jobs, registry, extractor, scanCfg)

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if cfg.Schedule != "" && len(cfg.ScanPaths) > 0 {
		paths := cfg.ScanPaths
		if err := sched.SetScanJob(cfg.Schedule, func() {
			slog.Info("scheduled scan triggered", "paths", len(paths))
			for _, p := range paths {
				if _, err := mgr.Submit(context.Background(), scan.Submission{
					Name: "scheduled",
					Path: p,
				}); err != nil {
					slog.Warn("scheduled scan submit", "path", p, "error", err)
				}
			}
		}); err != nil {
			slog.Warn("invalid scan schedule", "expr", cfg.Schedule, "error", err)
		}
	}

	if err := sched.AddJob("0 3 * * *", func() {
		cutoff := time.Now().AddDate(0, 0, -cfg.JobRetentionDays)
		n, err := jobs.PurgeFinishedBefore(context.Background(), cutoff)
		if err != nil {
			slog.Error("job retention purge failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("purged old jobs", "count", n)
		}
	}); err != nil {
		slog.Warn("failed to register retention purge", "error", err)
	}

	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, jobs, registry, mgr, sched, version, web.Templates(), web.Static())
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("email-intel stopped")
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
