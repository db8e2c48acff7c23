// Worker - polls the shared store for pending workflow rows and executes them.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	appconfig "github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/pkg/dag"
	"github.com/smilemakc/mbflow/pkg/runner"
	"github.com/smilemakc/mbflow/pkg/store/run"
	"github.com/smilemakc/mbflow/pkg/store/shared"
	"github.com/smilemakc/mbflow/pkg/task"
	"github.com/smilemakc/mbflow/pkg/task/builtin"
	"github.com/smilemakc/mbflow/pkg/task/decorator"
	"github.com/smilemakc/mbflow/pkg/worker"
)

func main() {
	sharedDBFlag := flag.String("shared-db", "", "path to the shared store SQLite file (default: database.db, or $SHARED_DB_PATH)")
	workerDBFlag := flag.String("worker-db", "", "path to the run store SQLite file (default: data/worker_workflows.db, or $WORKER_DB_PATH)")
	pollIntervalFlag := flag.String("poll-interval", "", "poll interval, e.g. 10s or 3 (seconds) (default: 10s, or $POLL_INTERVAL)")
	flag.Parse()

	cfg, err := appconfig.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	applyFlagOverrides(cfg, *sharedDBFlag, *workerDBFlag, *pollIntervalFlag)

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting worker",
		"shared_db", cfg.Worker.SharedDBPath,
		"worker_db", cfg.Worker.WorkerDBPath,
		"poll_interval", cfg.Worker.PollInterval.String(),
	)

	if _, err := os.Stat(cfg.Worker.SharedDBPath); err != nil {
		appLogger.Error("shared store not found", "path", cfg.Worker.SharedDBPath, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	sharedStore, err := shared.Open(ctx, cfg.Worker.SharedDBPath, cfg.Logging.Level == "debug", appLogger.Slog())
	if err != nil {
		appLogger.Error("failed to open shared store", "error", err)
		os.Exit(1)
	}
	defer sharedStore.Close()

	runStore, err := run.Open(ctx, cfg.Worker.WorkerDBPath, cfg.Logging.Level == "debug")
	if err != nil {
		appLogger.Error("failed to open run store", "error", err)
		os.Exit(1)
	}
	defer runStore.Close()

	registry := task.NewRegistry()
	if err := builtin.RegisterBuiltins(registry); err != nil {
		appLogger.Error("failed to register builtin tasks", "error", err)
		os.Exit(1)
	}

	decorators := runner.DecoratorConfig{}
	for _, t := range registry.List() {
		decorators[t] = []decorator.Constructor{
			decorator.NewLogging(appLogger.Slog()),
			decorator.NewTiming(appLogger.Slog()),
			decorator.NewRetry(decorator.DefaultRetryConfig()),
		}
	}

	r := runner.New(registry, decorators)
	executor := dag.New(r, runStore, appLogger.Slog())

	poller := worker.New(sharedStore, executor, worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		PollSchedule: cfg.Worker.PollSchedule,
		Concurrency:  cfg.Worker.Concurrency,
	}, appLogger.Slog())

	runCtx, cancel := context.WithCancel(ctx)
	poller.Start(runCtx)
	appLogger.Info("worker started")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	appLogger.Info("shutdown signal received", "signal", sig.String())

	cancel()
	poller.Stop()

	stats := poller.Stats()
	appLogger.Info("worker stopped",
		"total_processed", stats.TotalProcessed,
		"successful", stats.Successful,
		"failed", stats.Failed,
	)
}

func applyFlagOverrides(cfg *appconfig.Config, sharedDB, workerDB, pollInterval string) {
	if sharedDB != "" {
		cfg.Worker.SharedDBPath = sharedDB
	}
	if workerDB != "" {
		cfg.Worker.WorkerDBPath = workerDB
	}
	if pollInterval != "" {
		if d, err := parseDurationOrSeconds(pollInterval); err == nil {
			cfg.Worker.PollInterval = d
		}
	}
}

// parseDurationOrSeconds accepts either Go duration syntax ("3s") or a bare
// number of seconds ("3", "2.5"), matching the source's poll_interval_seconds.
func parseDurationOrSeconds(s string) (time.Duration, error) {
	if seconds, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
