package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/simaogato/wealthflow-planner/internal/adapter/repository/sqlite"
	"github.com/simaogato/wealthflow-planner/internal/cli"
	"github.com/simaogato/wealthflow-planner/internal/config"
	"github.com/simaogato/wealthflow-planner/internal/observability"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	configPath := os.Getenv("PLANNER_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	policy, err := cfg.Rebalancing()
	if err != nil {
		return err
	}
	limits, err := cfg.Limits()
	if err != nil {
		return err
	}

	// Open local database
	db, err := sqlite.Open(cfg.Local.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// Use-case logs go to stderr; keep them to warnings unless asked for
	level := slog.LevelWarn
	if _, ok := os.LookupEnv("PLANNER_LOG_LEVEL"); ok {
		level = observability.ParseLevel(cfg.Logging.Level)
	}
	logger := observability.NewLogger(os.Stderr, cfg.Logging.Format, level)

	planRepo := sqlite.NewPlanRepository(db)
	balanceRepo := sqlite.NewBalanceRepository(db)

	app := &cli.App{
		Planner:    planner.NewPlannerService(planRepo, policy, limits, logger),
		Progress:   progress.NewProgressService(planRepo, balanceRepo),
		Policy:     policy,
		Limits:     limits,
		ConfigPath: configPath,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
