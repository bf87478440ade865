package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/wealthflow-planner/internal/adapter/grpc"
	"github.com/simaogato/wealthflow-planner/internal/adapter/repository/postgres"
	"github.com/simaogato/wealthflow-planner/internal/config"
	"github.com/simaogato/wealthflow-planner/internal/observability"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

func main() {
	// 1. Load configuration (.env, config file, then environment)
	_ = godotenv.Load()

	configPath := os.Getenv("PLANNER_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stdout, cfg.Logging.Format, observability.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	policy, err := cfg.Rebalancing()
	if err != nil {
		fatal(logger, "invalid rebalancing policy", err)
	}
	limits, err := cfg.Limits()
	if err != nil {
		fatal(logger, "invalid validation limits", err)
	}
	sessionTTL, err := cfg.Server.SessionTTLDuration()
	if err != nil {
		fatal(logger, "invalid session ttl", err)
	}

	// 2. Setup Database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := connectWithRetry(ctx, logger, cfg.Database.DSN())
	if err == nil {
		err = db.EnsureSchema(ctx)
	}
	cancel()
	if err != nil {
		fatal(logger, "failed to prepare database", err)
	}
	defer db.Close()

	// 3. Initialize Repositories and Services
	planRepo := postgres.NewPlanRepository(db)
	balanceRepo := postgres.NewBalanceRepository(db)

	plannerService := planner.NewPlannerService(planRepo, policy, limits, logger)
	progressService := progress.NewProgressService(planRepo, balanceRepo)

	// 4. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(cfg.Server.APIToken, healthCheckMethod),
		),
	)

	grpcadapter.RegisterPlannerServiceServer(grpcServer, grpcadapter.NewServer(plannerService, progressService))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.Port)
	if err != nil {
		fatal(logger, "failed to listen", err, "addr", cfg.Server.Port)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.Port)
		if err := grpcServer.Serve(lis); err != nil {
			fatal(logger, "failed to serve gRPC server", err)
		}
	}()

	stopExpiry := make(chan struct{})
	if sessionTTL > 0 {
		go expireSessions(plannerService, sessionTTL, stopExpiry)
	}

	// Graceful shutdown
	waitForShutdown(logger, grpcServer, healthServer)
	close(stopExpiry)
}

// connectWithRetry waits for Postgres to accept connections
func connectWithRetry(ctx context.Context, logger *slog.Logger, dsn string) (*postgres.DB, error) {
	for {
		db, err := postgres.NewDB(ctx, dsn)
		if err == nil {
			return db, nil
		}
		logger.Warn("database not ready, retrying", "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up on database: %w", err)
		case <-time.After(2 * time.Second):
		}
	}
}

// expireSessions drops abandoned editing sessions once per TTL/4
func expireSessions(svc *planner.PlannerService, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(max(ttl/4, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			svc.ExpireSessions(ttl)
		case <-stop:
			return
		}
	}
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(logger *slog.Logger, grpcServer *grpclib.Server, healthServer *health.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down gracefully", "signal", sig.String())

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
}

func fatal(logger *slog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{"error", err}, args...)...)
	os.Exit(1)
}
