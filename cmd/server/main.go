package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/api"
	"github.com/steemit/hivemind-indexer/internal/cache"
	"github.com/steemit/hivemind-indexer/internal/db"
	"github.com/steemit/hivemind-indexer/pkg/config"
	"github.com/steemit/hivemind-indexer/pkg/logging"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Hivemind status server")

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	checks := map[string]api.HealthChecker{"database": database}
	if cfg.Redis.Enabled {
		checks["redis"] = redisCache
	}
	router := api.NewRouter(api.RouterDeps{
		Blocks: db.NewBlockRepository(db.NewRepository(database.DB)),
		Schema: database,
		Checks: checks,
	})
	engine := api.NewEngine(router, strings.EqualFold(cfg.Logging.Level, "debug"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := api.Serve(ctx, addr, engine); err != nil {
		logger.Error("Server failed", zap.Error(err))
	}
}
