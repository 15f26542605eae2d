package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/config"
	"github.com/mc-review/submission-engine/pkg/database"
	"github.com/mc-review/submission-engine/pkg/logging"
	"github.com/mc-review/submission-engine/pkg/metrics"
	"github.com/mc-review/submission-engine/pkg/repositories"
	"github.com/mc-review/submission-engine/pkg/services"
)

// app holds the long-lived dependencies shared by the server and the CLI commands.
type app struct {
	db        *database.DB
	redis     *redis.Client
	metrics   *metrics.Metrics
	contracts services.ContractService
	rates     services.RateService
	history   services.HistoryService
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.URL(),
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MaxIdleConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %s", logging.SanitizeError(err))
	}
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		// The cache is optional; run without it rather than refuse to start.
		logger.Warn("History cache disabled", zap.String("error", logging.SanitizeError(err)))
		redisClient = nil
	} else if redisClient != nil {
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	tx := database.NewTransactor()
	contractRepo := repositories.NewContractRepository()
	rateRepo := repositories.NewRateRepository()
	edgeRepo := repositories.NewRevisionEdgeRepository()
	cache := services.NewHistoryCache(redisClient, cfg.Redis.HistoryTTL, logger)

	return &app{
		db:        db,
		redis:     redisClient,
		metrics:   m,
		contracts: services.NewContractService(tx, contractRepo, rateRepo, edgeRepo, cache, m, logger),
		rates:     services.NewRateService(tx, contractRepo, rateRepo, edgeRepo, cache, m, logger),
		history:   services.NewHistoryService(tx, contractRepo, rateRepo, edgeRepo, cache, m, logger),
	}, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
