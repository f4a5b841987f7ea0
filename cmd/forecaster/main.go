package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/cache"
	"github.com/comexlabs/metalcast/internal/config"
	"github.com/comexlabs/metalcast/internal/database"
	"github.com/comexlabs/metalcast/internal/logging"
	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/services"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	runID := uuid.New().String()
	logger.WithFields(logrus.Fields{
		"run_id":        runID,
		"model_version": cfg.Forecast.ModelVersion,
	}).Info("Forecast run starting")

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()

	// The series cache is an optimization; run without it if Redis is down.
	var seriesCache services.SeriesCache
	if redis, err := database.NewRedisConnection(cfg.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without series cache")
	} else {
		defer redis.Close()
		ttl, err := time.ParseDuration(cfg.Forecast.SeriesCacheTTL)
		if err != nil {
			ttl = time.Hour
		}
		seriesCache = cache.NewRedisSeriesCache(redis.Client, ttl, logger)
	}

	fetcher := database.NewMarketRepository(db.Pool)
	forecaster := services.NewForecastService(cfg, fetcher, seriesCache, logger)
	tracker := services.NewHistoryTracker(db.Pool, &cfg.Forecast, logger)

	if err := tracker.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure forecast schema")
	}

	startedAt := time.Now().UTC()
	results := forecaster.Run(ctx)

	currentPrices := make(map[string]float64, len(results))
	for _, r := range results {
		if r.CurrentPrice > 0 {
			currentPrices[r.Metal] = r.CurrentPrice
		}
	}

	if err := tracker.SaveSnapshots(ctx, startedAt, results); err != nil {
		logger.WithError(err).Error("Failed to write forecast snapshots")
	}
	if _, _, err := tracker.EvaluateAccuracy(ctx, startedAt, currentPrices); err != nil {
		logger.WithError(err).Error("Failed to evaluate past forecasts")
	}
	if _, err := tracker.TrackPrices(ctx, startedAt, currentPrices); err != nil {
		logger.WithError(err).Error("Failed to record price tracking")
	}
	if err := tracker.WriteLocalHistory(startedAt, results); err != nil {
		logger.WithError(err).Error("Failed to write local history")
	}

	for _, r := range results {
		entry := logger.WithFields(logrus.Fields{
			"metal":      r.Metal,
			"direction":  r.Direction,
			"score":      r.CompositeScore,
			"confidence": r.Confidence,
			"regime":     r.Regime,
		})
		if r.Direction == models.DirectionNeutral && r.Error != "" {
			entry.Warn("Forecast unavailable")
			continue
		}
		entry.Info("Forecast issued")
	}

	logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"duration": time.Since(startedAt).Round(time.Millisecond),
	}).Info("Forecast run complete")
}
