package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/api/handlers"
	"github.com/comexlabs/metalcast/internal/database"
	"github.com/comexlabs/metalcast/internal/middleware"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// SetupRoutes wires the read-only forecast API.
func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, logger *logrus.Logger) {
	router.Use(middleware.RequestLogger(logger))
	router.GET("/health", healthCheck(db, redis))

	repo := database.NewForecastRepository(db.Pool)
	forecastHandler := handlers.NewForecastHandler(repo, logger)
	accuracyHandler := handlers.NewAccuracyHandler(repo, logger)

	v1 := router.Group("/api/v1")
	{
		forecast := v1.Group("/forecast")
		{
			forecast.GET("", forecastHandler.GetLatestForecasts)
			forecast.GET("/:metal", forecastHandler.GetMetalForecast)
		}

		v1.GET("/accuracy", accuracyHandler.GetAccuracy)
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "error"
			response.Status = "degraded"
		}

		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Redis = "error"
			response.Status = "degraded"
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
