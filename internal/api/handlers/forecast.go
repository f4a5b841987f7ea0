package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/database"
	"github.com/comexlabs/metalcast/internal/models"
)

// ForecastHandler serves the persisted forecast record.
type ForecastHandler struct {
	repo   *database.ForecastRepository
	logger *logrus.Logger
}

type ForecastsResponse struct {
	Forecasts []models.ForecastSnapshot `json:"forecasts"`
	Count     int                       `json:"count"`
	Timestamp time.Time                 `json:"timestamp"`
}

type MetalForecastResponse struct {
	Forecast *models.ForecastSnapshot    `json:"forecast"`
	Tracking []models.PriceTrackingEntry `json:"tracking,omitempty"`
}

func NewForecastHandler(repo *database.ForecastRepository, logger *logrus.Logger) *ForecastHandler {
	return &ForecastHandler{repo: repo, logger: logger}
}

// GetLatestForecasts returns the most recent snapshot for every metal.
func (h *ForecastHandler) GetLatestForecasts(c *gin.Context) {
	snapshots, err := h.repo.LatestSnapshots(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load latest forecasts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load forecasts"})
		return
	}

	c.JSON(http.StatusOK, ForecastsResponse{
		Forecasts: snapshots,
		Count:     len(snapshots),
		Timestamp: time.Now().UTC(),
	})
}

// GetMetalForecast returns the latest snapshot for one metal along with its
// recent price-tracking entries.
func (h *ForecastHandler) GetMetalForecast(c *gin.Context) {
	metal := c.Param("metal")

	snapshot, err := h.repo.LatestSnapshot(c.Request.Context(), metal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no forecast for metal", "metal": metal})
			return
		}
		h.logger.WithError(err).WithField("metal", metal).Error("Failed to load forecast")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load forecast"})
		return
	}

	limit := 30
	if raw := c.Query("tracking_limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	tracking, err := h.repo.RecentTracking(c.Request.Context(), metal, limit)
	if err != nil {
		// Tracking is display-only; serve the snapshot without it.
		h.logger.WithError(err).WithField("metal", metal).Warn("Failed to load tracking entries")
		tracking = nil
	}

	c.JSON(http.StatusOK, MetalForecastResponse{
		Forecast: snapshot,
		Tracking: tracking,
	})
}
