package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/database"
)

// AccuracyHandler serves the forecast hit-rate record.
type AccuracyHandler struct {
	repo   *database.ForecastRepository
	logger *logrus.Logger
}

type MetalAccuracy struct {
	Metal      string `json:"metal"`
	Total      int    `json:"total"`
	Correct    int    `json:"correct"`
	HitRatePct int    `json:"hit_rate_pct"`
}

type AccuracyResponse struct {
	Metals    []MetalAccuracy `json:"metals"`
	Overall   MetalAccuracy   `json:"overall"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewAccuracyHandler(repo *database.ForecastRepository, logger *logrus.Logger) *AccuracyHandler {
	return &AccuracyHandler{repo: repo, logger: logger}
}

// GetAccuracy returns per-metal and overall directional hit rates across all
// evaluated forecasts.
func (h *AccuracyHandler) GetAccuracy(c *gin.Context) {
	summaries, err := h.repo.AccuracySummaries(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load accuracy summaries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load accuracy"})
		return
	}

	response := AccuracyResponse{
		Metals:    make([]MetalAccuracy, 0, len(summaries)),
		Overall:   MetalAccuracy{Metal: "Overall"},
		Timestamp: time.Now().UTC(),
	}
	for _, s := range summaries {
		response.Metals = append(response.Metals, MetalAccuracy{
			Metal:      s.Metal,
			Total:      s.Total,
			Correct:    s.Correct,
			HitRatePct: s.HitRate(),
		})
		response.Overall.Total += s.Total
		response.Overall.Correct += s.Correct
	}
	if response.Overall.Total > 0 {
		response.Overall.HitRatePct = int(float64(response.Overall.Correct)/float64(response.Overall.Total)*100 + 0.5)
	}

	c.JSON(http.StatusOK, response)
}
