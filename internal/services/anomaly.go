package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

const (
	anomalyMinObservations = 20
	anomalyWindow          = 30
	anomalyThreshold       = 2.0
)

// AnomalyDetector flags metrics whose latest reading sits more than two
// standard deviations outside its trailing distribution.
type AnomalyDetector struct {
	logger *logrus.Logger
}

func NewAnomalyDetector(logger *logrus.Logger) *AnomalyDetector {
	return &AnomalyDetector{logger: logger}
}

func (d *AnomalyDetector) Detect(series *models.MarketSeries) []models.Anomaly {
	checks := []struct {
		name   string
		series *timeseries.Series
	}{
		{"registered_inventory_change", series.Registered.Diff(1)},
		{"daily_deliveries", series.DailyIssued},
		{"trading_volume", series.Volume},
		{"oi_change", series.OIChange},
	}

	var anomalies []models.Anomaly
	for _, check := range checks {
		if check.series.Len() < anomalyMinObservations {
			continue
		}
		window := minInt(anomalyWindow, check.series.Len())
		mean, _ := check.series.RollingMean(window)
		std, ok := check.series.RollingStd(window)
		if !ok || std <= 0 {
			continue
		}
		latest, _ := check.series.Last()

		z := clampFloat((latest-mean)/std, -10, 10)
		if math.Abs(z) <= anomalyThreshold {
			continue
		}

		level, direction := "high", "above"
		if z < 0 {
			level, direction = "low", "below"
		}
		anomalies = append(anomalies, models.Anomaly{
			Metric: check.name,
			ZScore: roundTo(z, 2),
			Description: fmt.Sprintf("Unusually %s %s (%s normal by %.1f std dev)",
				level, strings.ReplaceAll(check.name, "_", " "), direction, math.Abs(z)),
		})
	}

	if len(anomalies) > 0 {
		d.logger.WithFields(logrus.Fields{
			"metal": series.Metal,
			"count": len(anomalies),
		}).Info("Anomalies detected")
	}
	return anomalies
}
