package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

// MarketActivityCalculator scores futures-market participation from open
// interest and volume. The combined price feed's columns are preferred; the
// standalone open-interest report fills in when they are absent.
type MarketActivityCalculator struct {
	logger *logrus.Logger
}

func NewMarketActivityCalculator(logger *logrus.Logger) *MarketActivityCalculator {
	return &MarketActivityCalculator{logger: logger}
}

func (c *MarketActivityCalculator) Calculate(series *models.MarketSeries) models.SignalScore {
	metrics := map[string]interface{}{}
	var scores []float64
	var parts []string

	oiSeries := pickSeries(series.OpenInterest, series.ReportedOI)
	if oiSeries.Len() >= 10 {
		values := oiSeries.Values()
		latest := values[len(values)-1]
		tenAgo := values[len(values)-10]

		pct := 0.0
		if tenAgo > 0 {
			pct = (latest - tenAgo) / tenAgo * 100
		}
		scores = append(scores, clampFloat(50+pct*2, 0, 100))
		metrics["oi_10d_change_pct"] = roundTo(pct, 2)

		direction := "contracting"
		if pct > 0 {
			direction = "expanding"
		}
		parts = append(parts, fmt.Sprintf("OI %s %.1f%%", direction, math.Abs(pct)))
	}

	volSeries := pickSeries(series.Volume, series.ReportedVolume)
	if volSeries.Len() >= 10 {
		avg5, _ := volSeries.RollingMean(5)
		avg20, _ := volSeries.RollingMean(minInt(20, volSeries.Len()))

		if avg20 > 0 {
			ratio := avg5 / avg20
			scores = append(scores, clampFloat(50+(ratio-1)*30, 0, 100))
			metrics["volume_5d_avg"] = roundTo(avg5, 0)
			metrics["volume_20d_avg"] = roundTo(avg20, 0)
			metrics["volume_ratio"] = roundTo(ratio, 2)

			switch {
			case ratio > 1.2:
				parts = append(parts, "volume elevated")
			case ratio < 0.8:
				parts = append(parts, "volume light")
			default:
				parts = append(parts, "volume normal")
			}
		}
	}

	score := neutralScore
	if len(scores) > 0 {
		score = roundTo(calculateMeanFloat64(scores), 1)
	}
	rationale := "No market data"
	if len(parts) > 0 {
		rationale = strings.Join(parts, ", ")
	}

	c.logger.WithFields(logrus.Fields{
		"metal": series.Metal,
		"score": score,
	}).Debug("Market activity signal computed")

	return models.SignalScore{
		Category:   models.CategoryMarketActivity,
		Score:      score,
		Rationale:  rationale,
		Indicators: metrics,
	}
}

// pickSeries returns the first series with any observations.
func pickSeries(primary, fallback *timeseries.Series) *timeseries.Series {
	if primary.Len() > 0 {
		return primary
	}
	return fallback
}
