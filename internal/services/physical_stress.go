package services

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

// PhysicalStressCalculator scores supply stress in the physical market from
// warehouse inventory, delivery notices and the paper-to-physical ratio.
// Each sub-signal has its own minimum-length precondition; the aggregate is
// the mean of whichever sub-signals were computable.
type PhysicalStressCalculator struct {
	logger *logrus.Logger
}

func NewPhysicalStressCalculator(logger *logrus.Logger) *PhysicalStressCalculator {
	return &PhysicalStressCalculator{logger: logger}
}

func (c *PhysicalStressCalculator) Calculate(series *models.MarketSeries, profile models.CommodityProfile) models.SignalScore {
	signals := map[string]interface{}{}
	var components []float64
	var parts []string

	if sub, score, ok := c.inventoryDrawdown(series.Registered); ok {
		signals["inventory_drawdown"] = sub
		components = append(components, score)
		parts = append(parts, fmt.Sprintf("Inventory z=%v", sub["z_score"]))
	}
	if sub, score, ok := c.deliveryAcceleration(series.DailyIssued); ok {
		signals["delivery_acceleration"] = sub
		components = append(components, score)
		parts = append(parts, fmt.Sprintf("Delivery accel %.1fx", sub["acceleration_ratio"]))
	}
	if sub, score, ok := c.paperPhysicalSqueeze(series.PaperPhysicalRatio); ok {
		signals["pp_squeeze"] = sub
		components = append(components, score)
		parts = append(parts, fmt.Sprintf("P/P %.1f:1", sub["current_ratio"]))
	}
	if sub, score, ok := c.coverageErosion(series.Registered, series.DailyIssued, profile); ok {
		signals["coverage_erosion"] = sub
		components = append(components, score)
		parts = append(parts, fmt.Sprintf("Coverage %.0fd", sub["coverage_days"]))
	}
	if sub, score, ok := c.eligibleFlow(series.Registered, series.Eligible); ok {
		signals["eligible_flow"] = sub
		components = append(components, score)
	}

	score := neutralScore
	if len(components) > 0 {
		score = roundTo(calculateMeanFloat64(components), 1)
	}
	rationale := "No physical signals"
	if len(parts) > 0 {
		rationale = strings.Join(parts, ", ")
	}

	c.logger.WithFields(logrus.Fields{
		"metal":       series.Metal,
		"score":       score,
		"sub_signals": len(components),
	}).Debug("Physical stress signal computed")

	return models.SignalScore{
		Category:   models.CategoryPhysicalStress,
		Score:      score,
		Rationale:  rationale,
		Indicators: signals,
	}
}

// inventoryDrawdown z-scores the latest 5-day registered-inventory change
// against its own trailing distribution (up to 60 changes). A sharp drawdown
// means metal is leaving the deliverable pool, bullish for price.
func (c *PhysicalStressCalculator) inventoryDrawdown(registered *timeseries.Series) (map[string]interface{}, float64, bool) {
	if registered.Len() < 10 {
		return nil, 0, false
	}
	changes := registered.Diff(5)
	latestChange, _ := changes.Last()

	window := minInt(60, changes.Len())
	mean, _ := changes.RollingMean(window)
	std, stdOK := changes.RollingStd(window)
	if !stdOK {
		std = 1
	}

	z := 0.0
	if std > 0 {
		z = (latestChange - mean) / std
	}
	z = clampFloat(z, -5, 5)

	score := clampFloat(50-z*15, 0, 100)

	interpretation := "Normal"
	switch {
	case z < -1.5:
		interpretation = "Rapid drawdown"
	case z > 1.5:
		interpretation = "Building"
	}

	return map[string]interface{}{
		"z_score":        roundTo(z, 2),
		"change_5d":      roundTo(latestChange, 2),
		"interpretation": interpretation,
	}, score, true
}

// deliveryAcceleration compares the latest daily issued notices to their
// trailing 20-day average.
func (c *PhysicalStressCalculator) deliveryAcceleration(issued *timeseries.Series) (map[string]interface{}, float64, bool) {
	if issued.Len() < 5 {
		return nil, 0, false
	}
	latest, _ := issued.Last()
	avg, _ := issued.RollingMean(minInt(20, issued.Len()))

	ratio := 1.0
	if avg > 0 {
		ratio = latest / avg
	}

	score := clampFloat(50+(ratio-1)*30, 0, 100)

	interpretation := "Normal"
	switch {
	case ratio > 1.5:
		interpretation = "Surging"
	case ratio > 1.2:
		interpretation = "Elevated"
	case ratio < 0.7:
		interpretation = "Below average"
	}

	return map[string]interface{}{
		"current_daily":      int(latest),
		"avg_20d":            roundTo(avg, 1),
		"acceleration_ratio": roundTo(ratio, 2),
		"interpretation":     interpretation,
	}, score, true
}

// paperPhysicalSqueeze blends the paper-to-physical ratio level with its
// 5-day rate of change. A high and rising ratio means many paper claims per
// deliverable ounce.
func (c *PhysicalStressCalculator) paperPhysicalSqueeze(ratio *timeseries.Series) (map[string]interface{}, float64, bool) {
	if ratio.Len() < 5 {
		return nil, 0, false
	}
	values := ratio.Values()
	latest := values[len(values)-1]
	fiveDaysAgo := values[len(values)-5]

	roc := 0.0
	if fiveDaysAgo > 0 {
		roc = (latest - fiveDaysAgo) / fiveDaysAgo * 100
	}

	levelScore := minFloat(100, latest*8)
	trendScore := clampFloat(50+roc*5, 0, 100)
	score := levelScore*0.6 + trendScore*0.4

	interpretation := "Low"
	switch {
	case latest > 10:
		interpretation = "Extreme"
	case latest > 5:
		interpretation = "Elevated"
	case latest > 2:
		interpretation = "Moderate"
	}

	return map[string]interface{}{
		"current_ratio":  roundTo(latest, 2),
		"roc_5d_pct":     roundTo(roc, 2),
		"squeeze_score":  roundTo(score, 1),
		"interpretation": interpretation,
	}, score, true
}

// coverageErosion estimates how many days of average delivery demand the
// registered inventory could satisfy. Registered stock and contract size may
// be in different physical units for some metals; the raw quotient is kept
// as-is so scores stay comparable with the historical record.
func (c *PhysicalStressCalculator) coverageErosion(registered, issued *timeseries.Series, profile models.CommodityProfile) (map[string]interface{}, float64, bool) {
	if registered.Len() < 2 || issued.Len() < 5 {
		return nil, 0, false
	}
	latestReg, _ := registered.Last()
	avgDaily, _ := issued.RollingMean(minInt(20, issued.Len()))

	if avgDaily <= 0 || latestReg <= 0 {
		return nil, 0, false
	}

	coverageDays := 999.0
	if profile.ContractSize > 0 {
		coverageDays = latestReg / (avgDaily * profile.ContractSize)
	}

	score := clampFloat(100-coverageDays*0.5, 0, 100)

	interpretation := "Comfortable"
	switch {
	case coverageDays < 30:
		interpretation = "Critical"
	case coverageDays < 90:
		interpretation = "Tight"
	case coverageDays < 365:
		interpretation = "Adequate"
	}

	return map[string]interface{}{
		"coverage_days":      roundTo(coverageDays, 1),
		"avg_daily_delivery": roundTo(avgDaily, 1),
		"interpretation":     interpretation,
	}, score, true
}

// eligibleFlow classifies the joint 5-day movement of registered and
// eligible stock. Metal moving into the registered category signals
// delivery intent; registered stock declining outright is a drawdown.
func (c *PhysicalStressCalculator) eligibleFlow(registered, eligible *timeseries.Series) (map[string]interface{}, float64, bool) {
	if registered.Len() < 5 || eligible.Len() < 5 {
		return nil, 0, false
	}

	regChange := 0.0
	if registered.Len() >= 6 {
		regChange, _ = registered.Diff(5).Last()
	}
	eligChange := 0.0
	if eligible.Len() >= 6 {
		eligChange, _ = eligible.Diff(5).Last()
	}

	var interpretation string
	var score float64
	switch {
	case regChange > 0 && eligChange < 0:
		interpretation = "Eligible -> Registered (delivery intent)"
		score = 65
	case regChange < 0:
		interpretation = "Registered declining (drawdown)"
		score = 70
	default:
		interpretation = "Stable"
		score = 50
	}

	return map[string]interface{}{
		"registered_change_5d": roundTo(regChange, 2),
		"eligible_change_5d":   roundTo(eligChange, 2),
		"interpretation":       interpretation,
	}, score, true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
