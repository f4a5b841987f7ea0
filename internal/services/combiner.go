package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/comexlabs/metalcast/internal/models"
)

// signalWeights are the fixed fusion weights of the four signal categories.
var signalWeights = map[models.SignalCategory]float64{
	models.CategoryTrendMomentum:  0.30,
	models.CategoryPhysicalStress: 0.35,
	models.CategoryArimaModel:     0.20,
	models.CategoryMarketActivity: 0.15,
}

const (
	bullishThreshold = 60.0
	bearishThreshold = 40.0

	defaultSqueezeProbability = 30
)

// CompositeForecast is the fused directional call produced by the combiner.
type CompositeForecast struct {
	Direction          models.Direction
	CompositeScore     float64
	Confidence         int
	SqueezeProbability int
	KeyDrivers         []string
}

// Combine fuses the four signal scores into one directional forecast.
// Missing categories default to the neutral score so the weighting is always
// over the full set.
func Combine(signals map[models.SignalCategory]models.SignalScore) CompositeForecast {
	scores := make(map[models.SignalCategory]float64, len(signalWeights))
	for category := range signalWeights {
		scores[category] = neutralScore
		if s, ok := signals[category]; ok {
			scores[category] = s.Score
		}
	}

	composite := 0.0
	for category, weight := range signalWeights {
		composite += scores[category] * weight
	}
	composite = roundTo(clampFloat(composite, 0, 100), 1)

	direction := models.DirectionNeutral
	switch {
	case composite >= bullishThreshold:
		direction = models.DirectionBullish
	case composite <= bearishThreshold:
		direction = models.DirectionBearish
	}

	return CompositeForecast{
		Direction:          direction,
		CompositeScore:     composite,
		Confidence:         confidence(scores),
		SqueezeProbability: squeezeProbability(signals),
		KeyDrivers:         keyDrivers(signals, scores),
	}
}

// confidence blends how far the signals sit from neutral with how much they
// agree. Strong, unanimous signals approach the cap of 95; scattered or
// neutral ones floor at 10.
func confidence(scores map[models.SignalCategory]float64) int {
	values := make([]float64, 0, len(scores))
	for _, v := range scores {
		values = append(values, v)
	}
	strength := math.Abs(calculateMeanFloat64(values)-50) / 50
	agreement := math.Max(0, 1-calculatePopStdDev(values)/25)

	c := math.Round((strength*0.6 + agreement*0.4) * 100)
	return int(clampFloat(c, 10, 95))
}

// squeezeProbability lifts the physical calculator's squeeze sub-score when
// it was computable, defaulting to a modest baseline otherwise.
func squeezeProbability(signals map[models.SignalCategory]models.SignalScore) int {
	physical, ok := signals[models.CategoryPhysicalStress]
	if !ok {
		return defaultSqueezeProbability
	}
	sub, ok := physical.Indicators["pp_squeeze"].(map[string]interface{})
	if !ok {
		return defaultSqueezeProbability
	}
	score, ok := sub["squeeze_score"].(float64)
	if !ok {
		return defaultSqueezeProbability
	}
	return int(math.Round(score))
}

// keyDrivers names the three signals furthest from neutral, each with its
// directional label and rationale.
func keyDrivers(signals map[models.SignalCategory]models.SignalScore, scores map[models.SignalCategory]float64) []string {
	type deviation struct {
		category models.SignalCategory
		delta    float64
		score    float64
	}
	deviations := make([]deviation, 0, len(scores))
	for category, score := range scores {
		deviations = append(deviations, deviation{category, math.Abs(score - 50), score})
	}
	sort.SliceStable(deviations, func(i, j int) bool {
		if deviations[i].delta != deviations[j].delta {
			return deviations[i].delta > deviations[j].delta
		}
		return deviations[i].category < deviations[j].category
	})

	drivers := make([]string, 0, 3)
	for _, d := range deviations[:3] {
		label := titleCase(string(d.category))
		direction := "neutral"
		if d.score > 50 {
			direction = "bullish"
		} else if d.score < 50 {
			direction = "bearish"
		}
		rationale := ""
		if s, ok := signals[d.category]; ok {
			rationale = s.Rationale
		}
		drivers = append(drivers, fmt.Sprintf("%s: %s (%s)", label, direction, rationale))
	}
	return drivers
}

// titleCase turns an underscore category name into a display label, e.g.
// "trend_momentum" into "Trend Momentum".
func titleCase(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
