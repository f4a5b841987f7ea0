package services

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

// RegimeClassifier labels recent price behavior from its volatility
// structure: short-term volatility expansion reads VOLATILE, a 20-period
// move large relative to annualized volatility reads TRENDING, anything
// else RANGING.
type RegimeClassifier struct {
	logger *logrus.Logger
}

func NewRegimeClassifier(logger *logrus.Logger) *RegimeClassifier {
	return &RegimeClassifier{logger: logger}
}

func (c *RegimeClassifier) Classify(prices *timeseries.Series) models.Regime {
	if prices.Len() < 30 {
		return models.RegimeUnknown
	}

	returns := prices.PctChange(1)
	if returns.Len() < 20 {
		return models.RegimeUnknown
	}

	volShort, _ := returns.RollingStd(5)
	volLong, okLong := returns.RollingStd(20)
	if !okLong || volLong == 0 {
		return models.RegimeUnknown
	}

	values := prices.Values()
	base := values[len(values)-20]
	absReturn20 := 0.0
	if base != 0 {
		absReturn20 = math.Abs(values[len(values)-1]/base - 1)
	}
	annualizedVol := volLong * math.Sqrt(252)

	regime := models.RegimeRanging
	switch {
	case volShort/volLong > 1.5:
		regime = models.RegimeVolatile
	case absReturn20 > annualizedVol*0.3:
		regime = models.RegimeTrending
	}

	c.logger.WithFields(logrus.Fields{
		"regime":    regime,
		"vol_ratio": roundTo(volShort/volLong, 3),
	}).Debug("Regime classified")

	return regime
}
