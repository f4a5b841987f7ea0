package services

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

const (
	trendMinObservations = 20
	rsiPeriod            = 14
	bollingerPeriod      = 20
)

// TrendMomentumCalculator scores price trend and momentum from moving-average
// alignment, Bollinger position, RSI and MACD.
type TrendMomentumCalculator struct {
	logger *logrus.Logger
}

func NewTrendMomentumCalculator(logger *logrus.Logger) *TrendMomentumCalculator {
	return &TrendMomentumCalculator{logger: logger}
}

// Calculate scores the price series. Series shorter than 20 observations
// resolve to the neutral score with no indicators.
func (c *TrendMomentumCalculator) Calculate(prices *timeseries.Series) models.SignalScore {
	if prices.Len() < trendMinObservations {
		score, rationale := InsufficientSignal("Insufficient price data").Resolve()
		return models.SignalScore{
			Category:   models.CategoryTrendMomentum,
			Score:      score,
			Rationale:  rationale,
			Indicators: map[string]interface{}{},
		}
	}

	values := prices.Values()
	latest := values[len(values)-1]

	sma5 := lastSMA(values, 5)
	sma20 := lastSMA(values, bollingerPeriod)
	sma50 := lastSMA(values, minInt(50, len(values)))

	// Alignment in {-3..+3}, +1 per bullish relation.
	maAlign := 0
	for _, bullish := range []bool{sma5 > sma20, latest > sma50, sma20 > sma50} {
		if bullish {
			maAlign++
		} else {
			maAlign--
		}
	}
	maContribution := (float64(maAlign)+3)/6*60 + 20

	bbPosition := bollingerPosition(values, latest)
	rsi := rollingRSI(values, rsiPeriod)
	rsiContribution := clampFloat(rsi, 30, 70)

	macdHist := macdHistogram(values)
	macdBullish := len(macdHist) >= 2 &&
		macdHist[len(macdHist)-1] > 0 &&
		macdHist[len(macdHist)-1] > macdHist[len(macdHist)-2]
	macdContribution := 35.0
	if macdBullish {
		macdContribution = 65.0
	}

	roc10 := rateOfChange(values, 10)
	vol10, vol20 := returnVolatility(values)

	score := clampFloat(
		maContribution*0.30+
			rsiContribution*0.25+
			macdContribution*0.25+
			bbPosition*100*0.20,
		0, 100)

	smaRelation := "SMA5 < SMA20"
	if sma5 > sma20 {
		smaRelation = "SMA5 > SMA20"
	}
	macdLabel := "MACD bearish"
	if macdBullish {
		macdLabel = "MACD bullish"
	}
	rationale := fmt.Sprintf("%s, %s, RSI %.0f, ROC(10) %+.1f%%",
		smaRelation, macdLabel, rsi, roc10)

	lastHist := 0.0
	if len(macdHist) > 0 {
		lastHist = macdHist[len(macdHist)-1]
	}

	c.logger.WithFields(logrus.Fields{
		"score":        roundTo(score, 1),
		"ma_alignment": maAlign,
		"rsi":          roundTo(rsi, 1),
	}).Debug("Trend/momentum signal computed")

	resolved, rationale := ComputedSignal(roundTo(score, 1), rationale).Resolve()
	return models.SignalScore{
		Category:  models.CategoryTrendMomentum,
		Score:     resolved,
		Rationale: rationale,
		Indicators: map[string]interface{}{
			"sma5":               roundTo(sma5, 2),
			"sma20":              roundTo(sma20, 2),
			"sma50":              roundTo(sma50, 2),
			"rsi":                roundTo(rsi, 1),
			"macd_bullish":       macdBullish,
			"macd_histogram":     roundTo(lastHist, 4),
			"bollinger_position": roundTo(bbPosition, 3),
			"roc_10d":            roundTo(roc10, 2),
			"volatility_10d":     roundTo(vol10, 4),
			"volatility_20d":     roundTo(vol20, 4),
		},
	}
}

// lastSMA returns the latest value of a simple moving average.
func lastSMA(values []float64, period int) float64 {
	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(out) == 0 {
		return values[len(values)-1]
	}
	return out[len(out)-1]
}

// recursiveEMA is a span-parameterized exponential moving average seeded with
// the first observation, so it is defined from the very start of the series.
func recursiveEMA(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// macdHistogram returns the 12/26 MACD line minus its 9-period signal line.
func macdHistogram(values []float64) []float64 {
	ema12 := recursiveEMA(values, 12)
	ema26 := recursiveEMA(values, 26)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = ema12[i] - ema26[i]
	}
	signal := recursiveEMA(line, 9)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signal[i]
	}
	return hist
}

// bollingerPosition places the latest price inside the 20-period 2-sigma
// band as a ratio in [0,1], 0.5 when the band has no width.
func bollingerPosition(values []float64, latest float64) float64 {
	if len(values) < bollingerPeriod {
		return 0.5
	}
	window := values[len(values)-bollingerPeriod:]
	mid := calculateMeanFloat64(window)
	std := calculateStdDev(window)
	upper := mid + 2*std
	lower := mid - 2*std
	if upper <= lower {
		return 0.5
	}
	return clampFloat((latest-lower)/(upper-lower), 0, 1)
}

// rollingRSI computes the relative-strength index from simple rolling means
// of gains and losses. A window with gains but no losses reads 100; a fully
// flat window reads 50.
func rollingRSI(values []float64, period int) float64 {
	if len(values) < period+1 {
		return 50
	}
	var gainSum, lossSum float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	if lossSum == 0 {
		if gainSum > 0 {
			return 100
		}
		return 50
	}
	rs := gainSum / lossSum
	return 100 - 100/(1+rs)
}

// rateOfChange is the n-period percent change of the latest value.
func rateOfChange(values []float64, n int) float64 {
	if len(values) < n+1 {
		return 0
	}
	base := values[len(values)-1-n]
	if base == 0 {
		return 0
	}
	return (values[len(values)-1]/base - 1) * 100
}

// returnVolatility reports the 10- and 20-period standard deviation of
// one-period returns, in percent.
func returnVolatility(values []float64) (vol10, vol20 float64) {
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	if len(returns) >= 10 {
		vol10 = calculateStdDev(returns[len(returns)-10:]) * 100
	}
	if len(returns) >= 20 {
		vol20 = calculateStdDev(returns[len(returns)-20:]) * 100
	}
	return vol10, vol20
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
