package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comexlabs/metalcast/internal/timeseries"
)

func trendingPrices(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		drift := 0.002 * float64(i)
		wiggle := 0.004 * math.Sin(float64(i)*0.7)
		prices[i] = 100 * math.Exp(drift+wiggle)
	}
	return prices
}

func TestArimaInsufficientData(t *testing.T) {
	forecaster := NewArimaForecaster(testLogger(), nil)

	score, forecasts := forecaster.Calculate(timeseries.FromValues(trendingPrices(29)))

	assert.Equal(t, 50.0, score.Score)
	assert.Equal(t, "Insufficient data for ARIMA", score.Rationale)
	assert.Empty(t, forecasts)
}

func TestArimaFlatSeriesFailsGracefully(t *testing.T) {
	forecaster := NewArimaForecaster(testLogger(), nil)

	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 100
	}
	score, forecasts := forecaster.Calculate(timeseries.FromValues(flat))

	assert.Equal(t, 50.0, score.Score)
	assert.Contains(t, score.Rationale, "ARIMA fitting failed:")
	assert.Empty(t, forecasts)
}

func TestArimaNonPositivePriceFailsGracefully(t *testing.T) {
	forecaster := NewArimaForecaster(testLogger(), nil)

	prices := trendingPrices(40)
	prices[10] = 0
	score, forecasts := forecaster.Calculate(timeseries.FromValues(prices))

	assert.Equal(t, 50.0, score.Score)
	assert.Contains(t, score.Rationale, "ARIMA fitting failed:")
	assert.Empty(t, forecasts)
}

func TestArimaTrendingSeries(t *testing.T) {
	forecaster := NewArimaForecaster(testLogger(), nil)

	prices := trendingPrices(120)
	score, forecasts := forecaster.Calculate(timeseries.FromValues(prices))

	require.Contains(t, forecasts, 5)
	require.Contains(t, forecasts, 20)

	for h, fc := range forecasts {
		assert.Less(t, fc.Low, fc.Mid, "horizon %d", h)
		assert.Less(t, fc.Mid, fc.High, "horizon %d", h)
		assert.Greater(t, fc.Low, 0.0, "horizon %d", h)
	}

	// Positive drift carries through the longer horizon.
	assert.Greater(t, forecasts[20].Mid, forecasts[5].Mid)
	assert.Greater(t, score.Score, 50.0)
	assert.LessOrEqual(t, score.Score, 100.0)
	assert.Contains(t, score.Rationale, "ARIMA(")
	assert.Contains(t, score.Rationale, "over 5d")
	assert.Contains(t, score.Indicators, "order")
	assert.Contains(t, score.Indicators, "aic")
}

func TestArimaCustomHorizons(t *testing.T) {
	forecaster := NewArimaForecaster(testLogger(), []int{3})

	_, forecasts := forecaster.Calculate(timeseries.FromValues(trendingPrices(90)))

	assert.Contains(t, forecasts, 3)
	assert.NotContains(t, forecasts, 5)
	assert.NotContains(t, forecasts, 20)
}

func TestSelectDifferencing(t *testing.T) {
	// A strongly trending level series needs one difference; its first
	// differences are already stationary.
	trend := make([]float64, 80)
	for i := range trend {
		trend[i] = float64(i) + 0.5*math.Sin(float64(i)*1.3)
	}
	assert.Equal(t, 1, selectDifferencing(trend))

	noise := make([]float64, 80)
	for i := range noise {
		noise[i] = math.Sin(float64(i) * 1.9)
	}
	assert.Equal(t, 0, selectDifferencing(noise))
}

func TestDifference(t *testing.T) {
	values := []float64{1, 3, 6, 10}

	assert.Equal(t, []float64{2, 3, 4}, difference(values, 1))
	assert.Equal(t, []float64{1, 1}, difference(values, 2))
	assert.Equal(t, values, difference(values, 0))
}

func TestPsiWeightsAR1(t *testing.T) {
	fit := &arimaFit{p: 1, ar: []float64{0.5}}

	psi := fit.psiWeights(4)

	assert.InDelta(t, 1.0, psi[0], 1e-12)
	assert.InDelta(t, 0.5, psi[1], 1e-12)
	assert.InDelta(t, 0.25, psi[2], 1e-12)
	assert.InDelta(t, 0.125, psi[3], 1e-12)
}

func TestPsiWeightsIntegratedCumulates(t *testing.T) {
	fit := &arimaFit{d: 1}

	psi := fit.psiWeights(3)

	// Pure random walk: every weight is one.
	assert.Equal(t, []float64{1, 1, 1}, psi)
}
