package services

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

type stubCausality struct {
	stat  models.CausalityStat
	err   error
	pairs int
}

func (s *stubCausality) Test(cause, effect []float64, maxLag int) (models.CausalityStat, error) {
	s.pairs = len(cause)
	return s.stat, s.err
}

// lcgNoise is a tiny deterministic generator so tests never depend on a
// global rand seed.
func lcgNoise(n int, seed uint64) []float64 {
	out := make([]float64, n)
	state := seed
	for i := range out {
		state = state*6364136223846793005 + 1442695040888963407
		out[i] = float64(state>>33)/float64(1<<31) - 0.5
	}
	return out
}

func correlationFixture(n int) *models.MarketSeries {
	priceNoise := lcgNoise(n, 7)
	invNoise := lcgNoise(n, 13)

	prices := make([]float64, n)
	registered := make([]float64, n)
	issued := make([]float64, n)
	oi := make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = 100 + 0.1*float64(i) + 3*math.Sin(float64(i)*0.9) + priceNoise[i]
		registered[i] = 50_000 + 500*math.Cos(float64(i)*0.6) + 100*invNoise[i]
		issued[i] = 120 + 30*math.Sin(float64(i)*1.4)
		oi[i] = 90_000 + 1_000*math.Sin(float64(i)*0.4)
	}

	return &models.MarketSeries{
		Metal:        "Gold",
		SettlePrice:  timeseries.FromValues(prices),
		Registered:   timeseries.FromValues(registered),
		DailyIssued:  timeseries.FromValues(issued),
		OpenInterest: timeseries.FromValues(oi),
	}
}

func TestAnalyzeTooFewPrices(t *testing.T) {
	analyzer := NewCorrelationAnalyzer(testLogger(), nil)

	series := correlationFixture(60)
	series.SettlePrice = timeseries.FromValues([]float64{100, 101, 102})

	correlations, causality := analyzer.Analyze(series)

	assert.Empty(t, correlations)
	assert.Nil(t, causality)
}

func TestAnalyzeReportsAllPairs(t *testing.T) {
	stub := &stubCausality{stat: models.CausalityStat{PValueLag1: 0.01, PValueBestLag: 0.02, BestLag: 5, Significant: true}}
	analyzer := NewCorrelationAnalyzer(testLogger(), stub)

	correlations, causality := analyzer.Analyze(correlationFixture(60))

	require.Contains(t, correlations, "inventory_change_vs_5d_return")
	require.Contains(t, correlations, "delivery_rate_vs_5d_return")
	require.Contains(t, correlations, "oi_change_vs_10d_return")

	inv := correlations["inventory_change_vs_5d_return"]
	assert.GreaterOrEqual(t, inv.Observations, correlationMinPairs)
	assert.GreaterOrEqual(t, inv.Pearson, -1.0)
	assert.LessOrEqual(t, inv.Pearson, 1.0)
	// Spearman only for the inventory pair.
	assert.NotZero(t, inv.Spearman)
	assert.Zero(t, correlations["delivery_rate_vs_5d_return"].Spearman)

	require.NotNil(t, causality)
	assert.True(t, causality.Significant)
	assert.GreaterOrEqual(t, stub.pairs, causalityMinPairs)
}

func TestAnalyzeSwallowsCausalityError(t *testing.T) {
	stub := &stubCausality{err: errors.New("no convergence")}
	analyzer := NewCorrelationAnalyzer(testLogger(), stub)

	correlations, causality := analyzer.Analyze(correlationFixture(60))

	assert.NotEmpty(t, correlations)
	assert.Nil(t, causality)
}

func TestAnalyzeSkipsMissingIndicators(t *testing.T) {
	analyzer := NewCorrelationAnalyzer(testLogger(), &stubCausality{})

	series := correlationFixture(60)
	series.DailyIssued = nil
	series.OpenInterest = nil

	correlations, _ := analyzer.Analyze(series)

	assert.Contains(t, correlations, "inventory_change_vs_5d_return")
	assert.NotContains(t, correlations, "delivery_rate_vs_5d_return")
	assert.NotContains(t, correlations, "oi_change_vs_10d_return")
}

func TestGrangerDetectsLeadLag(t *testing.T) {
	noise := lcgNoise(61, 23)
	cause := lcgNoise(61, 41)
	effect := make([]float64, 61)
	for t := 1; t < 61; t++ {
		effect[t] = 0.9*cause[t-1] + 0.05*noise[t]
	}

	stat, err := GrangerTester{}.Test(cause[1:], effect[1:], causalityMaxLag)

	require.NoError(t, err)
	assert.Equal(t, 5, stat.BestLag)
	assert.Less(t, stat.PValueLag1, 0.05)
	assert.True(t, stat.Significant)
}

func TestGrangerLengthMismatch(t *testing.T) {
	_, err := GrangerTester{}.Test(make([]float64, 40), make([]float64, 41), causalityMaxLag)

	assert.Error(t, err)
}

func TestGrangerPValueTooShort(t *testing.T) {
	_, err := grangerPValue(make([]float64, 6), make([]float64, 6), 3)

	assert.Error(t, err)
}
