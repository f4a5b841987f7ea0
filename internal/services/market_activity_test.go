package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

func TestMarketActivityNoData(t *testing.T) {
	calc := NewMarketActivityCalculator(testLogger())

	score := calc.Calculate(&models.MarketSeries{Metal: "Gold"})

	assert.Equal(t, models.CategoryMarketActivity, score.Category)
	assert.Equal(t, 50.0, score.Score)
	assert.Equal(t, "No market data", score.Rationale)
	assert.Empty(t, score.Indicators)
}

func TestMarketActivityExpandingOI(t *testing.T) {
	calc := NewMarketActivityCalculator(testLogger())

	// 100k to 110k over the 10-observation lookback: +10%.
	oi := make([]float64, 10)
	for i := range oi {
		oi[i] = 100_000 + float64(i)*10_000/9
	}
	oi[9] = 110_000

	score := calc.Calculate(&models.MarketSeries{
		Metal:        "Copper",
		OpenInterest: timeseries.FromValues(oi),
	})

	assert.InDelta(t, 10.0, score.Indicators["oi_10d_change_pct"].(float64), 0.01)
	assert.InDelta(t, 70.0, score.Score, 0.1)
	assert.Contains(t, score.Rationale, "OI expanding 10.0%")
}

func TestMarketActivityContractingOIFromFallback(t *testing.T) {
	calc := NewMarketActivityCalculator(testLogger())

	oi := make([]float64, 12)
	for i := range oi {
		oi[i] = 200_000 - float64(i)*2_000
	}

	// Primary feed empty, the standalone open-interest report fills in.
	score := calc.Calculate(&models.MarketSeries{
		Metal:      "Silver",
		ReportedOI: timeseries.FromValues(oi),
	})

	assert.Contains(t, score.Rationale, "OI contracting")
	assert.Less(t, score.Score, 50.0)
}

func TestMarketActivityElevatedVolume(t *testing.T) {
	calc := NewMarketActivityCalculator(testLogger())

	// 15 quiet sessions then 5 busy ones: avg5 well above avg20.
	vol := make([]float64, 20)
	for i := range vol {
		if i < 15 {
			vol[i] = 50_000
		} else {
			vol[i] = 100_000
		}
	}

	score := calc.Calculate(&models.MarketSeries{
		Metal:  "Gold",
		Volume: timeseries.FromValues(vol),
	})

	assert.Contains(t, score.Indicators, "volume_ratio")
	ratio := score.Indicators["volume_ratio"].(float64)
	assert.Greater(t, ratio, 1.2)
	assert.Contains(t, score.Rationale, "volume elevated")
	assert.Greater(t, score.Score, 50.0)
}

func TestMarketActivityNormalVolume(t *testing.T) {
	calc := NewMarketActivityCalculator(testLogger())

	score := calc.Calculate(&models.MarketSeries{
		Metal:  "Gold",
		Volume: flatSeries(20, 80_000),
	})

	assert.Contains(t, score.Rationale, "volume normal")
	assert.Equal(t, 50.0, score.Score)
}

func TestMarketActivityAveragesBothComponents(t *testing.T) {
	calc := NewMarketActivityCalculator(testLogger())

	oi := make([]float64, 10)
	for i := range oi {
		oi[i] = 100_000
	}
	oi[9] = 110_000 // +10% -> component 70

	score := calc.Calculate(&models.MarketSeries{
		Metal:        "Gold",
		OpenInterest: timeseries.FromValues(oi),
		Volume:       flatSeries(20, 80_000), // component 50
	})

	assert.InDelta(t, 60.0, score.Score, 0.1)
	assert.Contains(t, score.Rationale, ", volume normal")
}

func TestPickSeriesPrefersPrimary(t *testing.T) {
	primary := timeseries.FromValues([]float64{1, 2})
	fallback := timeseries.FromValues([]float64{3, 4})

	assert.Equal(t, primary, pickSeries(primary, fallback))
	assert.Equal(t, fallback, pickSeries(nil, fallback))
	assert.Equal(t, fallback, pickSeries(timeseries.FromValues(nil), fallback))
}
