package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

func goldProfile() models.CommodityProfile {
	return models.CommodityProfile{
		Metal:               "Gold",
		Symbol:              "GC",
		ContractSize:        100,
		Unit:                "oz",
		WarehouseUnitFactor: 1,
	}
}

func flatSeries(n int, value float64) *timeseries.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return timeseries.FromValues(values)
}

func TestPhysicalCalculateNoData(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	score := calc.Calculate(&models.MarketSeries{Metal: "Gold"}, goldProfile())

	assert.Equal(t, models.CategoryPhysicalStress, score.Category)
	assert.Equal(t, 50.0, score.Score)
	assert.Equal(t, "No physical signals", score.Rationale)
	assert.Empty(t, score.Indicators)
}

func TestPhysicalCalculateDrawdownIsBullish(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	// Stable registered stock that suddenly drops hard at the end.
	values := make([]float64, 70)
	for i := range values {
		values[i] = 1_000_000 - 100*float64(i)
	}
	values[68] -= 120_000
	values[69] -= 200_000

	series := &models.MarketSeries{
		Metal:      "Gold",
		Registered: timeseries.FromValues(values),
	}
	score := calc.Calculate(series, goldProfile())

	require.Contains(t, score.Indicators, "inventory_drawdown")
	sub := score.Indicators["inventory_drawdown"].(map[string]interface{})
	assert.Less(t, sub["z_score"].(float64), -1.5)
	assert.Equal(t, "Rapid drawdown", sub["interpretation"])
	assert.Greater(t, score.Score, 50.0)
	assert.Contains(t, score.Rationale, "Inventory z=")
}

func TestPhysicalDeliveryAcceleration(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	// Average around 100 notices per day, latest spikes to 250.
	values := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 250}
	series := &models.MarketSeries{
		Metal:       "Silver",
		DailyIssued: timeseries.FromValues(values),
	}
	score := calc.Calculate(series, goldProfile())

	require.Contains(t, score.Indicators, "delivery_acceleration")
	sub := score.Indicators["delivery_acceleration"].(map[string]interface{})
	assert.Greater(t, sub["acceleration_ratio"].(float64), 1.5)
	assert.Equal(t, "Surging", sub["interpretation"])
	assert.Greater(t, score.Score, 50.0)
}

func TestPhysicalSqueezeSubScore(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	series := &models.MarketSeries{
		Metal:              "Silver",
		PaperPhysicalRatio: timeseries.FromValues([]float64{8, 9, 10, 11, 12}),
	}
	score := calc.Calculate(series, goldProfile())

	require.Contains(t, score.Indicators, "pp_squeeze")
	sub := score.Indicators["pp_squeeze"].(map[string]interface{})
	// Level 12*8=96 blended 60/40 with a capped-at-100 trend term.
	assert.Greater(t, sub["squeeze_score"].(float64), 80.0)
	assert.Equal(t, "Extreme", sub["interpretation"])
}

func TestPhysicalCoverageErosion(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	// 500,000 oz registered against 100 contracts of 100 oz per day:
	// 50 days of coverage, score 75.
	series := &models.MarketSeries{
		Metal:       "Gold",
		Registered:  flatSeries(10, 500_000),
		DailyIssued: flatSeries(10, 100),
	}
	score := calc.Calculate(series, goldProfile())

	require.Contains(t, score.Indicators, "coverage_erosion")
	sub := score.Indicators["coverage_erosion"].(map[string]interface{})
	assert.InDelta(t, 50.0, sub["coverage_days"].(float64), 1e-9)
	assert.Equal(t, "Tight", sub["interpretation"])
}

func TestPhysicalEligibleFlowStates(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	cases := []struct {
		name       string
		registered []float64
		eligible   []float64
		wantState  string
	}{
		{
			name:       "delivery intent",
			registered: []float64{100, 100, 100, 100, 100, 110},
			eligible:   []float64{200, 200, 200, 200, 200, 190},
			wantState:  "Eligible -> Registered (delivery intent)",
		},
		{
			name:       "drawdown",
			registered: []float64{100, 100, 100, 100, 100, 90},
			eligible:   []float64{200, 200, 200, 200, 200, 200},
			wantState:  "Registered declining (drawdown)",
		},
		{
			name:       "stable",
			registered: []float64{100, 100, 100, 100, 100, 100},
			eligible:   []float64{200, 200, 200, 200, 200, 200},
			wantState:  "Stable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			series := &models.MarketSeries{
				Metal:      "Copper",
				Registered: timeseries.FromValues(tc.registered),
				Eligible:   timeseries.FromValues(tc.eligible),
			}
			score := calc.Calculate(series, goldProfile())

			require.Contains(t, score.Indicators, "eligible_flow")
			sub := score.Indicators["eligible_flow"].(map[string]interface{})
			assert.Equal(t, tc.wantState, sub["interpretation"])
		})
	}
}

func TestPhysicalAggregateIsMeanOfComputable(t *testing.T) {
	calc := NewPhysicalStressCalculator(testLogger())

	// Only the eligible-flow sub-signal is computable: stable reads 50.
	series := &models.MarketSeries{
		Metal:      "Platinum",
		Registered: flatSeries(6, 100),
		Eligible:   flatSeries(6, 100),
	}
	score := calc.Calculate(series, goldProfile())

	assert.Len(t, score.Indicators, 1)
	assert.Equal(t, 50.0, score.Score)
}
