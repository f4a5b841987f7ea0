package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the directional call of a forecast.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionNeutral Direction = "NEUTRAL"
	DirectionBearish Direction = "BEARISH"
)

// Regime is a coarse volatility/trend classification of recent price behavior.
type Regime string

const (
	RegimeVolatile Regime = "VOLATILE"
	RegimeTrending Regime = "TRENDING"
	RegimeRanging  Regime = "RANGING"
	RegimeUnknown  Regime = "UNKNOWN"
)

// SignalCategory names one of the four fused signal sources.
type SignalCategory string

const (
	CategoryTrendMomentum  SignalCategory = "trend_momentum"
	CategoryPhysicalStress SignalCategory = "physical_stress"
	CategoryArimaModel     SignalCategory = "arima_model"
	CategoryMarketActivity SignalCategory = "market_activity"
)

// SignalScore is the resolved output of one signal calculator: a score in
// [0,100] where 50 means neutral or insufficient data, a human-readable
// rationale, and the named sub-indicators that produced it.
type SignalScore struct {
	Category   SignalCategory         `json:"category"`
	Score      float64                `json:"score"`
	Rationale  string                 `json:"details"`
	Indicators map[string]interface{} `json:"indicators,omitempty"`
}

// PriceForecast is a point forecast with an 80% confidence interval at one
// horizon, plus the projected percent change from the current price.
type PriceForecast struct {
	Low       float64 `json:"low"`
	Mid       float64 `json:"mid"`
	High      float64 `json:"high"`
	PctChange float64 `json:"pct_change"`
}

// Anomaly flags a metric whose latest observation sits far outside its
// trailing distribution.
type Anomaly struct {
	Metric      string  `json:"metric"`
	ZScore      float64 `json:"z_score"`
	Description string  `json:"description"`
}

// CorrelationStat holds the association statistics for one indicator/return
// pairing. Spearman fields are zero for tests that only report Pearson.
type CorrelationStat struct {
	Pearson        float64 `json:"pearson"`
	PearsonPValue  float64 `json:"pearson_pvalue"`
	Spearman       float64 `json:"spearman,omitempty"`
	SpearmanPValue float64 `json:"spearman_pvalue,omitempty"`
	Observations   int     `json:"n_observations"`
}

// CausalityStat reports a Granger-causality test between an indicator and
// forward price returns.
type CausalityStat struct {
	PValueLag1    float64 `json:"p_value_lag1"`
	PValueBestLag float64 `json:"p_value_best_lag"`
	BestLag       int     `json:"best_lag"`
	Significant   bool    `json:"significant"`
}

// ForecastResult is the complete per-commodity output of one pipeline run.
// It is assembled once and never mutated afterwards.
type ForecastResult struct {
	Metal              string                         `json:"metal"`
	GeneratedAt        time.Time                      `json:"generated_at"`
	Direction          Direction                      `json:"direction"`
	Confidence         int                            `json:"confidence"`
	CompositeScore     float64                        `json:"composite_score"`
	CurrentPrice       float64                        `json:"current_price"`
	Forecast5D         *PriceForecast                 `json:"forecast_5d,omitempty"`
	Forecast20D        *PriceForecast                 `json:"forecast_20d,omitempty"`
	SqueezeProbability int                            `json:"squeeze_probability"`
	Regime             Regime                         `json:"regime"`
	Signals            map[SignalCategory]SignalScore `json:"signals"`
	KeyDrivers         []string                       `json:"key_drivers"`
	Anomalies          []Anomaly                      `json:"anomalies"`
	Correlations       map[string]CorrelationStat     `json:"correlations"`
	Causality          *CausalityStat                 `json:"granger_inventory_causes_price,omitempty"`
	Error              string                         `json:"error,omitempty"`
}

// ForecastSnapshot is the persisted form of a ForecastResult for one
// (metal, forecast date) pair. A later run for the same date overwrites the
// earlier row.
type ForecastSnapshot struct {
	ID                 int64           `json:"id" db:"id"`
	Metal              string          `json:"metal" db:"metal"`
	ForecastDate       time.Time       `json:"forecast_date" db:"forecast_date"`
	Direction          Direction       `json:"direction" db:"direction"`
	Confidence         int             `json:"confidence" db:"confidence"`
	CompositeScore     decimal.Decimal `json:"composite_score" db:"composite_score"`
	PriceAtForecast    decimal.Decimal `json:"price_at_forecast" db:"price_at_forecast"`
	SqueezeProbability int             `json:"squeeze_probability" db:"squeeze_probability"`
	Regime             Regime          `json:"regime" db:"regime"`
	TrendScore         decimal.Decimal `json:"trend_score" db:"trend_score"`
	PhysicalScore      decimal.Decimal `json:"physical_score" db:"physical_score"`
	ArimaScore         decimal.Decimal `json:"arima_score" db:"arima_score"`
	MarketScore        decimal.Decimal `json:"market_score" db:"market_score"`
	Forecast5DLow      *decimal.Decimal `json:"forecast_5d_low,omitempty" db:"forecast_5d_low"`
	Forecast5DMid      *decimal.Decimal `json:"forecast_5d_mid,omitempty" db:"forecast_5d_mid"`
	Forecast5DHigh     *decimal.Decimal `json:"forecast_5d_high,omitempty" db:"forecast_5d_high"`
	Forecast20DLow     *decimal.Decimal `json:"forecast_20d_low,omitempty" db:"forecast_20d_low"`
	Forecast20DMid     *decimal.Decimal `json:"forecast_20d_mid,omitempty" db:"forecast_20d_mid"`
	Forecast20DHigh    *decimal.Decimal `json:"forecast_20d_high,omitempty" db:"forecast_20d_high"`
	KeyDrivers         string          `json:"key_drivers" db:"key_drivers"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// AccuracyRecord links a snapshot to its realized outcome at one evaluation
// horizon. Created once per (metal, forecast_date, horizon) and never
// re-created.
type AccuracyRecord struct {
	ID              int64           `json:"id" db:"id"`
	SnapshotID      int64           `json:"forecast_snapshot_id" db:"forecast_snapshot_id"`
	Metal           string          `json:"metal" db:"metal"`
	ForecastDate    time.Time       `json:"forecast_date" db:"forecast_date"`
	Direction       Direction       `json:"direction" db:"direction"`
	PriceAtForecast decimal.Decimal `json:"price_at_forecast" db:"price_at_forecast"`
	EvalDate        time.Time       `json:"eval_date" db:"eval_date"`
	EvalHorizonDays int             `json:"eval_horizon_days" db:"eval_horizon_days"`
	PriceAtEval     decimal.Decimal `json:"price_at_eval" db:"price_at_eval"`
	PriceChange     decimal.Decimal `json:"price_change" db:"price_change"`
	PriceChangePct  decimal.Decimal `json:"price_change_pct" db:"price_change_pct"`
	Correct         bool            `json:"correct" db:"correct"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// PriceTrackingEntry is one row of the rolling live-price log kept for every
// forecast issued within the last 30 days. Display only; independent of the
// fixed-horizon accuracy evaluation.
type PriceTrackingEntry struct {
	Metal              string          `json:"metal" db:"metal"`
	ForecastDate       time.Time       `json:"forecast_date" db:"forecast_date"`
	TrackingDate       time.Time       `json:"tracking_date" db:"tracking_date"`
	DaysSinceForecast  int             `json:"days_since_forecast" db:"days_since_forecast"`
	PriceAtForecast    decimal.Decimal `json:"price_at_forecast" db:"price_at_forecast"`
	LivePrice          decimal.Decimal `json:"live_price" db:"live_price"`
	PriceChange        decimal.Decimal `json:"price_change" db:"price_change"`
	PriceChangePct     decimal.Decimal `json:"price_change_pct" db:"price_change_pct"`
	DirectionAtForecast Direction      `json:"direction_at_forecast" db:"direction_at_forecast"`
	IsTracking         bool            `json:"is_tracking" db:"is_tracking"`
}

// AccuracySummary aggregates evaluated forecasts into a hit rate.
type AccuracySummary struct {
	Metal   string `json:"metal"`
	Total   int    `json:"total"`
	Correct int    `json:"correct"`
}

// HitRate returns the percentage of correct calls, zero when nothing has
// been evaluated.
func (s AccuracySummary) HitRate() int {
	if s.Total == 0 {
		return 0
	}
	return int(float64(s.Correct)/float64(s.Total)*100 + 0.5)
}
