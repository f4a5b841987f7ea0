package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/config"
	"github.com/comexlabs/metalcast/internal/database"
	"github.com/comexlabs/metalcast/internal/models"
)

// HistoryTracker owns the write side of the forecast record: snapshot
// upserts, fixed-horizon accuracy evaluation, the rolling price-tracking log
// and the local JSON fallback history. Each pass runs in its own
// transaction.
type HistoryTracker struct {
	db     database.DatabasePool
	cfg    *config.ForecastConfig
	logger *logrus.Logger
}

func NewHistoryTracker(db database.DatabasePool, cfg *config.ForecastConfig, logger *logrus.Logger) *HistoryTracker {
	return &HistoryTracker{db: db, cfg: cfg, logger: logger}
}

var forecastSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS forecast_snapshots (
		id SERIAL PRIMARY KEY,
		metal VARCHAR(50) NOT NULL,
		forecast_date DATE NOT NULL,
		direction VARCHAR(20) NOT NULL,
		confidence INTEGER NOT NULL DEFAULT 0,
		composite_score DECIMAL(6, 2) NOT NULL DEFAULT 50,
		price_at_forecast DECIMAL(15, 4) NOT NULL DEFAULT 0,
		squeeze_probability INTEGER NOT NULL DEFAULT 0,
		regime VARCHAR(20) DEFAULT 'UNKNOWN',
		trend_score DECIMAL(6, 2) DEFAULT 50,
		physical_score DECIMAL(6, 2) DEFAULT 50,
		arima_score DECIMAL(6, 2) DEFAULT 50,
		market_score DECIMAL(6, 2) DEFAULT 50,
		forecast_5d_low DECIMAL(15, 4),
		forecast_5d_mid DECIMAL(15, 4),
		forecast_5d_high DECIMAL(15, 4),
		forecast_20d_low DECIMAL(15, 4),
		forecast_20d_mid DECIMAL(15, 4),
		forecast_20d_high DECIMAL(15, 4),
		key_drivers TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(metal, forecast_date)
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_accuracy (
		id SERIAL PRIMARY KEY,
		forecast_snapshot_id INTEGER REFERENCES forecast_snapshots(id) ON DELETE CASCADE,
		metal VARCHAR(50) NOT NULL,
		forecast_date DATE NOT NULL,
		direction VARCHAR(20) NOT NULL,
		price_at_forecast DECIMAL(15, 4) NOT NULL,
		eval_date DATE NOT NULL,
		eval_horizon_days INTEGER NOT NULL,
		price_at_eval DECIMAL(15, 4) NOT NULL,
		price_change DECIMAL(15, 4) NOT NULL DEFAULT 0,
		price_change_pct DECIMAL(10, 4) NOT NULL DEFAULT 0,
		correct BOOLEAN NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(metal, forecast_date, eval_horizon_days)
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_price_tracking (
		id SERIAL PRIMARY KEY,
		metal VARCHAR(50) NOT NULL,
		forecast_date DATE NOT NULL,
		tracking_date DATE NOT NULL,
		days_since_forecast INTEGER NOT NULL,
		price_at_forecast DECIMAL(15, 4) NOT NULL,
		live_price DECIMAL(15, 4) NOT NULL,
		price_change DECIMAL(15, 4) NOT NULL DEFAULT 0,
		price_change_pct DECIMAL(10, 4) NOT NULL DEFAULT 0,
		direction_at_forecast VARCHAR(20) NOT NULL,
		is_tracking BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(metal, forecast_date, tracking_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecast_snapshots_metal_date ON forecast_snapshots(metal, forecast_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_forecast_accuracy_metal_date ON forecast_accuracy(metal, forecast_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_forecast_price_tracking_metal ON forecast_price_tracking(metal, forecast_date DESC, tracking_date DESC)`,
}

// EnsureSchema creates the forecast tables and indexes if they do not exist.
func (t *HistoryTracker) EnsureSchema(ctx context.Context) error {
	for _, stmt := range forecastSchemaStatements {
		if _, err := t.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure forecast schema: %w", err)
		}
	}
	return nil
}

// SaveSnapshots upserts one snapshot row per result, keyed on
// (metal, forecast_date). A rerun for the same date overwrites the earlier
// row. All rows go in one transaction.
func (t *HistoryTracker) SaveSnapshots(ctx context.Context, forecastDate time.Time, results []models.ForecastResult) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO forecast_snapshots (
			metal, forecast_date, direction, confidence, composite_score,
			price_at_forecast, squeeze_probability, regime,
			trend_score, physical_score, arima_score, market_score,
			forecast_5d_low, forecast_5d_mid, forecast_5d_high,
			forecast_20d_low, forecast_20d_mid, forecast_20d_high,
			key_drivers
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (metal, forecast_date) DO UPDATE SET
			direction = EXCLUDED.direction,
			confidence = EXCLUDED.confidence,
			composite_score = EXCLUDED.composite_score,
			price_at_forecast = EXCLUDED.price_at_forecast,
			squeeze_probability = EXCLUDED.squeeze_probability,
			regime = EXCLUDED.regime,
			trend_score = EXCLUDED.trend_score,
			physical_score = EXCLUDED.physical_score,
			arima_score = EXCLUDED.arima_score,
			market_score = EXCLUDED.market_score,
			forecast_5d_low = EXCLUDED.forecast_5d_low,
			forecast_5d_mid = EXCLUDED.forecast_5d_mid,
			forecast_5d_high = EXCLUDED.forecast_5d_high,
			forecast_20d_low = EXCLUDED.forecast_20d_low,
			forecast_20d_mid = EXCLUDED.forecast_20d_mid,
			forecast_20d_high = EXCLUDED.forecast_20d_high,
			key_drivers = EXCLUDED.key_drivers,
			created_at = CURRENT_TIMESTAMP
	`

	for _, result := range results {
		low5, mid5, high5 := forecastBounds(result.Forecast5D)
		low20, mid20, high20 := forecastBounds(result.Forecast20D)

		_, err := tx.Exec(ctx, query,
			result.Metal, forecastDate,
			string(result.Direction), result.Confidence, result.CompositeScore,
			result.CurrentPrice, result.SqueezeProbability, string(result.Regime),
			signalScoreOrNeutral(result, models.CategoryTrendMomentum),
			signalScoreOrNeutral(result, models.CategoryPhysicalStress),
			signalScoreOrNeutral(result, models.CategoryArimaModel),
			signalScoreOrNeutral(result, models.CategoryMarketActivity),
			low5, mid5, high5, low20, mid20, high20,
			strings.Join(result.KeyDrivers, " | "),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert snapshot for %s: %w", result.Metal, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"count": len(results),
		"date":  forecastDate.Format("2006-01-02"),
	}).Info("Forecast snapshots written")
	return nil
}

// EvaluateAccuracy scores every snapshot that is at least the evaluation
// horizon old, called a direction, and has no accuracy record yet for that
// horizon. Creation is conflict-safe; duplicate attempts are no-ops.
// Returns how many forecasts were evaluated and how many were correct.
func (t *HistoryTracker) EvaluateAccuracy(ctx context.Context, evalDate time.Time, currentPrices map[string]float64) (evaluated, correct int, err error) {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	horizon := t.cfg.EvalHorizonDays

	rows, err := tx.Query(ctx, `
		SELECT fs.id, fs.metal, fs.forecast_date, fs.direction, fs.price_at_forecast
		FROM forecast_snapshots fs
		LEFT JOIN forecast_accuracy fa
			ON fs.metal = fa.metal AND fs.forecast_date = fa.forecast_date AND fa.eval_horizon_days = $1
		WHERE fs.direction != 'NEUTRAL'
		  AND fs.forecast_date <= CURRENT_DATE - $2::int
		  AND fa.id IS NULL
		ORDER BY fs.forecast_date
	`, horizon, horizon)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query unevaluated forecasts: %w", err)
	}

	type pending struct {
		snapshotID int64
		metal      string
		date       time.Time
		direction  string
		priceThen  float64
	}
	var unevaluated []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.snapshotID, &p.metal, &p.date, &p.direction, &p.priceThen); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan unevaluated forecast: %w", err)
		}
		unevaluated = append(unevaluated, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to read unevaluated forecasts: %w", err)
	}

	for _, p := range unevaluated {
		priceNow, ok := currentPrices[p.metal]
		if !ok || priceNow <= 0 || p.priceThen <= 0 {
			continue
		}

		change := priceNow - p.priceThen
		changePct := change / p.priceThen * 100
		isCorrect := (p.direction == string(models.DirectionBullish) && change > 0) ||
			(p.direction == string(models.DirectionBearish) && change < 0)

		_, err := tx.Exec(ctx, `
			INSERT INTO forecast_accuracy (
				forecast_snapshot_id, metal, forecast_date, direction,
				price_at_forecast, eval_date, eval_horizon_days,
				price_at_eval, price_change, price_change_pct, correct
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (metal, forecast_date, eval_horizon_days) DO NOTHING
		`, p.snapshotID, p.metal, p.date, p.direction,
			p.priceThen, evalDate, horizon, priceNow, change, changePct, isCorrect)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert accuracy record for %s: %w", p.metal, err)
		}

		evaluated++
		if isCorrect {
			correct++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit accuracy records: %w", err)
	}

	if evaluated > 0 {
		t.logger.WithFields(logrus.Fields{
			"evaluated": evaluated,
			"correct":   correct,
			"horizon":   horizon,
		}).Info("Past forecasts evaluated")
	}
	return evaluated, correct, nil
}

// TrackPrices records today's live price against every directional forecast
// issued within the tracking window. Independent of the fixed-horizon
// evaluation and purely for display.
func (t *HistoryTracker) TrackPrices(ctx context.Context, trackingDate time.Time, currentPrices map[string]float64) (int, error) {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT metal, forecast_date, direction, price_at_forecast
		FROM forecast_snapshots
		WHERE forecast_date >= CURRENT_DATE - $1::int
		  AND direction != 'NEUTRAL'
		ORDER BY forecast_date DESC
	`, t.cfg.TrackingWindowDays)
	if err != nil {
		return 0, fmt.Errorf("failed to query recent forecasts: %w", err)
	}

	type recent struct {
		metal     string
		date      time.Time
		direction string
		priceThen float64
	}
	var forecasts []recent
	for rows.Next() {
		var r recent
		if err := rows.Scan(&r.metal, &r.date, &r.direction, &r.priceThen); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan recent forecast: %w", err)
		}
		forecasts = append(forecasts, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read recent forecasts: %w", err)
	}

	tracked := 0
	for _, r := range forecasts {
		priceNow, ok := currentPrices[r.metal]
		if !ok || priceNow <= 0 || r.priceThen <= 0 {
			continue
		}

		daysSince := int(trackingDate.Sub(r.date).Hours() / 24)
		change := priceNow - r.priceThen
		changePct := change / r.priceThen * 100
		onTrack := (r.direction == string(models.DirectionBullish) && change > 0) ||
			(r.direction == string(models.DirectionBearish) && change < 0)

		_, err := tx.Exec(ctx, `
			INSERT INTO forecast_price_tracking (
				metal, forecast_date, tracking_date, days_since_forecast,
				price_at_forecast, live_price, price_change, price_change_pct,
				direction_at_forecast, is_tracking
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (metal, forecast_date, tracking_date) DO UPDATE SET
				live_price = EXCLUDED.live_price,
				price_change = EXCLUDED.price_change,
				price_change_pct = EXCLUDED.price_change_pct,
				is_tracking = EXCLUDED.is_tracking,
				created_at = CURRENT_TIMESTAMP
		`, r.metal, r.date, trackingDate, daysSince,
			r.priceThen, priceNow, change, changePct, r.direction, onTrack)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert tracking entry for %s: %w", r.metal, err)
		}
		tracked++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit tracking entries: %w", err)
	}

	t.logger.WithField("count", tracked).Info("Price tracking entries recorded")
	return tracked, nil
}

// localHistory is the on-disk JSON fallback consumed by the read API when
// the database is unavailable.
type localHistory struct {
	Forecasts []localHistoryEntry `json:"forecasts"`
	Accuracy  map[string]any      `json:"accuracy"`
}

type localHistoryEntry struct {
	Date        string                      `json:"date"`
	GeneratedAt string                      `json:"generated_at"`
	Calls       map[string]localHistoryCall `json:"calls"`
}

type localHistoryCall struct {
	Direction       models.Direction `json:"direction"`
	Confidence      int              `json:"confidence"`
	CompositeScore  float64          `json:"composite_score"`
	PriceAtForecast float64          `json:"price_at_forecast"`
}

// WriteLocalHistory appends today's calls to the JSON fallback file and
// prunes entries older than the retention window. A corrupt existing file is
// replaced rather than treated as fatal.
func (t *HistoryTracker) WriteLocalHistory(generatedAt time.Time, results []models.ForecastResult) error {
	today := generatedAt.Format("2006-01-02")

	history := localHistory{Accuracy: map[string]any{}}
	if raw, err := os.ReadFile(t.cfg.HistoryPath); err == nil {
		if err := json.Unmarshal(raw, &history); err != nil {
			t.logger.WithError(err).Warn("Replacing corrupt local history file")
			history = localHistory{Accuracy: map[string]any{}}
		}
	}

	exists := false
	for _, e := range history.Forecasts {
		if e.Date == today {
			exists = true
			break
		}
	}
	if !exists {
		entry := localHistoryEntry{
			Date:        today,
			GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
			Calls:       map[string]localHistoryCall{},
		}
		for _, r := range results {
			entry.Calls[r.Metal] = localHistoryCall{
				Direction:       r.Direction,
				Confidence:      r.Confidence,
				CompositeScore:  r.CompositeScore,
				PriceAtForecast: r.CurrentPrice,
			}
		}
		history.Forecasts = append(history.Forecasts, entry)
	}

	cutoff := generatedAt.AddDate(0, 0, -t.cfg.HistoryRetentionDays).Format("2006-01-02")
	kept := history.Forecasts[:0]
	for _, e := range history.Forecasts {
		if e.Date >= cutoff {
			kept = append(kept, e)
		}
	}
	history.Forecasts = kept

	raw, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal local history: %w", err)
	}
	if err := os.WriteFile(t.cfg.HistoryPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write local history: %w", err)
	}
	return nil
}

func forecastBounds(fc *models.PriceForecast) (low, mid, high interface{}) {
	if fc == nil {
		return nil, nil, nil
	}
	return fc.Low, fc.Mid, fc.High
}

func signalScoreOrNeutral(result models.ForecastResult, category models.SignalCategory) float64 {
	if s, ok := result.Signals[category]; ok {
		return s.Score
	}
	return neutralScore
}
