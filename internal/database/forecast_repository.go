package database

import (
	"context"
	"fmt"

	"github.com/comexlabs/metalcast/internal/models"
)

// ForecastRepository handles read-side queries over persisted forecast
// history. Writes happen in the history tracker, which owns its own
// transactions.
type ForecastRepository struct {
	pool DatabasePool
}

// NewForecastRepository creates a new forecast repository.
func NewForecastRepository(pool DatabasePool) *ForecastRepository {
	return &ForecastRepository{pool: pool}
}

const snapshotColumns = `
	id, metal, forecast_date, direction, confidence, composite_score,
	price_at_forecast, squeeze_probability, regime,
	trend_score, physical_score, arima_score, market_score,
	forecast_5d_low, forecast_5d_mid, forecast_5d_high,
	forecast_20d_low, forecast_20d_mid, forecast_20d_high,
	key_drivers, created_at`

// LatestSnapshot returns the most recent snapshot for one metal.
func (r *ForecastRepository) LatestSnapshot(ctx context.Context, metal string) (*models.ForecastSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM forecast_snapshots
		WHERE metal = $1
		ORDER BY forecast_date DESC
		LIMIT 1
	`
	row := r.pool.QueryRow(ctx, query, metal)
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot for %s: %w", metal, err)
	}
	return snap, nil
}

// LatestSnapshots returns the most recent snapshot per metal.
func (r *ForecastRepository) LatestSnapshots(ctx context.Context) ([]models.ForecastSnapshot, error) {
	query := `
		SELECT DISTINCT ON (metal) ` + snapshotColumns + `
		FROM forecast_snapshots
		ORDER BY metal, forecast_date DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.ForecastSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

// AccuracySummaries returns the per-metal hit-rate aggregates over every
// evaluated forecast.
func (r *ForecastRepository) AccuracySummaries(ctx context.Context) ([]models.AccuracySummary, error) {
	query := `
		SELECT metal, COUNT(*) AS total,
		       SUM(CASE WHEN correct THEN 1 ELSE 0 END) AS correct_count
		FROM forecast_accuracy
		GROUP BY metal
		ORDER BY metal
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load accuracy summaries: %w", err)
	}
	defer rows.Close()

	var out []models.AccuracySummary
	for rows.Next() {
		var s models.AccuracySummary
		if err := rows.Scan(&s.Metal, &s.Total, &s.Correct); err != nil {
			return nil, fmt.Errorf("failed to scan accuracy summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accuracy summaries: %w", err)
	}
	return out, nil
}

// RecentTracking returns the live-price tracking log for one metal, most
// recent entries first.
func (r *ForecastRepository) RecentTracking(ctx context.Context, metal string, limit int) ([]models.PriceTrackingEntry, error) {
	query := `
		SELECT metal, forecast_date, tracking_date, days_since_forecast,
		       price_at_forecast, live_price, price_change, price_change_pct,
		       direction_at_forecast, is_tracking
		FROM forecast_price_tracking
		WHERE metal = $1
		ORDER BY forecast_date DESC, tracking_date DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, metal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load price tracking for %s: %w", metal, err)
	}
	defer rows.Close()

	var out []models.PriceTrackingEntry
	for rows.Next() {
		var e models.PriceTrackingEntry
		if err := rows.Scan(&e.Metal, &e.ForecastDate, &e.TrackingDate, &e.DaysSinceForecast,
			&e.PriceAtForecast, &e.LivePrice, &e.PriceChange, &e.PriceChangePct,
			&e.DirectionAtForecast, &e.IsTracking); err != nil {
			return nil, fmt.Errorf("failed to scan tracking entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracking entries: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*models.ForecastSnapshot, error) {
	var s models.ForecastSnapshot
	err := row.Scan(
		&s.ID, &s.Metal, &s.ForecastDate, &s.Direction, &s.Confidence, &s.CompositeScore,
		&s.PriceAtForecast, &s.SqueezeProbability, &s.Regime,
		&s.TrendScore, &s.PhysicalScore, &s.ArimaScore, &s.MarketScore,
		&s.Forecast5DLow, &s.Forecast5DMid, &s.Forecast5DHigh,
		&s.Forecast20DLow, &s.Forecast20DMid, &s.Forecast20DHigh,
		&s.KeyDrivers, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
