package database

import (
	"context"
	"fmt"
	"time"

	"github.com/comexlabs/metalcast/internal/config"
	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

// MarketRepository reads the upstream per-metal report tables. It is the
// boundary to the time-series store: rows arrive in ascending date order and
// NULL or unparseable cells become absent observations, never zeros.
type MarketRepository struct {
	pool DatabasePool
}

// NewMarketRepository creates a new market data repository.
func NewMarketRepository(pool DatabasePool) *MarketRepository {
	return &MarketRepository{pool: pool}
}

// FetchAll loads every series the pipeline consumes for one metal, going
// back the given number of days.
func (r *MarketRepository) FetchAll(ctx context.Context, metal config.MetalConfig, days int) (*models.MarketSeries, error) {
	out := &models.MarketSeries{Metal: metal.Name}

	// Bulletin snapshots carry price, volume and open interest in one table.
	bulletinQuery := `
		SELECT date, front_month_settle, total_volume, total_open_interest, total_oi_change
		FROM bulletin_snapshots
		WHERE symbol = $1 AND date >= CURRENT_DATE - $2
		ORDER BY date ASC
	`
	rows, err := r.pool.Query(ctx, bulletinQuery, metal.Symbol, days)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bulletin snapshots: %w", err)
	}
	out.SettlePrice = timeseries.New()
	out.Volume = timeseries.New()
	out.OpenInterest = timeseries.New()
	out.OIChange = timeseries.New()
	for rows.Next() {
		var date time.Time
		var settle, volume, oi, oiChange *float64
		if err := rows.Scan(&date, &settle, &volume, &oi, &oiChange); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan bulletin snapshot: %w", err)
		}
		appendIfPresent(out.SettlePrice, date, settle)
		appendIfPresent(out.Volume, date, volume)
		appendIfPresent(out.OpenInterest, date, oi)
		appendIfPresent(out.OIChange, date, oiChange)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bulletin snapshots: %w", err)
	}

	inventoryQuery := `
		SELECT report_date, registered, eligible, total
		FROM metal_snapshots
		WHERE metal = $1 AND report_date >= CURRENT_DATE - $2
		ORDER BY report_date ASC
	`
	rows, err = r.pool.Query(ctx, inventoryQuery, metal.Name, days)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory snapshots: %w", err)
	}
	out.Registered = timeseries.New()
	out.Eligible = timeseries.New()
	out.TotalStock = timeseries.New()
	for rows.Next() {
		var date time.Time
		var registered, eligible, total *float64
		if err := rows.Scan(&date, &registered, &eligible, &total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan inventory snapshot: %w", err)
		}
		appendIfPresent(out.Registered, date, registered)
		appendIfPresent(out.Eligible, date, eligible)
		appendIfPresent(out.TotalStock, date, total)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory snapshots: %w", err)
	}

	deliveryQuery := `
		SELECT report_date, daily_issued, daily_stopped, month_to_date
		FROM delivery_snapshots
		WHERE metal = $1 AND report_date >= CURRENT_DATE - $2
		ORDER BY report_date ASC
	`
	rows, err = r.pool.Query(ctx, deliveryQuery, metal.Name, days)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delivery snapshots: %w", err)
	}
	out.DailyIssued = timeseries.New()
	out.DailyStopped = timeseries.New()
	out.MonthToDate = timeseries.New()
	for rows.Next() {
		var date time.Time
		var issued, stopped, mtd *float64
		if err := rows.Scan(&date, &issued, &stopped, &mtd); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan delivery snapshot: %w", err)
		}
		appendIfPresent(out.DailyIssued, date, issued)
		appendIfPresent(out.DailyStopped, date, stopped)
		appendIfPresent(out.MonthToDate, date, mtd)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery snapshots: %w", err)
	}

	oiQuery := `
		SELECT report_date, open_interest, total_volume
		FROM open_interest_snapshots
		WHERE symbol = $1 AND report_date >= CURRENT_DATE - $2
		ORDER BY report_date ASC
	`
	rows, err = r.pool.Query(ctx, oiQuery, metal.Symbol, days)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open interest snapshots: %w", err)
	}
	out.ReportedOI = timeseries.New()
	out.ReportedVolume = timeseries.New()
	for rows.Next() {
		var date time.Time
		var oi, volume *float64
		if err := rows.Scan(&date, &oi, &volume); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan open interest snapshot: %w", err)
		}
		appendIfPresent(out.ReportedOI, date, oi)
		appendIfPresent(out.ReportedVolume, date, volume)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open interest snapshots: %w", err)
	}

	ppQuery := `
		SELECT report_date, paper_physical_ratio
		FROM paper_physical_snapshots
		WHERE metal = $1 AND report_date >= CURRENT_DATE - $2
		ORDER BY report_date ASC
	`
	rows, err = r.pool.Query(ctx, ppQuery, metal.Name, days)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch paper/physical snapshots: %w", err)
	}
	out.PaperPhysicalRatio = timeseries.New()
	for rows.Next() {
		var date time.Time
		var ratio *float64
		if err := rows.Scan(&date, &ratio); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan paper/physical snapshot: %w", err)
		}
		appendIfPresent(out.PaperPhysicalRatio, date, ratio)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paper/physical snapshots: %w", err)
	}

	return out, nil
}

// appendIfPresent appends a nullable cell, dropping NULLs and any row whose
// date fails to advance the series (duplicate report rows upstream).
func appendIfPresent(s *timeseries.Series, date time.Time, v *float64) {
	if v == nil {
		return
	}
	_ = s.Append(date, *v)
}
