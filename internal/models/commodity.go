package models

import "github.com/comexlabs/metalcast/internal/timeseries"

// CommodityProfile holds the static contract attributes of one metal.
// Loaded once from configuration and treated as immutable.
type CommodityProfile struct {
	Metal        string  `json:"metal" mapstructure:"metal"`
	Symbol       string  `json:"symbol" mapstructure:"symbol"`
	ContractSize float64 `json:"contract_size" mapstructure:"contract_size"`
	Unit         string  `json:"unit" mapstructure:"unit"`
	// WarehouseUnitFactor converts warehouse stock units to contract units
	// (e.g. short tons to pounds for copper). Kept separate from
	// ContractSize; see the coverage-days calculation for where it is
	// deliberately not applied.
	WarehouseUnitFactor float64 `json:"warehouse_unit_factor" mapstructure:"warehouse_unit_factor"`
}

// MarketSeries bundles every per-metal series the pipeline consumes.
// Each field may be empty when the upstream report has no rows; calculators
// degrade on their own minimum-length preconditions.
type MarketSeries struct {
	Metal string

	SettlePrice  *timeseries.Series
	Volume       *timeseries.Series
	OpenInterest *timeseries.Series
	OIChange     *timeseries.Series

	Registered *timeseries.Series
	Eligible   *timeseries.Series
	TotalStock *timeseries.Series

	DailyIssued  *timeseries.Series
	DailyStopped *timeseries.Series
	MonthToDate  *timeseries.Series

	PaperPhysicalRatio *timeseries.Series

	// Separate open-interest report, used when the combined price feed has
	// no open-interest column.
	ReportedOI     *timeseries.Series
	ReportedVolume *timeseries.Series
}

// CurrentPrice returns the latest settlement price, zero when unknown.
func (m *MarketSeries) CurrentPrice() float64 {
	if m == nil || m.SettlePrice == nil {
		return 0
	}
	v, _ := m.SettlePrice.Last()
	return v
}
