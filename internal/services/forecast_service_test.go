package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comexlabs/metalcast/internal/config"
	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

type stubFetcher struct {
	mu     sync.Mutex
	series map[string]*models.MarketSeries
	errs   map[string]error
	panics map[string]bool
	calls  []string
}

func (f *stubFetcher) FetchAll(ctx context.Context, metal config.MetalConfig, days int) (*models.MarketSeries, error) {
	f.mu.Lock()
	f.calls = append(f.calls, metal.Name)
	f.mu.Unlock()

	if f.panics[metal.Name] {
		panic("fetcher exploded")
	}
	if err, ok := f.errs[metal.Name]; ok {
		return nil, err
	}
	if s, ok := f.series[metal.Name]; ok {
		return s, nil
	}
	return &models.MarketSeries{Metal: metal.Name}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memorySeriesCache struct {
	mu      sync.Mutex
	entries map[string]*models.MarketSeries
	sets    int
}

func (c *memorySeriesCache) Get(ctx context.Context, metal string) (*models.MarketSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[metal]
	return s, ok
}

func (c *memorySeriesCache) Set(ctx context.Context, metal string, series *models.MarketSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]*models.MarketSeries{}
	}
	c.entries[metal] = series
	c.sets++
}

func serviceConfig(metals ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Forecast.LookbackDays = 365
	cfg.Forecast.Horizons = []int{5, 20}
	cfg.Forecast.Workers = 2
	for _, name := range metals {
		cfg.Metals = append(cfg.Metals, config.MetalConfig{
			Name: name, Symbol: name[:2], ContractSize: 100, Unit: "oz", WarehouseUnitFactor: 1,
		})
	}
	return cfg
}

func richSeries(metal string) *models.MarketSeries {
	return &models.MarketSeries{
		Metal:        metal,
		SettlePrice:  timeseries.FromValues(trendingPrices(120)),
		Registered:   flatSeries(120, 500_000),
		DailyIssued:  flatSeries(120, 100),
		OpenInterest: flatSeries(120, 90_000),
		Volume:       flatSeries(120, 80_000),
	}
}

func TestForecastMetalFullPipeline(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*models.MarketSeries{"Gold": richSeries("Gold")}}
	svc := NewForecastService(serviceConfig("Gold"), fetcher, nil, testLogger())

	result := svc.ForecastMetal(context.Background(), config.MetalConfig{
		Name: "Gold", Symbol: "GC", ContractSize: 100, Unit: "oz", WarehouseUnitFactor: 1,
	})

	assert.Equal(t, "Gold", result.Metal)
	assert.Empty(t, result.Error)
	assert.Len(t, result.Signals, 4)
	assert.Contains(t, result.Signals, models.CategoryTrendMomentum)
	assert.Contains(t, result.Signals, models.CategoryArimaModel)
	assert.NotNil(t, result.Forecast5D)
	assert.NotNil(t, result.Forecast20D)
	assert.NotZero(t, result.CurrentPrice)
	assert.Len(t, result.KeyDrivers, 3)
	assert.NotEqual(t, models.RegimeUnknown, result.Regime)
}

func TestForecastMetalEmptyInventoryStillProducesResult(t *testing.T) {
	series := &models.MarketSeries{
		Metal:        "Silver",
		SettlePrice:  timeseries.FromValues(trendingPrices(40)),
		OpenInterest: flatSeries(40, 90_000),
		Volume:       flatSeries(40, 80_000),
	}
	fetcher := &stubFetcher{series: map[string]*models.MarketSeries{"Silver": series}}
	svc := NewForecastService(serviceConfig("Silver"), fetcher, nil, testLogger())

	result := svc.ForecastMetal(context.Background(), config.MetalConfig{
		Name: "Silver", Symbol: "SI", ContractSize: 5000, Unit: "oz", WarehouseUnitFactor: 1,
	})

	assert.Empty(t, result.Error)
	assert.Len(t, result.Signals, 4)
	physical := result.Signals[models.CategoryPhysicalStress]
	assert.Equal(t, 50.0, physical.Score)
	assert.Equal(t, "No physical signals", physical.Rationale)
	assert.NotEqual(t, 0.0, result.Signals[models.CategoryTrendMomentum].Score)
}

func TestForecastMetalFetchErrorYieldsPlaceholder(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{"Gold": errors.New("upstream 503")}}
	svc := NewForecastService(serviceConfig("Gold"), fetcher, nil, testLogger())

	result := svc.ForecastMetal(context.Background(), serviceConfig("Gold").Metals[0])

	assert.Equal(t, models.DirectionNeutral, result.Direction)
	assert.Equal(t, 50.0, result.CompositeScore)
	assert.Equal(t, 0, result.Confidence)
	assert.Equal(t, models.RegimeUnknown, result.Regime)
	assert.Equal(t, "upstream 503", result.Error)
	require.Len(t, result.KeyDrivers, 1)
	assert.True(t, strings.HasPrefix(result.KeyDrivers[0], "Forecast unavailable: "))
}

func TestRunRecoversFromPanic(t *testing.T) {
	fetcher := &stubFetcher{
		series: map[string]*models.MarketSeries{"Gold": richSeries("Gold")},
		panics: map[string]bool{"Silver": true},
	}
	svc := NewForecastService(serviceConfig("Gold", "Silver"), fetcher, nil, testLogger())

	results := svc.Run(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, "Gold", results[0].Metal)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "Silver", results[1].Metal)
	assert.Contains(t, results[1].Error, "fetcher exploded")
}

func TestRunPreservesConfigurationOrder(t *testing.T) {
	metals := []string{"Gold", "Silver", "Copper", "Platinum", "Palladium"}
	fetcher := &stubFetcher{}
	svc := NewForecastService(serviceConfig(metals...), fetcher, nil, testLogger())

	results := svc.Run(context.Background())

	require.Len(t, results, len(metals))
	for i, name := range metals {
		assert.Equal(t, name, results[i].Metal)
	}
}

func TestFetchSeriesReadsThroughCache(t *testing.T) {
	cached := richSeries("Gold")
	cache := &memorySeriesCache{entries: map[string]*models.MarketSeries{"Gold": cached}}
	fetcher := &stubFetcher{}
	svc := NewForecastService(serviceConfig("Gold"), fetcher, cache, testLogger())

	series, err := svc.fetchSeries(context.Background(), serviceConfig("Gold").Metals[0])

	require.NoError(t, err)
	assert.Same(t, cached, series)
	assert.Zero(t, fetcher.callCount())
}

func TestFetchSeriesPopulatesCacheOnMiss(t *testing.T) {
	cache := &memorySeriesCache{}
	fetcher := &stubFetcher{series: map[string]*models.MarketSeries{"Gold": richSeries("Gold")}}
	svc := NewForecastService(serviceConfig("Gold"), fetcher, cache, testLogger())

	_, err := svc.fetchSeries(context.Background(), serviceConfig("Gold").Metals[0])

	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, 1, cache.sets)

	// Second fetch is served from the cache.
	_, err = svc.fetchSeries(context.Background(), serviceConfig("Gold").Metals[0])
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount())
}
