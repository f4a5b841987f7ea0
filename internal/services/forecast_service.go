package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/config"
	"github.com/comexlabs/metalcast/internal/models"
)

// MarketDataFetcher supplies the per-metal series bundle the pipeline
// consumes.
type MarketDataFetcher interface {
	FetchAll(ctx context.Context, metal config.MetalConfig, days int) (*models.MarketSeries, error)
}

// SeriesCache is an optional read-through cache in front of the fetcher.
type SeriesCache interface {
	Get(ctx context.Context, metal string) (*models.MarketSeries, bool)
	Set(ctx context.Context, metal string, series *models.MarketSeries)
}

// ForecastService runs the full signal-fusion pipeline: fetch, the four
// signal calculators, the three analyzers, and the composite combiner.
// Metals are processed concurrently by a bounded worker pool; a panic or
// fetch failure in one metal's pipeline yields a neutral placeholder and
// never aborts the batch.
type ForecastService struct {
	cfg    *config.Config
	logger *logrus.Logger

	fetcher MarketDataFetcher
	cache   SeriesCache

	trend       *TrendMomentumCalculator
	physical    *PhysicalStressCalculator
	arima       *ArimaForecaster
	market      *MarketActivityCalculator
	correlation *CorrelationAnalyzer
	anomalies   *AnomalyDetector
	regime      *RegimeClassifier
}

func NewForecastService(cfg *config.Config, fetcher MarketDataFetcher, seriesCache SeriesCache, logger *logrus.Logger) *ForecastService {
	return &ForecastService{
		cfg:         cfg,
		logger:      logger,
		fetcher:     fetcher,
		cache:       seriesCache,
		trend:       NewTrendMomentumCalculator(logger),
		physical:    NewPhysicalStressCalculator(logger),
		arima:       NewArimaForecaster(logger, cfg.Forecast.Horizons),
		market:      NewMarketActivityCalculator(logger),
		correlation: NewCorrelationAnalyzer(logger, nil),
		anomalies:   NewAnomalyDetector(logger),
		regime:      NewRegimeClassifier(logger),
	}
}

// Run forecasts every configured metal and returns the results in
// configuration order regardless of completion order.
func (s *ForecastService) Run(ctx context.Context) []models.ForecastResult {
	metals := s.cfg.Metals
	results := make([]models.ForecastResult, len(metals))

	workers := s.cfg.Forecast.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, metal := range metals {
		wg.Add(1)
		go func(idx int, m config.MetalConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = s.forecastWithRecovery(ctx, m)
		}(i, metal)
	}
	wg.Wait()

	return results
}

// forecastWithRecovery converts a panicking pipeline into a neutral
// placeholder result for that metal.
func (s *ForecastService) forecastWithRecovery(ctx context.Context, metal config.MetalConfig) (result models.ForecastResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"metal": metal.Name,
				"panic": r,
			}).Error("Forecast pipeline panicked")
			result = placeholderResult(metal.Name, fmt.Sprintf("%v", r))
		}
	}()
	return s.ForecastMetal(ctx, metal)
}

// ForecastMetal runs one metal through the pipeline.
func (s *ForecastService) ForecastMetal(ctx context.Context, metal config.MetalConfig) models.ForecastResult {
	log := s.logger.WithField("metal", metal.Name)

	series, err := s.fetchSeries(ctx, metal)
	if err != nil {
		log.WithError(err).Error("Failed to fetch market series")
		return placeholderResult(metal.Name, err.Error())
	}

	profile := models.CommodityProfile{
		Metal:               metal.Name,
		Symbol:              metal.Symbol,
		ContractSize:        metal.ContractSize,
		Unit:                metal.Unit,
		WarehouseUnitFactor: metal.WarehouseUnitFactor,
	}

	trendScore := s.trend.Calculate(series.SettlePrice)
	physicalScore := s.physical.Calculate(series, profile)
	arimaScore, forecasts := s.arima.Calculate(series.SettlePrice)
	marketScore := s.market.Calculate(series)

	signals := map[models.SignalCategory]models.SignalScore{
		models.CategoryTrendMomentum:  trendScore,
		models.CategoryPhysicalStress: physicalScore,
		models.CategoryArimaModel:     arimaScore,
		models.CategoryMarketActivity: marketScore,
	}

	correlations, causality := s.correlation.Analyze(series)
	anomalies := s.anomalies.Detect(series)
	regime := s.regime.Classify(series.SettlePrice)

	composite := Combine(signals)

	result := models.ForecastResult{
		Metal:              metal.Name,
		GeneratedAt:        time.Now().UTC(),
		Direction:          composite.Direction,
		Confidence:         composite.Confidence,
		CompositeScore:     composite.CompositeScore,
		CurrentPrice:       series.CurrentPrice(),
		SqueezeProbability: composite.SqueezeProbability,
		Regime:             regime,
		Signals:            signals,
		KeyDrivers:         composite.KeyDrivers,
		Anomalies:          anomalies,
		Correlations:       correlations,
		Causality:          causality,
	}
	if fc, ok := forecasts[5]; ok {
		result.Forecast5D = &fc
	}
	if fc, ok := forecasts[20]; ok {
		result.Forecast20D = &fc
	}

	log.WithFields(logrus.Fields{
		"direction":  result.Direction,
		"score":      result.CompositeScore,
		"confidence": result.Confidence,
		"regime":     result.Regime,
	}).Info("Forecast complete")

	return result
}

func (s *ForecastService) fetchSeries(ctx context.Context, metal config.MetalConfig) (*models.MarketSeries, error) {
	if s.cache != nil {
		if series, ok := s.cache.Get(ctx, metal.Name); ok {
			return series, nil
		}
	}
	series, err := s.fetcher.FetchAll(ctx, metal, s.cfg.Forecast.LookbackDays)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, metal.Name, series)
	}
	return series, nil
}

// placeholderResult is the neutral stand-in recorded when a metal's pipeline
// could not produce a forecast.
func placeholderResult(metal, reason string) models.ForecastResult {
	return models.ForecastResult{
		Metal:              metal,
		GeneratedAt:        time.Now().UTC(),
		Direction:          models.DirectionNeutral,
		Confidence:         0,
		CompositeScore:     neutralScore,
		SqueezeProbability: 0,
		Regime:             models.RegimeUnknown,
		Signals:            map[models.SignalCategory]models.SignalScore{},
		KeyDrivers:         []string{"Forecast unavailable: " + truncate(reason, 80)},
		Anomalies:          []models.Anomaly{},
		Correlations:       map[string]models.CorrelationStat{},
		Error:              truncate(reason, 200),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
