package services

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

const (
	correlationMinPrices = 30
	correlationMinPairs  = 20
	causalityMinPairs    = 30
	causalityMaxLag      = 5
)

// CausalityTester checks whether movements in one series precede movements
// in another. Implementations report p-values at lag 1 and at the best lag.
type CausalityTester interface {
	Test(cause, effect []float64, maxLag int) (models.CausalityStat, error)
}

// CorrelationAnalyzer measures how physical-market indicators relate to
// subsequent price returns. Individual tests are omitted when their paired
// sample is too small; a causality-test failure is swallowed, never fatal.
type CorrelationAnalyzer struct {
	logger    *logrus.Logger
	causality CausalityTester
}

func NewCorrelationAnalyzer(logger *logrus.Logger, causality CausalityTester) *CorrelationAnalyzer {
	if causality == nil {
		causality = GrangerTester{}
	}
	return &CorrelationAnalyzer{logger: logger, causality: causality}
}

func (a *CorrelationAnalyzer) Analyze(series *models.MarketSeries) (map[string]models.CorrelationStat, *models.CausalityStat) {
	correlations := map[string]models.CorrelationStat{}

	if series.SettlePrice.Len() < correlationMinPrices {
		return correlations, nil
	}

	fwd5 := series.SettlePrice.ForwardReturn(5)
	fwd10 := series.SettlePrice.ForwardReturn(10)

	if series.Registered.Len() > 0 {
		invChange := series.Registered.PctChange(5)
		if stat, ok := pairedCorrelation(invChange, fwd5, true); ok {
			correlations["inventory_change_vs_5d_return"] = stat
		}
	}

	if series.DailyIssued.Len() > 0 {
		delRate := series.DailyIssued.RollingMeanSeries(5)
		if stat, ok := pairedCorrelation(delRate, fwd5, false); ok {
			correlations["delivery_rate_vs_5d_return"] = stat
		}
	}

	if series.OpenInterest.Len() > 0 {
		oiChange := series.OpenInterest.PctChange(5)
		if stat, ok := pairedCorrelation(oiChange, fwd10, false); ok {
			correlations["oi_change_vs_10d_return"] = stat
		}
	}

	causality := a.testInventoryCausality(series)

	a.logger.WithFields(logrus.Fields{
		"metal":        series.Metal,
		"correlations": len(correlations),
		"causality":    causality != nil,
	}).Debug("Correlation analysis complete")

	return correlations, causality
}

// testInventoryCausality runs the configured causality test on one-period
// inventory returns versus price returns. Any error is logged and the test
// omitted from the output.
func (a *CorrelationAnalyzer) testInventoryCausality(series *models.MarketSeries) *models.CausalityStat {
	if series.Registered.Len() == 0 {
		return nil
	}
	invRet := series.Registered.PctChange(1)
	priceRet := series.SettlePrice.PctChange(1)

	cause, effect := invRet.AlignWith(priceRet)
	if len(cause) < causalityMinPairs {
		return nil
	}

	stat, err := a.causality.Test(cause, effect, causalityMaxLag)
	if err != nil {
		a.logger.WithError(err).Debug("Causality test omitted")
		return nil
	}
	return &stat
}

// pairedCorrelation aligns the two series on shared dates and reports
// Pearson (and optionally Spearman) statistics, requiring at least 20 pairs.
func pairedCorrelation(indicator, forward *timeseries.Series, withSpearman bool) (models.CorrelationStat, bool) {
	x, y := indicator.AlignWith(forward)
	if len(x) < correlationMinPairs {
		return models.CorrelationStat{}, false
	}

	pearson := calculateCorrelation(x, y)
	stat := models.CorrelationStat{
		Pearson:       roundTo(pearson, 4),
		PearsonPValue: roundTo(correlationPValue(pearson, len(x)), 4),
		Observations:  len(x),
	}
	if withSpearman {
		spearman := calculateSpearman(x, y)
		stat.Spearman = roundTo(spearman, 4)
		stat.SpearmanPValue = roundTo(correlationPValue(spearman, len(x)), 4)
	}
	return stat, true
}

// GrangerTester implements the Granger causality F-test: for each lag, an
// autoregression of the effect on its own lags is compared against one
// augmented with the cause's lags.
type GrangerTester struct{}

func (GrangerTester) Test(cause, effect []float64, maxLag int) (models.CausalityStat, error) {
	n := len(effect)
	if n != len(cause) {
		return models.CausalityStat{}, errors.New("granger: series lengths differ")
	}

	bestLag := minInt(maxLag, n/10)
	if bestLag < 1 {
		bestLag = 1
	}

	pLag1, err := grangerPValue(cause, effect, 1)
	if err != nil {
		return models.CausalityStat{}, err
	}
	pBest := pLag1
	if bestLag > 1 {
		pBest, err = grangerPValue(cause, effect, bestLag)
		if err != nil {
			return models.CausalityStat{}, err
		}
	}

	return models.CausalityStat{
		PValueLag1:    roundTo(pLag1, 4),
		PValueBestLag: roundTo(pBest, 4),
		BestLag:       bestLag,
		Significant:   pBest < 0.05,
	}, nil
}

func grangerPValue(cause, effect []float64, lag int) (float64, error) {
	n := len(effect)
	rows := n - lag
	// The unrestricted model estimates 2*lag+1 parameters.
	if rows < 2*lag+3 {
		return 0, errors.New("granger: too few observations for lag")
	}

	restricted := make([][]float64, rows)
	unrestricted := make([][]float64, rows)
	targets := make([]float64, rows)
	for t := lag; t < n; t++ {
		r := make([]float64, 0, lag+1)
		u := make([]float64, 0, 2*lag+1)
		r = append(r, 1)
		u = append(u, 1)
		for i := 1; i <= lag; i++ {
			r = append(r, effect[t-i])
			u = append(u, effect[t-i])
		}
		for i := 1; i <= lag; i++ {
			u = append(u, cause[t-i])
		}
		restricted[t-lag] = r
		unrestricted[t-lag] = u
		targets[t-lag] = effect[t]
	}

	_, rssR, okR := solveLeastSquares(restricted, targets)
	_, rssU, okU := solveLeastSquares(unrestricted, targets)
	if !okR || !okU {
		return 0, errors.New("granger: singular regression")
	}
	dfDenom := rows - 2*lag - 1
	if rssU <= 0 || dfDenom <= 0 {
		return 0, errors.New("granger: degenerate residuals")
	}

	f := ((rssR - rssU) / float64(lag)) / (rssU / float64(dfDenom))
	if f < 0 {
		f = 0
	}
	return fTestPValue(f, lag, dfDenom), nil
}
