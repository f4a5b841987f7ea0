package services

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
	"github.com/comexlabs/metalcast/internal/timeseries"
)

const (
	arimaMinObservations = 30
	arimaMaxAR           = 3
	arimaMaxMA           = 3
	arimaMaxDiff         = 2

	// 80% confidence interval.
	arimaIntervalZ = 1.2816
)

// ArimaForecaster fits a non-seasonal ARIMA to log prices, selecting the
// differencing order up to 2 and the AR/MA orders up to 3 each by AIC, and
// produces point forecasts with 80% intervals at the configured horizons.
// Estimation is the Hannan-Rissanen two-stage regression: a long
// autoregression proxies the innovations, then AR and MA terms are fit
// jointly by least squares.
type ArimaForecaster struct {
	logger   *logrus.Logger
	horizons []int
}

func NewArimaForecaster(logger *logrus.Logger, horizons []int) *ArimaForecaster {
	if len(horizons) == 0 {
		horizons = []int{5, 20}
	}
	return &ArimaForecaster{logger: logger, horizons: horizons}
}

// Calculate fits the model and scores the 5-day projected move. Fit failures
// resolve to the neutral score with the failure reason as rationale and no
// forecasts; they never abort the run.
func (f *ArimaForecaster) Calculate(prices *timeseries.Series) (models.SignalScore, map[int]models.PriceForecast) {
	forecasts := map[int]models.PriceForecast{}

	if prices.Len() < arimaMinObservations {
		score, rationale := InsufficientSignal("Insufficient data for ARIMA").Resolve()
		return models.SignalScore{
			Category:   models.CategoryArimaModel,
			Score:      score,
			Rationale:  rationale,
			Indicators: map[string]interface{}{},
		}, forecasts
	}

	values := prices.Values()
	currentPrice := values[len(values)-1]

	fit, err := fitAutoArima(values)
	if err != nil {
		score, rationale := FailedSignal(fmt.Sprintf("ARIMA fitting failed: %s", err)).Resolve()
		f.logger.WithError(err).Warn("ARIMA fit failed, falling back to neutral")
		return models.SignalScore{
			Category:   models.CategoryArimaModel,
			Score:      score,
			Rationale:  rationale,
			Indicators: map[string]interface{}{},
		}, forecasts
	}

	maxHorizon := 0
	for _, h := range f.horizons {
		if h > maxHorizon {
			maxHorizon = h
		}
	}
	logForecasts, variances := fit.forecast(maxHorizon)

	for _, h := range f.horizons {
		mid := math.Exp(logForecasts[h-1])
		half := arimaIntervalZ * math.Sqrt(variances[h-1])
		forecasts[h] = models.PriceForecast{
			Low:       roundTo(math.Exp(logForecasts[h-1]-half), 2),
			Mid:       roundTo(mid, 2),
			High:      roundTo(math.Exp(logForecasts[h-1]+half), 2),
			PctChange: roundTo((mid-currentPrice)/currentPrice*100, 2),
		}
	}

	score := neutralScore
	pct5 := 0.0
	if fc, ok := forecasts[5]; ok {
		pct5 = fc.PctChange
		score = roundTo(clampFloat(50+pct5*10, 0, 100), 1)
	}
	rationale := fmt.Sprintf("ARIMA(%d,%d,%d) projects %+.1f%% over 5d",
		fit.p, fit.d, fit.q, pct5)

	f.logger.WithFields(logrus.Fields{
		"order":   fmt.Sprintf("(%d,%d,%d)", fit.p, fit.d, fit.q),
		"pct_5d":  pct5,
		"aic":     roundTo(fit.aic, 1),
	}).Debug("ARIMA fit selected")

	return models.SignalScore{
		Category:  models.CategoryArimaModel,
		Score:     score,
		Rationale: rationale,
		Indicators: map[string]interface{}{
			"order":  []int{fit.p, fit.d, fit.q},
			"aic":    roundTo(fit.aic, 2),
			"sigma2": fit.sigma2,
		},
	}, forecasts
}

// arimaFit is a fitted ARIMA model on log prices, retaining everything the
// forecast recursion needs.
type arimaFit struct {
	p, d, q   int
	intercept float64
	ar        []float64
	ma        []float64
	sigma2    float64
	aic       float64

	logPrices []float64 // original log series
	w         []float64 // differenced series the ARMA was fit on
	resid     []float64 // innovations aligned with w (zero before fit range)
}

// fitAutoArima log-transforms the price series, picks the differencing order,
// then searches AR/MA orders by AIC.
func fitAutoArima(prices []float64) (*arimaFit, error) {
	logPrices := make([]float64, len(prices))
	for i, v := range prices {
		if v <= 0 {
			return nil, errors.New("non-positive price in series")
		}
		logPrices[i] = math.Log(v)
	}

	d := selectDifferencing(logPrices)
	w := difference(logPrices, d)
	if len(w) < 10 {
		return nil, errors.New("series too short after differencing")
	}
	if calculateStdDev(w) == 0 {
		return nil, errors.New("insufficient variation in series")
	}

	var best *arimaFit
	for p := 0; p <= arimaMaxAR; p++ {
		for q := 0; q <= arimaMaxMA; q++ {
			fit, err := fitARMA(w, p, q)
			if err != nil {
				continue
			}
			if best == nil || fit.aic < best.aic {
				fit.d = d
				fit.logPrices = logPrices
				best = fit
			}
		}
	}
	if best == nil {
		return nil, errors.New("no ARMA order converged")
	}
	return best, nil
}

// selectDifferencing returns the smallest d up to the maximum whose
// differenced series has a lag-1 autocorrelation below 0.9.
func selectDifferencing(series []float64) int {
	w := series
	for d := 0; d < arimaMaxDiff; d++ {
		if math.Abs(lag1Autocorrelation(w)) < 0.9 {
			return d
		}
		w = difference(w, 1)
	}
	return arimaMaxDiff
}

func lag1Autocorrelation(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	return calculateCorrelation(values[:len(values)-1], values[1:])
}

func difference(values []float64, d int) []float64 {
	out := append([]float64(nil), values...)
	for i := 0; i < d; i++ {
		next := make([]float64, len(out)-1)
		for j := 1; j < len(out); j++ {
			next[j-1] = out[j] - out[j-1]
		}
		out = next
	}
	return out
}

// fitARMA estimates ARMA(p,q) with intercept on w by the Hannan-Rissanen
// procedure and reports the conditional least-squares AIC.
func fitARMA(w []float64, p, q int) (*arimaFit, error) {
	n := len(w)

	// Stage 1: innovations from a long autoregression, needed only when
	// MA terms are present.
	innov := make([]float64, n)
	longLag := 0
	if q > 0 {
		longLag = minInt(n/4, 12)
		if longLag < p+q {
			longLag = p + q
		}
		if n-longLag < longLag+2 {
			return nil, errors.New("too short for innovation regression")
		}
		rows := make([][]float64, 0, n-longLag)
		targets := make([]float64, 0, n-longLag)
		for t := longLag; t < n; t++ {
			row := make([]float64, 0, longLag+1)
			row = append(row, 1)
			for i := 1; i <= longLag; i++ {
				row = append(row, w[t-i])
			}
			rows = append(rows, row)
			targets = append(targets, w[t])
		}
		coef, _, ok := solveLeastSquares(rows, targets)
		if !ok {
			return nil, errors.New("long autoregression singular")
		}
		for t := longLag; t < n; t++ {
			pred := coef[0]
			for i := 1; i <= longLag; i++ {
				pred += coef[i] * w[t-i]
			}
			innov[t] = w[t] - pred
		}
	}

	// Stage 2: joint regression on AR lags and lagged innovations.
	start := maxInt(p, q)
	if start < longLag {
		start = longLag
	}
	if n-start < p+q+3 {
		return nil, errors.New("too short for ARMA regression")
	}

	rows := make([][]float64, 0, n-start)
	targets := make([]float64, 0, n-start)
	for t := start; t < n; t++ {
		row := make([]float64, 0, 1+p+q)
		row = append(row, 1)
		for i := 1; i <= p; i++ {
			row = append(row, w[t-i])
		}
		for j := 1; j <= q; j++ {
			row = append(row, innov[t-j])
		}
		rows = append(rows, row)
		targets = append(targets, w[t])
	}

	coef, rss, ok := solveLeastSquares(rows, targets)
	if !ok {
		return nil, errors.New("ARMA regression singular")
	}

	nEff := float64(len(targets))
	sigma2 := rss / nEff
	if sigma2 <= 0 || math.IsNaN(sigma2) || math.IsInf(sigma2, 0) {
		return nil, errors.New("degenerate residual variance")
	}

	fit := &arimaFit{
		p:         p,
		q:         q,
		intercept: coef[0],
		ar:        coef[1 : 1+p],
		ma:        coef[1+p : 1+p+q],
		sigma2:    sigma2,
		aic:       nEff*math.Log(sigma2) + 2*float64(p+q+1),
		w:         w,
	}

	// Final-pass residuals aligned with w, for the forecast recursion.
	fit.resid = make([]float64, n)
	for t := start; t < n; t++ {
		pred := fit.intercept
		for i := 1; i <= p; i++ {
			pred += fit.ar[i-1] * w[t-i]
		}
		for j := 1; j <= q; j++ {
			pred += fit.ma[j-1] * innov[t-j]
		}
		fit.resid[t] = w[t] - pred
	}
	return fit, nil
}

// forecast iterates the ARMA recursion forward, integrates the differencing
// back out, and returns log-level point forecasts and their error variances
// for horizons 1..maxHorizon.
func (f *arimaFit) forecast(maxHorizon int) (logLevels, variances []float64) {
	n := len(f.w)

	wAt := func(t int) float64 { return f.w[t] }
	extended := make([]float64, 0, maxHorizon)
	for h := 1; h <= maxHorizon; h++ {
		t := n + h - 1
		pred := f.intercept
		for i := 1; i <= f.p; i++ {
			idx := t - i
			if idx >= n {
				pred += f.ar[i-1] * extended[idx-n]
			} else {
				pred += f.ar[i-1] * wAt(idx)
			}
		}
		for j := 1; j <= f.q; j++ {
			idx := t - j
			// Future innovations have expectation zero.
			if idx < n {
				pred += f.ma[j-1] * f.resid[idx]
			}
		}
		extended = append(extended, pred)
	}

	// Integrate d times back to log levels.
	logLevels = make([]float64, maxHorizon)
	switch f.d {
	case 0:
		copy(logLevels, extended)
	case 1:
		level := f.logPrices[len(f.logPrices)-1]
		for h := 0; h < maxHorizon; h++ {
			level += extended[h]
			logLevels[h] = level
		}
	default:
		firstDiff := difference(f.logPrices, 1)
		slope := firstDiff[len(firstDiff)-1]
		level := f.logPrices[len(f.logPrices)-1]
		for h := 0; h < maxHorizon; h++ {
			slope += extended[h]
			level += slope
			logLevels[h] = level
		}
	}

	// Forecast-error variance from the psi weights of the full ARIMA.
	psi := f.psiWeights(maxHorizon)
	variances = make([]float64, maxHorizon)
	cum := 0.0
	for h := 0; h < maxHorizon; h++ {
		cum += psi[h] * psi[h]
		variances[h] = f.sigma2 * cum
	}
	return logLevels, variances
}

// psiWeights expands the ARMA into its moving-average representation and
// cumulates it once per differencing order.
func (f *arimaFit) psiWeights(count int) []float64 {
	psi := make([]float64, count)
	if count == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < count; j++ {
		v := 0.0
		if j <= f.q {
			v = f.ma[j-1]
		}
		for i := 1; i <= f.p && i <= j; i++ {
			v += f.ar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	for d := 0; d < f.d; d++ {
		for j := 1; j < count; j++ {
			psi[j] += psi[j-1]
		}
	}
	return psi
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
