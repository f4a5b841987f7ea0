package services

import (
	"math"
	"sort"
)

func calculateMeanFloat64(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStdDev is the sample standard deviation (n-1 denominator).
func calculateStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := calculateMeanFloat64(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	variance := sumSquares / float64(len(values)-1)
	return math.Sqrt(variance)
}

// calculatePopStdDev is the population standard deviation (n denominator),
// used where signal agreement is measured across a fixed set of scores.
func calculatePopStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := calculateMeanFloat64(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

func calculateCorrelation(x []float64, y []float64) float64 {
	n := len(x)
	if n == 0 || len(y) != n {
		return 0
	}
	meanX := calculateMeanFloat64(x)
	meanY := calculateMeanFloat64(y)

	var numerator float64
	var denomX float64
	var denomY float64

	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		numerator += dx * dy
		denomX += dx * dx
		denomY += dy * dy
	}

	denom := math.Sqrt(denomX * denomY)
	if denom == 0 {
		return 0
	}

	corr := numerator / denom
	if corr > 1 {
		return 1
	}
	if corr < -1 {
		return -1
	}
	return corr
}

// rankValues assigns 1-based average ranks, ties sharing their mean rank.
func rankValues(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+2) / 2 // mean of 1-based ranks i+1..j+1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// calculateSpearman is the Pearson correlation of the rank transforms.
func calculateSpearman(x []float64, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	return calculateCorrelation(rankValues(x), rankValues(y))
}

// correlationPValue is the two-sided p-value for a correlation coefficient
// under the null of no association, via the t-transform with n-2 degrees of
// freedom. Valid for Pearson and, at the sample sizes the analyzer requires,
// a close approximation for Spearman.
func correlationPValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if r >= 1 || r <= -1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	return studentTTwoSided(math.Abs(t), df)
}

// studentTTwoSided returns 2*P(T > t) for t >= 0 with df degrees of freedom.
func studentTTwoSided(t, df float64) float64 {
	if t <= 0 {
		return 1
	}
	x := df / (df + t*t)
	p := regularizedIncompleteBeta(df/2, 0.5, x)
	if p > 1 {
		p = 1
	}
	return p
}

// fTestPValue returns P(F > f) for an F statistic with (d1, d2) degrees of
// freedom.
func fTestPValue(f float64, d1, d2 int) float64 {
	if f <= 0 || d1 <= 0 || d2 <= 0 {
		return 1
	}
	x := float64(d2) / (float64(d2) + float64(d1)*f)
	p := regularizedIncompleteBeta(float64(d2)/2, float64(d1)/2, x)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// regularizedIncompleteBeta computes I_x(a, b) by the continued-fraction
// expansion, accurate enough for hypothesis-test p-values.
func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lnBeta, _ := math.Lgamma(a + b)
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lnFront := lnBeta - la - lb + a*math.Log(x) + b*math.Log(1-x)
	front := math.Exp(lnFront)

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction is the modified Lentz evaluation of the incomplete
// beta continued fraction.
func betaContinuedFraction(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 3e-14
		tiny          = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

// solveLeastSquares fits y = X*coef by the normal equations with Gaussian
// elimination, returning the coefficients and the residual sum of squares.
// ok is false when the system is singular.
func solveLeastSquares(x [][]float64, y []float64) (coef []float64, rss float64, ok bool) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, 0, false
	}
	k := len(x[0])
	if k == 0 || n < k {
		return nil, 0, false
	}

	// Build X'X and X'y.
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r := 0; r < n; r++ {
		for i := 0; i < k; i++ {
			xty[i] += x[r][i] * y[r]
			for j := 0; j < k; j++ {
				xtx[i][j] += x[r][i] * x[r][j]
			}
		}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(xtx[r][col]) > math.Abs(xtx[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(xtx[pivot][col]) < 1e-12 {
			return nil, 0, false
		}
		xtx[col], xtx[pivot] = xtx[pivot], xtx[col]
		xty[col], xty[pivot] = xty[pivot], xty[col]

		for r := col + 1; r < k; r++ {
			factor := xtx[r][col] / xtx[col][col]
			for c := col; c < k; c++ {
				xtx[r][c] -= factor * xtx[col][c]
			}
			xty[r] -= factor * xty[col]
		}
	}
	coef = make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		sum := xty[i]
		for j := i + 1; j < k; j++ {
			sum -= xtx[i][j] * coef[j]
		}
		coef[i] = sum / xtx[i][i]
	}

	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += x[r][i] * coef[i]
		}
		resid := y[r] - pred
		rss += resid * resid
	}
	return coef, rss, true
}

func logReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 || series[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(series[i]/series[i-1]))
	}
	return returns
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
