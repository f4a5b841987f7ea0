package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMeanAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, calculateMeanFloat64(values), 1e-9)
	// Sample standard deviation uses the n-1 denominator.
	assert.InDelta(t, 2.13809, calculateStdDev(values), 1e-4)
	// Population standard deviation is exactly 2 for this set.
	assert.InDelta(t, 2.0, calculatePopStdDev(values), 1e-9)

	assert.Equal(t, 0.0, calculateMeanFloat64(nil))
	assert.Equal(t, 0.0, calculateStdDev([]float64{1}))
}

func TestCalculateCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 1.0, calculateCorrelation(x, []float64{2, 4, 6, 8, 10}), 1e-9)
	assert.InDelta(t, -1.0, calculateCorrelation(x, []float64{10, 8, 6, 4, 2}), 1e-9)
	assert.Equal(t, 0.0, calculateCorrelation(x, []float64{3, 3, 3, 3, 3}), "zero variance yields zero")
	assert.Equal(t, 0.0, calculateCorrelation(x, []float64{1, 2}), "length mismatch yields zero")
}

func TestRankValuesAveragesTies(t *testing.T) {
	ranks := rankValues([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks)

	ranks = rankValues([]float64{5, 5, 5})
	assert.Equal(t, []float64{2, 2, 2}, ranks)
}

func TestCalculateSpearmanMonotone(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	// Monotone but nonlinear relation still has perfect rank correlation.
	y := []float64{1, 8, 27, 64, 125, 216}
	assert.InDelta(t, 1.0, calculateSpearman(x, y), 1e-9)
}

func TestCorrelationPValue(t *testing.T) {
	// No association: p-value near 1.
	assert.InDelta(t, 1.0, correlationPValue(0, 30), 1e-9)
	// Perfect correlation: p-value zero.
	assert.Equal(t, 0.0, correlationPValue(1, 30))
	// Strong correlation with a decent sample should be highly significant.
	assert.Less(t, correlationPValue(0.8, 30), 0.001)
	// The same correlation with a tiny sample should not be.
	assert.Greater(t, correlationPValue(0.8, 5), 0.05)
	// Too few observations defaults to 1.
	assert.Equal(t, 1.0, correlationPValue(0.9, 2))
}

func TestFTestPValue(t *testing.T) {
	assert.Equal(t, 1.0, fTestPValue(0, 3, 20))

	// Larger F statistics must give smaller p-values.
	p1 := fTestPValue(1, 3, 20)
	p2 := fTestPValue(4, 3, 20)
	p3 := fTestPValue(10, 3, 20)
	assert.Greater(t, p1, p2)
	assert.Greater(t, p2, p3)
	assert.Less(t, p3, 0.001)

	// F(1, df2) p-value matches the two-sided t-test at t = sqrt(F).
	pF := fTestPValue(4, 1, 28)
	pT := studentTTwoSided(2, 28)
	assert.InDelta(t, pT, pF, 1e-9)
}

func TestRegularizedIncompleteBetaBounds(t *testing.T) {
	assert.Equal(t, 0.0, regularizedIncompleteBeta(2, 3, 0))
	assert.Equal(t, 1.0, regularizedIncompleteBeta(2, 3, 1))
	// Symmetric case: I_0.5(a, a) = 0.5.
	assert.InDelta(t, 0.5, regularizedIncompleteBeta(3, 3, 0.5), 1e-9)
}

func TestSolveLeastSquaresExactFit(t *testing.T) {
	// y = 2 + 3x, noiseless.
	x := [][]float64{{1, 0}, {1, 1}, {1, 2}, {1, 3}}
	y := []float64{2, 5, 8, 11}

	coef, rss, ok := solveLeastSquares(x, y)
	require.True(t, ok)
	require.Len(t, coef, 2)
	assert.InDelta(t, 2.0, coef[0], 1e-9)
	assert.InDelta(t, 3.0, coef[1], 1e-9)
	assert.InDelta(t, 0.0, rss, 1e-9)
}

func TestSolveLeastSquaresSingular(t *testing.T) {
	// Duplicate columns make the normal equations singular.
	x := [][]float64{{1, 1}, {2, 2}, {3, 3}}
	y := []float64{1, 2, 3}

	_, _, ok := solveLeastSquares(x, y)
	assert.False(t, ok)
}

func TestLogReturnsSkipsNonPositive(t *testing.T) {
	returns := logReturns([]float64{100, 110, 0, 120})
	require.Len(t, returns, 1)
	assert.InDelta(t, math.Log(1.1), returns[0], 1e-9)
}

func TestClampAndRound(t *testing.T) {
	assert.Equal(t, 0.0, clampFloat(-5, 0, 100))
	assert.Equal(t, 100.0, clampFloat(250, 0, 100))
	assert.Equal(t, 42.0, clampFloat(42, 0, 100))
	assert.Equal(t, 3.14, roundTo(3.14159, 2))
}
