package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Point is a single dated observation.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an ordered, date-indexed sequence of observations for one metric.
// Dates are strictly increasing and missing dates are simply absent; the type
// never zero-fills gaps. Calculators receive a Series as a read-only view.
type Series struct {
	dates  []time.Time
	values []float64
}

// New returns an empty series.
func New() *Series {
	return &Series{}
}

// FromPoints builds a series from pre-sorted points, skipping any point that
// does not advance the date. Non-numeric upstream cells should already have
// been dropped by the caller.
func FromPoints(points []Point) *Series {
	s := New()
	for _, p := range points {
		_ = s.Append(p.Date, p.Value)
	}
	return s
}

// FromValues builds a series of consecutive daily observations ending today.
// Intended for tests and synthetic data.
func FromValues(values []float64) *Series {
	s := New()
	start := time.Now().AddDate(0, 0, -len(values))
	for i, v := range values {
		_ = s.Append(start.AddDate(0, 0, i), v)
	}
	return s
}

// Append adds an observation. The date must be strictly after the last one.
func (s *Series) Append(date time.Time, value float64) error {
	if n := len(s.dates); n > 0 && !date.After(s.dates[n-1]) {
		return fmt.Errorf("timeseries: date %s does not advance series ending %s",
			date.Format("2006-01-02"), s.dates[n-1].Format("2006-01-02"))
	}
	s.dates = append(s.dates, date)
	s.values = append(s.values, value)
	return nil
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Empty reports whether the series has no observations.
func (s *Series) Empty() bool { return s.Len() == 0 }

// At returns the i-th observation.
func (s *Series) At(i int) Point {
	return Point{Date: s.dates[i], Value: s.values[i]}
}

// Last returns the most recent value, or false when the series is empty.
func (s *Series) Last() (float64, bool) {
	if s.Len() == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// LastDate returns the date of the most recent observation.
func (s *Series) LastDate() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.dates[len(s.dates)-1], true
}

// Values returns a copy of the observation values in date order.
func (s *Series) Values() []float64 {
	out := make([]float64, s.Len())
	copy(out, s.values)
	return out
}

// Tail returns a copy of the most recent n values, or all of them when the
// series is shorter than n.
func (s *Series) Tail(n int) []float64 {
	if n > s.Len() {
		n = s.Len()
	}
	out := make([]float64, n)
	copy(out, s.values[s.Len()-n:])
	return out
}

// Diff returns a series of n-period differences: value[i] - value[i-n],
// dated at the later observation. Length shrinks by n.
func (s *Series) Diff(n int) *Series {
	out := New()
	for i := n; i < s.Len(); i++ {
		_ = out.Append(s.dates[i], s.values[i]-s.values[i-n])
	}
	return out
}

// PctChange returns a series of n-period fractional changes. Observations
// whose base value is zero are omitted rather than propagated as infinities.
func (s *Series) PctChange(n int) *Series {
	out := New()
	for i := n; i < s.Len(); i++ {
		base := s.values[i-n]
		if base == 0 {
			continue
		}
		_ = out.Append(s.dates[i], (s.values[i]-base)/base)
	}
	return out
}

// ForwardReturn returns, at each date, the fractional change realized over
// the following n periods. The final n observations have no forward return
// and are omitted.
func (s *Series) ForwardReturn(n int) *Series {
	out := New()
	for i := 0; i+n < s.Len(); i++ {
		base := s.values[i]
		if base == 0 {
			continue
		}
		_ = out.Append(s.dates[i], (s.values[i+n]-base)/base)
	}
	return out
}

// RollingMean returns the mean of a trailing window ending at the latest
// observation. A window longer than the series is shortened to fit.
func (s *Series) RollingMean(window int) (float64, bool) {
	tail := s.Tail(window)
	if len(tail) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail)), true
}

// RollingStd returns the sample standard deviation of a trailing window
// ending at the latest observation. At least two observations are required.
func (s *Series) RollingStd(window int) (float64, bool) {
	tail := s.Tail(window)
	if len(tail) < 2 {
		return 0, false
	}
	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))
	var ss float64
	for _, v := range tail {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(tail)-1)), true
}

// MarshalJSON encodes the series as an array of dated points.
func (s *Series) MarshalJSON() ([]byte, error) {
	points := make([]Point, s.Len())
	for i := range points {
		points[i] = Point{Date: s.dates[i], Value: s.values[i]}
	}
	return json.Marshal(points)
}

// UnmarshalJSON rebuilds the series from an array of dated points, skipping
// any point that does not advance the date.
func (s *Series) UnmarshalJSON(data []byte) error {
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	*s = Series{}
	for _, p := range points {
		_ = s.Append(p.Date, p.Value)
	}
	return nil
}

// RollingMeanSeries returns the full series of trailing window means, dated
// at each window's final observation. The first window-1 dates are omitted.
func (s *Series) RollingMeanSeries(window int) *Series {
	out := New()
	if s.Len() < window || window < 1 {
		return out
	}
	sum := 0.0
	for i := 0; i < s.Len(); i++ {
		sum += s.values[i]
		if i >= window {
			sum -= s.values[i-window]
		}
		if i >= window-1 {
			_ = out.Append(s.dates[i], sum/float64(window))
		}
	}
	return out
}

// AlignWith pairs this series with another on their shared dates, returning
// parallel value slices in date order.
func (s *Series) AlignWith(other *Series) (x, y []float64) {
	if s == nil || other == nil {
		return nil, nil
	}
	byDate := make(map[time.Time]float64, other.Len())
	for i := range other.dates {
		byDate[dateKey(other.dates[i])] = other.values[i]
	}
	for i := range s.dates {
		if v, ok := byDate[dateKey(s.dates[i])]; ok {
			x = append(x, s.values[i])
			y = append(y, v)
		}
	}
	return x, y
}

// dateKey truncates a timestamp to its calendar day in UTC so that series
// sampled at different intraday times still align.
func dateKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
