// Package stats keeps running statistics over solve measurements.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running mean and variance (Welford's algorithm) plus the
// extremes. It keeps no samples.
type Statistic struct {
	n    int
	last float64
	min  float64
	max  float64

	mean float64
	m2   float64
}

func (s *Statistic) Push(val float64) {
	s.last = val
	s.n++
	if s.n == 1 {
		s.mean = val
		s.m2 = 0
		s.min, s.max = val, val
		return
	}
	delta := val - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (val - s.mean)
	s.min = math.Min(s.min, val)
	s.max = math.Max(s.max, val)
}

func (s *Statistic) Mean() float64 {
	if s.n > 0 {
		return s.mean
	}
	return 0.0
}

func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0.0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) Last() float64 {
	return s.last
}

func (s *Statistic) Min() float64 {
	return s.min
}

func (s *Statistic) Max() float64 {
	return s.max
}

// StandardError returns the standard error of the mean.
func (s *Statistic) StandardError() float64 {
	if s.n == 0 {
		return 0
	}
	return math.Sqrt(s.Variance() / float64(s.n))
}

// ConfidenceInterval returns the half-width of the interval around the mean
// at the given confidence, in percent.
func (s *Statistic) ConfidenceInterval(confidence float64) float64 {
	return zScore(confidence) * s.StandardError()
}

func (s *Statistic) Iterations() int {
	return s.n
}

// Sample keeps every value so that quantiles can be read.
type Sample struct {
	Statistic
	values []float64
	sorted bool
}

func (s *Sample) Push(val float64) {
	s.Statistic.Push(val)
	s.values = append(s.values, val)
	s.sorted = false
}

// Quantile returns the empirical p-quantile, p in [0, 1].
func (s *Sample) Quantile(p float64) float64 {
	if len(s.values) == 0 {
		return 0
	}
	if !s.sorted {
		sort.Float64s(s.values)
		s.sorted = true
	}
	return stat.Quantile(p, stat.Empirical, s.values, nil)
}

// Values returns the pushed values. The order is unspecified.
func (s *Sample) Values() []float64 {
	return s.values
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// zScore is the two-tailed z for a confidence given in percent.
func zScore(confidence float64) float64 {
	return stdNormal.Quantile(0.5 + confidence/200)
}
