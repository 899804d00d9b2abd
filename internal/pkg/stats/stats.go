//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package stats implements the measurement harness's sample set: an
// unordered collection of latency/bandwidth doubles with the summary
// statistics and Tukey-fence outlier trimming the harness runs over a
// batch of ping-pong or bandwidth measurements before it returns their
// mean to its caller.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierMultiplier is the Tukey-fence threshold multiplier k
// used when the caller doesn't have a reason to pick a different one.
const DefaultOutlierMultiplier = 1.5

// minQuartileSampleSize is the sample count below which indexing the
// sorted slice directly at n/4 and 3n/4 lands on too coarse a
// quartile; below it, Quartiles interpolates instead.
const minQuartileSampleSize = 8

// Sample is an unordered, append-only collection of measured doubles.
type Sample struct {
	values []float64
}

// New returns an empty Sample.
func New() *Sample { return &Sample{} }

// Add appends value to the sample.
func (s *Sample) Add(value float64) { s.values = append(s.values, value) }

// Clear empties the sample.
func (s *Sample) Clear() { s.values = s.values[:0] }

// Len is the sample size.
func (s *Sample) Len() int { return len(s.values) }

// Values returns a copy of the sample's raw values, for callers that
// need the underlying data rather than a summary statistic.
func (s *Sample) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Mean is the arithmetic mean, or 0 for an empty sample.
func (s *Sample) Mean() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return stat.Mean(s.values, nil)
}

// Median sorts the sample and returns the middle element, or the mean
// of the two middle elements for an even-sized sample.
func (s *Sample) Median() float64 {
	n := len(s.values)
	if n == 0 {
		return 0
	}
	sorted := s.sorted()
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// StdDev is the Bessel-corrected sample standard deviation, or 0 for a
// sample of size <= 1.
func (s *Sample) StdDev() float64 {
	if len(s.values) <= 1 {
		return 0
	}
	return stat.StdDev(s.values, nil)
}

// Variance is StdDev squared.
func (s *Sample) Variance() float64 {
	sd := s.StdDev()
	return sd * sd
}

// ConfidenceHalfWidth is the half-width of the 95% confidence interval
// around the mean: 1.96·σ/√n.
func (s *Sample) ConfidenceHalfWidth() float64 {
	n := len(s.values)
	if n <= 1 {
		return 0
	}
	return 1.96 * s.StdDev() / math.Sqrt(float64(n))
}

// Min returns the smallest value, or 0 for an empty sample.
func (s *Sample) Min() float64 {
	if len(s.values) == 0 {
		return 0
	}
	m := s.values[0]
	for _, v := range s.values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest value, or 0 for an empty sample.
func (s *Sample) Max() float64 {
	if len(s.values) == 0 {
		return 0
	}
	m := s.values[0]
	for _, v := range s.values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func (s *Sample) sorted() []float64 {
	out := s.Values()
	sort.Float64s(out)
	return out
}

// IsNormal is a crude skew/kurtosis normality check, only meaningful
// with at least 20 samples: |skew| < 1 and |kurtosis - 3| < 2.
func (s *Sample) IsNormal() bool {
	n := len(s.values)
	if n < 20 {
		return false
	}
	mean := s.Mean()
	sd := s.StdDev()
	if sd == 0 {
		return false
	}

	var skew, kurt float64
	for _, v := range s.values {
		z := (v - mean) / sd
		skew += z * z * z
		kurt += z * z * z * z
	}
	skew /= float64(n)
	kurt /= float64(n)

	return math.Abs(skew) < 1.0 && math.Abs(kurt-3.0) < 2.0
}

// Quartiles returns (q1, q3) from a sorted sample. Samples of at least
// minQuartileSampleSize elements use the same s[n/4]/s[3n/4] indexing
// the harness has always used; smaller samples interpolate between the
// two nearest ranks instead, since a raw index is too coarse once n
// drops into the single digits.
func Quartiles(sorted []float64) (float64, float64) {
	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	if n >= minQuartileSampleSize {
		return sorted[n/4], sorted[3*n/4]
	}
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return q1, q3
}

// DetectOutliers returns every sample value outside the Tukey fence
// [q1-k·iqr, q3+k·iqr]. Samples smaller than 4 elements never produce
// outliers.
func (s *Sample) DetectOutliers(k float64) []float64 {
	n := len(s.values)
	if n < 4 {
		return nil
	}
	sorted := s.sorted()
	q1, q3 := Quartiles(sorted)
	iqr := q3 - q1
	lower, upper := q1-k*iqr, q3+k*iqr

	var outliers []float64
	for _, v := range s.values {
		if v < lower || v > upper {
			outliers = append(outliers, v)
		}
	}
	return outliers
}

// RemoveOutliers drops every Tukey-fence outlier at multiplier k and
// reports whether anything was removed. It is idempotent: calling it
// again immediately afterward at the same k returns false.
func (s *Sample) RemoveOutliers(k float64) bool {
	outliers := s.DetectOutliers(k)
	if len(outliers) == 0 {
		return false
	}

	sorted := s.sorted()
	q1, q3 := Quartiles(sorted)
	iqr := q3 - q1
	lower, upper := q1-k*iqr, q3+k*iqr

	cleaned := make([]float64, 0, len(s.values))
	for _, v := range s.values {
		if v >= lower && v <= upper {
			cleaned = append(cleaned, v)
		}
	}

	if len(cleaned) < len(s.values) {
		s.values = cleaned
		return true
	}
	return false
}
