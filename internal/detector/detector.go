// Package detector scores reconstructions, derives the data-dependent
// anomaly threshold and picks the best model of a pool.
package detector

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

const DefaultPercentile = 95.0

var (
	ErrShapeMismatch     = errors.New("original and reconstruction shapes differ")
	ErrNoModels          = errors.New("no trained models to select from")
	ErrNoValues          = errors.New("no values to compute a percentile over")
	ErrInvalidPercentile = errors.New("percentile must be within [0, 100]")
)

// Detection is the scoring outcome of one model over a batch.
type Detection struct {
	Errors     []float64
	Percentile float64
	Threshold  float64
	Flags      []bool
	Count      int
}

func checkShape(orig, recon models.Matrix) error {
	if len(orig) != len(recon) {
		return fmt.Errorf("%w: %d rows vs %d rows", ErrShapeMismatch, len(orig), len(recon))
	}
	for i := range orig {
		if len(orig[i]) != len(recon[i]) {
			return fmt.Errorf("%w: row %d has %d vs %d columns", ErrShapeMismatch, i, len(orig[i]), len(recon[i]))
		}
	}
	return nil
}

// RowErrors returns the mean absolute difference of every row.
func RowErrors(orig, recon models.Matrix) ([]float64, error) {
	if err := checkShape(orig, recon); err != nil {
		return nil, err
	}

	out := make([]float64, len(orig))
	for i := range orig {
		if len(orig[i]) == 0 {
			continue
		}
		var sum float64
		for j := range orig[i] {
			sum += math.Abs(orig[i][j] - recon[i][j])
		}
		out[i] = sum / float64(len(orig[i]))
	}
	return out, nil
}

// MSE is the mean squared error over every cell of the matrix.
func MSE(orig, recon models.Matrix) (float64, error) {
	if err := checkShape(orig, recon); err != nil {
		return 0, err
	}

	var sum float64
	var cells int
	for i := range orig {
		for j := range orig[i] {
			d := orig[i][j] - recon[i][j]
			sum += d * d
			cells++
		}
	}
	if cells == 0 {
		return 0, nil
	}
	return sum / float64(cells), nil
}

func Accuracy(mse float64) float64 {
	return 1 - mse
}

// Percentile interpolates linearly between the closest ranks of the sorted
// values, matching numpy's default percentile method.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPercentile, p)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}

func Threshold(errs []float64, percentile float64) (float64, error) {
	return Percentile(errs, percentile)
}

// Flag marks values strictly greater than threshold.
func Flag(errs []float64, threshold float64) ([]bool, int) {
	flags := make([]bool, len(errs))
	count := 0
	for i, e := range errs {
		if e > threshold {
			flags[i] = true
			count++
		}
	}
	return flags, count
}

// Detect scores recon against orig and flags the rows above the given
// percentile of the batch's own error distribution.
func Detect(orig, recon models.Matrix, percentile float64) (*Detection, error) {
	errs, err := RowErrors(orig, recon)
	if err != nil {
		return nil, err
	}

	d := &Detection{Errors: errs, Percentile: percentile, Flags: []bool{}}
	if len(errs) == 0 {
		return d, nil
	}

	d.Threshold, err = Threshold(errs, percentile)
	if err != nil {
		return nil, err
	}
	d.Flags, d.Count = Flag(errs, d.Threshold)
	return d, nil
}

// SelectBest returns the index of the most accurate result. The earliest
// result wins a tie and a NaN accuracy never wins.
func SelectBest(results []models.ModelResult) (int, error) {
	if len(results) == 0 {
		return -1, ErrNoModels
	}

	best := -1
	for i, r := range results {
		if math.IsNaN(r.Accuracy) {
			continue
		}
		if best < 0 || r.Accuracy > results[best].Accuracy {
			best = i
		}
	}
	if best < 0 {
		return 0, nil
	}
	return best, nil
}

// Summarize describes the error distribution of a detection.
func Summarize(errs []float64) models.ErrorSummary {
	if len(errs) == 0 {
		return models.ErrorSummary{}
	}

	var s models.ErrorSummary
	s.Mean, _ = stats.Mean(errs)
	s.Median, _ = stats.Median(errs)
	s.StdDev, _ = stats.StandardDeviation(errs)
	s.Max, _ = stats.Max(errs)
	return s
}
