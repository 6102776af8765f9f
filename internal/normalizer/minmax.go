// Package normalizer rescales feature columns into [0, 1].
package normalizer

import (
	"errors"
	"fmt"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var (
	ErrRaggedMatrix = errors.New("rows have different widths")
	ErrWidth        = errors.New("matrix width does not match fitted parameters")
)

// Params holds the per-column bounds observed at fit time.
type Params struct {
	min []float64
	max []float64
}

func (p *Params) Width() int {
	return len(p.min)
}

func (p *Params) Min() []float64 {
	return append([]float64(nil), p.min...)
}

func (p *Params) Max() []float64 {
	return append([]float64(nil), p.max...)
}

// Fit computes column bounds without transforming.
func Fit(m models.Matrix) (*Params, error) {
	if m.IsRagged() {
		return nil, ErrRaggedMatrix
	}

	_, cols := m.Dims()
	p := &Params{
		min: make([]float64, cols),
		max: make([]float64, cols),
	}
	if cols == 0 {
		return p, nil
	}

	copy(p.min, m[0])
	copy(p.max, m[0])
	for _, row := range m[1:] {
		for j, v := range row {
			if v < p.min[j] {
				p.min[j] = v
			}
			if v > p.max[j] {
				p.max[j] = v
			}
		}
	}
	return p, nil
}

// FitTransform fits on m and returns the scaled copy.
func FitTransform(m models.Matrix) (models.Matrix, *Params, error) {
	p, err := Fit(m)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := p.Transform(m)
	if err != nil {
		return nil, nil, err
	}
	return scaled, p, nil
}

// Transform scales m with the fitted bounds. A column that was constant at
// fit time scales to 0.
func (p *Params) Transform(m models.Matrix) (models.Matrix, error) {
	if err := p.check(m); err != nil {
		return nil, err
	}

	out := make(models.Matrix, len(m))
	for i, row := range m {
		scaled := make([]float64, len(row))
		for j, v := range row {
			span := p.max[j] - p.min[j]
			if span == 0 {
				continue
			}
			scaled[j] = (v - p.min[j]) / span
		}
		out[i] = scaled
	}
	return out, nil
}

// InverseTransform maps scaled values back to the original units. Constant
// columns come back as their fitted value.
func (p *Params) InverseTransform(m models.Matrix) (models.Matrix, error) {
	if err := p.check(m); err != nil {
		return nil, err
	}

	out := make(models.Matrix, len(m))
	for i, row := range m {
		orig := make([]float64, len(row))
		for j, v := range row {
			orig[j] = v*(p.max[j]-p.min[j]) + p.min[j]
		}
		out[i] = orig
	}
	return out, nil
}

func (p *Params) check(m models.Matrix) error {
	if m.IsRagged() {
		return ErrRaggedMatrix
	}
	if rows, cols := m.Dims(); rows > 0 && cols != p.Width() {
		return fmt.Errorf("%w: got %d, want %d", ErrWidth, cols, p.Width())
	}
	return nil
}
