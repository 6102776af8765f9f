// Package autoencoder provides the reconstruction models scored by the
// detector. Every model learns to reproduce its input through a narrow
// bottleneck; records it reproduces poorly are anomaly candidates.
package autoencoder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var (
	ErrNotImplemented    = errors.New("model variant not implemented")
	ErrDimensionMismatch = errors.New("input width does not match model")
	ErrDuplicateModel    = errors.New("model already registered")
)

type Variant string

const (
	VariantPlain       Variant = "plain"
	VariantSparse      Variant = "sparse"
	VariantVariational Variant = "variational"
	VariantStacked     Variant = "stacked"
)

var displayNames = map[Variant]string{
	VariantPlain:       "AutoEncoder",
	VariantSparse:      "Sparse AutoEncoder",
	VariantVariational: "Variational AutoEncoder",
	VariantStacked:     "Stacked AutoEncoder",
}

// DefaultVariants is the pool every run trains unless configured otherwise.
var DefaultVariants = []Variant{VariantPlain, VariantSparse, VariantVariational, VariantStacked}

func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if _, ok := displayNames[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrNotImplemented, s)
	}
	return v, nil
}

func (v Variant) DisplayName() string {
	if name, ok := displayNames[v]; ok {
		return name
	}
	return string(v)
}

// Model is the train/predict contract the detector relies on.
type Model interface {
	Name() string
	Variant() Variant
	Train(ctx context.Context, m models.Matrix) ([]models.EpochStats, error)
	Predict(m models.Matrix) (models.Matrix, error)
}

type Config struct {
	BottleneckUnits int
	SparsityPenalty float64
	LatentUnits     int
	KLWeight        float64
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearningRate    float64
	Seed            int64
}

func DefaultConfig() Config {
	return Config{
		BottleneckUnits: 32,
		SparsityPenalty: 1e-4,
		LatentUnits:     4,
		KLWeight:        1e-3,
		Epochs:          10,
		BatchSize:       8,
		ValidationSplit: 0.2,
		LearningRate:    0.001,
		Seed:            42,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BottleneckUnits <= 0 {
		c.BottleneckUnits = d.BottleneckUnits
	}
	if c.LatentUnits <= 0 {
		c.LatentUnits = d.LatentUnits
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		c.ValidationSplit = d.ValidationSplit
	}
	return c
}

// New builds a model of the given variant for inputs of width inputDim.
// An empty name falls back to the variant's display name.
func New(variant Variant, name string, inputDim int, cfg Config) (Model, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrDimensionMismatch, inputDim)
	}
	if name == "" {
		name = variant.DisplayName()
	}
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	switch variant {
	case VariantPlain, VariantSparse, VariantStacked:
		return newAutoencoder(variant, name, inputDim, cfg, rng), nil
	case VariantVariational:
		return newVariational(name, inputDim, cfg, rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotImplemented, variant)
	}
}

func checkInput(m models.Matrix, inputDim int) error {
	if m.IsRagged() {
		return fmt.Errorf("%w: ragged matrix", ErrDimensionMismatch)
	}
	if rows, cols := m.Dims(); rows > 0 && cols != inputDim {
		return fmt.Errorf("%w: got %d columns, want %d", ErrDimensionMismatch, cols, inputDim)
	}
	return nil
}
