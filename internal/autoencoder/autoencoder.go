package autoencoder

import (
	"context"
	"math/rand"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// Autoencoder is a deterministic encoder/decoder network. The plain and
// sparse variants share one hidden bottleneck layer; the sparse variant adds
// an L1 activity penalty on it. The stacked variant compresses in two steps.
type Autoencoder struct {
	name     string
	variant  Variant
	inputDim int
	cfg      Config
	net      *stack
	opt      *adam
	rng      *rand.Rand
}

func newAutoencoder(variant Variant, name string, inputDim int, cfg Config, rng *rand.Rand) *Autoencoder {
	b := cfg.BottleneckUnits

	var net *stack
	switch variant {
	case VariantStacked:
		net = newStack(
			[]int{inputDim, 2 * b, b, 2 * b, inputDim},
			[]activation{relu, relu, relu, sigmoid},
			rng,
		)
	default:
		net = newStack(
			[]int{inputDim, b, inputDim},
			[]activation{relu, sigmoid},
			rng,
		)
		if variant == VariantSparse {
			net.l1[0] = cfg.SparsityPenalty
		}
	}

	return &Autoencoder{
		name:     name,
		variant:  variant,
		inputDim: inputDim,
		cfg:      cfg,
		net:      net,
		opt:      newAdam(cfg.LearningRate),
		rng:      rng,
	}
}

func (a *Autoencoder) Name() string {
	return a.name
}

func (a *Autoencoder) Variant() Variant {
	return a.variant
}

func (a *Autoencoder) Train(ctx context.Context, m models.Matrix) ([]models.EpochStats, error) {
	if err := checkInput(m, a.inputDim); err != nil {
		return nil, err
	}
	return fit(ctx, a, a.opt, m, a.cfg, a.rng)
}

func (a *Autoencoder) Predict(m models.Matrix) (models.Matrix, error) {
	if err := checkInput(m, a.inputDim); err != nil {
		return nil, err
	}
	out := make(models.Matrix, len(m))
	for i, row := range m {
		out[i] = a.net.forward(row).output()
	}
	return out, nil
}

func (a *Autoencoder) step(x []float64, train bool) float64 {
	t := a.net.forward(x)
	loss, grad := reconstructionGrad(x, t.output())
	loss += a.net.penalty(t)
	if train {
		a.net.backward(t, grad)
	}
	return loss
}

func (a *Autoencoder) params() []*dense {
	return a.net.layers
}
