package autoencoder

import (
	"context"
	"math"
	"math/rand"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// log-variance is clamped before exponentiation to keep sampling finite
const maxLogVar = 10

// Variational encodes each record to a Gaussian in a small latent space and
// decodes a sample drawn from it. The loss adds a KL term pulling the
// posterior toward a unit Gaussian. Predict decodes the posterior mean.
type Variational struct {
	name     string
	inputDim int
	cfg      Config

	encoder *stack
	mu      *dense
	logVar  *dense
	decoder *stack

	opt *adam
	rng *rand.Rand
}

func newVariational(name string, inputDim int, cfg Config, rng *rand.Rand) *Variational {
	b, latent := cfg.BottleneckUnits, cfg.LatentUnits
	return &Variational{
		name:     name,
		inputDim: inputDim,
		cfg:      cfg,
		encoder:  newStack([]int{inputDim, b}, []activation{relu}, rng),
		mu:       newDense(b, latent, linear, rng),
		logVar:   newDense(b, latent, linear, rng),
		decoder:  newStack([]int{latent, b, inputDim}, []activation{relu, sigmoid}, rng),
		opt:      newAdam(cfg.LearningRate),
		rng:      rng,
	}
}

func (v *Variational) Name() string {
	return v.name
}

func (v *Variational) Variant() Variant {
	return VariantVariational
}

func (v *Variational) Train(ctx context.Context, m models.Matrix) ([]models.EpochStats, error) {
	if err := checkInput(m, v.inputDim); err != nil {
		return nil, err
	}
	return fit(ctx, v, v.opt, m, v.cfg, v.rng)
}

func (v *Variational) Predict(m models.Matrix) (models.Matrix, error) {
	if err := checkInput(m, v.inputDim); err != nil {
		return nil, err
	}
	out := make(models.Matrix, len(m))
	for i, row := range m {
		h := v.encoder.forward(row).output()
		_, mu := v.mu.forward(h)
		out[i] = v.decoder.forward(mu).output()
	}
	return out, nil
}

func (v *Variational) step(x []float64, train bool) float64 {
	et := v.encoder.forward(x)
	h := et.output()
	muZ, mu := v.mu.forward(h)
	lvZ, lv := v.logVar.forward(h)

	latent := len(mu)
	z := make([]float64, latent)
	eps := make([]float64, latent)
	sigma := make([]float64, latent)
	var kl float64
	for k := 0; k < latent; k++ {
		l := math.Max(-maxLogVar, math.Min(maxLogVar, lv[k]))
		sigma[k] = math.Exp(0.5 * l)
		if train {
			eps[k] = v.rng.NormFloat64()
		}
		z[k] = mu[k] + sigma[k]*eps[k]
		kl += -0.5 * (1 + l - mu[k]*mu[k] - sigma[k]*sigma[k])
	}

	dt := v.decoder.forward(z)
	recon, gradY := reconstructionGrad(x, dt.output())
	loss := recon + v.cfg.KLWeight*kl
	if !train {
		return loss
	}

	gradZ := v.decoder.backward(dt, gradY)
	gradMu := make([]float64, latent)
	gradLv := make([]float64, latent)
	for k := 0; k < latent; k++ {
		gradMu[k] = gradZ[k] + v.cfg.KLWeight*mu[k]
		gradLv[k] = gradZ[k]*0.5*sigma[k]*eps[k] + v.cfg.KLWeight*0.5*(sigma[k]*sigma[k]-1)
	}

	gh := v.mu.backward(h, muZ, mu, gradMu)
	ghLv := v.logVar.backward(h, lvZ, lv, gradLv)
	for i := range gh {
		gh[i] += ghLv[i]
	}
	v.encoder.backward(et, gh)
	return loss
}

func (v *Variational) params() []*dense {
	layers := append([]*dense{}, v.encoder.layers...)
	layers = append(layers, v.mu, v.logVar)
	return append(layers, v.decoder.layers...)
}
