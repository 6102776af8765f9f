package autoencoder

import (
	"context"
	"math/rand"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// learner is what the shared training loop needs from a network.
type learner interface {
	// step runs one sample forward, accumulates gradients when train is set,
	// and returns the sample loss.
	step(x []float64, train bool) float64
	params() []*dense
}

// fit trains on the leading rows of m and validates on the trailing
// ValidationSplit fraction. Training rows are reshuffled every epoch.
func fit(ctx context.Context, l learner, opt *adam, m models.Matrix, cfg Config, rng *rand.Rand) ([]models.EpochStats, error) {
	n := len(m)
	if n == 0 {
		return nil, nil
	}

	split := int(float64(n) * (1 - cfg.ValidationSplit))
	if split <= 0 {
		split = n
	}
	train, val := m[:split], m[split:]

	history := make([]models.EpochStats, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}

		var total float64
		order := rng.Perm(len(train))
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			for _, idx := range order[start:end] {
				total += l.step(train[idx], true)
			}
			opt.step(l.params(), end-start)
		}

		stats := models.EpochStats{Epoch: epoch, Loss: total / float64(len(train))}
		if len(val) > 0 {
			var valTotal float64
			for _, row := range val {
				valTotal += l.step(row, false)
			}
			stats.ValLoss = valTotal / float64(len(val))
		}
		history = append(history, stats)
	}

	return history, nil
}

// reconstructionGrad returns the mean squared error of y against x and its
// gradient with respect to y.
func reconstructionGrad(x, y []float64) (float64, []float64) {
	grad := make([]float64, len(y))
	var loss float64
	d := float64(len(x))
	for i := range x {
		diff := y[i] - x[i]
		loss += diff * diff
		grad[i] = 2 * diff / d
	}
	return loss / d, grad
}
