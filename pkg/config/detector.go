package config

import (
	"github.com/OldStager01/packet-anomaly/internal/autoencoder"
)

func (m ModelConfig) ToAutoencoderConfig() autoencoder.Config {
	return autoencoder.Config{
		BottleneckUnits: m.BottleneckUnits,
		SparsityPenalty: m.SparsityPenalty,
		LatentUnits:     m.LatentUnits,
		KLWeight:        m.KLWeight,
		Epochs:          m.Epochs,
		BatchSize:       m.BatchSize,
		ValidationSplit: m.ValidationSplit,
		LearningRate:    m.LearningRate,
		Seed:            m.Seed,
	}
}

// Variants resolves the configured model tags in pool order.
func (d DetectorConfig) Variants() ([]autoencoder.Variant, error) {
	if len(d.Models) == 0 {
		return autoencoder.DefaultVariants, nil
	}

	variants := make([]autoencoder.Variant, 0, len(d.Models))
	for _, name := range d.Models {
		v, err := autoencoder.ParseVariant(name)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}
