package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/packet-anomaly/internal/autoencoder"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: packet-anomaly\n"))
	require.NoError(t, err)

	assert.Equal(t, "cli", cfg.App.Mode)
	assert.Equal(t, 95.0, cfg.Detector.Percentile)
	assert.Equal(t, "log_anomalies.csv", cfg.Detector.OutputPath)
	assert.Equal(t, []string{"plain", "sparse", "variational", "stacked"}, cfg.Detector.Models)
	assert.Equal(t, 32, cfg.Model.BottleneckUnits)
	assert.Equal(t, 1e-4, cfg.Model.SparsityPenalty)
	assert.Equal(t, 10, cfg.Model.Epochs)
	assert.Equal(t, 8, cfg.Model.BatchSize)
	assert.Equal(t, 0.2, cfg.Model.ValidationSplit)
	assert.Equal(t, 0.001, cfg.Model.LearningRate)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.API.JWTDuration)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
detector:
  percentile: 99
  models: [plain, stacked]
  parallel_training: true
model:
  epochs: 3
parser:
  skip_invalid_files: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 99.0, cfg.Detector.Percentile)
	assert.True(t, cfg.Detector.ParallelTraining)
	assert.True(t, cfg.Parser.SkipInvalidFiles)
	assert.Equal(t, 3, cfg.Model.Epochs)

	variants, err := cfg.Detector.Variants()
	require.NoError(t, err)
	assert.Equal(t, []autoencoder.Variant{autoencoder.VariantPlain, autoencoder.VariantStacked}, variants)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PACKETANOMALY_DETECTOR_OUTPUT_PATH", "/tmp/out.csv")
	t.Setenv("PACKETANOMALY_MODEL_SEED", "7")

	cfg, err := Load(writeConfig(t, "app:\n  name: x\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.csv", cfg.Detector.OutputPath)
	assert.Equal(t, int64(7), cfg.Model.Seed)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeConfig(t, "detector: [unclosed"))
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, "app:\n  name: packet-anomaly\n"))
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"percentile too high", func(c *Config) { c.Detector.Percentile = 101 }, "detector.percentile"},
		{"unknown model", func(c *Config) { c.Detector.Models = []string{"gan"} }, "detector.models"},
		{"duplicate model", func(c *Config) { c.Detector.Models = []string{"plain", "plain"} }, "twice"},
		{"bad split", func(c *Config) { c.Model.ValidationSplit = 1 }, "model.validation_split"},
		{"zero epochs", func(c *Config) { c.Model.Epochs = 0 }, "model.epochs"},
		{"bad mode", func(c *Config) { c.App.Mode = "batch" }, "app.mode"},
		{"db enabled without host", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Host = ""
		}, "database.host"},
		{"production default secret", func(c *Config) { c.App.Mode = "production" }, "jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToAutoencoderConfig(t *testing.T) {
	cfg := validConfig(t)
	ac := cfg.Model.ToAutoencoderConfig()
	assert.Equal(t, autoencoder.DefaultConfig(), ac)
}
