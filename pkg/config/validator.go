package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true, "cli": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: cli, development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Detector validation
	if c.Detector.Percentile < 0 || c.Detector.Percentile > 100 {
		errs = append(errs, errors.New("detector.percentile must be between 0 and 100"))
	}
	if _, err := c.Detector.Variants(); err != nil {
		errs = append(errs, fmt.Errorf("detector.models: %w", err))
	}
	if c.Detector.OutputPath == "" {
		errs = append(errs, errors.New("detector.output_path is required"))
	}
	seen := make(map[string]bool)
	for _, m := range c.Detector.Models {
		if seen[m] {
			errs = append(errs, fmt.Errorf("detector.models lists %q twice", m))
		}
		seen[m] = true
	}

	// Model validation
	if c.Model.BottleneckUnits <= 0 {
		errs = append(errs, errors.New("model.bottleneck_units must be positive"))
	}
	if c.Model.LatentUnits <= 0 {
		errs = append(errs, errors.New("model.latent_units must be positive"))
	}
	if c.Model.Epochs <= 0 {
		errs = append(errs, errors.New("model.epochs must be positive"))
	}
	if c.Model.BatchSize <= 0 {
		errs = append(errs, errors.New("model.batch_size must be positive"))
	}
	if c.Model.ValidationSplit < 0 || c.Model.ValidationSplit >= 1 {
		errs = append(errs, errors.New("model.validation_split must be in [0, 1)"))
	}
	if c.Model.LearningRate <= 0 {
		errs = append(errs, errors.New("model.learning_rate must be positive"))
	}
	if c.Model.SparsityPenalty < 0 {
		errs = append(errs, errors.New("model.sparsity_penalty must not be negative"))
	}

	// Database validation
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, errors.New("database.max_connections must be positive"))
		}
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
