package models

import "time"

// EpochStats captures the loss curve of one training epoch.
type EpochStats struct {
	Epoch   int     `json:"epoch"`
	Loss    float64 `json:"loss"`
	ValLoss float64 `json:"val_loss,omitempty"`
}

// ModelResult is the outcome of training and evaluating one reconstruction model.
type ModelResult struct {
	Name                string        `json:"name"`
	Variant             string        `json:"variant"`
	ReconstructionError float64       `json:"mse"`
	Accuracy            float64       `json:"accuracy"`
	TrainingTime        time.Duration `json:"training_time"`
	History             []EpochStats  `json:"history,omitempty"`
	Reconstructions     Matrix        `json:"-"`
}

// ErrorSummary describes the distribution of per-record reconstruction errors.
type ErrorSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Max    float64 `json:"max"`
}

// ScoredRecord pairs a record with its encoded features and anomaly verdict.
type ScoredRecord struct {
	Index    int           `json:"index"`
	Record   LogRecord     `json:"record"`
	Features FeatureVector `json:"features"`
	Error    float64       `json:"error"`
	Anomaly  bool          `json:"anomaly"`
}
