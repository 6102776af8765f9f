package models

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the bookkeeping entry for one batch pass over a set of capture logs.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Paths       []string   `json:"paths"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func NewRun(paths []string) *Run {
	return &Run{
		ID:        NewUUID(),
		Status:    RunStatusPending,
		Paths:     paths,
		StartedAt: time.Now(),
	}
}

func (r *Run) IsFinished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// RunReport is the complete result of a pipeline run.
type RunReport struct {
	RunID        string            `json:"run_id"`
	Paths        []string          `json:"paths"`
	SkippedFiles []string          `json:"skipped_files,omitempty"`
	RecordCount  int               `json:"record_count"`
	Percentile   float64           `json:"percentile"`
	Threshold    float64           `json:"threshold"`
	AnomalyCount int               `json:"anomaly_count"`
	BestModel    string            `json:"best_model,omitempty"`
	Models       []ModelResult     `json:"models"`
	FailedModels map[string]string `json:"failed_models,omitempty"`
	ErrorSummary ErrorSummary      `json:"error_summary"`
	Records      []ScoredRecord    `json:"-"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at"`
}

// Flags returns the anomaly verdict of every record in input order.
func (r *RunReport) Flags() []bool {
	flags := make([]bool, len(r.Records))
	for i, rec := range r.Records {
		flags[i] = rec.Anomaly
	}
	return flags
}
