package models

import "time"

type EventType string

const (
	EventTypeRunStarted    EventType = "run_started"
	EventTypeRecordsParsed EventType = "records_parsed"
	EventTypeModelTrained  EventType = "model_trained"
	EventTypeModelFailed   EventType = "model_failed"
	EventTypeModelSelected EventType = "model_selected"
	EventTypeRunCompleted  EventType = "run_completed"
	EventTypeRunFailed     EventType = "run_failed"
	EventTypeError         EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	RunID     string        `json:"run_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, runID, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		RunID:     runID,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}

// ModelTrainedData is attached to model_trained events.
type ModelTrainedData struct {
	Name         string  `json:"name"`
	Variant      string  `json:"variant"`
	Accuracy     float64 `json:"accuracy"`
	MSE          float64 `json:"mse"`
	TrainingTime float64 `json:"training_time_seconds"`
}
