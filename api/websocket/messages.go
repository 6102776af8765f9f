package websocket

import (
	"encoding/json"
	"time"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

type MessageType string

const (
	MessageTypeRunStarted   MessageType = "run_started"
	MessageTypeRunProgress  MessageType = "run_progress"
	MessageTypeModelUpdate  MessageType = "model_update"
	MessageTypeRunCompleted MessageType = "run_completed"
	MessageTypeRunFailed    MessageType = "run_failed"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscription MessageType = "subscription_update"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewMessage(msgType MessageType, runID string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

type SubscriptionData struct {
	Action string `json:"action"`
}

func NewSubscriptionMessage(action, runID string) *OutgoingMessage {
	return NewMessage(MessageTypeSubscription, runID, SubscriptionData{Action: action})
}

// FromEvent converts a bus event into the message clients receive. Events
// clients have no use for convert to nil.
func FromEvent(event *models.Event) *OutgoingMessage {
	msgType := mapEventType(event.Type)
	if msgType == "" {
		return nil
	}

	return &OutgoingMessage{
		Type:      msgType,
		RunID:     event.RunID,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		TraceID:   event.TraceID,
		Data: map[string]interface{}{
			"event": event.Type,
			"data":  event.Data,
		},
	}
}

func mapEventType(eventType models.EventType) MessageType {
	switch eventType {
	case models.EventTypeRunStarted:
		return MessageTypeRunStarted
	case models.EventTypeRecordsParsed:
		return MessageTypeRunProgress
	case models.EventTypeModelTrained, models.EventTypeModelFailed, models.EventTypeModelSelected:
		return MessageTypeModelUpdate
	case models.EventTypeRunCompleted:
		return MessageTypeRunCompleted
	case models.EventTypeRunFailed:
		return MessageTypeRunFailed
	case models.EventTypeError:
		return MessageTypeError
	default:
		return ""
	}
}
