package events

import (
	"fmt"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// Publisher turns pipeline milestones into bus events. A nil Publisher, or
// one without a bus, drops everything.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) RunStarted(run *models.Run) {
	msg := fmt.Sprintf("Run started over %d path(s)", len(run.Paths))
	event := models.NewEvent(models.EventTypeRunStarted, run.ID, msg).
		WithData(run)
	p.publish(event)
}

func (p *Publisher) RecordsParsed(runID string, files, records int) {
	msg := fmt.Sprintf("Parsed %d records from %d file(s)", records, files)
	event := models.NewEvent(models.EventTypeRecordsParsed, runID, msg).
		WithData(map[string]interface{}{
			"files":   files,
			"records": records,
		})

	if records == 0 {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) ModelTrained(runID string, result models.ModelResult) {
	msg := fmt.Sprintf("%s trained", result.Name)
	event := models.NewEvent(models.EventTypeModelTrained, runID, msg).
		WithData(trainedData(result))
	p.publish(event)
}

func (p *Publisher) ModelFailed(runID, model string, err error) {
	msg := fmt.Sprintf("%s failed", model)
	event := models.NewEvent(models.EventTypeModelFailed, runID, msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) ModelSelected(runID string, result models.ModelResult) {
	msg := "Best model: " + result.Name
	event := models.NewEvent(models.EventTypeModelSelected, runID, msg).
		WithData(trainedData(result))
	p.publish(event)
}

func (p *Publisher) RunCompleted(report *models.RunReport) {
	msg := fmt.Sprintf("Run complete: %d of %d records anomalous", report.AnomalyCount, report.RecordCount)
	event := models.NewEvent(models.EventTypeRunCompleted, report.RunID, msg).
		WithData(report)
	p.publish(event)
}

func (p *Publisher) RunFailed(runID string, err error) {
	event := models.NewEvent(models.EventTypeRunFailed, runID, "Run failed").
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) Error(runID string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, runID, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}

func trainedData(result models.ModelResult) models.ModelTrainedData {
	return models.ModelTrainedData{
		Name:         result.Name,
		Variant:      result.Variant,
		Accuracy:     result.Accuracy,
		MSE:          result.ReconstructionError,
		TrainingTime: result.TrainingTime.Seconds(),
	}
}
