package websocket

import (
	"time"

	"fedflow/internal/pipeline"
	"fedflow/pkg/contracts/domain"
)

// EventPublisher adapts the hub to the pipeline's Publisher interface so
// stage transitions and run snapshots stream to connected clients. Broadcasts
// go through the hub's non-blocking queue, which is what lets the pipeline
// call it inline.
type EventPublisher struct {
	hub *Hub
}

var _ pipeline.Publisher = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher bound to the given hub.
func NewEventPublisher(hub *Hub) *EventPublisher {
	return &EventPublisher{hub: hub}
}

// PublishStage broadcasts one stage transition.
func (p *EventPublisher) PublishStage(runID, stage string, status domain.StageStatus, message string) {
	p.hub.BroadcastJSON(map[string]interface{}{
		"type": TypeStageProgress,
		"data": map[string]interface{}{
			"run_id":  runID,
			"stage":   stage,
			"status":  string(status),
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// PublishRun broadcasts a full run snapshot after each persisted transition.
func (p *EventPublisher) PublishRun(record domain.RunRecord) {
	p.hub.BroadcastJSON(map[string]interface{}{
		"type":      TypeRunStatus,
		"data":      record,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
