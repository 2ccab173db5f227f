// Package event defines the task lifecycle events published while a
// task progresses, and the publishers that deliver them. Events are
// advisory notifications for observers (UIs, log tails); delivery is
// at-most-once and failures never block orchestration.
package event

import "context"

// Event types published over the task event stream.
const (
	TypeStage    = "stage"
	TypeContext  = "context"
	TypePlan     = "plan"
	TypeTick     = "tick"
	TypeProgress = "progress"
)

// Event is a single lifecycle notification for a task.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StageEvent reports a stage transition.
func StageEvent(stage, stageStatus string) Event {
	return Event{
		Type: TypeStage,
		Payload: map[string]any{
			"stage":        stage,
			"stage_status": stageStatus,
		},
	}
}

// ContextEvent reports a context item gathered during planning.
func ContextEvent(source, summary string) Event {
	return Event{
		Type: TypeContext,
		Payload: map[string]any{
			"source":  source,
			"summary": summary,
		},
	}
}

// PlanEvent reports a new plan document version awaiting review.
func PlanEvent(documentID string, version int) Event {
	return Event{
		Type: TypePlan,
		Payload: map[string]any{
			"document_id": documentID,
			"version":     version,
		},
	}
}

// TickEvent reports a single completed unit of execution work.
func TickEvent(unit int, detail string) Event {
	return Event{
		Type: TypeTick,
		Payload: map[string]any{
			"unit":   unit,
			"detail": detail,
		},
	}
}

// ProgressEvent reports the durable execution checkpoint.
func ProgressEvent(completed, total int) Event {
	return Event{
		Type: TypeProgress,
		Payload: map[string]any{
			"completed": completed,
			"total":     total,
		},
	}
}

// Publisher delivers events for a task. Implementations must be safe
// for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, taskID string, ev Event) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
