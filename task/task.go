// Package task defines the domain model for agentflow tasks: the task
// record itself, its lifecycle stages, the documents a task produces,
// and the feedback attached to them.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Type selects which pluggable agent implementation drives a task.
type Type string

const (
	// TypeIntern is the default agent: plan from the task title, then
	// execute a fixed number of work units.
	TypeIntern Type = "intern"
	// TypeTribalSearch gathers knowledge-base context before planning.
	TypeTribalSearch Type = "tribal_search"
)

// IsValid returns true if the type names a known agent implementation.
func (t Type) IsValid() bool {
	switch t {
	case TypeIntern, TypeTribalSearch:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// Task is the single shared mutable record for one logical task. It is
// mutated only by orchestration activities, never by external callers.
type Task struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Type        Type      `json:"type"`
	Stage       Stage     `json:"stage"`
	StageStatus string    `json:"stage_status"`
	// WorkflowID links the record to its active workflow execution, if any.
	WorkflowID string    `json:"workflow_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// New creates a task in its initial stage.
func New(ownerID, title string, taskType Type) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Type:        taskType,
		Stage:       StageInit,
		StageStatus: StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Progress returns the execution progress counter encoded in the
// stage status, or 0 if none is present.
func (t *Task) Progress() int {
	return ParseProgress(t.StageStatus)
}
