package task

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the review state of a document version.
type DocumentStatus string

const (
	// DocumentStatusDraft indicates the document is being generated.
	DocumentStatusDraft DocumentStatus = "draft"
	// DocumentStatusInReview indicates the document awaits approval or feedback.
	DocumentStatusInReview DocumentStatus = "in_review"
	// DocumentStatusLocked indicates review finished; the version is frozen.
	DocumentStatusLocked DocumentStatus = "locked"
)

// IsValid returns true if the status is a known document status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusInReview, DocumentStatusLocked:
		return true
	default:
		return false
	}
}

// Document kinds.
const (
	// KindPlan is the plan artifact produced by the planning stage.
	KindPlan = "PLAN"
)

// Document is a versioned artifact produced by a task stage. Versions
// are append-only: a revision creates a new version and earlier
// versions are retained for audit.
type Document struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Version   int            `json:"version"`
	Kind      string         `json:"kind"`
	Body      string         `json:"body"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewDocument creates a document version for a task.
func NewDocument(taskID, kind, body string, version int) *Document {
	return &Document{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Version:   version,
		Kind:      kind,
		Body:      body,
		Status:    DocumentStatusInReview,
		CreatedAt: time.Now().UTC(),
	}
}

// Feedback is free text attached to a specific document version.
// Feedback rows are append-only and never mutated.
type Feedback struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewFeedback creates a feedback entry for a document.
func NewFeedback(documentID, body string) *Feedback {
	return &Feedback{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
}
