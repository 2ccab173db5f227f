// Package store defines the record-store interface for agentflow.
// Each record family (tasks, documents, feedback) defines its own
// interface; the composite Store composes them. Backends: NATS KV,
// Postgres, and Memory.
package store

import (
	"context"

	"github.com/c360studio/agentflow/task"
)

// TaskStore persists task records. The task row is the only shared
// mutable record: it is updated via single-row read-modify-write from
// orchestration activities.
type TaskStore interface {
	// CreateTask persists a new task record.
	CreateTask(ctx context.Context, t *task.Task) error

	// GetTask retrieves a task by ID. Returns ErrNotFound if absent.
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// UpdateTask rewrites an existing task record. Returns ErrNotFound
	// if the task does not exist.
	UpdateTask(ctx context.Context, t *task.Task) error
}

// DocumentStore persists versioned task documents. Versions are
// append-only; only the status field of an existing version may change.
type DocumentStore interface {
	// CreateDocument persists a new document version.
	CreateDocument(ctx context.Context, d *task.Document) error

	// GetDocument retrieves a document by ID. Returns ErrNotFound if absent.
	GetDocument(ctx context.Context, id string) (*task.Document, error)

	// LatestDocument returns the highest-version document of the given
	// kind for a task. Returns ErrNotFound if the task has none.
	LatestDocument(ctx context.Context, taskID, kind string) (*task.Document, error)

	// ListDocuments returns all documents for a task, ordered by version.
	ListDocuments(ctx context.Context, taskID string) ([]*task.Document, error)

	// UpdateDocumentStatus changes the review status of a document version.
	UpdateDocumentStatus(ctx context.Context, id string, status task.DocumentStatus) error
}

// FeedbackStore persists append-only feedback rows.
type FeedbackStore interface {
	// AddFeedback appends a feedback entry for a document version.
	AddFeedback(ctx context.Context, f *task.Feedback) error

	// ListFeedback returns all feedback for a document, oldest first.
	ListFeedback(ctx context.Context, documentID string) ([]*task.Feedback, error)
}

// Store is the aggregate record-store interface. A single backend
// implements all record families.
type Store interface {
	TaskStore
	DocumentStore
	FeedbackStore

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
