// Package memory provides a fully in-memory record store, safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/task"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	tasks     map[string]*task.Task
	documents map[string]*task.Document
	feedback  map[string]*task.Feedback
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tasks:     make(map[string]*task.Task),
		documents: make(map[string]*task.Document),
		feedback:  make(map[string]*task.Feedback),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// CreateTask persists a new task record.
func (m *Store) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[t.ID]; exists {
		return store.ErrAlreadyExists
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask rewrites an existing task record.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[t.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[t.ID] = &cp
	return nil
}

// CreateDocument persists a new document version.
func (m *Store) CreateDocument(_ context.Context, d *task.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.documents[d.ID]; exists {
		return store.ErrAlreadyExists
	}
	cp := *d
	m.documents[d.ID] = &cp
	return nil
}

// GetDocument retrieves a document by ID.
func (m *Store) GetDocument(_ context.Context, id string) (*task.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.documents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// LatestDocument returns the highest-version document of a kind for a task.
func (m *Store) LatestDocument(_ context.Context, taskID, kind string) (*task.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *task.Document
	for _, d := range m.documents {
		if d.TaskID != taskID || d.Kind != kind {
			continue
		}
		if latest == nil || d.Version > latest.Version {
			latest = d
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// ListDocuments returns all documents for a task, ordered by version.
func (m *Store) ListDocuments(_ context.Context, taskID string) ([]*task.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []*task.Document
	for _, d := range m.documents {
		if d.TaskID != taskID {
			continue
		}
		cp := *d
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Version < docs[j].Version })
	return docs, nil
}

// UpdateDocumentStatus changes the review status of a document version.
func (m *Store) UpdateDocumentStatus(_ context.Context, id string, status task.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	return nil
}

// AddFeedback appends a feedback entry for a document version.
func (m *Store) AddFeedback(_ context.Context, f *task.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.feedback[f.ID]; exists {
		return store.ErrAlreadyExists
	}
	cp := *f
	m.feedback[f.ID] = &cp
	return nil
}

// ListFeedback returns all feedback for a document, oldest first.
func (m *Store) ListFeedback(_ context.Context, documentID string) ([]*task.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*task.Feedback
	for _, f := range m.feedback {
		if f.DocumentID != documentID {
			continue
		}
		cp := *f
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}
