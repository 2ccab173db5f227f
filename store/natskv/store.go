// Package natskv provides a record store backed by NATS JetStream
// key-value buckets. Records are stored as JSON values keyed by ID.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/task"
)

// Bucket names for each record family.
const (
	BucketTasks     = "AGENTFLOW_TASKS"
	BucketDocuments = "AGENTFLOW_DOCUMENTS"
	BucketFeedback  = "AGENTFLOW_FEEDBACK"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store provides record storage backed by NATS KV.
type Store struct {
	tasks     jetstream.KeyValue
	documents jetstream.KeyValue
	feedback  jetstream.KeyValue
}

// New creates a Store with the given JetStream context, creating the
// KV buckets if they don't exist.
func New(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	tasks, err := getOrCreateBucket(ctx, js, BucketTasks)
	if err != nil {
		return nil, fmt.Errorf("create tasks bucket: %w", err)
	}

	documents, err := getOrCreateBucket(ctx, js, BucketDocuments)
	if err != nil {
		return nil, fmt.Errorf("create documents bucket: %w", err)
	}

	feedback, err := getOrCreateBucket(ctx, js, BucketFeedback)
	if err != nil {
		return nil, fmt.Errorf("create feedback bucket: %w", err)
	}

	return &Store{
		tasks:     tasks,
		documents: documents,
		feedback:  feedback,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Agentflow %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Ping is a no-op: bucket handles are validated at construction.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op: the NATS connection is owned by the caller.
func (s *Store) Close() error { return nil }

// CreateTask persists a new task record.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if _, err := s.tasks.Create(ctx, t.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("store task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	entry, err := s.tasks.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

// UpdateTask rewrites an existing task record.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	if _, err := s.tasks.Get(ctx, t.ID); err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("get task: %w", err)
	}

	t.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if _, err := s.tasks.Put(ctx, t.ID, data); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// CreateDocument persists a new document version.
func (s *Store) CreateDocument(ctx context.Context, d *task.Document) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.documents.Create(ctx, d.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*task.Document, error) {
	entry, err := s.documents.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	var d task.Document
	if err := json.Unmarshal(entry.Value(), &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &d, nil
}

// LatestDocument returns the highest-version document of a kind for a task.
func (s *Store) LatestDocument(ctx context.Context, taskID, kind string) (*task.Document, error) {
	docs, err := s.ListDocuments(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var latest *task.Document
	for _, d := range docs {
		if d.Kind != kind {
			continue
		}
		if latest == nil || d.Version > latest.Version {
			latest = d
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

// ListDocuments returns all documents for a task, ordered by version.
// Document buckets stay small (one entry per plan revision), so a key
// scan is sufficient.
func (s *Store) ListDocuments(ctx context.Context, taskID string) ([]*task.Document, error) {
	keys, err := s.documents.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list document keys: %w", err)
	}

	docs := make([]*task.Document, 0, len(keys))
	for _, key := range keys {
		entry, err := s.documents.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var d task.Document
		if err := json.Unmarshal(entry.Value(), &d); err != nil {
			continue
		}
		if d.TaskID == taskID {
			docs = append(docs, &d)
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Version < docs[j].Version })
	return docs, nil
}

// UpdateDocumentStatus changes the review status of a document version.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status task.DocumentStatus) error {
	d, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	d.Status = status

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.documents.Put(ctx, id, data); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// AddFeedback appends a feedback entry for a document version.
func (s *Store) AddFeedback(ctx context.Context, f *task.Feedback) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if _, err := s.feedback.Create(ctx, f.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("store feedback: %w", err)
	}
	return nil
}

// ListFeedback returns all feedback for a document, oldest first.
func (s *Store) ListFeedback(ctx context.Context, documentID string) ([]*task.Feedback, error) {
	keys, err := s.feedback.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list feedback keys: %w", err)
	}

	entries := make([]*task.Feedback, 0, len(keys))
	for _, key := range keys {
		entry, err := s.feedback.Get(ctx, key)
		if err != nil {
			continue
		}
		var f task.Feedback
		if err := json.Unmarshal(entry.Value(), &f); err != nil {
			continue
		}
		if f.DocumentID == documentID {
			entries = append(entries, &f)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}
