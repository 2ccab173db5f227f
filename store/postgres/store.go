// Package postgres implements store.Store on top of PostgreSQL
// using pgx. Schema migrations are embedded and applied by Migrate.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/task"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a PostgreSQL-backed implementation of store.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration and lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New connects to PostgreSQL using the given connection string.
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return NewFromPool(pool, opts...), nil
}

// NewFromPool wraps an existing connection pool.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema migrations in lexical order.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := fs.ReadFile(migrations, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "name", name)
	}

	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	const q = `
		INSERT INTO agentflow_tasks
			(id, owner_id, title, type, stage, stage_status, workflow_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		t.ID, t.OwnerID, t.Title, string(t.Type),
		string(t.Stage), t.StageStatus, t.WorkflowID,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	const q = `
		SELECT id, owner_id, title, type, stage, stage_status, workflow_id, created_at, updated_at
		FROM agentflow_tasks WHERE id = $1`

	var t task.Task
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.Type,
		&t.Stage, &t.StageStatus, &t.WorkflowID,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	const q = `
		UPDATE agentflow_tasks
		SET owner_id = $2, title = $3, type = $4, stage = $5,
		    stage_status = $6, workflow_id = $7, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		t.ID, t.OwnerID, t.Title, string(t.Type),
		string(t.Stage), t.StageStatus, t.WorkflowID)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", t.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, d *task.Document) error {
	const q = `
		INSERT INTO agentflow_documents
			(id, task_id, version, kind, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		d.ID, d.TaskID, d.Version, d.Kind, d.Body, string(d.Status), d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", d.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*task.Document, error) {
	const q = `
		SELECT id, task_id, version, kind, body, status, created_at
		FROM agentflow_documents WHERE id = $1`

	var d task.Document
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&d.ID, &d.TaskID, &d.Version, &d.Kind, &d.Body, &d.Status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return &d, nil
}

func (s *Store) LatestDocument(ctx context.Context, taskID, kind string) (*task.Document, error) {
	const q = `
		SELECT id, task_id, version, kind, body, status, created_at
		FROM agentflow_documents
		WHERE task_id = $1 AND kind = $2
		ORDER BY version DESC LIMIT 1`

	var d task.Document
	err := s.pool.QueryRow(ctx, q, taskID, kind).Scan(
		&d.ID, &d.TaskID, &d.Version, &d.Kind, &d.Body, &d.Status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document for task %s kind %s: %w", taskID, kind, store.ErrNotFound)
		}
		return nil, fmt.Errorf("querying latest document: %w", err)
	}
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, taskID string) ([]*task.Document, error) {
	const q = `
		SELECT id, task_id, version, kind, body, status, created_at
		FROM agentflow_documents
		WHERE task_id = $1
		ORDER BY version ASC`

	rows, err := s.pool.Query(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*task.Document
	for rows.Next() {
		var d task.Document
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Version, &d.Kind, &d.Body, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status task.DocumentStatus) error {
	const q = `UPDATE agentflow_documents SET status = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) AddFeedback(ctx context.Context, f *task.Feedback) error {
	const q = `
		INSERT INTO agentflow_feedback (id, document_id, body, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, f.ID, f.DocumentID, f.Body, f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("feedback %s: %w", f.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

func (s *Store) ListFeedback(ctx context.Context, documentID string) ([]*task.Feedback, error) {
	const q = `
		SELECT id, document_id, body, created_at
		FROM agentflow_feedback
		WHERE document_id = $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var items []*task.Feedback
	for rows.Next() {
		var f task.Feedback
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Body, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		items = append(items, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedback: %w", err)
	}
	return items, nil
}
