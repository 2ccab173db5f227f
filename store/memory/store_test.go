package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/task"
)

func TestStore_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	tk := task.New("user-1", "Summarize release notes", task.TypeIntern)
	require.NoError(t, s.CreateTask(ctx, tk))

	// Duplicate creation is rejected.
	assert.ErrorIs(t, s.CreateTask(ctx, tk), store.ErrAlreadyExists)

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, task.StageInit, got.Stage)

	// Mutating the returned copy does not affect stored state.
	got.Stage = task.StageExecuting
	stored, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StageInit, stored.Stage)

	got.StageStatus = task.RunningStatus(50)
	require.NoError(t, s.UpdateTask(ctx, got))

	updated, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StageExecuting, updated.Stage)
	assert.Equal(t, 50, updated.Progress())
}

func TestStore_GetTask_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.UpdateTask(context.Background(), &task.Task{ID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DocumentVersions(t *testing.T) {
	ctx := context.Background()
	s := New()

	v1 := task.NewDocument("task-1", task.KindPlan, "plan v1", 1)
	v2 := task.NewDocument("task-1", task.KindPlan, "plan v2", 2)
	other := task.NewDocument("task-2", task.KindPlan, "unrelated", 1)

	require.NoError(t, s.CreateDocument(ctx, v1))
	require.NoError(t, s.CreateDocument(ctx, v2))
	require.NoError(t, s.CreateDocument(ctx, other))

	latest, err := s.LatestDocument(ctx, "task-1", task.KindPlan)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "plan v2", latest.Body)

	docs, err := s.ListDocuments(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].Version)
	assert.Equal(t, 2, docs[1].Version)

	_, err = s.LatestDocument(ctx, "task-3", task.KindPlan)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_UpdateDocumentStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := task.NewDocument("task-1", task.KindPlan, "plan v1", 1)
	require.NoError(t, s.CreateDocument(ctx, d))

	require.NoError(t, s.UpdateDocumentStatus(ctx, d.ID, task.DocumentStatusLocked))

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, task.DocumentStatusLocked, got.Status)

	assert.ErrorIs(t, s.UpdateDocumentStatus(ctx, "missing", task.DocumentStatusLocked), store.ErrNotFound)
}

func TestStore_Feedback(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := task.NewDocument("task-1", task.KindPlan, "plan v1", 1)
	require.NoError(t, s.CreateDocument(ctx, d))

	f1 := task.NewFeedback(d.ID, "add a rollout section")
	f2 := task.NewFeedback(d.ID, "tighten step 3")
	require.NoError(t, s.AddFeedback(ctx, f1))
	require.NoError(t, s.AddFeedback(ctx, f2))

	entries, err := s.ListFeedback(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "add a rollout section", entries[0].Body)

	none, err := s.ListFeedback(ctx, "other-doc")
	require.NoError(t, err)
	assert.Empty(t, none)
}
