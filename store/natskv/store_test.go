package natskv

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/task"
)

// newTestStore starts an embedded NATS server with JetStream and opens
// a Store against it.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	opts := &server.Options{
		Port:      -1, // Random available port
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	st, err := New(context.Background(), js)
	require.NoError(t, err)
	return st
}

func TestTaskLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tk := task.New("alice", "index the wiki", task.TypeTribalSearch)
	require.NoError(t, st.CreateTask(ctx, tk))

	err := st.CreateTask(ctx, tk)
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := st.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, tk.ID, got.ID)
	require.Equal(t, task.StageInit, got.Stage)

	got.Stage = task.StagePlanning
	got.StageStatus = task.StatusRunning
	require.NoError(t, st.UpdateTask(ctx, got))

	got, err = st.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.StagePlanning, got.Stage)

	_, err = st.GetTask(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateMissingTask(t *testing.T) {
	st := newTestStore(t)

	tk := task.New("alice", "never created", task.TypeIntern)
	err := st.UpdateTask(context.Background(), tk)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDocumentVersions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tk := task.New("bob", "draft the migration plan", task.TypeIntern)
	require.NoError(t, st.CreateTask(ctx, tk))

	v1 := task.NewDocument(tk.ID, task.KindPlan, "first draft", 1)
	v2 := task.NewDocument(tk.ID, task.KindPlan, "second draft", 2)
	require.NoError(t, st.CreateDocument(ctx, v1))
	require.NoError(t, st.CreateDocument(ctx, v2))

	latest, err := st.LatestDocument(ctx, tk.ID, task.KindPlan)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
	require.Equal(t, "second draft", latest.Body)

	docs, err := st.ListDocuments(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, 1, docs[0].Version)
	require.Equal(t, 2, docs[1].Version)

	require.NoError(t, st.UpdateDocumentStatus(ctx, v1.ID, task.DocumentStatusLocked))
	got, err := st.GetDocument(ctx, v1.ID)
	require.NoError(t, err)
	require.Equal(t, task.DocumentStatusLocked, got.Status)

	_, err = st.LatestDocument(ctx, "missing", task.KindPlan)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFeedbackOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tk := task.New("bob", "draft the migration plan", task.TypeIntern)
	require.NoError(t, st.CreateTask(ctx, tk))
	doc := task.NewDocument(tk.ID, task.KindPlan, "draft", 1)
	require.NoError(t, st.CreateDocument(ctx, doc))

	first := task.NewFeedback(doc.ID, "too vague")
	second := task.NewFeedback(doc.ID, "needs a rollback step")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, st.AddFeedback(ctx, first))
	require.NoError(t, st.AddFeedback(ctx, second))

	items, err := st.ListFeedback(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "too vague", items[0].Body)
	require.Equal(t, "needs a rollback step", items[1].Body)
}
