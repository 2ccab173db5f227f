package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/c360studio/agentflow/agent"
	"github.com/c360studio/agentflow/event"
	"github.com/c360studio/agentflow/store/memory"
	"github.com/c360studio/agentflow/task"
)

// testFixture wires real activities against an in-memory store so
// workflow tests exercise the full activity bodies.
type testFixture struct {
	store  *memory.Store
	events *event.Capture
	acts   *Activities
	task   *task.Task
}

func newFixture(t *testing.T, taskType task.Type, units int) *testFixture {
	t.Helper()

	st := memory.New()
	events := &event.Capture{}

	registry := agent.NewRegistry()
	registry.Register(task.TypeIntern, &agent.Intern{Units: units, UnitDuration: time.Millisecond})
	tribal := agent.NewTribalSearch()
	tribal.Units = units
	tribal.UnitDuration = time.Millisecond
	registry.Register(task.TypeTribalSearch, tribal)

	tk := task.New("alice", "summarize the incident history", taskType)
	require.NoError(t, st.CreateTask(context.Background(), tk))

	return &testFixture{
		store:  st,
		events: events,
		acts:   NewActivities(st, events, registry, slog.Default()),
		task:   tk,
	}
}

func (f *testFixture) newEnv(s *testsuite.WorkflowTestSuite) *testsuite.TestWorkflowEnvironment {
	env := s.NewTestWorkflowEnvironment()
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: WorkflowIDForTask(f.task.ID)})
	env.RegisterWorkflow(OrchestrateTask)
	env.RegisterActivity(f.acts)
	return env
}

func (f *testFixture) input(batchSize, maxBatches int) WorkflowInput {
	return WorkflowInput{
		TaskID:           f.task.ID,
		OwnerID:          f.task.OwnerID,
		Type:             f.task.Type,
		Title:            f.task.Title,
		BatchSize:        batchSize,
		MaxBatchesPerRun: maxBatches,
		BatchPause:       time.Second,
	}
}

func (f *testFixture) storedTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := f.store.GetTask(context.Background(), f.task.ID)
	require.NoError(t, err)
	return tk
}

func TestWorkflowHappyPath(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 6)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{})
	}, time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(3, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	tk := f.storedTask(t)
	require.Equal(t, task.StageDone, tk.Stage)
	require.Equal(t, task.StatusCompleted, tk.StageStatus)
	require.Equal(t, WorkflowIDForTask(f.task.ID), tk.WorkflowID)

	docs, err := f.store.ListDocuments(context.Background(), f.task.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, task.DocumentStatusLocked, docs[0].Status)

	require.NotEmpty(t, f.events.OfType(event.TypePlan))
	require.Len(t, f.events.OfType(event.TypeTick), 6)
}

func TestWorkflowGathersContextForTribalSearch(t *testing.T) {
	f := newFixture(t, task.TypeTribalSearch, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{})
	}, time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.NotEmpty(t, f.events.OfType(event.TypeContext))
}

func TestWorkflowRevisionLoop(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalResume, ResumeRequest{Feedback: "tighten the scope"})
	}, time.Second)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{Version: 2})
	}, 2*time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	docs, err := f.store.ListDocuments(context.Background(), f.task.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, 1, docs[0].Version)
	require.Equal(t, 2, docs[1].Version)
	require.Equal(t, task.DocumentStatusLocked, docs[0].Status)
	require.Contains(t, docs[1].Body, "tighten the scope")

	fb, err := f.store.ListFeedback(context.Background(), docs[0].ID)
	require.NoError(t, err)
	require.Len(t, fb, 1)
	require.Equal(t, "tighten the scope", fb[0].Body)
}

func TestWorkflowFeedbackBeatsSimultaneousApproval(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	// Both signals land before the review loop wakes: the feedback
	// must win and the raced approval must not release v2.
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalResume, ResumeRequest{Feedback: "needs a rollback step"})
		env.SignalWorkflow(SignalApprove, ApproveRequest{Version: 1})
	}, time.Second)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{Version: 2})
	}, 3*time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	docs, err := f.store.ListDocuments(context.Background(), f.task.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2, "raced approval must not skip the revision")
}

func TestWorkflowIgnoresStaleApproval(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalResume, ResumeRequest{Feedback: "add verification"})
	}, time.Second)
	// Approval naming the locked version arrives after the revision.
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{Version: 1})
	}, 3*time.Second)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStop, StopRequest{Reason: "test over"})
	}, 5*time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// The stale approval never released execution; the stop ended the
	// task while still waiting for review.
	tk := f.storedTask(t)
	require.Equal(t, task.StageStopped, tk.Stage)
}

func TestWorkflowStopDuringReview(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStop, StopRequest{Reason: "changed priorities"})
	}, time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	tk := f.storedTask(t)
	require.Equal(t, task.StageStopped, tk.Stage)
	require.Equal(t, task.StatusStopped, tk.StageStatus)

	docs, err := f.store.ListDocuments(context.Background(), f.task.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1, "stop must not discard the drafted plan")
}

func TestWorkflowStopDuringExecution(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 10)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{})
	}, time.Second)
	// Lands during the pause between early batches.
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStop, StopRequest{Reason: "enough"})
	}, 2500*time.Millisecond)

	env.ExecuteWorkflow(OrchestrateTask, f.input(2, 100))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	tk := f.storedTask(t)
	require.Equal(t, task.StageStopped, tk.Stage)

	// Checkpointed progress survives in the tick events even though
	// the stage status was rewritten by the stop.
	ticks := f.events.OfType(event.TypeTick)
	require.NotEmpty(t, ticks)
	require.Less(t, len(ticks), 10, "stop should interrupt before all units run")
}

func TestWorkflowContinueAsNewAndResume(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 6)
	var s testsuite.WorkflowTestSuite

	// First run: one batch per run forces a handoff.
	env := f.newEnv(&s)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, ApproveRequest{})
	}, time.Second)
	env.ExecuteWorkflow(OrchestrateTask, f.input(2, 1))

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var canErr *workflow.ContinueAsNewError
	require.True(t, errors.As(err, &canErr), "expected continue-as-new, got %v", err)

	tk := f.storedTask(t)
	require.Equal(t, task.StageExecuting, tk.Stage)
	require.Equal(t, 2, tk.Progress())

	// Successor run: picks up from the checkpoint without replanning
	// or waiting for approval again.
	env2 := f.newEnv(&s)
	env2.ExecuteWorkflow(OrchestrateTask, f.input(2, 10))

	require.True(t, env2.IsWorkflowCompleted())
	require.NoError(t, env2.GetWorkflowError())

	tk = f.storedTask(t)
	require.Equal(t, task.StageDone, tk.Stage)

	docs, docErr := f.store.ListDocuments(context.Background(), f.task.ID)
	require.NoError(t, docErr)
	require.Len(t, docs, 1, "resume must not create a new plan version")
}

func TestWorkflowNoopWhenAlreadyTerminal(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)

	tk := f.storedTask(t)
	tk.Stage = task.StageDone
	tk.StageStatus = task.StatusCompleted
	require.NoError(t, f.store.UpdateTask(context.Background(), tk))

	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)
	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Empty(t, f.events.OfType(event.TypeTick))
}

func TestWorkflowStatusQuery(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.RegisterDelayedCallback(func() {
		encoded, err := env.QueryWorkflow(QueryStatus)
		require.NoError(t, err)
		var status Status
		require.NoError(t, encoded.Get(&status))
		require.Equal(t, f.task.ID, status.TaskID)
		require.Equal(t, task.StageWaitApproval.String(), status.Stage)
		require.Equal(t, 1, status.PlanVersion)
		require.False(t, status.Stopping)

		env.SignalWorkflow(SignalStop, StopRequest{})
	}, time.Second)

	env.ExecuteWorkflow(OrchestrateTask, f.input(4, 10))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestWorkflowFailsOnMissingTask(t *testing.T) {
	f := newFixture(t, task.TypeIntern, 4)
	var s testsuite.WorkflowTestSuite
	env := f.newEnv(&s)

	env.ExecuteWorkflow(OrchestrateTask, WorkflowInput{TaskID: "no-such-task"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
