package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/c360studio/agentflow/agent"
	"github.com/c360studio/agentflow/event"
	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/task"
)

// Non-retryable application error types. Retrying cannot fix a missing
// record or an unregistered task type, so these fail the workflow run
// immediately.
const (
	errTaskNotFound     = "TASK_NOT_FOUND"
	errUnknownTaskType  = "UNKNOWN_TASK_TYPE"
	errDocumentNotFound = "DOCUMENT_NOT_FOUND"
)

// Activities holds the dependencies of all task workflow activities.
// Every store mutation in the system happens here; the workflow itself
// only sequences calls and reacts to signals.
type Activities struct {
	Store  store.Store
	Events event.Publisher
	Agents *agent.Registry
	Logger *slog.Logger
}

// NewActivities wires the activity dependencies.
func NewActivities(st store.Store, events event.Publisher, agents *agent.Registry, logger *slog.Logger) *Activities {
	if events == nil {
		events = event.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{Store: st, Events: events, Agents: agents, Logger: logger}
}

// TaskState is the durable state a workflow re-derives at start: the
// persisted stage, its checkpoint, and the static shape of the task's
// agent.
type TaskState struct {
	Stage        task.Stage `json:"stage"`
	StageStatus  string     `json:"stage_status"`
	Progress     int        `json:"progress"`
	PlanVersion  int        `json:"plan_version"`
	TotalUnits   int        `json:"total_units"`
	NeedsContext bool       `json:"needs_context"`
}

// publish sends an event, logging failures instead of propagating
// them. Events are observability, not state.
func (a *Activities) publish(ctx context.Context, taskID string, ev event.Event) {
	if err := a.Events.Publish(ctx, taskID, ev); err != nil {
		a.Logger.Warn("event publish failed", "task_id", taskID, "type", ev.Type, "error", err)
	}
}

// transition moves the task to a new stage and status, enforcing the
// lifecycle graph. Re-marking the current stage is a no-op when the
// status also matches, which makes the mark activities retry-safe.
func (a *Activities) transition(ctx context.Context, t *task.Task, target task.Stage, status string) error {
	if t.Stage == target && t.StageStatus == status {
		return nil
	}
	if !t.Stage.CanTransitionTo(target) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid stage transition %s -> %s for task %s", t.Stage, target, t.ID),
			"INVALID_TRANSITION", nil)
	}
	t.Stage = target
	t.StageStatus = status
	if err := a.Store.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("persisting stage %s: %w", target, err)
	}
	a.publish(ctx, t.ID, event.StageEvent(target.String(), status))
	return nil
}

// getTask loads a task, converting a missing record into a
// non-retryable failure.
func (a *Activities) getTask(ctx context.Context, taskID string) (*task.Task, error) {
	t, err := a.Store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("task %s not found", taskID), errTaskNotFound, err)
		}
		return nil, err
	}
	return t, nil
}

// agentFor resolves the agent implementation for a task's type.
func (a *Activities) agentFor(t *task.Task) (agent.Agent, error) {
	ag, err := a.Agents.Lookup(t.Type)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errUnknownTaskType, err)
	}
	return ag, nil
}

// GetTaskState reads the persisted task state. The workflow calls this
// once at the start of every run to decide where to pick up.
func (a *Activities) GetTaskState(ctx context.Context, taskID string) (*TaskState, error) {
	t, err := a.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ag, err := a.agentFor(t)
	if err != nil {
		return nil, err
	}

	state := &TaskState{
		Stage:        t.Stage,
		StageStatus:  t.StageStatus,
		Progress:     t.Progress(),
		TotalUnits:   ag.TotalUnits(),
		NeedsContext: ag.NeedsContext(),
	}

	doc, err := a.Store.LatestDocument(ctx, taskID, task.KindPlan)
	switch {
	case err == nil:
		state.PlanVersion = doc.Version
	case errors.Is(err, store.ErrNotFound):
		// No plan yet.
	default:
		return nil, err
	}

	return state, nil
}

// InitTask records the workflow execution on the task and moves it
// into PLANNING.
func (a *Activities) InitTask(ctx context.Context, taskID string) error {
	t, err := a.getTask(ctx, taskID)
	if err != nil {
		return err
	}

	if info := activity.GetInfo(ctx); info.WorkflowExecution.ID != "" {
		t.WorkflowID = info.WorkflowExecution.ID
	}

	return a.transition(ctx, t, task.StagePlanning, task.StatusRunning)
}

// GatherContext collects background material for planning and
// publishes one context event per hit.
func (a *Activities) GatherContext(ctx context.Context, taskID string) ([]agent.ContextHit, error) {
	t, err := a.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ag, err := a.agentFor(t)
	if err != nil {
		return nil, err
	}

	hits, err := ag.GatherContext(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("gathering context for task %s: %w", taskID, err)
	}
	for _, h := range hits {
		a.publish(ctx, taskID, event.ContextEvent(h.Source, h.Summary))
	}
	return hits, nil
}

// CreatePlanInput names the task to plan for and carries reviewer
// feedback when this is a revision.
type CreatePlanInput struct {
	TaskID   string             `json:"task_id"`
	Feedback string             `json:"feedback,omitempty"`
	Hits     []agent.ContextHit `json:"hits,omitempty"`
}

// PlanResult identifies the plan version produced.
type PlanResult struct {
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
}

// CreatePlan drafts the next plan version and persists it in review.
func (a *Activities) CreatePlan(ctx context.Context, input CreatePlanInput) (*PlanResult, error) {
	t, err := a.getTask(ctx, input.TaskID)
	if err != nil {
		return nil, err
	}
	ag, err := a.agentFor(t)
	if err != nil {
		return nil, err
	}

	version := 1
	latest, err := a.Store.LatestDocument(ctx, t.ID, task.KindPlan)
	switch {
	case err == nil:
		version = latest.Version + 1
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	body, err := ag.Plan(ctx, t, input.Feedback, input.Hits)
	if err != nil {
		return nil, fmt.Errorf("drafting plan for task %s: %w", t.ID, err)
	}

	doc := task.NewDocument(t.ID, task.KindPlan, body, version)
	if err := a.Store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting plan v%d: %w", version, err)
	}

	a.publish(ctx, t.ID, event.PlanEvent(doc.ID, doc.Version))
	return &PlanResult{DocumentID: doc.ID, Version: doc.Version}, nil
}

// MarkWaitingApproval parks the task until a reviewer responds.
func (a *Activities) MarkWaitingApproval(ctx context.Context, taskID string) error {
	t, err := a.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	return a.transition(ctx, t, task.StageWaitApproval, task.StatusPaused)
}

// RecordFeedbackInput attaches reviewer feedback to the current plan.
type RecordFeedbackInput struct {
	TaskID   string `json:"task_id"`
	Feedback string `json:"feedback"`
}

// RecordFeedback appends the feedback to the latest plan version and
// locks that version; planning then produces a successor.
func (a *Activities) RecordFeedback(ctx context.Context, input RecordFeedbackInput) error {
	doc, err := a.Store.LatestDocument(ctx, input.TaskID, task.KindPlan)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("no plan document for task %s", input.TaskID), errDocumentNotFound, err)
		}
		return err
	}

	fb := task.NewFeedback(doc.ID, input.Feedback)
	if err := a.Store.AddFeedback(ctx, fb); err != nil {
		return fmt.Errorf("recording feedback on plan v%d: %w", doc.Version, err)
	}
	if err := a.Store.UpdateDocumentStatus(ctx, doc.ID, task.DocumentStatusLocked); err != nil {
		return fmt.Errorf("locking plan v%d: %w", doc.Version, err)
	}
	return nil
}

// BeginExecution locks the approved plan and moves the task into
// EXECUTING with its checkpoint intact.
func (a *Activities) BeginExecution(ctx context.Context, taskID string) error {
	t, err := a.getTask(ctx, taskID)
	if err != nil {
		return err
	}

	doc, err := a.Store.LatestDocument(ctx, taskID, task.KindPlan)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("no plan document for task %s", taskID), errDocumentNotFound, err)
		}
		return err
	}
	if doc.Status != task.DocumentStatusLocked {
		if err := a.Store.UpdateDocumentStatus(ctx, doc.ID, task.DocumentStatusLocked); err != nil {
			return fmt.Errorf("locking approved plan v%d: %w", doc.Version, err)
		}
	}

	return a.transition(ctx, t, task.StageExecuting, task.RunningStatus(t.Progress()))
}

// ExecuteBatchInput bounds one batch of execution work.
type ExecuteBatchInput struct {
	TaskID    string `json:"task_id"`
	BatchSize int    `json:"batch_size"`
}

// BatchResult reports how far a batch advanced the checkpoint.
type BatchResult struct {
	UnitsCompleted int  `json:"units_completed"`
	Progress       int  `json:"progress"`
	Done           bool `json:"done"`
}

// ExecuteBatch runs up to BatchSize units, committing the checkpoint
// after every unit. The checkpoint is re-read from the store at entry,
// so a retry after a crash resumes from the last committed unit rather
// than replaying the batch.
func (a *Activities) ExecuteBatch(ctx context.Context, input ExecuteBatchInput) (*BatchResult, error) {
	t, err := a.getTask(ctx, input.TaskID)
	if err != nil {
		return nil, err
	}
	if t.Stage != task.StageExecuting {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("task %s is in stage %s, not EXECUTING", t.ID, t.Stage),
			"INVALID_TRANSITION", nil)
	}
	ag, err := a.agentFor(t)
	if err != nil {
		return nil, err
	}

	total := ag.TotalUnits()
	progress := t.Progress()
	completed := 0

	for unit := progress + 1; unit <= total && completed < input.BatchSize; unit++ {
		detail, err := ag.ExecuteUnit(ctx, t, unit)
		if err != nil {
			return nil, fmt.Errorf("executing unit %d: %w", unit, err)
		}

		progress = unit
		completed++
		t.StageStatus = task.RunningStatus(progress)
		if err := a.Store.UpdateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("committing checkpoint %d: %w", progress, err)
		}

		a.publish(ctx, t.ID, event.TickEvent(unit, detail))
		activity.RecordHeartbeat(ctx, progress)
	}

	a.publish(ctx, t.ID, event.ProgressEvent(progress, total))
	return &BatchResult{
		UnitsCompleted: completed,
		Progress:       progress,
		Done:           progress >= total,
	}, nil
}

// MarkDone records successful completion.
func (a *Activities) MarkDone(ctx context.Context, taskID string) error {
	t, err := a.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	return a.transition(ctx, t, task.StageDone, task.StatusCompleted)
}

// MarkStoppedInput carries the operator's stop reason, if any.
type MarkStoppedInput struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

// MarkStopped records a graceful stop. Already-terminal tasks are left
// untouched.
func (a *Activities) MarkStopped(ctx context.Context, input MarkStoppedInput) error {
	t, err := a.getTask(ctx, input.TaskID)
	if err != nil {
		return err
	}
	if t.Stage.IsTerminal() {
		return nil
	}
	if input.Reason != "" {
		a.Logger.Info("task stopped", "task_id", t.ID, "reason", input.Reason)
	}
	return a.transition(ctx, t, task.StageStopped, task.StatusStopped)
}

// MarkFailedInput carries the failure description.
type MarkFailedInput struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// MarkFailed records a fatal failure. Already-terminal tasks are left
// untouched.
func (a *Activities) MarkFailed(ctx context.Context, input MarkFailedInput) error {
	t, err := a.getTask(ctx, input.TaskID)
	if err != nil {
		return err
	}
	if t.Stage.IsTerminal() {
		return nil
	}
	a.Logger.Error("task failed", "task_id", t.ID, "reason", input.Reason)
	return a.transition(ctx, t, task.StageFailed, task.StatusFailed)
}
