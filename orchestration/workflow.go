// Package orchestration implements the durable task lifecycle on
// Temporal: a single workflow drives a task from planning through
// reviewer approval into checkpointed batch execution, reacting to
// stop, approve, and resume signals along the way. All state mutations
// happen in activities against the record store; the workflow holds
// only control flags and sequencing, so any run can be resumed or
// replayed from the store checkpoint.
package orchestration

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/c360studio/agentflow/agent"
	"github.com/c360studio/agentflow/task"
)

// TaskQueueName is the default Temporal task queue for task workflows.
const TaskQueueName = "agentflow-tasks"

// Batch tuning defaults. Carried in WorkflowInput so a run and its
// continue-as-new successors always agree on them.
const (
	DefaultBatchSize        = 50
	DefaultMaxBatchesPerRun = 25
	DefaultBatchPause       = time.Second
)

// Activity timeouts. Execution batches get a long budget plus a
// heartbeat so a dead worker is detected between unit commits.
const (
	markActivityTimeout   = 15 * time.Second
	planActivityTimeout   = 30 * time.Second
	executeBatchTimeout   = 2 * time.Minute
	executeBatchHeartbeat = 10 * time.Second
)

// WorkflowInput parameterizes one task workflow. OwnerID, Type, and
// Title are informational copies for history readability; the task
// record in the store is authoritative.
type WorkflowInput struct {
	TaskID  string    `json:"task_id"`
	OwnerID string    `json:"owner_id,omitempty"`
	Type    task.Type `json:"type,omitempty"`
	Title   string    `json:"title,omitempty"`

	BatchSize        int           `json:"batch_size,omitempty"`
	MaxBatchesPerRun int           `json:"max_batches_per_run,omitempty"`
	BatchPause       time.Duration `json:"batch_pause,omitempty"`
}

func (in *WorkflowInput) applyDefaults() {
	if in.BatchSize <= 0 {
		in.BatchSize = DefaultBatchSize
	}
	if in.MaxBatchesPerRun <= 0 {
		in.MaxBatchesPerRun = DefaultMaxBatchesPerRun
	}
	if in.BatchPause < 0 {
		in.BatchPause = DefaultBatchPause
	}
}

// controlState collects the signal flags the main loop reacts to.
// Signal drain goroutines write it; the cooperative workflow scheduler
// makes that safe without locking.
type controlState struct {
	stopping        bool
	stopReason      string
	approved        bool
	approvedVersion int
	feedback        string
	hasFeedback     bool
}

// OrchestrateTask is the task lifecycle workflow. Exactly one
// execution runs per task; the workflow ID is derived from the task ID
// so duplicate starts collapse onto the running execution.
func OrchestrateTask(ctx workflow.Context, input WorkflowInput) error {
	input.applyDefaults()
	logger := workflow.GetLogger(ctx)

	var a *Activities
	ctrl := &controlState{}
	status := &Status{TaskID: input.TaskID}

	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (Status, error) {
		return *status, nil
	}); err != nil {
		return err
	}

	registerSignalHandlers(ctx, ctrl, status)

	shortCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: markActivityTimeout,
		RetryPolicy:         defaultRetryPolicy(),
	})
	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: planActivityTimeout,
		RetryPolicy:         defaultRetryPolicy(),
	})
	batchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: executeBatchTimeout,
		HeartbeatTimeout:    executeBatchHeartbeat,
		RetryPolicy:         defaultRetryPolicy(),
	})

	// Re-derive position from the store: a fresh start, a worker crash,
	// and a continue-as-new successor all land here.
	var state TaskState
	if err := workflow.ExecuteActivity(shortCtx, a.GetTaskState, input.TaskID).Get(ctx, &state); err != nil {
		return err
	}
	status.Stage = state.Stage.String()
	status.StageStatus = state.StageStatus
	status.PlanVersion = state.PlanVersion
	status.Progress = state.Progress
	status.TotalUnits = state.TotalUnits

	if state.Stage.IsTerminal() {
		logger.Info("task already terminal", "task_id", input.TaskID, "stage", state.Stage)
		return nil
	}

	if state.Stage != task.StageExecuting {
		proceed, err := runPlanning(ctx, shortCtx, planCtx, a, input, &state, ctrl, status)
		if err != nil {
			return failTask(ctx, shortCtx, a, input.TaskID, err)
		}
		if !proceed {
			return nil
		}
	} else {
		logger.Info("resuming execution from checkpoint",
			"task_id", input.TaskID, "progress", state.Progress)
	}

	return runExecution(ctx, shortCtx, batchCtx, a, input, &state, ctrl, status)
}

// registerSignalHandlers drains the three control signals into the
// shared control state for the life of the workflow.
func registerSignalHandlers(ctx workflow.Context, ctrl *controlState, status *Status) {
	logger := workflow.GetLogger(ctx)

	stopCh := workflow.GetSignalChannel(ctx, SignalStop)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var req StopRequest
			stopCh.Receive(ctx, &req)
			ctrl.stopping = true
			ctrl.stopReason = req.Reason
			status.Stopping = true
			logger.Info("stop requested", "reason", req.Reason)
		}
	})

	approveCh := workflow.GetSignalChannel(ctx, SignalApprove)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var req ApproveRequest
			approveCh.Receive(ctx, &req)
			ctrl.approved = true
			ctrl.approvedVersion = req.Version
			status.Approved = true
			logger.Info("plan approved", "version", req.Version)
		}
	})

	resumeCh := workflow.GetSignalChannel(ctx, SignalResume)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var req ResumeRequest
			resumeCh.Receive(ctx, &req)
			if req.Feedback == "" {
				logger.Info("resume signal without feedback ignored")
				continue
			}
			ctrl.feedback = req.Feedback
			ctrl.hasFeedback = true
		}
	})
}

// runPlanning drives the task from its current pre-execution stage to
// an approved plan. Returns false with nil error when the task was
// stopped while waiting for review.
func runPlanning(ctx, shortCtx, planCtx workflow.Context, a *Activities,
	input WorkflowInput, state *TaskState, ctrl *controlState, status *Status) (bool, error) {

	logger := workflow.GetLogger(ctx)

	if state.Stage == task.StageInit {
		if err := workflow.ExecuteActivity(shortCtx, a.InitTask, input.TaskID).Get(ctx, nil); err != nil {
			return false, err
		}
		status.Stage = task.StagePlanning.String()
		status.StageStatus = task.StatusRunning
	}

	var hits []agent.ContextHit
	needsPlan := state.Stage != task.StageWaitApproval
	if needsPlan && state.NeedsContext {
		if err := workflow.ExecuteActivity(planCtx, a.GatherContext, input.TaskID).Get(ctx, &hits); err != nil {
			return false, err
		}
	}

	if needsPlan {
		var plan PlanResult
		err := workflow.ExecuteActivity(planCtx, a.CreatePlan, CreatePlanInput{
			TaskID: input.TaskID,
			Hits:   hits,
		}).Get(ctx, &plan)
		if err != nil {
			return false, err
		}
		status.PlanVersion = plan.Version

		if err := workflow.ExecuteActivity(shortCtx, a.MarkWaitingApproval, input.TaskID).Get(ctx, nil); err != nil {
			return false, err
		}
		status.Stage = task.StageWaitApproval.String()
		status.StageStatus = task.StatusPaused
	}

	// Review loop: stop wins over feedback, feedback wins over an
	// approval received in the same window. An approval naming a stale
	// version is dropped.
	for {
		if err := workflow.Await(ctx, func() bool {
			return ctrl.stopping || ctrl.hasFeedback || ctrl.approved
		}); err != nil {
			return false, err
		}

		if ctrl.stopping {
			if err := workflow.ExecuteActivity(shortCtx, a.MarkStopped, MarkStoppedInput{
				TaskID: input.TaskID,
				Reason: ctrl.stopReason,
			}).Get(ctx, nil); err != nil {
				return false, err
			}
			status.Stage = task.StageStopped.String()
			status.StageStatus = task.StatusStopped
			return false, nil
		}

		if ctrl.hasFeedback {
			feedback := ctrl.feedback
			ctrl.hasFeedback = false
			ctrl.feedback = ""
			// Any approval raced with this feedback referred to the
			// version being revised.
			ctrl.approved = false
			status.Approved = false

			if err := workflow.ExecuteActivity(shortCtx, a.RecordFeedback, RecordFeedbackInput{
				TaskID:   input.TaskID,
				Feedback: feedback,
			}).Get(ctx, nil); err != nil {
				return false, err
			}

			var plan PlanResult
			err := workflow.ExecuteActivity(planCtx, a.CreatePlan, CreatePlanInput{
				TaskID:   input.TaskID,
				Feedback: feedback,
				Hits:     hits,
			}).Get(ctx, &plan)
			if err != nil {
				return false, err
			}
			status.PlanVersion = plan.Version
			continue
		}

		if ctrl.approved {
			if ctrl.approvedVersion != 0 && ctrl.approvedVersion != status.PlanVersion {
				logger.Info("ignoring approval for stale plan version",
					"approved", ctrl.approvedVersion, "current", status.PlanVersion)
				ctrl.approved = false
				status.Approved = false
				continue
			}
			break
		}
	}

	if err := workflow.ExecuteActivity(shortCtx, a.BeginExecution, input.TaskID).Get(ctx, nil); err != nil {
		return false, err
	}
	status.Stage = task.StageExecuting.String()
	status.StageStatus = task.RunningStatus(state.Progress)
	return true, nil
}

// runExecution drives checkpointed batches until the task is done,
// stopped, or the run hands off via continue-as-new.
func runExecution(ctx, shortCtx, batchCtx workflow.Context, a *Activities,
	input WorkflowInput, state *TaskState, ctrl *controlState, status *Status) error {

	logger := workflow.GetLogger(ctx)

	markStopped := func() error {
		err := workflow.ExecuteActivity(shortCtx, a.MarkStopped, MarkStoppedInput{
			TaskID: input.TaskID,
			Reason: ctrl.stopReason,
		}).Get(ctx, nil)
		if err != nil {
			return err
		}
		status.Stage = task.StageStopped.String()
		status.StageStatus = task.StatusStopped
		return nil
	}

	for batches := 0; ; {
		if ctrl.stopping {
			return markStopped()
		}

		var result BatchResult
		err := workflow.ExecuteActivity(batchCtx, a.ExecuteBatch, ExecuteBatchInput{
			TaskID:    input.TaskID,
			BatchSize: input.BatchSize,
		}).Get(ctx, &result)
		if err != nil {
			return failTask(ctx, shortCtx, a, input.TaskID, err)
		}
		status.Progress = result.Progress
		status.StageStatus = task.RunningStatus(result.Progress)

		if result.Done {
			if err := workflow.ExecuteActivity(shortCtx, a.MarkDone, input.TaskID).Get(ctx, nil); err != nil {
				return failTask(ctx, shortCtx, a, input.TaskID, err)
			}
			status.Stage = task.StageDone.String()
			status.StageStatus = task.StatusCompleted
			logger.Info("task complete", "task_id", input.TaskID, "units", result.Progress)
			return nil
		}

		batches++
		if batches >= input.MaxBatchesPerRun {
			// A stop that arrived during the last batch beats handoff.
			if ctrl.stopping {
				return markStopped()
			}
			logger.Info("continuing as new to bound history",
				"task_id", input.TaskID, "progress", result.Progress)
			return workflow.NewContinueAsNewError(ctx, OrchestrateTask, input)
		}

		if input.BatchPause > 0 {
			if err := workflow.Sleep(ctx, input.BatchPause); err != nil {
				return err
			}
		}
	}
}

// failTask records a fatal failure on the task record before
// propagating the original error. The mark is best-effort.
func failTask(ctx, shortCtx workflow.Context, a *Activities, taskID string, cause error) error {
	logger := workflow.GetLogger(ctx)
	err := workflow.ExecuteActivity(shortCtx, a.MarkFailed, MarkFailedInput{
		TaskID: taskID,
		Reason: cause.Error(),
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("failed to mark task failed", "task_id", taskID, "error", err)
	}
	return cause
}

func defaultRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
	}
}
