package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// WorkflowIDForTask derives the workflow ID for a task. One task maps
// to exactly one workflow ID, which is what makes duplicate starts
// collapse onto the running execution.
func WorkflowIDForTask(taskID string) string {
	return "task:" + taskID
}

// Client starts and controls task workflows.
type Client struct {
	temporal  client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient wraps a Temporal client. An empty taskQueue falls back to
// TaskQueueName.
func NewClient(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	if taskQueue == "" {
		taskQueue = TaskQueueName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{temporal: c, taskQueue: taskQueue, logger: logger}
}

// Start launches the task workflow. Starting a task whose workflow is
// already running is a no-op, so callers can retry freely.
func (c *Client) Start(ctx context.Context, input WorkflowInput) (string, error) {
	workflowID := WorkflowIDForTask(input.TaskID)

	opts := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.taskQueue,
	}
	_, err := c.temporal.ExecuteWorkflow(ctx, opts, OrchestrateTask, input)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			c.logger.Info("workflow already running", "workflow_id", workflowID)
			return workflowID, nil
		}
		return "", fmt.Errorf("starting workflow %s: %w", workflowID, err)
	}

	c.logger.Info("workflow started", "workflow_id", workflowID, "task_id", input.TaskID)
	return workflowID, nil
}

// Stop requests a graceful stop of the task.
func (c *Client) Stop(ctx context.Context, taskID, reason string) error {
	err := c.temporal.SignalWorkflow(ctx, WorkflowIDForTask(taskID), "", SignalStop, StopRequest{Reason: reason})
	if err != nil {
		return fmt.Errorf("signaling stop for task %s: %w", taskID, err)
	}
	return nil
}

// Approve accepts a plan version. Version 0 approves whatever version
// is current.
func (c *Client) Approve(ctx context.Context, taskID string, version int) error {
	err := c.temporal.SignalWorkflow(ctx, WorkflowIDForTask(taskID), "", SignalApprove, ApproveRequest{Version: version})
	if err != nil {
		return fmt.Errorf("signaling approval for task %s: %w", taskID, err)
	}
	return nil
}

// Resume delivers reviewer feedback, requesting a revised plan.
func (c *Client) Resume(ctx context.Context, taskID, feedback string) error {
	err := c.temporal.SignalWorkflow(ctx, WorkflowIDForTask(taskID), "", SignalResume, ResumeRequest{Feedback: feedback})
	if err != nil {
		return fmt.Errorf("signaling resume for task %s: %w", taskID, err)
	}
	return nil
}

// Status queries the running workflow for its live status.
func (c *Client) Status(ctx context.Context, taskID string) (*Status, error) {
	resp, err := c.temporal.QueryWorkflow(ctx, WorkflowIDForTask(taskID), "", QueryStatus)
	if err != nil {
		return nil, fmt.Errorf("querying status for task %s: %w", taskID, err)
	}

	var status Status
	if err := resp.Get(&status); err != nil {
		return nil, fmt.Errorf("decoding status for task %s: %w", taskID, err)
	}
	return &status, nil
}
