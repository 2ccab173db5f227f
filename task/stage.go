package task

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage represents the current lifecycle stage of a task.
type Stage string

const (
	// StageInit indicates the task record exists but no workflow has run yet.
	StageInit Stage = "INIT"
	// StagePlanning indicates plan generation is in progress.
	StagePlanning Stage = "PLANNING"
	// StageWaitApproval indicates a plan is awaiting review.
	StageWaitApproval Stage = "WAIT_APPROVAL"
	// StageExecuting indicates batch execution is in progress.
	StageExecuting Stage = "EXECUTING"
	// StageDone indicates all work completed successfully.
	StageDone Stage = "DONE"
	// StageStopped indicates the task was stopped by an external signal.
	StageStopped Stage = "STOPPED"
	// StageFailed indicates a fatal activity error ended the task.
	StageFailed Stage = "FAILED"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if the stage is a known lifecycle stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageInit, StagePlanning, StageWaitApproval, StageExecuting,
		StageDone, StageStopped, StageFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are allowed.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageDone, StageStopped, StageFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the stage may advance to target.
// A stage may always "transition" to itself: WAIT_APPROVAL loops on
// revision feedback and EXECUTING is rewritten on every checkpoint.
func (s Stage) CanTransitionTo(target Stage) bool {
	if s == target {
		return !s.IsTerminal()
	}
	switch s {
	case StageInit:
		return target == StagePlanning || target == StageFailed
	case StagePlanning:
		return target == StageWaitApproval || target == StageStopped || target == StageFailed
	case StageWaitApproval:
		return target == StageExecuting || target == StageStopped || target == StageFailed
	case StageExecuting:
		return target == StageDone || target == StageStopped || target == StageFailed
	default:
		// Terminal stages have no outgoing edges.
		return false
	}
}

// Stage status values carried in Task.StageStatus. During execution the
// status additionally encodes the progress counter as "RUNNING:<n>".
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusPaused    = "PAUSED"
	StatusCompleted = "COMPLETED"
	StatusStopped   = "STOPPED"
	StatusFailed    = "FAILED"
)

// RunningStatus encodes a progress counter into a stage status value.
func RunningStatus(progress int) string {
	return fmt.Sprintf("%s:%d", StatusRunning, progress)
}

// ParseProgress extracts the progress counter from a stage status value.
// Statuses without a counter ("PENDING", "PAUSED", plain "RUNNING")
// parse as 0. The counter is the sole resume point for a crashed batch,
// so a malformed counter also parses as 0 rather than failing.
func ParseProgress(stageStatus string) int {
	_, raw, found := strings.Cut(stageStatus, ":")
	if !found {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
