package orchestration

// Signal and query names on the task workflow. Senders use these via
// the Client; the workflow registers handlers for each at start.
const (
	// SignalStop requests a graceful stop. Honored at the next batch
	// boundary during execution, immediately while waiting for approval.
	SignalStop = "stop"

	// SignalApprove accepts the current plan version and releases the
	// workflow into execution.
	SignalApprove = "approve"

	// SignalResume delivers reviewer feedback on the current plan and
	// requests a revised version.
	SignalResume = "resume"

	// QueryStatus returns the workflow's current Status.
	QueryStatus = "status"
)

// StopRequest is the SignalStop payload.
type StopRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ApproveRequest is the SignalApprove payload. Version names the plan
// version being approved; approvals for stale versions are ignored.
type ApproveRequest struct {
	Version int `json:"version"`
}

// ResumeRequest is the SignalResume payload.
type ResumeRequest struct {
	Feedback string `json:"feedback"`
}

// Status is the QueryStatus response: a live view of the workflow's
// control state and durable progress.
type Status struct {
	TaskID      string `json:"task_id"`
	Stage       string `json:"stage"`
	StageStatus string `json:"stage_status"`
	PlanVersion int    `json:"plan_version"`
	Progress    int    `json:"progress"`
	TotalUnits  int    `json:"total_units"`
	Stopping    bool   `json:"stopping"`
	Approved    bool   `json:"approved"`
}
