package orchestration

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// NewWorker builds a Temporal worker serving the task queue with the
// workflow and all activities registered. The caller runs it with
// Run(worker.InterruptCh()) or Start/Stop.
func NewWorker(c client.Client, taskQueue string, activities *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = TaskQueueName
	}

	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(OrchestrateTask)
	w.RegisterActivity(activities)
	return w
}
