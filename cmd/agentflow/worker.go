package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"

	"github.com/c360studio/agentflow/agent"
	"github.com/c360studio/agentflow/orchestration"
)

func workerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a task workflow worker",
		Long: `Starts a Temporal worker serving the task queue. The worker hosts
the task workflow and its activities: it mutates task records, drafts
plans, and executes work units. Run as many workers as you want; the
task queue spreads the load.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

func runWorker(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	deps, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	tc, err := temporalClient(cfg)
	if err != nil {
		return err
	}
	defer tc.Close()

	activities := orchestration.NewActivities(deps.store, deps.events, agent.DefaultRegistry(), slog.Default())
	w := orchestration.NewWorker(tc, cfg.Temporal.TaskQueue, activities)

	slog.Info("worker ready",
		"version", Version,
		"task_queue", cfg.Temporal.TaskQueue,
		"store_backend", cfg.Store.Backend)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
