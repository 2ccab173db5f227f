package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360studio/agentflow/config"
	"github.com/c360studio/agentflow/task"
)

func createCmd(configPath *string) *cobra.Command {
	var (
		owner    string
		taskType string
		start    bool
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			tt := task.Type(taskType)
			if !tt.IsValid() {
				return fmt.Errorf("unknown task type %q (known: %s, %s)", taskType, task.TypeIntern, task.TypeTribalSearch)
			}

			deps, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			t := task.New(owner, args[0], tt)
			if err := deps.store.CreateTask(ctx, t); err != nil {
				return fmt.Errorf("create task: %w", err)
			}

			fmt.Println(t.ID)
			if !start {
				return nil
			}
			return startTask(ctx, cfg, deps, t.ID)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner user ID")
	cmd.Flags().StringVar(&taskType, "type", string(task.TypeIntern), "Task type (intern, tribal_search)")
	cmd.Flags().BoolVar(&start, "start", false, "Start the workflow immediately")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func startCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start (or no-op if already running) the task workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			deps, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			return startTask(ctx, cfg, deps, args[0])
		},
	}
}

func startTask(ctx context.Context, cfg *config.Config, deps *runtimeDeps, taskID string) error {
	t, err := deps.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if t.Stage.IsTerminal() {
		return fmt.Errorf("task %s is already %s", t.ID, t.Stage)
	}

	oc, tc, err := orchestrationClient(cfg)
	if err != nil {
		return err
	}
	defer tc.Close()

	workflowID, err := oc.Start(ctx, workflowInput(cfg, t))
	if err != nil {
		return err
	}
	fmt.Printf("workflow %s\n", workflowID)
	return nil
}

func approveCmd(configPath *string) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve the current plan and release execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			oc, tc, err := orchestrationClient(cfg)
			if err != nil {
				return err
			}
			defer tc.Close()

			return oc.Approve(cmd.Context(), args[0], version)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Plan version being approved (0 = current)")
	return cmd
}

func resumeCmd(configPath *string) *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Send reviewer feedback and request a revised plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			oc, tc, err := orchestrationClient(cfg)
			if err != nil {
				return err
			}
			defer tc.Close()

			return oc.Resume(cmd.Context(), args[0], feedback)
		},
	}

	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback on the current plan")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}

func stopCmd(configPath *string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Request a graceful stop of the task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			oc, tc, err := orchestrationClient(cfg)
			if err != nil {
				return err
			}
			defer tc.Close()

			return oc.Stop(cmd.Context(), args[0], reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the task is being stopped")
	return cmd
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the live status of a task",
		Long: `Queries the running workflow for live status. If no workflow is
running, falls back to the persisted task record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			oc, tc, err := orchestrationClient(cfg)
			if err != nil {
				return err
			}
			defer tc.Close()

			if status, err := oc.Status(ctx, args[0]); err == nil {
				return printJSON(status)
			}

			// No live workflow to ask; show the stored record.
			deps, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			t, err := deps.store.GetTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load task: %w", err)
			}
			return printJSON(t)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
