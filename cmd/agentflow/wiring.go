package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"github.com/c360studio/agentflow/config"
	"github.com/c360studio/agentflow/event"
	"github.com/c360studio/agentflow/orchestration"
	"github.com/c360studio/agentflow/store"
	"github.com/c360studio/agentflow/store/memory"
	"github.com/c360studio/agentflow/store/natskv"
	"github.com/c360studio/agentflow/store/postgres"
	"github.com/c360studio/agentflow/task"
)

// runtimeDeps bundles the connections a command needs. Close releases
// them in reverse order of construction.
type runtimeDeps struct {
	cfg    *config.Config
	store  store.Store
	events event.Publisher
	nc     *nats.Conn
}

func (d *runtimeDeps) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}
	if d.nc != nil {
		d.nc.Close()
	}
}

// connect opens the record store and, when NATS is configured, the
// event publisher.
func connect(ctx context.Context, cfg *config.Config) (*runtimeDeps, error) {
	deps := &runtimeDeps{cfg: cfg, events: event.NopPublisher{}}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
		}
		deps.nc = nc
		deps.events = event.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, slog.Default())
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		slog.Warn("using in-memory store; task records will not survive a restart")
		deps.store = memory.New()

	case config.BackendNATS:
		if deps.nc == nil {
			return nil, fmt.Errorf("nats store backend requires nats.url")
		}
		js, err := jetstream.New(deps.nc)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("creating JetStream context: %w", err)
		}
		st, err := natskv.New(ctx, js)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("opening NATS KV store: %w", err)
		}
		deps.store = st

	case config.BackendPostgres:
		st, err := postgres.New(ctx, cfg.Store.PostgresDSN, postgres.WithLogger(slog.Default()))
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			deps.Close()
			return nil, fmt.Errorf("migrating postgres store: %w", err)
		}
		deps.store = st

	default:
		deps.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if err := deps.store.Ping(ctx); err != nil {
		deps.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}

	return deps, nil
}

// temporalClient dials the configured Temporal frontend.
func temporalClient(cfg *config.Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    sdklog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to Temporal at %s: %w", cfg.Temporal.HostPort, err)
	}
	return c, nil
}

// orchestrationClient dials Temporal and wraps it for task control.
func orchestrationClient(cfg *config.Config) (*orchestration.Client, client.Client, error) {
	tc, err := temporalClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return orchestration.NewClient(tc, cfg.Temporal.TaskQueue, slog.Default()), tc, nil
}

// workflowInput builds the workflow parameters for a task from the
// configured batch tuning.
func workflowInput(cfg *config.Config, t *task.Task) orchestration.WorkflowInput {
	return orchestration.WorkflowInput{
		TaskID:           t.ID,
		OwnerID:          t.OwnerID,
		Title:            t.Title,
		Type:             t.Type,
		BatchSize:        cfg.Orchestration.BatchSize,
		MaxBatchesPerRun: cfg.Orchestration.MaxBatchesPerRun,
		BatchPause:       cfg.Orchestration.BatchPause,
	}
}
