package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/agentflow/task"
)

const (
	// DefaultInternUnits is the total unit count for a full intern run.
	DefaultInternUnits = 200

	// DefaultUnitDuration is how long a single simulated unit takes.
	DefaultUnitDuration = 100 * time.Millisecond
)

// Intern simulates a long-running background worker. Each unit is a
// fixed-duration step; the plan is a simple outline of the run.
type Intern struct {
	Units        int
	UnitDuration time.Duration
}

var _ Agent = (*Intern)(nil)

// NewIntern returns an intern agent with default unit count and pace.
func NewIntern() *Intern {
	return &Intern{
		Units:        DefaultInternUnits,
		UnitDuration: DefaultUnitDuration,
	}
}

func (a *Intern) NeedsContext() bool { return false }

func (a *Intern) GatherContext(context.Context, *task.Task) ([]ContextHit, error) {
	return nil, nil
}

func (a *Intern) Plan(_ context.Context, t *task.Task, feedback string, _ []ContextHit) (string, error) {
	body := fmt.Sprintf("Plan for %q: perform %d units of background work, checkpointing after each unit.", t.Title, a.Units)
	if feedback != "" {
		body += fmt.Sprintf("\n\nRevised per reviewer feedback: %s", feedback)
	}
	return body, nil
}

func (a *Intern) ExecuteUnit(ctx context.Context, _ *task.Task, unit int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(a.UnitDuration):
	}
	return fmt.Sprintf("completed unit %d of %d", unit, a.Units), nil
}

func (a *Intern) TotalUnits() int { return a.Units }
