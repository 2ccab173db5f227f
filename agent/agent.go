// Package agent defines the per-task-type behaviors invoked from
// orchestration activities: context gathering, plan drafting, and
// unit-by-unit execution. Agents are registered by task type and
// looked up at activity time, so the orchestration layer stays
// independent of any particular task kind.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360studio/agentflow/task"
)

// ContextHit is one item of background material gathered before
// planning.
type ContextHit struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
}

// Agent implements the type-specific work of a task.
type Agent interface {
	// NeedsContext reports whether planning should be preceded by a
	// context-gathering pass.
	NeedsContext() bool

	// GatherContext collects background material for planning. Only
	// called when NeedsContext is true.
	GatherContext(ctx context.Context, t *task.Task) ([]ContextHit, error)

	// Plan drafts a plan document body. feedback carries reviewer
	// feedback on the previous version, empty for the first draft.
	Plan(ctx context.Context, t *task.Task, feedback string, hits []ContextHit) (string, error)

	// ExecuteUnit performs one unit of work and returns a short
	// human-readable detail line.
	ExecuteUnit(ctx context.Context, t *task.Task, unit int) (string, error)

	// TotalUnits is the number of units a full execution comprises.
	TotalUnits() int
}

// Registry maps task types to agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[task.Type]Agent
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[task.Type]Agent)}
}

// Register binds an agent to a task type, replacing any previous
// binding.
func (r *Registry) Register(taskType task.Type, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[taskType] = a
}

// Lookup returns the agent for a task type.
func (r *Registry) Lookup(taskType task.Type) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[taskType]
	if !ok {
		return nil, fmt.Errorf("no agent registered for task type %q", taskType)
	}
	return a, nil
}

// DefaultRegistry returns a registry with the built-in agents bound.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(task.TypeIntern, NewIntern())
	r.Register(task.TypeTribalSearch, NewTribalSearch())
	return r
}
