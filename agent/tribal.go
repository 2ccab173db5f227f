package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/agentflow/task"
)

// DefaultTribalUnits is the total unit count for a knowledge-base
// search run. Each unit is one document scan.
const DefaultTribalUnits = 200

// TribalSearch answers questions from institutional knowledge. It
// gathers knowledge-base hits before planning and scans one document
// per execution unit.
type TribalSearch struct {
	Units        int
	UnitDuration time.Duration

	// KnowledgeBase is the set of sources searched during context
	// gathering. Replaceable in tests.
	KnowledgeBase []ContextHit
}

var _ Agent = (*TribalSearch)(nil)

// NewTribalSearch returns a tribal-search agent with the built-in
// knowledge base.
func NewTribalSearch() *TribalSearch {
	return &TribalSearch{
		Units:        DefaultTribalUnits,
		UnitDuration: DefaultUnitDuration,
		KnowledgeBase: []ContextHit{
			{Source: "wiki", Summary: "Onboarding Guide"},
			{Source: "wiki", Summary: "SQL Style Guide"},
			{Source: "runbooks", Summary: "Incident Response Checklist"},
		},
	}
}

func (a *TribalSearch) NeedsContext() bool { return true }

func (a *TribalSearch) GatherContext(_ context.Context, t *task.Task) ([]ContextHit, error) {
	// Naive relevance: everything matches unless the title names a
	// specific source.
	title := strings.ToLower(t.Title)
	var hits []ContextHit
	for _, h := range a.KnowledgeBase {
		if strings.Contains(title, strings.ToLower(h.Source)) || !strings.Contains(title, ":") {
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func (a *TribalSearch) Plan(_ context.Context, t *task.Task, feedback string, hits []ContextHit) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for %q: search %d knowledge sources across %d scan units.\n", t.Title, len(hits), a.Units)
	for _, h := range hits {
		fmt.Fprintf(&b, "- consult %s: %s\n", h.Source, h.Summary)
	}
	if feedback != "" {
		fmt.Fprintf(&b, "\nRevised per reviewer feedback: %s", feedback)
	}
	return b.String(), nil
}

func (a *TribalSearch) ExecuteUnit(ctx context.Context, _ *task.Task, unit int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(a.UnitDuration):
	}
	return fmt.Sprintf("scanned document %d of %d", unit, a.Units), nil
}

func (a *TribalSearch) TotalUnits() int { return a.Units }
