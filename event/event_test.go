package event

import (
	"context"
	"encoding/json"
	"testing"
)

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		wantType string
		wantKeys []string
	}{
		{"stage", StageEvent("EXECUTING", "RUNNING:50"), TypeStage, []string{"stage", "stage_status"}},
		{"context", ContextEvent("kb", "Onboarding Guide"), TypeContext, []string{"source", "summary"}},
		{"plan", PlanEvent("doc-1", 2), TypePlan, []string{"document_id", "version"}},
		{"tick", TickEvent(7, "unit 7 complete"), TypeTick, []string{"unit", "detail"}},
		{"progress", ProgressEvent(100, 200), TypeProgress, []string{"completed", "total"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.event.Type, tt.wantType)
			}
			for _, key := range tt.wantKeys {
				if _, ok := tt.event.Payload[key]; !ok {
					t.Errorf("payload missing key %q", key)
				}
			}
		})
	}
}

func TestEventJSONShape(t *testing.T) {
	data, err := json.Marshal(ProgressEvent(50, 200))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != TypeProgress {
		t.Errorf("type = %v, want %q", decoded["type"], TypeProgress)
	}
	payload, ok := decoded["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing or wrong shape: %v", decoded["payload"])
	}
	if payload["completed"] != float64(50) {
		t.Errorf("completed = %v, want 50", payload["completed"])
	}
}

func TestCapture(t *testing.T) {
	var c Capture
	ctx := context.Background()

	if err := c.Publish(ctx, "t1", StageEvent("PLANNING", "RUNNING")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := c.Publish(ctx, "t1", TickEvent(1, "")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := c.Publish(ctx, "t2", TickEvent(1, "")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := len(c.Events()); got != 3 {
		t.Errorf("Events() length = %d, want 3", got)
	}
	ticks := c.OfType(TypeTick)
	if len(ticks) != 2 {
		t.Fatalf("OfType(tick) length = %d, want 2", len(ticks))
	}
	if ticks[0].TaskID != "t1" || ticks[1].TaskID != "t2" {
		t.Errorf("tick task IDs = %q, %q", ticks[0].TaskID, ticks[1].TaskID)
	}
}
