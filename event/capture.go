package event

import (
	"context"
	"sync"
)

// CapturedEvent pairs an event with the task it was published for.
type CapturedEvent struct {
	TaskID string
	Event  Event
}

// Capture records published events in memory. Used in tests in place
// of a live NATS connection.
type Capture struct {
	mu     sync.Mutex
	events []CapturedEvent
}

var _ Publisher = (*Capture)(nil)

func (c *Capture) Publish(_ context.Context, taskID string, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, CapturedEvent{TaskID: taskID, Event: ev})
	return nil
}

// Events returns a snapshot of everything published so far.
func (c *Capture) Events() []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedEvent, len(c.events))
	copy(out, c.events)
	return out
}

// OfType returns the captured events with the given type.
func (c *Capture) OfType(eventType string) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CapturedEvent
	for _, ce := range c.events {
		if ce.Event.Type == eventType {
			out = append(out, ce)
		}
	}
	return out
}
