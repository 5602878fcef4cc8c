package event

import "time"

// Event is the interface that all published events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "item.transitioned", "run.state").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for event types defined in this package.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// RunStartedEvent is published once when a run begins executing, after
// planning has succeeded.
type RunStartedEvent struct {
	baseEvent
	RunID     string
	ItemCount int
	Layers    int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID string, itemCount, layers int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent("run.started"),
		RunID:     runID,
		ItemCount: itemCount,
		Layers:    layers,
	}
}

// RunFinishedEvent is published once when a run reaches its outcome,
// whatever that outcome is.
type RunFinishedEvent struct {
	baseEvent
	RunID   string
	Outcome string
}

// NewRunFinishedEvent creates a RunFinishedEvent.
func NewRunFinishedEvent(runID, outcome string) RunFinishedEvent {
	return RunFinishedEvent{
		baseEvent: newBaseEvent("run.finished"),
		RunID:     runID,
		Outcome:   outcome,
	}
}

// PlanReadyEvent is published once per run, after resolution and layering
// succeed and before any stage work starts. Layers holds item keys grouped
// by dependency depth, in execution order.
type PlanReadyEvent struct {
	baseEvent
	RunID  string
	Layers [][]string
}

// NewPlanReadyEvent creates a PlanReadyEvent.
func NewPlanReadyEvent(runID string, layers [][]string) PlanReadyEvent {
	return PlanReadyEvent{
		baseEvent: newBaseEvent("plan.ready"),
		RunID:     runID,
		Layers:    layers,
	}
}
