package progress

import (
	"fmt"
	"time"

	"github.com/gantryhq/gantry/internal/pipeline"
)

// Event is one recorded item transition, tagged with the sequence number
// the aggregator assigned to it. Events with higher sequence numbers were
// recorded later; for a single item the sequence order matches the item's
// transition order.
type Event struct {
	Seq    uint64         `json:"seq"`
	Key    pipeline.Key   `json:"key"`
	From   pipeline.State `json:"from,omitempty"`
	To     pipeline.State `json:"to"`
	Stage  pipeline.Stage `json:"stage,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Blame  pipeline.Key   `json:"blame,omitempty"`
	At     time.Time      `json:"at"`
}

// EventType implements event.Event so progress records can ride the bus.
func (e Event) EventType() string { return "item.transitioned" }

// Timestamp implements event.Event.
func (e Event) Timestamp() time.Time { return e.At }

// String renders the event for plain-text output.
func (e Event) String() string {
	switch e.To {
	case pipeline.StateFailed:
		return fmt.Sprintf("%s failed: %s", e.Key, e.Reason)
	case pipeline.StateSkipped:
		if e.Blame != "" {
			return fmt.Sprintf("%s skipped (%s: %s)", e.Key, e.Reason, e.Blame)
		}
		return fmt.Sprintf("%s skipped (%s)", e.Key, e.Reason)
	default:
		return fmt.Sprintf("%s %s", e.Key, e.To)
	}
}

// fromChange builds the unsequenced part of an Event from a Change record.
func fromChange(ch pipeline.Change) Event {
	return Event{
		Key:    ch.Key,
		From:   ch.From,
		To:     ch.To,
		Stage:  ch.Stage,
		Reason: ch.Reason,
		Blame:  ch.Blame,
		At:     ch.At,
	}
}
