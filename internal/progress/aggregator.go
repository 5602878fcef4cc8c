// Package progress is the single point of truth for what a run is doing
// right now. Stage workers record every applied state change here; the
// terminal layer reads consolidated snapshots back. Writers pay one short
// critical section per record; bus publication happens outside the lock so
// a slow subscriber never stalls pipeline work.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/gantryhq/gantry/internal/event"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/pipeline"
)

// ItemStatus is one item's current position as the aggregator knows it.
type ItemStatus struct {
	Key    pipeline.Key   `json:"key"`
	State  pipeline.State `json:"state"`
	Stage  pipeline.Stage `json:"stage,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Blame  pipeline.Key   `json:"blame,omitempty"`

	// Seq is the sequence number of the event that put the item in this
	// state, 0 for the seeded initial state.
	Seq uint64 `json:"seq"`

	// Since is when the item entered its current state.
	Since time.Time `json:"since"`
}

// Snapshot is a consistent view of the whole run as of Seq. Two snapshots
// from the same aggregator never move backwards: if one shows an item in a
// state, no later snapshot shows that item in an earlier state.
type Snapshot struct {
	Seq    uint64
	Total  int
	Items  []ItemStatus
	Counts map[pipeline.State]int
}

// Done counts items in a terminal state.
func (s Snapshot) Done() int {
	n := 0
	for state, c := range s.Counts {
		if state.IsTerminal() {
			n += c
		}
	}
	return n
}

// InFlight counts items currently inside a stage operation.
func (s Snapshot) InFlight() int {
	return s.Counts[pipeline.StateResolving] +
		s.Counts[pipeline.StateFetching] +
		s.Counts[pipeline.StateBuilding] +
		s.Counts[pipeline.StateInstalling]
}

// Failed counts items that failed outright.
func (s Snapshot) Failed() int {
	return s.Counts[pipeline.StateFailed]
}

// Aggregator collects transition events from concurrent stage workers into
// an append-only, sequence-numbered log plus a per-item status table. Safe
// for any number of writers and readers.
type Aggregator struct {
	mu       sync.Mutex
	seq      uint64
	events   []Event
	statuses map[pipeline.Key]ItemStatus
	counts   map[pipeline.State]int
	total    int

	bus *event.Bus
	log *logging.Logger
}

// NewAggregator creates an empty aggregator. Both bus and log may be nil;
// recording then only feeds the internal log and snapshots.
func NewAggregator(bus *event.Bus, log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Aggregator{
		statuses: make(map[pipeline.Key]ItemStatus),
		counts:   make(map[pipeline.State]int),
		bus:      bus,
		log:      log,
	}
}

// Track seeds the status table with the items of a run in their current
// states. Call once after the item set is built, before stage work starts.
func (a *Aggregator) Track(items []pipeline.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, it := range items {
		if _, ok := a.statuses[it.Key]; ok {
			continue
		}
		a.statuses[it.Key] = ItemStatus{
			Key:   it.Key,
			State: it.State,
			Since: it.UpdatedAt,
		}
		a.counts[it.State]++
		a.total++
	}
}

// Record appends a change to the event log, assigns it the next sequence
// number, and updates the item's status. The returned event carries the
// assigned sequence number. Bus subscribers are notified after the lock is
// released.
func (a *Aggregator) Record(ch pipeline.Change) Event {
	ev := fromChange(ch)

	a.mu.Lock()
	a.seq++
	ev.Seq = a.seq
	a.events = append(a.events, ev)

	prev, known := a.statuses[ch.Key]
	if known {
		a.counts[prev.State]--
	} else {
		a.total++
	}
	a.counts[ch.To]++
	a.statuses[ch.Key] = ItemStatus{
		Key:    ch.Key,
		State:  ch.To,
		Stage:  ch.Stage,
		Reason: ch.Reason,
		Blame:  ch.Blame,
		Seq:    ev.Seq,
		Since:  ch.At,
	}
	a.mu.Unlock()

	a.log.Debug("progress recorded",
		"seq", ev.Seq,
		"item", string(ev.Key),
		"from", string(ev.From),
		"to", string(ev.To),
	)
	if a.bus != nil {
		a.bus.Publish(ev)
	}
	return ev
}

// RecordAll records a batch of changes in order, as produced by the bulk
// skip operations.
func (a *Aggregator) RecordAll(changes []pipeline.Change) []Event {
	if len(changes) == 0 {
		return nil
	}
	events := make([]Event, 0, len(changes))
	for _, ch := range changes {
		events = append(events, a.Record(ch))
	}
	return events
}

// Seq returns the sequence number of the most recent event, 0 if none.
func (a *Aggregator) Seq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq
}

// Snapshot returns the current consolidated view. Items are sorted by key.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Seq:    a.seq,
		Total:  a.total,
		Items:  make([]ItemStatus, 0, len(a.statuses)),
		Counts: make(map[pipeline.State]int, len(a.counts)),
	}
	for _, st := range a.statuses {
		snap.Items = append(snap.Items, st)
	}
	for state, c := range a.counts {
		if c > 0 {
			snap.Counts[state] = c
		}
	}
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].Key < snap.Items[j].Key })
	return snap
}

// EventsSince returns all events with sequence numbers greater than seq,
// oldest first. Pass the Seq of a previous snapshot or batch to page
// through the feed without missing or repeating events.
func (a *Aggregator) EventsSince(seq uint64) []Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Sequence numbers are dense and start at 1, so the log index of the
	// first newer event is seq itself.
	if seq >= uint64(len(a.events)) {
		return nil
	}
	out := make([]Event, len(a.events)-int(seq))
	copy(out, a.events[seq:])
	return out
}
