// Package orchestrator sequences the resolve, fetch, build and install
// stages across a dependency-ordered item set and reduces the results to
// a single run outcome.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/event"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/pipeline"
	"github.com/gantryhq/gantry/internal/progress"
)

// RunState names a phase of the run-level state machine. States advance
// initializing → resolving → executing → completed and are never
// re-entered; a fatal resolution failure jumps straight to completed.
type RunState string

const (
	RunInitializing RunState = "initializing"
	RunResolving    RunState = "resolving"
	RunExecuting    RunState = "executing"
	RunCompleted    RunState = "completed"
)

// Outcome is the aggregate verdict over a completed run.
type Outcome string

const (
	// OutcomeSuccess means every item ended installed.
	OutcomeSuccess Outcome = "success"
	// OutcomePartialFailure means the run completed its protocol but some
	// items failed or were skipped.
	OutcomePartialFailure Outcome = "partial-failure"
	// OutcomeFatal means resolution failed, the dependency graph was
	// unusable, or nothing at all could be installed.
	OutcomeFatal Outcome = "fatal"
)

// Config tunes a run.
type Config struct {
	// Concurrency caps simultaneous operations per stage, and the
	// pre-install scan. 0 means unlimited.
	Concurrency int

	// Timeout bounds each per-item stage operation. 0 means no limit.
	Timeout time.Duration

	// ContinueOnFailure keeps unaffected items running after an item
	// fails. When false, the first failure cancels the rest of the run.
	ContinueOnFailure bool
}

// Result is everything a run produced. It is valid, with the fields that
// could be populated, even when the run ended fatally.
type Result struct {
	RunID    string
	Outcome  Outcome
	History  []RunState
	Snapshot progress.Snapshot
	Set      *pipeline.Set
	Layers   [][]pipeline.Key

	// Err is the fatal cause; nil for success and partial failure.
	Err error

	// Interrupted reports that the caller's context was canceled before
	// the run finished its protocol.
	Interrupted bool

	Duration time.Duration
}

// Orchestrator drives one run of the pipeline over a set of root
// requirements. Construct one per invocation; Run may be called once.
type Orchestrator struct {
	backends backend.Backends
	agg      *progress.Aggregator
	bus      *event.Bus
	cfg      Config
	log      *logging.Logger

	mu      sync.Mutex
	started bool
	state   RunState
	history []RunState
}

// New wires an Orchestrator. The aggregator is required so callers can
// observe progress while Run is in flight; the bus is optional.
func New(b backend.Backends, agg *progress.Aggregator, bus *event.Bus, cfg Config, log *logging.Logger) (*Orchestrator, error) {
	if b.Resolver == nil || b.Fetcher == nil || b.Builder == nil || b.Installer == nil {
		return nil, errors.New("orchestrator requires all four backends")
	}
	if agg == nil {
		return nil, errors.New("orchestrator requires a progress aggregator")
	}
	if log == nil {
		log = logging.NopLogger()
	}
	return &Orchestrator{backends: b, agg: agg, bus: bus, cfg: cfg, log: log}, nil
}

// State returns the current run-level state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns every run-level state entered so far, in order.
func (o *Orchestrator) History() []RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]RunState, len(o.history))
	copy(out, o.history)
	return out
}

// advance enters the next run-level state.
func (o *Orchestrator) advance(s RunState) {
	o.mu.Lock()
	o.state = s
	o.history = append(o.history, s)
	o.mu.Unlock()
	o.log.Debug("run state changed", "state", string(s))
}

// Plan resolves the requirements and computes the layer plan without
// executing any stage.
func (o *Orchestrator) Plan(ctx context.Context, reqs []backend.Requirement) (*pipeline.Set, [][]pipeline.Key, error) {
	resolved, err := o.backends.Resolver.Resolve(ctx, reqs)
	if err != nil {
		return nil, nil, err
	}
	set, err := pipeline.NewSet(resolved)
	if err != nil {
		return nil, nil, err
	}
	layers, err := set.Layers()
	if err != nil {
		return nil, nil, err
	}
	return set, layers, nil
}

// publish sends ev to the bus, if one is wired.
func (o *Orchestrator) publish(ev event.Event) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ev)
}

// generateRunID creates a short random hex ID.
func generateRunID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
