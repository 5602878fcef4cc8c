// Package engine runs one pipeline stage at a time over a set of items
// with bounded concurrency. It owns the admission gate, per-item timeouts,
// and the translation of operation results into item state; the actual
// work happens in backend collaborators handed in as stage functions.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/pipeline"
	"github.com/gantryhq/gantry/internal/progress"
)

// StageFunc performs one stage's operation on one item. A nil artifact
// with a nil error is valid for stages that produce nothing (install).
type StageFunc func(ctx context.Context, item pipeline.Item) (*backend.Artifact, error)

// Config tunes an Executor.
type Config struct {
	// Concurrency caps simultaneous operations per stage. 0 means
	// unlimited.
	Concurrency int

	// Timeout bounds each per-item operation. 0 means no limit.
	Timeout time.Duration
}

// Executor dispatches stage work. One Executor serves a whole run; each
// RunStage call processes one stage over one batch of items and returns
// when every dispatched item has settled.
type Executor struct {
	set     *pipeline.Set
	agg     *progress.Aggregator
	gate    *semaphore
	timeout time.Duration
	log     *logging.Logger
}

// NewExecutor creates an Executor over the run's item set and aggregator.
func NewExecutor(set *pipeline.Set, agg *progress.Aggregator, cfg Config, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Executor{
		set:     set,
		agg:     agg,
		gate:    newSemaphore(cfg.Concurrency),
		timeout: cfg.Timeout,
		log:     log,
	}
}

// RunStage runs op for every keyed item, at most the configured number at
// a time. Items enter the stage's active state at dispatch and its done
// state on success; an operation error fails just that item and never
// aborts its siblings. Once ctx is cancelled no further items are
// admitted, but operations already dispatched run to completion under
// their own timeout.
//
// RunStage returns after every admitted item has settled. The returned
// error is nil unless an internal invariant broke (an illegal transition
// or an unknown key); per-item operation failures live in item state, not
// in the return value.
func (e *Executor) RunStage(ctx context.Context, stage pipeline.Stage, keys []pipeline.Key, op StageFunc) error {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		violations []error
	)
	violate := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		violations = append(violations, err)
		e.log.Error("stage invariant violation", "stage", string(stage), "error", err)
	}

	log := e.log.WithStage(string(stage))
	for _, key := range keys {
		if ctx.Err() != nil {
			log.Info("admission stopped", "reason", ctx.Err(), "remaining", len(keys))
			break
		}
		if err := e.gate.Acquire(ctx); err != nil {
			log.Info("admission stopped while waiting", "reason", err)
			break
		}

		wg.Add(1)
		go func(key pipeline.Key) {
			defer wg.Done()
			defer e.gate.Release()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("%s panicked: %v", stage, r)
					if ch, ferr := e.set.Fail(key, stage, err); ferr == nil {
						e.agg.Record(ch)
					} else {
						violate(errors.Wrapf(ferr, "fail after panic on %s", key))
					}
				}
			}()

			if err := e.runOne(ctx, stage, key, op); err != nil {
				violate(err)
			}
		}(key)
	}

	wg.Wait()
	return errors.Join(violations...)
}

// runOne drives a single item through one stage: active transition, the
// operation itself, then the done transition or a failure record.
func (e *Executor) runOne(ctx context.Context, stage pipeline.Stage, key pipeline.Key, op StageFunc) error {
	ch, err := e.set.Transition(key, stage.Active())
	if err != nil {
		return errors.Wrapf(err, "enter %s for %s", stage, key)
	}
	e.agg.Record(ch)

	item, err := e.set.Get(key)
	if err != nil {
		return errors.Wrapf(err, "load %s", key)
	}

	// In-flight work is never interrupted by run cancellation; it finishes
	// or times out on its own clock.
	opCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		opCtx, cancel = context.WithTimeout(opCtx, e.timeout)
	}
	defer cancel()

	start := time.Now()
	art, opErr := op(opCtx, item)
	elapsed := time.Since(start)

	if opErr != nil {
		if errors.Is(opErr, context.DeadlineExceeded) {
			opErr = errors.NewTimeoutError(fmt.Sprintf("%s %s", stage, key), e.timeout).WithCause(opErr)
		}
		e.log.WithStage(string(stage)).Warn("operation failed",
			"item", string(key),
			"elapsed", elapsed,
			"error", opErr,
		)
		fch, err := e.set.Fail(key, stage, opErr)
		if err != nil {
			return errors.Wrapf(err, "fail %s after operation error", key)
		}
		e.agg.Record(fch)
		return nil
	}

	if art != nil {
		if err := e.set.SetArtifact(key, art); err != nil {
			return errors.Wrapf(err, "attach artifact to %s", key)
		}
	}

	dch, err := e.set.Transition(key, stage.Done())
	if err != nil {
		return errors.Wrapf(err, "finish %s for %s", stage, key)
	}
	e.agg.Record(dch)
	e.log.WithStage(string(stage)).Debug("operation finished",
		"item", string(key),
		"elapsed", elapsed,
	)
	return nil
}
