package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/engine"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/event"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/pipeline"
)

// Run executes the full pipeline for the given root requirements: resolve
// once, partition into dependency layers, then fetch, build and install
// layer by layer. It returns a Result for every run, including fatal ones;
// the error mirrors Result.Err so callers can report and propagate in one
// step. Per-item stage failures never surface here, they live in the item
// set and the snapshot.
func (o *Orchestrator) Run(ctx context.Context, reqs []backend.Requirement) (*Result, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, errors.New("orchestrator already ran")
	}
	o.started = true
	o.mu.Unlock()

	start := time.Now()
	res := &Result{RunID: generateRunID()}
	log := o.log.WithRun(res.RunID)

	fatal := func(err error) (*Result, error) {
		o.advance(RunCompleted)
		res.Outcome = OutcomeFatal
		res.Err = err
		res.History = o.History()
		res.Snapshot = o.agg.Snapshot()
		res.Duration = time.Since(start)
		o.publish(event.NewRunFinishedEvent(res.RunID, string(OutcomeFatal)))
		log.Error("run failed", "error", err, "duration", res.Duration)
		return res, err
	}

	o.advance(RunInitializing)
	log.Info("run starting", "requirements", len(reqs))

	o.advance(RunResolving)
	resolved, err := o.backends.Resolver.Resolve(ctx, reqs)
	if err != nil {
		return fatal(err)
	}

	set, err := pipeline.NewSet(resolved)
	if err != nil {
		return fatal(err)
	}
	layers, err := set.Layers()
	if err != nil {
		return fatal(err)
	}
	res.Set = set
	res.Layers = layers
	log.Info("resolution complete", "items", set.Len(), "layers", len(layers))

	o.agg.Track(set.Items())
	o.publish(event.NewRunStartedEvent(res.RunID, set.Len(), len(layers)))
	o.publish(event.NewPlanReadyEvent(res.RunID, layerStrings(layers)))

	// The whole set resolved in one batch; surface that per item.
	changes := make([]pipeline.Change, 0, set.Len())
	for _, key := range set.Keys() {
		ch, err := set.Transition(key, pipeline.StateResolved)
		if err != nil {
			return fatal(err)
		}
		changes = append(changes, ch)
	}
	o.agg.RecordAll(changes)

	switch err := o.markInstalled(ctx, set, log); {
	case err == nil:
		o.advance(RunExecuting)
		interrupted, execErr := o.execute(ctx, set, layers, log)
		if execErr != nil {
			return fatal(execErr)
		}
		res.Interrupted = interrupted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Warn("run canceled during install scan", "error", err)
		res.Interrupted = true
		o.agg.RecordAll(set.SkipRemaining(pipeline.CauseCanceled))
	default:
		return fatal(err)
	}

	if !set.AllTerminal() {
		return fatal(errors.New("run completed with non-terminal items"))
	}

	o.advance(RunCompleted)
	res.Snapshot = o.agg.Snapshot()
	res.History = o.History()
	res.Duration = time.Since(start)
	res.Outcome = runOutcome(set, res.Interrupted)
	if res.Outcome == OutcomeFatal {
		res.Err = errors.New("no items could be installed")
	}

	o.publish(event.NewRunFinishedEvent(res.RunID, string(res.Outcome)))
	log.Info("run finished",
		"outcome", string(res.Outcome),
		"installed", res.Snapshot.Counts[pipeline.StateInstalled],
		"failed", res.Snapshot.Counts[pipeline.StateFailed],
		"skipped", res.Snapshot.Counts[pipeline.StateSkipped],
		"duration", res.Duration,
	)
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

// markInstalled queries the installer for every item and short-circuits
// the ones already present in the target environment. A scan error other
// than cancellation downgrades to a warning and the item simply runs its
// stages.
func (o *Orchestrator) markInstalled(ctx context.Context, set *pipeline.Set, log *logging.Logger) error {
	keys := set.Keys()
	present := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.Concurrency > 0 {
		g.SetLimit(o.cfg.Concurrency)
	}
	for i, key := range keys {
		g.Go(func() error {
			ok, err := o.backends.Installer.Installed(gctx, key.String())
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Warn("install check failed", "item", key.String(), "error", err)
				return nil
			}
			present[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ok := range present {
		if !ok {
			continue
		}
		ch, err := set.Transition(keys[i], pipeline.StateInstalled)
		if err != nil {
			return err
		}
		o.agg.Record(ch)
		log.Debug("already installed", "item", keys[i].String())
	}
	return nil
}

// execute runs the stage loop over the dependency layers. It returns
// interrupted = true when the caller's context was canceled mid-run; a
// non-nil error means an internal invariant broke and the run is fatal.
func (o *Orchestrator) execute(ctx context.Context, set *pipeline.Set, layers [][]pipeline.Key, log *logging.Logger) (bool, error) {
	// Fail-fast cancellation shares the same drain path as a caller
	// cancel, but only the latter marks the run interrupted.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec := engine.NewExecutor(set, o.agg, engine.Config{
		Concurrency: o.cfg.Concurrency,
		Timeout:     o.cfg.Timeout,
	}, log)

	ops := map[pipeline.Stage]engine.StageFunc{
		pipeline.StageFetch: func(ctx context.Context, it pipeline.Item) (*backend.Artifact, error) {
			return o.backends.Fetcher.Fetch(ctx, it.Resolved())
		},
		pipeline.StageBuild: func(ctx context.Context, it pipeline.Item) (*backend.Artifact, error) {
			return o.backends.Builder.Build(ctx, it.Resolved(), it.Artifact)
		},
		pipeline.StageInstall: func(ctx context.Context, it pipeline.Item) (*backend.Artifact, error) {
			return nil, o.backends.Installer.Install(ctx, it.Resolved(), it.Artifact)
		},
	}

	for i, layer := range layers {
		if runCtx.Err() != nil {
			break
		}
		o.propagate(set)

		for _, stage := range []pipeline.Stage{pipeline.StageFetch, pipeline.StageBuild, pipeline.StageInstall} {
			keys := eligible(set, layer, stage)
			if len(keys) > 0 {
				log.Debug("stage starting", "layer", i, "stage", string(stage), "items", len(keys))
				if err := exec.RunStage(runCtx, stage, keys, ops[stage]); err != nil {
					return false, err
				}
			}
			o.propagate(set)

			if !o.cfg.ContinueOnFailure && set.Counts()[pipeline.StateFailed] > 0 {
				cancel()
			}
		}
	}

	if drained := set.SkipRemaining(pipeline.CauseCanceled); len(drained) > 0 {
		log.Info("run canceled, skipping remaining items", "skipped", len(drained))
		o.agg.RecordAll(drained)
	}
	return ctx.Err() != nil, nil
}

// propagate skips every live dependent of a failed item. It runs after
// each stage so downstream items are never admitted to work that cannot
// succeed. Skips touch only non-terminal items; repeat calls are no-ops.
func (o *Orchestrator) propagate(set *pipeline.Set) {
	for _, it := range set.Items() {
		if it.State != pipeline.StateFailed {
			continue
		}
		changes, _ := set.SkipDependents(it.Key, pipeline.CauseDependencyFailed)
		if len(changes) > 0 {
			o.agg.RecordAll(changes)
		}
	}
}

// eligible picks the layer items whose current state admits them to the
// stage. Binary artifacts skip the build stage and install straight from
// their fetched payload.
func eligible(set *pipeline.Set, layer []pipeline.Key, stage pipeline.Stage) []pipeline.Key {
	var keys []pipeline.Key
	for _, key := range layer {
		it, err := set.Get(key)
		if err != nil {
			continue
		}
		switch stage {
		case pipeline.StageFetch:
			if it.State == pipeline.StateResolved {
				keys = append(keys, key)
			}
		case pipeline.StageBuild:
			if it.State == pipeline.StateFetched && it.Kind.NeedsBuild() {
				keys = append(keys, key)
			}
		case pipeline.StageInstall:
			if it.State == pipeline.StateBuilt ||
				(it.State == pipeline.StateFetched && !it.Kind.NeedsBuild()) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// runOutcome folds the terminal item states into the aggregate verdict.
func runOutcome(set *pipeline.Set, interrupted bool) Outcome {
	total := set.Len()
	if total == 0 {
		return OutcomeSuccess
	}
	installed := set.Counts()[pipeline.StateInstalled]
	switch {
	case installed == total:
		return OutcomeSuccess
	case installed > 0 || interrupted:
		return OutcomePartialFailure
	default:
		return OutcomeFatal
	}
}

func layerStrings(layers [][]pipeline.Key) [][]string {
	out := make([][]string, len(layers))
	for i, layer := range layers {
		out[i] = make([]string, len(layer))
		for j, key := range layer {
			out[i][j] = key.String()
		}
	}
	return out
}
