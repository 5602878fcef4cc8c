package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/event"
	"github.com/gantryhq/gantry/internal/pipeline"
	"github.com/gantryhq/gantry/internal/progress"
)

// fakeBackend implements all four collaborator interfaces with scripted
// per-item results and records calls in completion order.
type fakeBackend struct {
	mu sync.Mutex

	resolved   []backend.ResolvedItem
	resolveErr error

	fetchErrs   map[string]error
	buildErrs   map[string]error
	installErrs map[string]error
	present     map[string]bool

	fetchStarted chan string
	fetchRelease chan struct{}

	calls          []string
	installedOrder []string
}

func newFakeBackend(items ...backend.ResolvedItem) *fakeBackend {
	return &fakeBackend{
		resolved:    items,
		fetchErrs:   make(map[string]error),
		buildErrs:   make(map[string]error),
		installErrs: make(map[string]error),
		present:     make(map[string]bool),
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) installed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.installedOrder))
	copy(out, f.installedOrder)
	return out
}

func (f *fakeBackend) Resolve(ctx context.Context, reqs []backend.Requirement) ([]backend.ResolvedItem, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolved, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, item backend.ResolvedItem) (*backend.Artifact, error) {
	key := item.Key()
	if f.fetchStarted != nil {
		f.fetchStarted <- key
	}
	if f.fetchRelease != nil {
		<-f.fetchRelease
	}
	f.record("fetch " + key)

	f.mu.Lock()
	err := f.fetchErrs[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &backend.Artifact{Key: key, Kind: item.Kind, Path: "/cache/" + key}, nil
}

func (f *fakeBackend) Build(ctx context.Context, item backend.ResolvedItem, art *backend.Artifact) (*backend.Artifact, error) {
	key := item.Key()
	f.record("build " + key)

	f.mu.Lock()
	err := f.buildErrs[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, errors.New("build without fetched artifact")
	}
	return &backend.Artifact{Key: key, Kind: backend.KindBinary, Path: art.Path + ".built"}, nil
}

func (f *fakeBackend) Install(ctx context.Context, item backend.ResolvedItem, art *backend.Artifact) error {
	key := item.Key()
	f.record("install " + key)

	f.mu.Lock()
	err := f.installErrs[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if art == nil {
		return errors.New("install without artifact")
	}

	f.mu.Lock()
	f.installedOrder = append(f.installedOrder, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Installed(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[key], nil
}

func (f *fakeBackend) backends() backend.Backends {
	return backend.Backends{Resolver: f, Fetcher: f, Builder: f, Installer: f}
}

func resolvedItem(name string, deps ...string) backend.ResolvedItem {
	return backend.ResolvedItem{
		Name:    name,
		Version: "1.0.0",
		Kind:    backend.KindSource,
		Deps:    deps,
		Origin:  "/index/" + name,
	}
}

func testConfig() Config {
	return Config{Concurrency: 4, ContinueOnFailure: true}
}

func newTestOrchestrator(t *testing.T, fb *fakeBackend, bus *event.Bus, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(fb.backends(), progress.NewAggregator(bus, nil), bus, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func mustState(t *testing.T, res *Result, key string, want pipeline.State) pipeline.Item {
	t.Helper()
	it, err := res.Set.Get(pipeline.Key(key))
	if err != nil {
		t.Fatalf("Get(%s): %v", key, err)
	}
	if it.State != want {
		t.Fatalf("%s state = %s, want %s", key, it.State, want)
	}
	return it
}

func TestNewRequiresCollaborators(t *testing.T) {
	fb := newFakeBackend()
	b := fb.backends()
	b.Builder = nil
	if _, err := New(b, progress.NewAggregator(nil, nil), nil, testConfig(), nil); err == nil {
		t.Error("New accepted missing builder")
	}
	if _, err := New(fb.backends(), nil, nil, testConfig(), nil); err == nil {
		t.Error("New accepted nil aggregator")
	}
}

func TestRunInstallsInDependencyOrder(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a", "b@1.0.0"),
		resolvedItem("b"),
	)
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeSuccess)
	}
	if res.Interrupted {
		t.Error("run marked interrupted")
	}

	order := fb.installed()
	if len(order) != 2 || order[0] != "b@1.0.0" || order[1] != "a@1.0.0" {
		t.Errorf("install order = %v, want [b@1.0.0 a@1.0.0]", order)
	}

	mustState(t, res, "a@1.0.0", pipeline.StateInstalled)
	mustState(t, res, "b@1.0.0", pipeline.StateInstalled)

	wantHistory := []RunState{RunInitializing, RunResolving, RunExecuting, RunCompleted}
	if len(res.History) != len(wantHistory) {
		t.Fatalf("history = %v, want %v", res.History, wantHistory)
	}
	for i, s := range wantHistory {
		if res.History[i] != s {
			t.Errorf("history[%d] = %s, want %s", i, res.History[i], s)
		}
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestRunPartialFailureSkipsDependents(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a", "b@1.0.0"),
		resolvedItem("b"),
		resolvedItem("c"),
	)
	fb.fetchErrs["b@1.0.0"] = errors.New("mirror unreachable")
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomePartialFailure {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomePartialFailure)
	}

	mustState(t, res, "b@1.0.0", pipeline.StateFailed)
	mustState(t, res, "c@1.0.0", pipeline.StateInstalled)

	a := mustState(t, res, "a@1.0.0", pipeline.StateSkipped)
	if a.Cause != pipeline.CauseDependencyFailed {
		t.Errorf("a cause = %s, want %s", a.Cause, pipeline.CauseDependencyFailed)
	}
	if a.Blame != pipeline.Key("b@1.0.0") {
		t.Errorf("a blame = %s, want b@1.0.0", a.Blame)
	}

	// The skipped item never reached any stage.
	for _, call := range []string{"fetch a@1.0.0", "build a@1.0.0", "install a@1.0.0"} {
		if fb.called(call) {
			t.Errorf("skipped item was dispatched: %s", call)
		}
	}
}

func TestRunResolutionFailureIsFatal(t *testing.T) {
	fb := newFakeBackend()
	fb.resolveErr = errors.NewResolveError("version conflict", nil).WithRequirement("a@^1")
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run succeeded, want resolution error")
	}
	if res == nil {
		t.Fatal("Run returned nil result")
	}
	if res.Outcome != OutcomeFatal {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeFatal)
	}
	if !errors.Is(res.Err, err) {
		t.Error("result error does not match returned error")
	}
	if fb.callCount() != 0 {
		t.Errorf("stage operations dispatched on fatal resolution: %v", fb.calls)
	}

	wantHistory := []RunState{RunInitializing, RunResolving, RunCompleted}
	if len(res.History) != len(wantHistory) || res.History[len(res.History)-1] != RunCompleted {
		t.Errorf("history = %v, want %v", res.History, wantHistory)
	}
}

func TestRunDependencyCycleIsFatal(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a", "b@1.0.0"),
		resolvedItem("b", "a@1.0.0"),
	)
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run succeeded with a dependency cycle")
	}
	if !errors.Is(err, errors.ErrInvalidGraph) {
		t.Errorf("error %v does not wrap ErrInvalidGraph", err)
	}
	if res.Outcome != OutcomeFatal {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeFatal)
	}
	if fb.callCount() != 0 {
		t.Errorf("stage operations dispatched on bad graph: %v", fb.calls)
	}
}

func TestRunEmptyResolutionSucceeds(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeSuccess)
	}
	if res.Snapshot.Total != 0 {
		t.Errorf("snapshot total = %d, want 0", res.Snapshot.Total)
	}
	if fb.callCount() != 0 {
		t.Errorf("operations dispatched for empty resolution: %v", fb.calls)
	}
}

func TestRunAlreadyInstalledShortCircuits(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a", "b@1.0.0"),
		resolvedItem("b"),
	)
	fb.present["b@1.0.0"] = true
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeSuccess)
	}

	mustState(t, res, "b@1.0.0", pipeline.StateInstalled)
	for _, call := range []string{"fetch b@1.0.0", "build b@1.0.0", "install b@1.0.0"} {
		if fb.called(call) {
			t.Errorf("present item was dispatched: %s", call)
		}
	}
	if order := fb.installed(); len(order) != 1 || order[0] != "a@1.0.0" {
		t.Errorf("install order = %v, want [a@1.0.0]", order)
	}
}

func TestRunBinaryKindSkipsBuild(t *testing.T) {
	item := resolvedItem("tool")
	item.Kind = backend.KindBinary
	fb := newFakeBackend(item)
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeSuccess)
	}
	if !fb.called("fetch tool@1.0.0") || !fb.called("install tool@1.0.0") {
		t.Errorf("missing stage calls: %v", fb.calls)
	}
	if fb.called("build tool@1.0.0") {
		t.Error("binary artifact was sent through build")
	}
}

func TestRunNothingProceedsIsFatal(t *testing.T) {
	fb := newFakeBackend(resolvedItem("a"))
	fb.fetchErrs["a@1.0.0"] = errors.New("mirror unreachable")
	o := newTestOrchestrator(t, fb, nil, testConfig())

	res, err := o.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run succeeded with every item failed")
	}
	if res.Outcome != OutcomeFatal {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeFatal)
	}
	mustState(t, res, "a@1.0.0", pipeline.StateFailed)
}

func TestRunFailFastCancelsRemaining(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a"),
		resolvedItem("b", "a@1.0.0"),
		resolvedItem("c", "a@1.0.0"),
	)
	fb.fetchErrs["b@1.0.0"] = errors.New("checksum mismatch")
	cfg := testConfig()
	cfg.ContinueOnFailure = false
	o := newTestOrchestrator(t, fb, nil, cfg)

	res, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomePartialFailure {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomePartialFailure)
	}
	if res.Interrupted {
		t.Error("fail-fast run marked interrupted")
	}

	mustState(t, res, "a@1.0.0", pipeline.StateInstalled)
	mustState(t, res, "b@1.0.0", pipeline.StateFailed)

	c := mustState(t, res, "c@1.0.0", pipeline.StateSkipped)
	if c.Cause != pipeline.CauseCanceled {
		t.Errorf("c cause = %s, want %s", c.Cause, pipeline.CauseCanceled)
	}
	if fb.called("install c@1.0.0") {
		t.Error("item installed after fail-fast cancel")
	}
}

func TestRunCancellationSkipsRemaining(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a"),
		resolvedItem("b"),
	)
	fb.fetchStarted = make(chan string, 1)
	fb.fetchRelease = make(chan struct{})

	cfg := testConfig()
	cfg.Concurrency = 1
	o := newTestOrchestrator(t, fb, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		res    *Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = o.Run(ctx, nil)
	}()

	select {
	case <-fb.fetchStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("first fetch never started")
	}
	cancel()
	close(fb.fetchRelease)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if !res.Interrupted {
		t.Error("canceled run not marked interrupted")
	}
	if res.Outcome != OutcomePartialFailure {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomePartialFailure)
	}

	for _, key := range []string{"a@1.0.0", "b@1.0.0"} {
		it := mustState(t, res, key, pipeline.StateSkipped)
		if it.Cause != pipeline.CauseCanceled {
			t.Errorf("%s cause = %s, want %s", key, it.Cause, pipeline.CauseCanceled)
		}
	}
	if fb.callCount() != 1 {
		t.Errorf("calls after cancel = %v, want just the in-flight fetch", fb.calls)
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	fb := newFakeBackend(resolvedItem("a"))
	bus := event.NewBus(nil)

	var (
		mu    sync.Mutex
		types []string
		final string
	)
	bus.SubscribeAll(func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.EventType())
		if fin, ok := ev.(event.RunFinishedEvent); ok {
			final = fin.Outcome
		}
	})

	o := newTestOrchestrator(t, fb, bus, testConfig())
	if _, err := o.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	seen := map[string]int{}
	for _, typ := range types {
		seen[typ]++
	}
	if seen["run.started"] != 1 || seen["run.finished"] != 1 || seen["plan.ready"] != 1 {
		t.Errorf("lifecycle events = %v", seen)
	}
	if seen["item.transitioned"] == 0 {
		t.Error("no item transition events published")
	}
	if types[0] != "run.started" {
		t.Errorf("first event = %s, want run.started", types[0])
	}
	if types[len(types)-1] != "run.finished" {
		t.Errorf("last event = %s, want run.finished", types[len(types)-1])
	}
	if final != string(OutcomeSuccess) {
		t.Errorf("finished outcome = %q, want %q", final, OutcomeSuccess)
	}
}

func TestRunIsSingleUse(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb, nil, testConfig())

	if _, err := o.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := o.Run(context.Background(), nil); err == nil {
		t.Fatal("second Run succeeded, want error")
	}
}

func TestPlanResolvesWithoutExecuting(t *testing.T) {
	fb := newFakeBackend(
		resolvedItem("a", "b@1.0.0"),
		resolvedItem("b"),
	)
	o := newTestOrchestrator(t, fb, nil, testConfig())

	set, layers, err := o.Plan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("set size = %d, want 2", set.Len())
	}
	if len(layers) != 2 {
		t.Fatalf("layers = %d, want 2", len(layers))
	}
	if layers[0][0] != "b@1.0.0" || layers[1][0] != "a@1.0.0" {
		t.Errorf("layers = %v", layers)
	}
	if fb.callCount() != 0 {
		t.Errorf("plan dispatched operations: %v", fb.calls)
	}
}
