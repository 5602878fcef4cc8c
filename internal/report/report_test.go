package report

import (
	"strings"
	"testing"
	"time"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/orchestrator"
	"github.com/gantryhq/gantry/internal/pipeline"
	"github.com/gantryhq/gantry/internal/progress"
)

func mixedResult() *orchestrator.Result {
	return &orchestrator.Result{
		RunID:    "deadbeef",
		Outcome:  orchestrator.OutcomePartialFailure,
		Duration: 1500 * time.Millisecond,
		Snapshot: progress.Snapshot{
			Seq:   9,
			Total: 4,
			Items: []progress.ItemStatus{
				{Key: "app@1.0.0", State: pipeline.StateSkipped, Reason: "dependency_failed", Blame: "libz@1.1.0"},
				{Key: "extra@2.0.0", State: pipeline.StateSkipped, Reason: "canceled"},
				{Key: "libz@1.1.0", State: pipeline.StateFailed, Stage: pipeline.StageFetch, Reason: "mirror unreachable"},
				{Key: "tool@0.3.0", State: pipeline.StateInstalled},
			},
			Counts: map[pipeline.State]int{
				pipeline.StateInstalled: 1,
				pipeline.StateFailed:    1,
				pipeline.StateSkipped:   2,
			},
		},
	}
}

func TestBuildFoldsSnapshot(t *testing.T) {
	r := Build(mixedResult())

	if r.Total != 4 {
		t.Errorf("Total = %d, want 4", r.Total)
	}
	if len(r.Installed) != 1 || r.Installed[0] != "tool@0.3.0" {
		t.Errorf("Installed = %v, want [tool@0.3.0]", r.Installed)
	}

	if len(r.Failures) != 1 {
		t.Fatalf("Failures = %v, want one entry", r.Failures)
	}
	f := r.Failures[0]
	if f.Key != "libz@1.1.0" || f.Stage != pipeline.StageFetch || f.Reason != "mirror unreachable" {
		t.Errorf("failure = %+v", f)
	}

	if len(r.Skips) != 2 {
		t.Fatalf("Skips = %v, want two entries", r.Skips)
	}
	if r.Skips[0].Key != "app@1.0.0" || r.Skips[0].Cause != pipeline.CauseDependencyFailed || r.Skips[0].Blame != "libz@1.1.0" {
		t.Errorf("dependency skip = %+v", r.Skips[0])
	}
	if r.Skips[1].Key != "extra@2.0.0" || r.Skips[1].Cause != pipeline.CauseCanceled || r.Skips[1].Blame != "" {
		t.Errorf("cancel skip = %+v", r.Skips[1])
	}
}

func TestRenderSections(t *testing.T) {
	out := Render(Build(mixedResult()))

	for _, want := range []string{
		"partial-failure",
		"1/4 installed",
		"Installed (1)",
		"tool@0.3.0",
		"Failed (1)",
		"fetch: mirror unreachable",
		"Skipped (2)",
		"dependency_failed: libz@1.1.0",
		"canceled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "interrupted") {
		t.Error("uninterrupted run rendered as interrupted")
	}
}

func TestRenderInterrupted(t *testing.T) {
	res := mixedResult()
	res.Interrupted = true
	out := Render(Build(res))
	if !strings.Contains(out, "interrupted") {
		t.Errorf("interrupted run not flagged:\n%s", out)
	}
}

func TestRenderZeroItems(t *testing.T) {
	res := &orchestrator.Result{
		RunID:    "deadbeef",
		Outcome:  orchestrator.OutcomeSuccess,
		Duration: 12 * time.Millisecond,
	}
	out := Render(Build(res))

	if !strings.Contains(out, "success") || !strings.Contains(out, "0/0 installed") {
		t.Errorf("zero-item header wrong:\n%s", out)
	}
	for _, section := range []string{"Installed (", "Failed (", "Skipped (", "fatal:"} {
		if strings.Contains(out, section) {
			t.Errorf("zero-item report has section %q:\n%s", section, out)
		}
	}
}

func TestRenderFatal(t *testing.T) {
	res := &orchestrator.Result{
		RunID:   "deadbeef",
		Outcome: orchestrator.OutcomeFatal,
		Err:     errors.NewResolveError("version conflict for libz", nil),
	}
	out := Render(Build(res))
	if !strings.Contains(out, "fatal:") || !strings.Contains(out, "version conflict for libz") {
		t.Errorf("fatal cause not rendered:\n%s", out)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		outcome  orchestrator.Outcome
		expected int
	}{
		{orchestrator.OutcomeSuccess, 0},
		{orchestrator.OutcomePartialFailure, 1},
		{orchestrator.OutcomeFatal, 2},
		{orchestrator.Outcome("unknown"), 2},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.outcome); got != tt.expected {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.outcome, got, tt.expected)
		}
	}
}

func TestRenderPlan(t *testing.T) {
	set, err := pipeline.NewSet([]backend.ResolvedItem{
		{Name: "app", Version: "1.0.0", Kind: backend.KindSource, Deps: []string{"libz@1.1.0"}},
		{Name: "libz", Version: "1.1.0", Kind: backend.KindBinary},
	})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	layers, err := set.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}

	out := RenderPlan(layers, set)
	for _, want := range []string{
		"2 items in 2 layers",
		"layer 0",
		"libz@1.1.0",
		"binary",
		"layer 1",
		"app@1.0.0",
		"needs libz@1.1.0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan missing %q:\n%s", want, out)
		}
	}

	if strings.Index(out, "libz@1.1.0") > strings.Index(out, "app@1.0.0") {
		t.Error("dependency rendered after its dependent")
	}
}

func TestRenderEvent(t *testing.T) {
	ev := progress.Event{
		Seq:    3,
		Key:    "libz@1.1.0",
		To:     pipeline.StateFailed,
		Reason: "mirror unreachable",
	}
	out := RenderEvent(ev)
	if !strings.Contains(out, "✗") || !strings.Contains(out, "libz@1.1.0 failed: mirror unreachable") {
		t.Errorf("RenderEvent = %q", out)
	}
}
