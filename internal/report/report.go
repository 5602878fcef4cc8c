// Package report folds a finished run into a user-facing summary: counts
// by terminal state plus per-item detail, with each skip traced back to
// the failed ancestor that caused it. Building is a pure transformation;
// rendering is separate so the CLI and tests can use the structured form
// directly.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/gantryhq/gantry/internal/orchestrator"
	"github.com/gantryhq/gantry/internal/pipeline"
	"github.com/gantryhq/gantry/internal/progress"
	"github.com/gantryhq/gantry/internal/tui/styles"
)

// Failure describes one item that failed a stage.
type Failure struct {
	Key    pipeline.Key
	Stage  pipeline.Stage
	Reason string
}

// Skip describes one item abandoned without attempting its stages. Blame
// names the failed ancestor for dependency skips and is empty for
// cancellation.
type Skip struct {
	Key   pipeline.Key
	Cause pipeline.SkipCause
	Blame pipeline.Key
}

// Report is the presentable fold of a run result.
type Report struct {
	Outcome     orchestrator.Outcome
	RunID       string
	Duration    time.Duration
	Interrupted bool
	Total       int
	Counts      map[pipeline.State]int
	Installed   []pipeline.Key
	Failures    []Failure
	Skips       []Skip

	// Err is the fatal cause for runs that never executed, or the
	// nothing-installed verdict.
	Err error
}

// Build folds a run result into a Report. Item lists inherit the
// snapshot's key order, which is sorted.
func Build(res *orchestrator.Result) Report {
	r := Report{
		Outcome:     res.Outcome,
		RunID:       res.RunID,
		Duration:    res.Duration,
		Interrupted: res.Interrupted,
		Total:       res.Snapshot.Total,
		Counts:      res.Snapshot.Counts,
		Err:         res.Err,
	}
	for _, st := range res.Snapshot.Items {
		switch st.State {
		case pipeline.StateInstalled:
			r.Installed = append(r.Installed, st.Key)
		case pipeline.StateFailed:
			r.Failures = append(r.Failures, Failure{Key: st.Key, Stage: st.Stage, Reason: st.Reason})
		case pipeline.StateSkipped:
			r.Skips = append(r.Skips, Skip{Key: st.Key, Cause: pipeline.SkipCause(st.Reason), Blame: st.Blame})
		}
	}
	return r
}

// ExitCode maps an outcome to the process exit code: 0 success, 1 partial
// failure, 2 fatal.
func ExitCode(o orchestrator.Outcome) int {
	switch o {
	case orchestrator.OutcomeSuccess:
		return 0
	case orchestrator.OutcomePartialFailure:
		return 1
	default:
		return 2
	}
}

// Render formats the report as a styled text block for the terminal.
func Render(r Report) string {
	var b strings.Builder
	b.WriteString(renderHeader(r))
	b.WriteString("\n")

	if len(r.Installed) > 0 {
		b.WriteString(styles.Header.Render(fmt.Sprintf("Installed (%d)", len(r.Installed))))
		b.WriteString("\n")
		for _, key := range r.Installed {
			fmt.Fprintf(&b, "  %s %s\n", styles.Good.Render(styles.GlyphInstalled), key)
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString(styles.Header.Render(fmt.Sprintf("Failed (%d)", len(r.Failures))))
		b.WriteString("\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s %s  %s\n",
				styles.Bad.Render(styles.GlyphFailed), f.Key,
				styles.Muted.Render(fmt.Sprintf("%s: %s", f.Stage, f.Reason)))
		}
	}

	if len(r.Skips) > 0 {
		b.WriteString(styles.Header.Render(fmt.Sprintf("Skipped (%d)", len(r.Skips))))
		b.WriteString("\n")
		for _, s := range r.Skips {
			detail := string(s.Cause)
			if s.Blame != "" {
				detail = fmt.Sprintf("%s: %s", s.Cause, s.Blame)
			}
			fmt.Fprintf(&b, "  %s %s  %s\n",
				styles.Muted.Render(styles.GlyphSkipped), s.Key,
				styles.Muted.Render(detail))
		}
	}

	if r.Err != nil {
		fmt.Fprintf(&b, "%s %s\n", styles.Bad.Render("fatal:"), r.Err)
	}
	return b.String()
}

// renderHeader renders the one-line verdict.
func renderHeader(r Report) string {
	var verdict string
	switch r.Outcome {
	case orchestrator.OutcomeSuccess:
		verdict = styles.Good.Render(string(r.Outcome))
	case orchestrator.OutcomePartialFailure:
		verdict = styles.Warn.Render(string(r.Outcome))
	default:
		verdict = styles.Bad.Render(string(r.Outcome))
	}

	line := fmt.Sprintf("%s  %d/%d installed in %s",
		verdict, len(r.Installed), r.Total, r.Duration.Round(time.Millisecond))
	if r.Interrupted {
		line += styles.Warn.Render("  (interrupted)")
	}
	return line + "\n"
}

// RenderPlan formats the layered install plan without executing anything.
func RenderPlan(layers [][]pipeline.Key, set *pipeline.Set) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(
		fmt.Sprintf("%d items in %d layers", set.Len(), len(layers))))
	b.WriteString("\n")

	for i, layer := range layers {
		b.WriteString(styles.Header.Render(fmt.Sprintf("layer %d", i)))
		b.WriteString("\n")
		for _, key := range layer {
			it, err := set.Get(key)
			if err != nil {
				continue
			}
			detail := string(it.Kind)
			if len(it.Deps) > 0 {
				deps := make([]string, len(it.Deps))
				for j, d := range it.Deps {
					deps[j] = string(d)
				}
				detail += ", needs " + strings.Join(deps, ", ")
			}
			fmt.Fprintf(&b, "  %s  %s\n", key, styles.Muted.Render(detail))
		}
	}
	return b.String()
}

// RenderEvent formats one transition event as a plain-mode output line.
func RenderEvent(ev progress.Event) string {
	return fmt.Sprintf("%s %s", styles.RenderState(ev.To), ev)
}
