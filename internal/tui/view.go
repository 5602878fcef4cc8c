package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gantryhq/gantry/internal/pipeline"
	"github.com/gantryhq/gantry/internal/progress"
	"github.com/gantryhq/gantry/internal/tui/styles"
)

// View renders the dashboard frame.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderBar())
	b.WriteString("\n\n")
	b.WriteString(m.renderLayers())
	b.WriteString(m.renderFooter())
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderHeader() string {
	parts := []string{styles.Title.Render("gantry")}

	if m.runID != "" {
		parts = append(parts, styles.Muted.Render("run "+m.runID))
	}

	state := ""
	switch {
	case m.outcome != "":
		state = m.outcome
	case m.canceling:
		state = "canceling"
	case m.orch != nil:
		state = string(m.orch.State())
	}
	if state != "" {
		parts = append(parts, styles.Header.Render(state))
	}

	parts = append(parts, styles.Muted.Render(m.elapsed.Truncate(100*time.Millisecond).String()))
	return strings.Join(parts, "  ")
}

func (m Model) renderBar() string {
	if m.snap.Total == 0 {
		return m.bar.ViewAs(0)
	}
	done := m.snap.Done()
	pct := float64(done) / float64(m.snap.Total)
	return fmt.Sprintf("%s %d/%d", m.bar.ViewAs(pct), done, m.snap.Total)
}

func (m Model) renderLayers() string {
	if len(m.layers) == 0 {
		return m.spin.View() + styles.Muted.Render(" resolving dependencies") + "\n\n"
	}

	statuses := make(map[string]progress.ItemStatus, len(m.snap.Items))
	for _, st := range m.snap.Items {
		statuses[string(st.Key)] = st
	}

	var b strings.Builder
	for i, layer := range m.layers {
		b.WriteString(styles.Subtitle.Render(fmt.Sprintf("layer %d", i)))
		b.WriteString("\n")
		for _, key := range layer {
			b.WriteString("  ")
			b.WriteString(m.renderRow(key, statuses))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

/// renderRow renders one item line: glyph, key, state detail. Items inside
// a stage get the spinner instead of a static glyph.
func (m Model) renderRow(key string, statuses map[string]progress.ItemStatus) string {
	st, ok := statuses[key]
	if !ok {
		return fmt.Sprintf("%s %s", styles.Muted.Render(styles.GlyphPending), key)
	}

	glyph := styles.RenderState(st.State)
	if !st.State.IsTerminal() && st.State != pipeline.StatePending {
		glyph = m.spin.View()
	}

	switch st.State {
	case pipeline.StateFailed:
		return fmt.Sprintf("%s %s %s", glyph, key,
			styles.Bad.Render("failed: "+st.Reason))
	case pipeline.StateSkipped:
		detail := "skipped (" + st.Reason
		if st.Blame != "" {
			detail += ": " + string(st.Blame)
		}
		detail += ")"
		return fmt.Sprintf("%s %s %s", glyph, key, styles.Muted.Render(detail))
	default:
		return fmt.Sprintf("%s %s %s", glyph, key,
			styles.Muted.Render(string(st.State)))
	}
}

func (m Model) renderFooter() string {
	c := m.snap.Counts
	counts := fmt.Sprintf("%d installed • %d failed • %d skipped • %d running",
		c[pipeline.StateInstalled], c[pipeline.StateFailed],
		c[pipeline.StateSkipped], m.snap.InFlight())

	line := styles.Footer.Render(counts)

	hint := ""
	switch {
	case m.done || m.outcome != "":
		// Run is over; the report follows.
	case m.canceling:
		hint = "canceling, waiting for in-flight stages"
	default:
		hint = "press q to cancel"
	}
	if hint != "" {
		line += styles.Muted.Render("  (" + hint + ")")
	}
	return line
}
