// Package tui renders a live dashboard for one installation run: a
// progress bar over all items, per-item rows grouped by dependency layer,
// and a footer with running counts. The dashboard is read-only except for
// q and ctrl+c, which request cooperative cancellation; the run drains
// and the final report prints after the program exits.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/event"
	"github.com/gantryhq/gantry/internal/orchestrator"
	"github.com/gantryhq/gantry/internal/progress"
)

// App wraps the Bubbletea program around one orchestrator run.
type App struct {
	program *tea.Program
	orch    *orchestrator.Orchestrator
	agg     *progress.Aggregator
	bus     *event.Bus
}

// New creates a dashboard bound to the given collaborators.
func New(orch *orchestrator.Orchestrator, agg *progress.Aggregator, bus *event.Bus) *App {
	return &App{orch: orch, agg: agg, bus: bus}
}

// runDone carries Run's return values out of its goroutine.
type runDone struct {
	res *orchestrator.Result
	err error
}

// Run executes the pipeline under the dashboard and returns the run result
// after the program exits. The dashboard renders inline, without the alt
// screen, so terminal scrollback keeps the run history.
func (a *App) Run(ctx context.Context, reqs []backend.Requirement) (*orchestrator.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.program = tea.NewProgram(newModel(a.orch, a.agg, cancel))

	sub := a.bus.SubscribeAll(func(ev event.Event) {
		switch e := ev.(type) {
		case event.PlanReadyEvent:
			a.program.Send(planMsg{runID: e.RunID, layers: e.Layers})
		case event.RunFinishedEvent:
			a.program.Send(finishedMsg{outcome: e.Outcome})
		}
	})
	defer a.bus.Unsubscribe(sub)

	done := make(chan runDone, 1)
	go func() {
		res, err := a.orch.Run(runCtx, reqs)
		done <- runDone{res: res, err: err}
		a.program.Send(doneMsg{})
	}()

	if _, err := a.program.Run(); err != nil {
		// The UI died; stop the run and wait for it to drain.
		cancel()
		d := <-done
		if d.err != nil {
			return d.res, d.err
		}
		return d.res, err
	}

	d := <-done
	return d.res, d.err
}
