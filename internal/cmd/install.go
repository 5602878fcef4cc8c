package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/backend/local"
	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/event"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/orchestrator"
	"github.com/gantryhq/gantry/internal/progress"
	"github.com/gantryhq/gantry/internal/report"
	"github.com/gantryhq/gantry/internal/tui"
)

var installCmd = &cobra.Command{
	Use:   "install <package[@constraint]>...",
	Short: "Resolve and install packages into the environment",
	Long: `Resolve the named packages and their dependencies against the index,
then fetch, build, and install them into the environment directory.
Independent packages proceed in parallel. A failed package takes down
only its dependents; everything else still installs.

Examples:
  # Install the latest indexed version
  gantry install libpng

  # Pin with a semver constraint
  gantry install libpng@^1.6 zlib@1.3.1

  # Abort everything on the first failure
  gantry install --fail-fast toolchain

Exit codes: 0 all installed, 1 partial failure, 2 nothing proceeded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().Int("concurrency", 0, "max items per stage at once (0 for unlimited)")
	installCmd.Flags().Duration("timeout", 0, "per-item stage timeout (0 for none)")
	installCmd.Flags().String("index", "", "package index directory")
	installCmd.Flags().String("cache", "", "artifact cache directory")
	installCmd.Flags().String("env", "", "environment directory to install into")
	installCmd.Flags().Bool("fail-fast", false, "cancel the run on the first failure")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	configureColor(cfg)
	if err := requireIndex(cfg); err != nil {
		return err
	}

	reqs, err := backend.ParseRequirements(args)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	// SIGINT/SIGTERM cancel the run; in-flight stages finish and the
	// rest is skipped before the report prints.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, bus, agg, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	var res *orchestrator.Result
	if useDashboard(cfg) {
		res, err = tui.New(orch, agg, bus).Run(ctx, reqs)
	} else {
		res, err = runPlainInstall(ctx, out, orch, reqs, bus)
	}
	if res == nil {
		return err
	}

	rep := report.Build(res)
	fmt.Fprint(out, report.Render(rep))

	if code := report.ExitCode(rep.Outcome); code != 0 {
		return &exitError{code: code, err: res.Err}
	}
	return nil
}

// buildOrchestrator assembles the local backend, event bus, progress
// aggregator, and orchestrator from one config.
func buildOrchestrator(cfg *config.Config, log *logging.Logger) (*orchestrator.Orchestrator, *event.Bus, *progress.Aggregator, error) {
	bus := event.NewBus(log)
	agg := progress.NewAggregator(bus, log)

	backends := local.New(afero.NewOsFs(), local.Dirs{
		Index: cfg.Index,
		Cache: cfg.Cache,
		Env:   cfg.Env,
	}, log)

	orch, err := orchestrator.New(backends, agg, bus, orchestrator.Config{
		Concurrency:       cfg.Concurrency,
		Timeout:           cfg.Timeout,
		ContinueOnFailure: cfg.ContinueOnFailure,
	}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return orch, bus, agg, nil
}

// useDashboard reports whether the interactive dashboard should render
// this run.
func useDashboard(cfg *config.Config) bool {
	return !cfg.Plain && term.IsTerminal(int(os.Stdout.Fd()))
}

// runPlainInstall renders one line per pipeline event, suited to CI logs
// and non-interactive shells.
func runPlainInstall(ctx context.Context, out io.Writer, orch *orchestrator.Orchestrator, reqs []backend.Requirement, bus *event.Bus) (*orchestrator.Result, error) {
	// Stage workers publish concurrently; serialize writes so lines
	// never interleave.
	var mu sync.Mutex
	sub := bus.SubscribeAll(func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e := ev.(type) {
		case progress.Event:
			fmt.Fprintln(out, report.RenderEvent(e))
		case event.RunStartedEvent:
			fmt.Fprintf(out, "run %s: %d items in %d layers\n", e.RunID, e.ItemCount, e.Layers)
		}
	})

	res, err := orch.Run(ctx, reqs)
	bus.Unsubscribe(sub)
	return res, err
}
