package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/report"
)

var planCmd = &cobra.Command{
	Use:   "plan <package[@constraint]>...",
	Short: "Show the layered execution plan without installing anything",
	Long: `Resolve the named packages and their dependencies against the index
and print the dependency layers a run would execute, layer by layer.
Nothing is fetched, built, or installed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().String("index", "", "package index directory")
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, _, _, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}

	set, layers, err := orch.Plan(ctx, reqs)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), report.RenderPlan(layers, set))
	return nil
}
