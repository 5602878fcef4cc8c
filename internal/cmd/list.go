package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/internal/backend/local"
	"github.com/gantryhq/gantry/internal/logging"
	"github.com/gantryhq/gantry/internal/tui/styles"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List packages installed in the environment",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("env", "", "environment directory to inspect")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	configureColor(cfg)

	installer := local.NewInstaller(afero.NewOsFs(), cfg.Env, logging.NopLogger())
	receipts, err := installer.Receipts()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(receipts) == 0 {
		fmt.Fprintf(out, "no packages installed in %s\n", cfg.Env)
		return nil
	}

	for _, r := range receipts {
		fmt.Fprintf(out, "%s %s@%s  %s  %s\n",
			styles.Good.Render(styles.GlyphInstalled),
			r.Name, r.Version,
			shortDigest(r.Digest),
			r.InstalledAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "\n%d installed in %s\n", len(receipts), cfg.Env)
	return nil
}

// shortDigest trims a digest like sha256:9f86d08188... to the algorithm
// plus twelve hex characters.
func shortDigest(d string) string {
	const keep = len("sha256:") + 12
	if len(d) > keep {
		return d[:keep]
	}
	return d
}
