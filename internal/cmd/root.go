// Package cmd wires the gantry CLI: configuration loading, logging setup,
// and the install, plan, list, logs, and version subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Parallel package installer",
	Long: `Gantry resolves, fetches, builds, and installs packages from a local
index into an environment directory. Independent packages run in
parallel, dependency order is honored, and one bad package does not
abort the rest of the run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Configuration shared by all subcommands, assembled by initConfig before
// any RunE executes.
var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
)

// Execute runs the root command and returns the process exit code:
// 0 for success, 1 when some items failed, 2 when nothing could proceed.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is $XDG_CONFIG_HOME/gantry/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json, text")
	rootCmd.PersistentFlags().Bool("plain", false, "force line-oriented output even on a TTY")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable ANSI color")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("plain", rootCmd.PersistentFlags().Lookup("plain"))
	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))
}

// initConfig loads configuration once per invocation. Load errors are
// surfaced by the first command that needs the config.
func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
}

// loadedConfig returns a copy of the configuration assembled by
// initConfig, so commands can layer flag overrides without touching
// shared state.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		// OnInitialize has not run; load directly.
		return config.Load(cfgFile)
	}
	c := *cfg
	return &c, nil
}

// applyFlagOverrides layers explicitly set command flags over the loaded
// configuration. Flags the user did not set leave the config untouched.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("index") {
		cfg.Index, _ = flags.GetString("index")
	}
	if flags.Changed("cache") {
		cfg.Cache, _ = flags.GetString("cache")
	}
	if flags.Changed("env") {
		cfg.Env, _ = flags.GetString("env")
	}
	if flags.Changed("fail-fast") {
		failFast, _ := flags.GetBool("fail-fast")
		cfg.ContinueOnFailure = !failFast
	}
}

// configureColor forces colorless rendering when requested. lipgloss
// otherwise detects terminal capabilities on its own.
func configureColor(cfg *config.Config) {
	if cfg.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// requireIndex rejects commands that cannot work without a package index.
func requireIndex(cfg *config.Config) error {
	if cfg.Index == "" {
		return errors.NewConfigError("package index is required; set --index, GANTRY_INDEX, or the index key").
			WithField("index")
	}
	return nil
}

// exitError carries a specific process exit code out of a command whose
// report has already been printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }
