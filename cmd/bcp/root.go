package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/config"
	"github.com/odvcencio/bcp/pkg/knob"
	"github.com/odvcencio/bcp/pkg/logging"
	"github.com/odvcencio/bcp/pkg/paths"
	"github.com/odvcencio/bcp/pkg/state"
)

// app carries what every subcommand needs once flags and config are merged.
type app struct {
	cfg      *config.Config
	dataDir  string
	manifest string
	catalog  knob.Catalog
	logger   *slog.Logger
	out      io.Writer
	noColor  bool
}

func (a *app) store() *state.Store {
	return state.NewStore(paths.StatePath(a.dataDir))
}

type rootFlags struct {
	configPath   string
	manifestPath string
	dataDir      string
	bench        string
	catalogFile  string
	executor     string
	logLevel     string
	noColor      bool
}

func newRootCmd() *cobra.Command {
	cmd, _ := newRootApp()
	return cmd
}

// newRootApp builds the command tree and returns the app it populates once a
// subcommand starts.
func newRootApp() (*cobra.Command, *app) {
	var flags rootFlags
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "bcp",
		Short: "Measure how cargo release-profile knobs affect build and benchmark time",
		Long: `bcp plans one experiment per non-default value of each release-profile knob,
builds and benchmarks each one in turn, and ranks them by total time.

Progress is checkpointed after every experiment; rerunning resumes where the
last run stopped.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, flags)
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withExitCode(err, exitUsage)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.bcp/config.yaml then ./.bcp/config.yaml)")
	pf.StringVar(&flags.manifestPath, "manifest-path", "", "path to Cargo.toml")
	pf.StringVar(&flags.dataDir, "data-dir", "", "directory for state, journal and reports")
	pf.StringVar(&flags.bench, "bench", "", "bench target to time (default: all benches)")
	pf.StringVar(&flags.catalogFile, "catalog", "", "YAML knob catalog replacing the built-in one")
	pf.StringVar(&flags.executor, "executor", "", "where cargo runs: local or compose")
	pf.StringVar(&flags.logLevel, "log-level", "", "console log level: debug, info, warn, error")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colors in terminal reports (also NO_COLOR)")

	rootCmd.AddCommand(
		newRunCmd(a),
		newPlanCmd(a),
		newCatalogCmd(a),
		newStatusCmd(a),
		newReportCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	return rootCmd, a
}

// init loads config, then applies flags that were set explicitly.
func (a *app) init(cmd *cobra.Command, flags rootFlags) error {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFromPath(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("manifest-path") {
		cfg.ManifestPath = flags.manifestPath
	}
	if changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if changed("bench") {
		cfg.Bench = flags.bench
	}
	if changed("catalog") {
		cfg.CatalogFile = flags.catalogFile
	}
	if changed("executor") {
		cfg.Executor = flags.executor
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	catalog := knob.DefaultCatalog()
	if cfg.CatalogFile != "" {
		if catalog, err = knob.LoadCatalog(cfg.CatalogFile); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.dataDir = config.ResolveDataDir(cfg)
	a.manifest = config.ResolveManifestPath(cfg)
	a.catalog = catalog
	a.out = cmd.OutOrStdout()
	a.noColor = flags.noColor || os.Getenv("NO_COLOR") != ""
	a.logger = logging.NewConsole(cmd.ErrOrStderr(), "bcp", logging.ParseLevel(cfg.Log.Level))
	return nil
}

// debug reports whether the console runs at debug level. It is false until
// init has loaded the config.
func (a *app) debug() bool {
	return a.cfg != nil && logging.ParseLevel(a.cfg.Log.Level) <= slog.LevelDebug
}
