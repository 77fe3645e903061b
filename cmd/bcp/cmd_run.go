package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/buildtool"
	"github.com/odvcencio/bcp/pkg/config"
	"github.com/odvcencio/bcp/pkg/history"
	"github.com/odvcencio/bcp/pkg/logging"
	"github.com/odvcencio/bcp/pkg/paths"
	"github.com/odvcencio/bcp/pkg/report"
	"github.com/odvcencio/bcp/pkg/runner"
	"github.com/odvcencio/bcp/pkg/state"
	"github.com/odvcencio/bcp/pkg/sweep"
	"github.com/odvcencio/bcp/pkg/telemetry"
	"github.com/odvcencio/bcp/pkg/vcs"
)

// newInvokerFn allows tests to stub the build tool.
var newInvokerFn = newInvoker

func newInvoker(ctx context.Context, a *app, output io.Writer) (buildtool.Invoker, error) {
	cfg := a.cfg
	if cfg.Executor != config.ExecutorCompose {
		cargo := buildtool.NewCargo(cfg.Cargo, a.manifest, cfg.FixedFlags)
		cargo.Stdout = output
		cargo.Stderr = output
		return cargo, nil
	}

	file := cfg.Compose.File
	if file == "" {
		found, err := buildtool.FindComposeFile(filepath.Dir(a.manifest))
		if err != nil {
			return nil, withExitCode(fmt.Errorf("compose executor: %w", err), exitUsage)
		}
		file = found
	}
	// Inside the container the manifest resolves against the service's
	// working directory, so the configured path is passed through as given.
	compose := buildtool.NewCompose(file, cfg.Compose.Service, cfg.ManifestPath, cfg.FixedFlags)
	compose.Binary = cfg.Cargo
	compose.Stdout = output
	compose.Stderr = output
	if err := compose.Ready(ctx); err != nil {
		return nil, err
	}
	return compose, nil
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run or resume the sweep, then write the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), a)
		},
	}
}

func runSweep(ctx context.Context, a *app) error {
	cfg := a.cfg
	store := a.store()

	meta := state.Meta{Manifest: a.manifest}
	if rev, rerr := vcs.Detect(filepath.Dir(a.manifest)); rerr == nil {
		meta.Revision = rev.String()
	} else {
		a.logger.Debug("no source revision recorded", "error", rerr)
	}

	metrics := telemetry.NewMetrics()
	defer func() {
		if werr := metrics.WriteTextfile(cfg.Telemetry.MetricsFile); werr != nil {
			a.logger.Warn("could not write metrics textfile", "path", cfg.Telemetry.MetricsFile, "error", werr)
		}
	}()

	tracing, err := telemetry.NewTracing(cfg.Telemetry.TraceFile, version)
	if err != nil {
		return err
	}
	defer func() {
		if serr := tracing.Shutdown(context.Background()); serr != nil {
			a.logger.Warn("could not flush traces", "error", serr)
		}
	}()

	journal, err := logging.NewJournal(a.dataDir, "")
	if err != nil {
		return err
	}
	defer journal.Close()
	if a.debug() {
		journal.SetMinLevel(logging.LevelDebug)
	}

	buildLog, err := logging.NewBuildLog(paths.LogsDir(a.dataDir))
	if err != nil {
		return err
	}
	defer buildLog.Close()
	a.logger.Info("build output", "log", buildLog.Path())

	invoker, err := newInvokerFn(ctx, a, buildLog)
	if err != nil {
		return err
	}

	opts := sweep.Options{
		Catalog:  a.catalog,
		Meta:     meta,
		Logger:   a.logger,
		Journal:  journal,
		BuildLog: buildLog,
		Metrics:  metrics,
	}
	if cfg.History.Enabled {
		archive, herr := history.Open(paths.HistoryPath(a.dataDir, cfg.History.Path))
		if herr != nil {
			a.logger.Warn("history archive unavailable", "error", herr)
		} else {
			defer archive.Close()
			opts.Archive = archive
		}
	}

	r := runner.New(invoker, runner.Options{
		Bench:   cfg.Bench,
		Tracer:  tracing.Tracer(),
		Metrics: metrics,
		Logger:  a.logger,
	})
	for _, step := range r.Steps() {
		a.logger.Debug("experiment step", "step", step.Name,
			"command", strings.TrimSpace(step.Subcommand+" "+strings.Join(step.Args, " ")))
	}

	st, err := sweep.New(store, r, opts).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Warn("sweep interrupted; rerun to resume", "state", store.Path())
		}
		return err
	}
	return writeReports(a, st, cfg.Report.Formats)
}

// writeReports renders a completed state in each format. File formats land
// next to the state file.
func writeReports(a *app, st *state.State, formats []string) error {
	rep, err := report.Build(st)
	if err != nil {
		return err
	}

	for _, format := range formats {
		switch format {
		case config.FormatMarkdown:
			path := paths.ReportPath(a.dataDir, "md")
			if err := os.WriteFile(path, []byte(report.Markdown(rep)), 0o644); err != nil {
				return fmt.Errorf("write markdown report: %w", err)
			}
			a.logger.Info("report written", "path", path)
		case config.FormatHTML:
			page, err := report.HTML(rep)
			if err != nil {
				return err
			}
			path := paths.ReportPath(a.dataDir, "html")
			if err := os.WriteFile(path, page, 0o644); err != nil {
				return fmt.Errorf("write html report: %w", err)
			}
			a.logger.Info("report written", "path", path)
		case config.FormatXLSX:
			path := paths.ReportPath(a.dataDir, "xlsx")
			if err := report.WriteXLSX(rep, path); err != nil {
				return err
			}
			a.logger.Info("report written", "path", path)
		case config.FormatTerminal:
			reporter := report.NewTerminalReporter(a.out)
			if a.noColor {
				reporter.SetNoColor(true)
			}
			if report.IsTerminal(a.out) {
				err = reporter.RenderMarkdown(rep)
			} else {
				err = reporter.Render(rep)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
