// Package runner executes a single experiment: clean, timed build, timed run.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/odvcencio/bcp/pkg/buildtool"
	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/plan"
	"github.com/odvcencio/bcp/pkg/state"
	"github.com/odvcencio/bcp/pkg/telemetry"
)

// Step names.
const (
	StepClean = "clean"
	StepBuild = "build"
	StepRun   = "run"
)

// Step is one build-tool invocation of the experiment protocol.
type Step struct {
	Name       string
	Subcommand string
	Args       []string
}

// Protocol returns the three steps of an experiment. bench selects a single
// bench target; empty means all of them.
//
// The run step rebuilds incrementally before running, so its time includes
// any build work the build step left behind.
func Protocol(bench string) []Step {
	var target []string
	if bench != "" {
		target = []string{"--bench", bench}
	}
	return []Step{
		{Name: StepClean, Subcommand: "clean"},
		{Name: StepBuild, Subcommand: "bench", Args: append([]string{"--no-run"}, target...)},
		{Name: StepRun, Subcommand: "bench", Args: target},
	}
}

// StepError reports a step that exited non-successfully.
type StepError struct {
	Step       string
	Subcommand string
	ExitCode   int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step (%s) exited with status %d", e.Step, e.Subcommand, e.ExitCode)
}

// Options configures a Runner. Zero values are usable.
type Options struct {
	Bench   string
	Tracer  trace.Tracer
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

type clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

type monotonic struct{}

func (monotonic) Now() time.Time                  { return time.Now() }
func (monotonic) Since(t time.Time) time.Duration { return time.Since(t) }

// Runner runs experiments one at a time through a build-tool invoker.
type Runner struct {
	invoker buildtool.Invoker
	steps   []Step
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	logger  *slog.Logger
	clock   clock // replaced for testing
}

// New returns a Runner for the invoker.
func New(invoker buildtool.Invoker, opts Options) *Runner {
	r := &Runner{
		invoker: invoker,
		steps:   Protocol(opts.Bench),
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		clock:   monotonic{},
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("")
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Steps returns the protocol the runner follows.
func (r *Runner) Steps() []Step {
	return r.steps
}

// Run executes the protocol with the config's environment. It stops at the
// first failing step; there is no retry.
func (r *Runner) Run(ctx context.Context, config plan.Config) (state.Result, error) {
	env := config.Environment()

	ctx, span := r.tracer.Start(ctx, "experiment")
	defer span.End()

	var result state.Result
	for _, step := range r.steps {
		elapsed, err := r.runStep(ctx, step, env)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Name)
			return state.Result{}, err
		}
		switch step.Name {
		case StepBuild:
			result.Build = elapsed
		case StepRun:
			result.Run = elapsed
		}
	}

	span.SetAttributes(
		attribute.Int64("bcp.build_ns", int64(result.Build)),
		attribute.Int64("bcp.run_ns", int64(result.Run)),
	)
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, env map[string]string) (time.Duration, error) {
	ctx, span := r.tracer.Start(ctx, "step."+step.Name,
		trace.WithAttributes(attribute.String("bcp.subcommand", step.Subcommand)))
	defer span.End()

	r.logger.Debug("invoking build tool", "step", step.Name, "subcommand", step.Subcommand, "args", step.Args)

	start := r.clock.Now()
	outcome, err := r.invoker.Invoke(ctx, step.Subcommand, step.Args, env)
	elapsed := r.clock.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, bcperrors.Wrap(ctxErr, bcperrors.ErrCodeToolExecution, "interrupted").
			WithContext("step", step.Name).
			WithRetryable(true)
	}
	if err != nil {
		return 0, bcperrors.Wrap(err, bcperrors.ErrCodeToolExecution, "could not run build tool").
			WithContext("step", step.Name)
	}

	span.SetAttributes(attribute.Int("bcp.exit_code", outcome.ExitCode))
	if !outcome.Success() {
		stepErr := &StepError{Step: step.Name, Subcommand: step.Subcommand, ExitCode: outcome.ExitCode}
		return 0, bcperrors.Wrap(stepErr, bcperrors.ErrCodeToolExecution, "build tool failed").
			WithContext("step", step.Name).
			WithContext("exit_code", outcome.ExitCode).
			WithRetryable(true)
	}

	r.metrics.ObserveStep(step.Name, elapsed)
	return elapsed, nil
}
