// Package sweep drives a plan to completion one experiment at a time,
// checkpointing after every success so an interrupted sweep resumes at the
// first case without a result.
package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odvcencio/bcp/pkg/knob"
	"github.com/odvcencio/bcp/pkg/logging"
	"github.com/odvcencio/bcp/pkg/plan"
	"github.com/odvcencio/bcp/pkg/runner"
	"github.com/odvcencio/bcp/pkg/state"
	"github.com/odvcencio/bcp/pkg/telemetry"
)

// Phase is where a sweep stands.
type Phase int

const (
	Fresh Phase = iota
	Resuming
	Running
	Complete
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Resuming:
		return "resuming"
	case Running:
		return "running"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseOf classifies a loaded state. found is false when no state file existed.
func PhaseOf(st *state.State, found bool) Phase {
	switch {
	case st.Complete():
		return Complete
	case found:
		return Resuming
	default:
		return Fresh
	}
}

// Experimenter runs one experiment. *runner.Runner satisfies it.
type Experimenter interface {
	Run(ctx context.Context, config plan.Config) (state.Result, error)
}

// Archiver receives a completed sweep.
type Archiver interface {
	Archive(ctx context.Context, st *state.State) error
}

// Options wires the sweep's collaborators. Only Catalog is required; a nil
// collaborator is skipped.
type Options struct {
	Catalog  knob.Catalog
	Meta     state.Meta
	Logger   *slog.Logger
	Journal  *logging.Journal
	BuildLog *logging.BuildLog
	Metrics  *telemetry.Metrics
	Archive  Archiver
}

// Sweeper owns the loop from load to completion.
type Sweeper struct {
	store    *state.Store
	runner   Experimenter
	catalog  knob.Catalog
	meta     state.Meta
	logger   *slog.Logger
	journal  *logging.Journal
	buildLog *logging.BuildLog
	metrics  *telemetry.Metrics
	archive  Archiver
	phase    Phase
}

// New returns a sweeper checkpointing to store.
func New(store *state.Store, r Experimenter, opts Options) *Sweeper {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		store:    store,
		runner:   r,
		catalog:  opts.Catalog,
		meta:     opts.Meta,
		logger:   logger,
		journal:  opts.Journal,
		buildLog: opts.BuildLog,
		metrics:  opts.Metrics,
		archive:  opts.Archive,
	}
}

// Phase reports the phase the last Run reached.
func (s *Sweeper) Phase() Phase {
	return s.phase
}

// Run loads (or starts) the state and executes every case without a result.
// Each success is persisted before the next case starts. The first failure
// stops the sweep; the file keeps the state as of the last success. The
// returned state is the in-memory state at that point.
func (s *Sweeper) Run(ctx context.Context) (*state.State, error) {
	st, found, err := s.store.Load(s.catalog, s.meta)
	if err != nil {
		return nil, err
	}
	s.phase = PhaseOf(st, found)
	s.journal.SetSweepID(st.ID)

	if found {
		s.warnDrift(st)
	}

	total := len(st.Plan.Cases)
	s.logger.Info("sweep loaded", "id", st.ID, "phase", s.phase.String(), "recorded", st.Next(), "cases", total)
	s.metrics.SetProgress(st.Next(), total)

	if s.phase == Complete {
		return st, nil
	}

	_ = s.journal.Info(logging.CategorySweep, logging.EventSweepStarted, "", map[string]any{
		"phase":    s.phase.String(),
		"recorded": st.Next(),
		"cases":    total,
	})
	s.phase = Running
	if recorded := st.Next(); recorded > 0 {
		s.logger.Info("resuming sweep", "next_case", recorded, "skipped", recorded, "cases", total)
	}

	for i, exp := range st.Plan.Cases {
		if i < len(st.Results) {
			s.logger.Debug("skipping recorded case", "case", i, "label", exp.Label())
			_ = s.journal.Experiment(logging.LevelDebug, logging.EventExperimentSkipped, i, exp.Label(), nil)
			s.metrics.RecordExperiment(telemetry.OutcomeSkipped)
			continue
		}
		if err := s.runCase(ctx, st, i, exp); err != nil {
			return st, err
		}
	}

	s.phase = Complete
	s.logger.Info("sweep complete", "id", st.ID, "cases", total)
	_ = s.journal.Info(logging.CategorySweep, logging.EventSweepCompleted, "", map[string]any{"cases": total})

	if s.archive != nil {
		if err := s.archive.Archive(ctx, st); err != nil {
			// The state file is the source of truth; the archive can be rebuilt from it.
			s.logger.Warn("could not archive sweep", "error", err)
		}
	}
	return st, nil
}

func (s *Sweeper) runCase(ctx context.Context, st *state.State, i int, exp plan.Experiment) error {
	label := exp.Label()
	config, err := plan.Merge(st.Plan.Baseline, exp.Overrides)
	if err != nil {
		s.recordFailure(i, label, err)
		return fmt.Errorf("case %d (%s): %w", i, label, err)
	}

	s.logger.Info("running case", "case", i, "of", len(st.Plan.Cases), "label", label)
	_ = s.journal.Experiment(logging.LevelInfo, logging.EventExperimentStarted, i, label, nil)
	if s.buildLog != nil {
		_ = s.buildLog.Begin(i, label)
	}

	result, err := s.runner.Run(ctx, config)
	if err != nil {
		s.recordFailure(i, label, err)
		return fmt.Errorf("case %d (%s): %w", i, label, err)
	}

	if err := st.Append(result); err != nil {
		return err
	}
	if err := s.store.Save(st); err != nil {
		return err
	}
	_ = s.journal.Log(logging.Event{
		Level:     logging.LevelDebug,
		Category:  logging.CategoryState,
		EventType: logging.EventCheckpoint,
		Details:   map[string]any{"path": s.store.Path(), "recorded": st.Next()},
	})

	s.metrics.RecordExperiment(telemetry.OutcomeCompleted)
	s.metrics.SetProgress(st.Next(), len(st.Plan.Cases))
	s.logger.Info("case recorded", "case", i, "label", label, "build", result.Build, "run", result.Run)
	_ = s.journal.Experiment(logging.LevelInfo, logging.EventExperimentCompleted, i, label, map[string]any{
		"build_ns": int64(result.Build),
		"run_ns":   int64(result.Run),
	})
	return nil
}

func (s *Sweeper) recordFailure(i int, label string, err error) {
	s.metrics.RecordExperiment(telemetry.OutcomeFailed)
	_ = s.journal.Experiment(logging.LevelError, logging.EventExperimentFailed, i, label, map[string]any{
		"error": err.Error(),
	})
}

// warnDrift flags a resumed sweep whose inputs changed since it was planned.
// The persisted plan always wins.
func (s *Sweeper) warnDrift(st *state.State) {
	if len(s.catalog) > 0 && !st.Plan.Baseline.Catalog().Equal(s.catalog) {
		s.logger.Warn("knob catalog changed since this sweep was planned; continuing with the persisted plan",
			"state", s.store.Path())
		_ = s.journal.Log(logging.Event{
			Level:     logging.LevelWarn,
			Category:  logging.CategoryState,
			EventType: EventCatalogDrift,
		})
	}
	if st.Meta.Revision != "" && s.meta.Revision != "" && st.Meta.Revision != s.meta.Revision {
		s.logger.Warn("source revision changed since this sweep started; results may mix versions",
			"planned", st.Meta.Revision, "current", s.meta.Revision)
		_ = s.journal.Log(logging.Event{
			Level:     logging.LevelWarn,
			Category:  logging.CategoryState,
			EventType: EventRevisionDrift,
			Details:   map[string]any{"planned": st.Meta.Revision, "current": s.meta.Revision},
		})
	}
}

// Drift event types.
const (
	EventCatalogDrift  = "state.catalog_drift"
	EventRevisionDrift = "state.revision_drift"
)

var _ Experimenter = (*runner.Runner)(nil)
