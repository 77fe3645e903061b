// Package state holds the persisted sweep state: the plan and the results
// recorded so far, which always form a gapless prefix of the plan's cases.
package state

import (
	"time"

	"github.com/oklog/ulid/v2"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/plan"
)

// Result is the timing of one successful experiment. Durations come from the
// monotonic clock and are persisted as integer nanoseconds.
type Result struct {
	Build time.Duration `json:"build_ns"`
	Run   time.Duration `json:"run_ns"`
}

// Total is build plus run time, the ranking key of a report.
func (r Result) Total() time.Duration {
	return r.Build + r.Run
}

// Meta records where a plan came from. It does not take part in the prefix
// invariant.
type Meta struct {
	Manifest string `json:"manifest,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// State is the unit of persistence. Results[i] belongs to Plan.Cases[i].
type State struct {
	ID      string    `json:"id"`
	Meta    Meta      `json:"meta"`
	Plan    plan.Plan `json:"plan"`
	Results []Result  `json:"results"`
}

// New starts a sweep with no results.
func New(p plan.Plan, meta Meta) *State {
	return &State{
		ID:      ulid.Make().String(),
		Meta:    meta,
		Plan:    p,
		Results: []Result{},
	}
}

// Check verifies the prefix invariant. A violation is an internal-consistency
// fault, never a recoverable condition.
func (s *State) Check() error {
	if len(s.Results) > len(s.Plan.Cases) {
		return bcperrors.New(bcperrors.ErrCodeInvariant, "more results than planned cases").
			WithContext("results", len(s.Results)).
			WithContext("cases", len(s.Plan.Cases))
	}
	for i, r := range s.Results {
		if r.Build < 0 || r.Run < 0 {
			return bcperrors.New(bcperrors.ErrCodeInvariant, "negative duration in result").
				WithContext("case", i)
		}
	}
	return nil
}

// Next is the index of the first case without a result.
func (s *State) Next() int {
	return len(s.Results)
}

// Complete reports whether every case has a result.
func (s *State) Complete() bool {
	return len(s.Results) == len(s.Plan.Cases)
}

// Append records the result of case Next(). The invariant is checked before
// and after the mutation.
func (s *State) Append(r Result) error {
	if err := s.Check(); err != nil {
		return err
	}
	if s.Complete() {
		return bcperrors.New(bcperrors.ErrCodeInvariant, "append to a complete sweep").
			WithContext("cases", len(s.Plan.Cases))
	}
	s.Results = append(s.Results, r)
	return s.Check()
}
