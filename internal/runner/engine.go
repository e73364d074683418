package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signalnine/ripedome/internal/classify"
	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
)

// Sink receives trial results as they are produced. AbortMode is called
// instead of, or after a failed, EndMode when a mode stops early; it must
// release whatever BeginMode acquired and be safe to call more than once.
type Sink interface {
	BeginMode(mode matrix.Mode) error
	Trial(ctx context.Context, seq int, tr *result.TrialResult) error
	EndMode(agg *result.ModeAggregate) error
	AbortMode(mode matrix.Mode)
}

// AttemptsFunc builds the attempt runner for one mode.
type AttemptsFunc func(mode matrix.Mode) (AttemptRunner, error)

// Engine sweeps the plan's modes one after another, strictly sequentially.
type Engine struct {
	Plan     *Plan
	Rules    *classify.Rules
	Attempts AttemptsFunc
	Sinks    []Sink
	Logger   *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Run executes every mode of the plan and returns the per-mode aggregates in
// plan order. A HarnessError or cancellation stops the run; the aggregates
// of completed modes are still returned.
func (e *Engine) Run(ctx context.Context) ([]result.ModeAggregate, error) {
	var (
		aggs []result.ModeAggregate
		seq  int
	)
	for _, mode := range e.Plan.Modes {
		agg, err := e.RunMode(ctx, mode, &seq)
		if err != nil {
			return aggs, err
		}
		aggs = append(aggs, *agg)
	}
	return aggs, nil
}

// RunMode runs every trial the mode's filter admits. seq numbers trials
// across the whole run.
func (e *Engine) RunMode(ctx context.Context, mode matrix.Mode, seq *int) (*result.ModeAggregate, error) {
	ar, err := e.Attempts(mode)
	if err != nil {
		return nil, fmt.Errorf("preparing %s: %w", mode, err)
	}

	begun, finished := 0, false
	defer func() {
		if finished {
			return
		}
		for _, s := range e.Sinks[:begun] {
			s.AbortMode(mode)
		}
	}()
	for _, s := range e.Sinks {
		if err := s.BeginMode(mode); err != nil {
			return nil, fmt.Errorf("starting %s: %w", mode, err)
		}
		begun++
	}

	trials := matrix.Enumerate(mode, e.Plan.Universe())
	e.logger().Info("mode started", "mode", mode, "trials", len(trials), "repeat", e.Plan.Repeat)
	start := time.Now()

	agg := &result.ModeAggregate{Mode: mode}
	for _, p := range trials {
		if err := ctx.Err(); err != nil {
			return agg, err
		}
		tr, err := RunTrial(ctx, ar, e.Rules, mode, p, e.Plan.Repeat)
		if err != nil {
			return agg, err
		}
		agg.Add(tr.Verdict)
		for _, s := range e.Sinks {
			if err := s.Trial(ctx, *seq, tr); err != nil {
				return agg, fmt.Errorf("recording trial %d: %w", *seq, err)
			}
		}
		*seq++
	}

	for _, s := range e.Sinks {
		if err := s.EndMode(agg); err != nil {
			return agg, fmt.Errorf("finishing %s: %w", mode, err)
		}
	}
	finished = true
	e.logger().Info("mode finished", "mode", mode,
		"ok", agg.OK, "some", agg.Some, "fail", agg.Fail, "np", agg.NP,
		"elapsed", time.Since(start).Round(time.Second))
	return agg, nil
}
