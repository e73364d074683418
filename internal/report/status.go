package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
)

// Verbosity selects which per-trial status lines are printed. Each flag
// only ever hides lines; NotPossible trials are never printed.
type Verbosity struct {
	OnlySummary bool
	NotOK       bool
	OnlyOK      bool
	NotFail     bool
	OnlyFail    bool
	OnlySome    bool
}

func (v Verbosity) Shows(verdict result.Verdict) bool {
	if v.OnlySummary {
		return false
	}
	switch verdict {
	case result.Success:
		return !v.NotOK && !v.OnlyFail && !v.OnlySome
	case result.PartialSuccess:
		return !v.OnlyOK && !v.OnlyFail
	case result.Failure:
		return !v.OnlyOK && !v.NotFail && !v.OnlySome
	default:
		return false
	}
}

// StatusLine renders one trial as
// "<mode> <params> OK|SOME|FAIL|NP (successes/repeat) <tags>".
func StatusLine(tr *result.TrialResult, color bool) string {
	label := paint(tr.Verdict.Label(), verdictColor(tr.Verdict), 4, color)
	tags := make([]string, 0, len(tr.Tags))
	for _, t := range tr.Tags {
		tags = append(tags, paint(t.Name, severityColor(t.Severity), 0, color))
	}
	line := fmt.Sprintf("%5s %s %s (%d/%d) %s",
		tr.Mode, tr.Params, label, tr.Successes, tr.Repeat, strings.Join(tags, " "))
	return strings.TrimRight(line, " ")
}

// Status prints trial status lines as they arrive. With a RunDir every
// trial line, hidden or not, is also appended uncolored to the mode's log
// in the run directory, followed by the mode's summary.
type Status struct {
	Out       io.Writer
	Verbosity Verbosity
	Color     bool
	RunDir    string

	modeLog *os.File
}

func (s *Status) BeginMode(mode matrix.Mode) error {
	if s.RunDir == "" {
		return nil
	}
	f, err := os.OpenFile(result.ModeLogPath(s.RunDir, mode), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating mode log: %w", err)
	}
	s.modeLog = f
	return nil
}

func (s *Status) Trial(_ context.Context, _ int, tr *result.TrialResult) error {
	if s.Verbosity.Shows(tr.Verdict) {
		if _, err := fmt.Fprintln(s.Out, StatusLine(tr, s.Color)); err != nil {
			return err
		}
	}
	if s.modeLog != nil {
		if _, err := fmt.Fprintln(s.modeLog, StatusLine(tr, false)); err != nil {
			return fmt.Errorf("writing mode log: %w", err)
		}
	}
	return nil
}

func (s *Status) EndMode(agg *result.ModeAggregate) error {
	if s.modeLog == nil {
		return nil
	}
	defer func() {
		s.modeLog.Close()
		s.modeLog = nil
	}()
	return writeBash(s.modeLog, []result.ModeAggregate{*agg}, false)
}

// AbortMode closes the mode log of a mode that stopped early. The log keeps
// the lines written so far and gets no summary.
func (s *Status) AbortMode(matrix.Mode) {
	if s.modeLog != nil {
		s.modeLog.Close()
		s.modeLog = nil
	}
}
