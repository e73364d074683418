package result

import (
	"fmt"

	"github.com/signalnine/ripedome/internal/matrix"
)

// Verdict is the outcome of one trial after all its attempts.
type Verdict int

const (
	Failure Verdict = iota
	PartialSuccess
	Success
	NotPossible
)

// Label is the short form used in status lines and summaries.
func (v Verdict) Label() string {
	switch v {
	case Success:
		return "OK"
	case PartialSuccess:
		return "SOME"
	case Failure:
		return "FAIL"
	case NotPossible:
		return "NP"
	default:
		return "?"
	}
}

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case PartialSuccess:
		return "partial"
	case Failure:
		return "failure"
	case NotPossible:
		return "not_possible"
	default:
		return "unknown"
	}
}

// ParseVerdict is the inverse of Verdict.String.
func ParseVerdict(s string) (Verdict, error) {
	for _, v := range []Verdict{Failure, PartialSuccess, Success, NotPossible} {
		if v.String() == s {
			return v, nil
		}
	}
	return Failure, fmt.Errorf("unknown verdict %q", s)
}

type Severity int

const (
	Info Severity = iota
	Severe
)

func (s Severity) String() string {
	if s == Info {
		return "info"
	}
	return "severe"
}

func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return Info, nil
	case "severe", "":
		return Severe, nil
	}
	return Severe, fmt.Errorf("unknown severity %q", s)
}

// Tag is a named observation attached to a trial.
type Tag struct {
	Name     string
	Severity Severity
}

type TrialResult struct {
	Mode      matrix.Mode
	Params    matrix.Params
	Verdict   Verdict
	Successes int
	// Attempts is how many repetitions actually ran; NotPossible cuts the
	// loop short.
	Attempts int
	Repeat   int
	Tags     []Tag
}

// ModeAggregate counts trial verdicts for one protection mode.
type ModeAggregate struct {
	Mode matrix.Mode `json:"mode"`
	OK   int         `json:"ok"`
	Some int         `json:"some"`
	Fail int         `json:"fail"`
	NP   int         `json:"np"`
}

// Add counts one trial verdict.
func (a *ModeAggregate) Add(v Verdict) {
	switch v {
	case Success:
		a.OK++
	case PartialSuccess:
		a.Some++
	case Failure:
		a.Fail++
	case NotPossible:
		a.NP++
	}
}

// Attempted is the number of trials that were possible to run.
func (a *ModeAggregate) Attempted() int {
	return a.OK + a.Some + a.Fail
}

// Ratio is n as a fraction of Attempted, or 0 when nothing was attempted.
func (a *ModeAggregate) Ratio(n int) float64 {
	total := a.Attempted()
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Summary is the on-disk record of a finished run.
type Summary struct {
	RunID      string          `json:"run_id"`
	Techniques []string        `json:"techniques"`
	Repeat     int             `json:"repeat"`
	Started    string          `json:"started"`
	DurationS  int             `json:"duration_s"`
	Modes      []ModeAggregate `json:"modes"`
}
