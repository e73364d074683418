package runner

import (
	"context"
	"errors"
	"syscall"

	"github.com/signalnine/ripedome/internal/attempt"
	"github.com/signalnine/ripedome/internal/classify"
	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
)

// AttemptRunner executes one repetition of a trial. *attempt.Runner is the
// production implementation.
type AttemptRunner interface {
	Run(ctx context.Context, p matrix.Params, n int) (*attempt.Record, error)
}

type capture struct {
	path string
	sig  syscall.Signal
}

// RunTrial runs up to repeat attempts of p and classifies them. Attempts are
// numbered from 1. A generator reporting the attack as impossible ends the
// trial immediately with NotPossible.
func RunTrial(ctx context.Context, ar AttemptRunner, rules *classify.Rules, mode matrix.Mode, p matrix.Params, repeat int) (*result.TrialResult, error) {
	tags := classify.NewTagSet()
	tr := &result.TrialResult{Mode: mode, Params: p, Repeat: repeat}
	eagerCrash := mode.Supervised() && mode.Edge() == matrix.BackwardEdge

	var captures []capture
	for n := 1; n <= repeat; n++ {
		rec, err := ar.Run(ctx, p, n)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &HarnessError{Mode: mode, Params: p, Attempt: n, Err: err}
		}
		tr.Attempts++
		captures = append(captures, capture{path: rec.StderrPath, sig: rec.Signal})

		if classify.Impossible(rec.PrimaryLog) {
			tr.Verdict = result.NotPossible
			tr.Tags = tags.Slice()
			return tr, nil
		}

		tags.Add(rules.Scan(rec.PrimaryLog)...)
		tags.Add(rules.Scan(rec.MonitorLog)...)
		tags.Add(classify.AttemptTags(rec)...)

		crash := classify.NoCrash
		if eagerCrash {
			crash, err = classify.CrashOf(rec)
			if err != nil {
				return nil, &HarnessError{Mode: mode, Params: p, Attempt: n, Err: err}
			}
		}
		if classify.Succeeded(mode, rec, crash) {
			tr.Successes++
		}
	}

	tr.Verdict = classify.Reduce(tr.Successes, tr.Attempts)
	if tr.Verdict != result.Success {
		for i, c := range captures {
			k, err := classify.CrashAt(c.path, c.sig)
			if err != nil {
				return nil, &HarnessError{Mode: mode, Params: p, Attempt: i + 1, Err: err}
			}
			if k != classify.NoCrash {
				tags.Add(k.Tag())
			}
		}
	}
	tr.Tags = tags.Slice()
	return tr, nil
}
