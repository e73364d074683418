package runner

import (
	"fmt"

	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/report"
)

// Plan is everything a run needs to know about what to execute. It is
// built once from the command line and never modified.
type Plan struct {
	Techniques []matrix.Technique
	Repeat     int
	Modes      []matrix.Mode
	Verbosity  report.Verbosity
}

func NewPlan(techniques []matrix.Technique, repeat int, modes []matrix.Mode, v report.Verbosity) (*Plan, error) {
	if len(techniques) == 0 {
		return nil, fmt.Errorf("no techniques selected")
	}
	if repeat < 1 {
		return nil, fmt.Errorf("repeat must be at least 1, got %d", repeat)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no modes selected")
	}
	return &Plan{
		Techniques: append([]matrix.Technique(nil), techniques...),
		Repeat:     repeat,
		Modes:      append([]matrix.Mode(nil), modes...),
		Verbosity:  v,
	}, nil
}

// Universe is the parameter space the plan sweeps.
func (p *Plan) Universe() matrix.Universe {
	return matrix.DefaultUniverse().WithTechniques(p.Techniques...)
}

// TrialCount is the number of trials the plan runs across all modes.
func (p *Plan) TrialCount() int {
	n := 0
	u := p.Universe()
	for _, m := range p.Modes {
		n += len(matrix.Enumerate(m, u))
	}
	return n
}
