package runner

import (
	"fmt"

	"github.com/signalnine/ripedome/internal/matrix"
)

// HarnessError reports a failure of the harness itself, as opposed to an
// attack outcome. It aborts the run.
type HarnessError struct {
	Mode    matrix.Mode
	Params  matrix.Params
	Attempt int
	Err     error
}

func (e *HarnessError) Error() string {
	return fmt.Sprintf("%s [%s] attempt %d: %v", e.Mode, e.Params, e.Attempt, e.Err)
}

func (e *HarnessError) Unwrap() error {
	return e.Err
}
