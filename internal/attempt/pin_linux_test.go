package attempt_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/signalnine/ripedome/internal/attempt"
	"github.com/signalnine/ripedome/internal/matrix"
)

func TestRunPinsGeneratorBeforeExec(t *testing.T) {
	gen := writeScript(t, "gen.sh", "grep Cpus_allowed_list /proc/$$/status\n")
	var allowed unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &allowed))
	cpu := -1
	for i := 0; i < 1024; i++ {
		if allowed.IsSet(i) {
			cpu = i
			break
		}
	}
	require.GreaterOrEqual(t, cpu, 0)

	slots := newSlots(t)
	r := attempt.New(attempt.Options{
		Mode:      matrix.GCC,
		Generator: gen,
		Control:   "touch " + slots.Marker,
		Slots:     slots,
		Timeouts:  attempt.Timeouts{Attack: 5 * time.Second, KillGrace: time.Second},
		CPU:       cpu,
		PinCPU:    true,
	})
	rec, err := r.Run(context.Background(), params, 1)
	require.NoError(t, err)

	var line string
	for _, l := range strings.Split(rec.PrimaryLog, "\n") {
		if strings.HasPrefix(l, "Cpus_allowed_list:") {
			line = l
		}
	}
	assert.Equal(t, fmt.Sprint(cpu), strings.TrimSpace(strings.TrimPrefix(line, "Cpus_allowed_list:")))
}
