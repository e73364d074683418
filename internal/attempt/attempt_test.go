package attempt_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/ripedome/internal/attempt"
	"github.com/signalnine/ripedome/internal/matrix"
)

var params = matrix.Params{
	Technique: matrix.Direct,
	Location:  matrix.Stack,
	Pointer:   matrix.Ret,
	Attack:    matrix.NoNop,
	Function:  matrix.Memcpy,
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("attempt scripts need a POSIX shell and Linux signals")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newSlots(t *testing.T) *attempt.Slots {
	dir := t.TempDir()
	return &attempt.Slots{
		Dir:          filepath.Join(dir, "ripe-eval"),
		Marker:       filepath.Join(dir, "ripe-eval", "f_xxxx"),
		PrimaryLog:   filepath.Join(dir, "ripe_log"),
		MonitorLog:   filepath.Join(dir, "ripe_log_monitor"),
		StderrPrefix: filepath.Join(dir, "ripe_log2"),
	}
}

func newRunner(mode matrix.Mode, gen, mon string, slots *attempt.Slots) *attempt.Runner {
	return attempt.New(attempt.Options{
		Mode:      mode,
		Generator: gen,
		Monitor:   mon,
		Control:   "touch " + slots.Marker,
		Slots:     slots,
		Timeouts: attempt.Timeouts{
			Attack:    5 * time.Second,
			Monitor:   5 * time.Second,
			KillGrace: time.Second,
			Settle:    50 * time.Millisecond,
			Cooldown:  10 * time.Millisecond,
		},
	})
}

// hijacked reads the control line and runs it, the way a generator does
// when the attack succeeds.
const hijacked = `echo "overflow done"
read line
eval "$line"
`

func TestRunHijackedGenerator(t *testing.T) {
	gen := writeScript(t, "gen.sh", hijacked)
	slots := newSlots(t)

	rec, err := newRunner(matrix.GCC, gen, "", slots).Run(context.Background(), params, 0)
	require.NoError(t, err)

	assert.True(t, rec.MarkerSeen)
	assert.Equal(t, attempt.Exited, rec.Termination)
	assert.Equal(t, 0, rec.ExitCode)
	assert.False(t, rec.Supervised)
	assert.False(t, rec.MonitorRan)
	assert.Contains(t, rec.PrimaryLog, params.String())
	assert.Contains(t, rec.PrimaryLog, "overflow done")
	assert.Equal(t, slots.StderrPath(0), rec.StderrPath)

	_, err = os.Stat(slots.Marker)
	assert.True(t, os.IsNotExist(err), "marker must be consumed")
}

func TestRunResetsStaleMarker(t *testing.T) {
	gen := writeScript(t, "gen.sh", "read line\nexit 1\n")
	slots := newSlots(t)
	require.NoError(t, os.MkdirAll(slots.Dir, 0o755))
	require.NoError(t, os.WriteFile(slots.Marker, nil, 0o644))
	require.NoError(t, os.WriteFile(slots.PrimaryLog, []byte("previous trial\n"), 0o644))

	rec, err := newRunner(matrix.GCC, gen, "", slots).Run(context.Background(), params, 1)
	require.NoError(t, err)

	assert.False(t, rec.MarkerSeen)
	assert.Equal(t, 1, rec.ExitCode)
	assert.NotContains(t, rec.PrimaryLog, "previous trial")
	_, err = os.Stat(slots.Marker)
	assert.True(t, os.IsNotExist(err))
}

func TestRunCrashedGenerator(t *testing.T) {
	gen := writeScript(t, "gen.sh", "kill -SEGV $$\n")
	slots := newSlots(t)

	rec, err := newRunner(matrix.GCC, gen, "", slots).Run(context.Background(), params, 2)
	require.NoError(t, err)

	assert.Equal(t, attempt.Signaled, rec.Termination)
	assert.Equal(t, syscall.SIGSEGV, rec.Signal)
	assert.False(t, rec.MarkerSeen)

	capture, err := os.ReadFile(rec.StderrPath)
	require.NoError(t, err)
	assert.Contains(t, string(capture), "Segmentation fault")
}

func TestRunTimedOutGenerator(t *testing.T) {
	gen := writeScript(t, "gen.sh", "sleep 30\n")
	slots := newSlots(t)
	r := attempt.New(attempt.Options{
		Mode:      matrix.GCC,
		Generator: gen,
		Control:   "touch " + slots.Marker,
		Slots:     slots,
		Timeouts:  attempt.Timeouts{Attack: 200 * time.Millisecond, KillGrace: time.Second},
	})

	start := time.Now()
	rec, err := r.Run(context.Background(), params, 0)
	require.NoError(t, err)

	assert.Equal(t, attempt.TimedOut, rec.Termination)
	assert.Less(t, time.Since(start), 10*time.Second)

	capture, err := os.ReadFile(rec.StderrPath)
	require.NoError(t, err)
	assert.Contains(t, string(capture), "timed out")
}

func TestRunSpawnFailure(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
	slots := newSlots(t)

	rec, err := newRunner(matrix.GCC, "/nonexistent/gcc_attack_gen", "", slots).
		Run(context.Background(), params, 0)
	require.NoError(t, err)

	assert.Equal(t, attempt.SpawnFailed, rec.Termination)
	assert.False(t, rec.MarkerSeen)
	assert.Contains(t, rec.PrimaryLog, params.String())
}

func TestRunSupervised(t *testing.T) {
	gen := writeScript(t, "gen.sh", hijacked)
	mon := writeScript(t, "monitor.sh", `trap 'echo "CFI CHECK ERROR"; exit 0' USR1
echo "monitor attached"
while :; do sleep 0.05; done
`)
	slots := newSlots(t)

	rec, err := newRunner(matrix.ClangSideCFI, gen, mon, slots).Run(context.Background(), params, 0)
	require.NoError(t, err)

	assert.True(t, rec.Supervised)
	assert.True(t, rec.MonitorRan)
	assert.False(t, rec.Monitor.Forced)
	assert.True(t, rec.MarkerSeen)
	assert.Contains(t, rec.MonitorLog, "monitor attached")
	assert.Contains(t, rec.MonitorLog, "CFI CHECK ERROR")
}

// gatedLauncher holds the attack back until the monitor has announced
// itself through ready, and fails the attempt if it never does.
type gatedLauncher struct {
	ready string
	inner attempt.Launcher
}

func (g *gatedLauncher) Launch(ctx context.Context, l *attempt.Launch) attempt.Outcome {
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(g.ready); err == nil {
			break
		}
		if time.Now().After(deadline) {
			return attempt.Outcome{Termination: attempt.SpawnFailed, ExitCode: -1, Err: errors.New("monitor never came up")}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return g.inner.Launch(ctx, l)
}

func TestRunSupervisedOrdering(t *testing.T) {
	dir := t.TempDir()
	ready := filepath.Join(dir, "monitor_up")
	done := filepath.Join(dir, "attack_done")
	gen := writeScript(t, "gen.sh", fmt.Sprintf(`[ -f %[1]s ] && echo "monitor was up"
read line
eval "$line"
touch %[2]s
`, ready, done))
	mon := writeScript(t, "monitor.sh", fmt.Sprintf(`trap '[ -f %[2]s ] && echo "attack had finished"; exit 0' USR1
touch %[1]s
while :; do sleep 0.02; done
`, ready, done))
	slots := newSlots(t)
	r := attempt.New(attempt.Options{
		Mode:      matrix.ClangSideStack,
		Generator: gen,
		Monitor:   mon,
		Control:   "touch " + slots.Marker,
		Slots:     slots,
		Launcher:  &gatedLauncher{ready: ready, inner: &attempt.LocalLauncher{}},
		Timeouts: attempt.Timeouts{
			Attack:    5 * time.Second,
			Monitor:   5 * time.Second,
			KillGrace: time.Second,
		},
	})

	rec, err := r.Run(context.Background(), params, 1)
	require.NoError(t, err)

	assert.Equal(t, attempt.Exited, rec.Termination)
	assert.True(t, rec.MarkerSeen)
	assert.Contains(t, rec.PrimaryLog, "monitor was up")
	assert.Contains(t, rec.MonitorLog, "attack had finished")
	assert.False(t, rec.Monitor.Forced)
}

func TestRunSupervisedMonitorIgnoresFinalize(t *testing.T) {
	gen := writeScript(t, "gen.sh", "read line\n")
	mon := writeScript(t, "monitor.sh", "trap '' USR1\nwhile :; do sleep 0.05; done\n")
	slots := newSlots(t)
	r := attempt.New(attempt.Options{
		Mode:      matrix.ClangSideStack,
		Generator: gen,
		Monitor:   mon,
		Control:   "touch " + slots.Marker,
		Slots:     slots,
		Timeouts: attempt.Timeouts{
			Attack:    5 * time.Second,
			Monitor:   200 * time.Millisecond,
			KillGrace: 2 * time.Second,
		},
	})

	rec, err := r.Run(context.Background(), params, 0)
	require.NoError(t, err)
	assert.True(t, rec.MonitorRan)
	assert.True(t, rec.Monitor.Forced)
	assert.False(t, rec.Monitor.Lost)
}

func TestRunSupervisedMonitorMissing(t *testing.T) {
	gen := writeScript(t, "gen.sh", hijacked)
	slots := newSlots(t)

	rec, err := newRunner(matrix.ClangSideCFI, gen, "/nonexistent/monitor", slots).
		Run(context.Background(), params, 0)
	require.NoError(t, err)

	assert.True(t, rec.Supervised)
	assert.False(t, rec.MonitorRan)
	assert.Empty(t, rec.MonitorLog)
	assert.True(t, rec.MarkerSeen)
}

func TestRunKillsGeneratorLeftovers(t *testing.T) {
	leaky := writeScript(t, "leaky.sh", `read line
(sleep 0.3; eval "$line") &
exit 1
`)
	idle := writeScript(t, "idle.sh", "sleep 0.6\n")
	slots := newSlots(t)

	rec, err := newRunner(matrix.GCC, leaky, "", slots).Run(context.Background(), params, 1)
	require.NoError(t, err)
	assert.False(t, rec.MarkerSeen)
	assert.Equal(t, 1, rec.ExitCode)

	rec, err = newRunner(matrix.GCC, idle, "", slots).Run(context.Background(), params, 2)
	require.NoError(t, err)
	assert.False(t, rec.MarkerSeen, "a child of the previous generator ran the control line")
}

func TestRunCancelled(t *testing.T) {
	gen := writeScript(t, "gen.sh", "sleep 30\n")
	slots := newSlots(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := newRunner(matrix.GCC, gen, "", slots).Run(ctx, params, 0)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(slots.Marker)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSignalDescription(t *testing.T) {
	assert.Equal(t, "Segmentation fault", attempt.SignalDescription(syscall.SIGSEGV))
	assert.Equal(t, "Bus error", attempt.SignalDescription(syscall.SIGBUS))
	assert.Equal(t, "Illegal instruction", attempt.SignalDescription(syscall.SIGILL))
}
