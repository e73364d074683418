package attempt

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Launch describes one run of the attack generator.
type Launch struct {
	Path string
	Args []string
	// Stdin is the control line; a newline is appended.
	Stdin string
	// Output receives the generator's combined stdout and stderr.
	Output *os.File

	Timeout time.Duration
	// Grace is how long a timed-out generator gets between SIGTERM and SIGKILL.
	Grace time.Duration

	CPU    int
	PinCPU bool
}

// Launcher starts the attack generator and waits for it under a time
// budget. Spawn failures and timeouts are reported in the Outcome, not as
// errors.
type Launcher interface {
	Launch(ctx context.Context, l *Launch) Outcome
}

// LocalLauncher runs the generator as a direct child process in its own
// process group.
type LocalLauncher struct {
	Logger *slog.Logger
}

func (ll *LocalLauncher) logger() *slog.Logger {
	if ll.Logger != nil {
		return ll.Logger
	}
	return slog.Default()
}

func (ll *LocalLauncher) Launch(ctx context.Context, l *Launch) Outcome {
	cmd := exec.Command(l.Path, l.Args...)
	cmd.Stdin = strings.NewReader(l.Stdin + "\n")
	cmd.Stdout = l.Output
	cmd.Stderr = l.Output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	var err error
	if l.PinCPU {
		var pinErr error
		pinErr, err = startOnCPU(cmd, l.CPU)
		if pinErr != nil {
			ll.logger().Warn("could not pin attack generator", "cpu", l.CPU, "error", pinErr)
		}
	} else {
		err = cmd.Start()
	}
	if err != nil {
		return Outcome{Termination: SpawnFailed, ExitCode: -1, Err: err, Duration: time.Since(start)}
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(l.Timeout)
	defer timer.Stop()

	var waitErr error
	exited, timedOut := true, false
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		exited, waitErr = ll.stop(pid, l.Grace, done)
	case <-ctx.Done():
		timedOut = true
		exited, waitErr = ll.stop(pid, l.Grace, done)
	}

	// Anything the generator left running in its group could still run the
	// control line during the next attempt.
	unix.Kill(-pid, unix.SIGKILL)

	out := Outcome{Termination: TimedOut, ExitCode: -1}
	if exited {
		out = outcomeFromWait(cmd, waitErr)
	}
	out.Duration = time.Since(start)
	if timedOut {
		out.Termination = TimedOut
	}
	return out
}

// stop terminates the generator's process group, escalating to SIGKILL
// after grace. Hijacked generators often spin or block on input, so this
// is the normal path for many failed attacks.
func (ll *LocalLauncher) stop(pid int, grace time.Duration, done <-chan error) (bool, error) {
	signalGroup(pid, unix.SIGTERM)
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case err := <-done:
		return true, err
	case <-t.C:
	}

	signalGroup(pid, unix.SIGKILL)
	t.Reset(grace)
	select {
	case err := <-done:
		return true, err
	case <-t.C:
		ll.logger().Warn("attack generator did not exit after SIGKILL", "pid", pid)
		return false, nil
	}
}

func signalGroup(pid int, sig unix.Signal) {
	if err := unix.Kill(-pid, sig); err != nil {
		unix.Kill(pid, sig)
	}
}

func outcomeFromWait(cmd *exec.Cmd, err error) Outcome {
	if cmd.ProcessState == nil {
		return Outcome{Termination: Exited, ExitCode: -1}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Outcome{Termination: Exited, ExitCode: -1}
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Outcome{Termination: Signaled, ExitCode: -1, Signal: ws.Signal()}
	}
	return Outcome{Termination: Exited, ExitCode: cmd.ProcessState.ExitCode()}
}
