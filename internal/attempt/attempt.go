// Package attempt executes a single repetition of one trial: it resets the
// shared artifact slots, runs the attack generator (and the monitor for
// supervised modes), and gathers the evidence into a Record.
package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/monitor"
)

type Timeouts struct {
	Attack    time.Duration
	Monitor   time.Duration
	KillGrace time.Duration
	// Settle is the pause between the attack concluding and the monitor
	// being told to finalize.
	Settle time.Duration
	// Cooldown is the pause after a supervised attempt.
	Cooldown time.Duration
}

type Options struct {
	Mode      matrix.Mode
	Generator string
	// Monitor is the monitor executable; empty for unsupervised modes.
	Monitor  string
	Control  string
	Slots    *Slots
	Launcher Launcher
	Timeouts Timeouts
	CPU      int
	PinCPU   bool
	Logger   *slog.Logger
}

type Runner struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Launcher == nil {
		opts.Launcher = &LocalLauncher{Logger: logger}
	}
	return &Runner{opts: opts, logger: logger}
}

// Run executes attempt n of the trial p. Process-level anomalies end up in
// the Record; only I/O failures on the harness's own artifacts and context
// cancellation are returned as errors.
func (r *Runner) Run(ctx context.Context, p matrix.Params, n int) (*Record, error) {
	slots := r.opts.Slots
	lease, err := slots.Acquire(n)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	supervised := r.opts.Mode.Supervised()
	rec := &Record{Attempt: n, Supervised: supervised, StderrPath: lease.StderrPath}

	if _, err := fmt.Fprintln(lease.Primary, p.String()); err != nil {
		return nil, fmt.Errorf("writing primary log header: %w", err)
	}
	r.logger.Debug("... Running "+p.String()+" ...", "mode", r.opts.Mode, "attempt", n)

	var mon *monitor.Process
	if supervised {
		mon, err = monitor.Start(&monitor.StartOpts{Path: r.opts.Monitor, LogPath: slots.MonitorLog})
		if err != nil {
			r.logger.Warn("monitor did not start", "mode", r.opts.Mode, "attempt", n, "error", err)
		} else {
			rec.MonitorRan = true
		}
	}

	out := r.opts.Launcher.Launch(ctx, &Launch{
		Path:    r.opts.Generator,
		Args:    p.Args(),
		Stdin:   r.opts.Control,
		Output:  lease.Primary,
		Timeout: r.opts.Timeouts.Attack,
		Grace:   r.opts.Timeouts.KillGrace,
		CPU:     r.opts.CPU,
		PinCPU:  r.opts.PinCPU,
	})
	rec.Termination = out.Termination
	rec.ExitCode = out.ExitCode
	rec.Signal = out.Signal
	rec.Duration = out.Duration
	if err := writeTermination(lease.Stderr, r.opts.Generator, out, r.opts.Timeouts.Attack); err != nil {
		if mon != nil {
			mon.Kill(r.opts.Timeouts.KillGrace)
		}
		return nil, fmt.Errorf("writing stderr capture: %w", err)
	}

	if err := ctx.Err(); err != nil {
		if mon != nil {
			mon.Kill(r.opts.Timeouts.KillGrace)
		}
		return nil, err
	}

	if mon != nil {
		sleep(ctx, r.opts.Timeouts.Settle)
		c, err := mon.Conclude(r.opts.Timeouts.Monitor, r.opts.Timeouts.KillGrace)
		if err != nil {
			r.logger.Warn("concluding monitor", "mode", r.opts.Mode, "attempt", n, "error", err)
		}
		if c.Forced {
			r.logger.Warn("monitor ignored finalize and was terminated",
				"mode", r.opts.Mode, "attempt", n, "lost", c.Lost)
		}
		rec.Monitor = c
	}

	primary, err := os.ReadFile(slots.PrimaryLog)
	if err != nil {
		return nil, fmt.Errorf("reading primary log: %w", err)
	}
	rec.PrimaryLog = string(primary)

	if rec.MonitorRan {
		ml, err := os.ReadFile(slots.MonitorLog)
		if err != nil {
			return nil, fmt.Errorf("reading monitor log: %w", err)
		}
		rec.MonitorLog = string(ml)
	}

	rec.MarkerSeen, err = lease.TakeMarker()
	if err != nil {
		return nil, err
	}

	r.logger.Debug("attempt finished",
		"mode", r.opts.Mode, "attempt", n,
		"termination", rec.Termination, "exit_code", rec.ExitCode,
		"marker", rec.MarkerSeen, "duration", rec.Duration)

	if supervised {
		sleep(ctx, r.opts.Timeouts.Cooldown)
	}
	return rec, nil
}

// writeTermination records how the generator ended in the attempt's
// low-level stderr capture, in the wording a shell would use.
func writeTermination(f *os.File, path string, out Outcome, timeout time.Duration) error {
	var err error
	switch out.Termination {
	case Signaled:
		_, err = fmt.Fprintf(f, "%s: %s\n", path, SignalDescription(out.Signal))
	case TimedOut:
		_, err = fmt.Fprintf(f, "%s: timed out after %s\n", path, timeout)
	case SpawnFailed:
		_, err = fmt.Fprintf(f, "%s: %v\n", path, out.Err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
