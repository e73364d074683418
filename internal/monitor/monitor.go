// Package monitor runs the external protection monitor that observes an
// attack generator and controls it through signals.
package monitor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// Control is a message the harness can deliver to a running monitor.
type Control int

const (
	// Finalize tells the monitor its subject is gone and it must render a
	// verdict and exit.
	Finalize Control = iota
	// Terminate kills a monitor that did not exit after Finalize.
	Terminate
)

func (c Control) String() string {
	if c == Finalize {
		return "finalize"
	}
	return "terminate"
}

// Signal is the OS signal carrying the control message.
func (c Control) Signal() unix.Signal {
	if c == Finalize {
		return unix.SIGUSR1
	}
	return unix.SIGKILL
}

type Process struct {
	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}
	waitErr error
	signal  func(os.Signal) error
}

type StartOpts struct {
	Path    string
	LogPath string
}

// Conclusion describes how a monitor was brought down.
type Conclusion struct {
	// Forced is set when the monitor ignored Finalize and had to be terminated.
	Forced bool
	// Lost is set when the monitor survived even Terminate within the wait.
	Lost     bool
	Duration time.Duration
}

// Start launches the monitor with no arguments, sending its output to
// LogPath. The log file is truncated first.
func Start(opts *StartOpts) (*Process, error) {
	logFile, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating monitor log: %w", err)
	}

	cmd := exec.Command(opts.Path)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting monitor %s: %w", opts.Path, err)
	}

	p := &Process{cmd: cmd, logFile: logFile, done: make(chan struct{}), signal: cmd.Process.Signal}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Send delivers a control message. Sending to a monitor that has already
// exited is not an error.
func (p *Process) Send(c Control) error {
	err := p.signal(c.Signal())
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("sending %s to monitor %d: %w", c, p.Pid(), err)
	}
	return nil
}

// Exited reports whether the monitor process has already exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the monitor exits or timeout elapses, and reports
// whether it exited.
func (p *Process) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

// Conclude finalizes the monitor and waits for it to exit. If it does not
// exit within timeout, or Finalize cannot be delivered, it is terminated and
// waited on for at most grace. The log file is closed once the monitor is
// down. A failed Finalize is still returned after the escalation.
func (p *Process) Conclude(timeout, grace time.Duration) (Conclusion, error) {
	start := time.Now()
	var c Conclusion
	defer p.closeLog()

	finalizeErr := p.Send(Finalize)
	if finalizeErr == nil && p.Wait(timeout) {
		c.Duration = time.Since(start)
		return c, nil
	}

	c.Forced = true
	if err := p.Send(Terminate); err != nil {
		return c, errors.Join(finalizeErr, err)
	}
	if !p.Wait(grace) {
		c.Lost = true
	}
	c.Duration = time.Since(start)
	return c, finalizeErr
}

// Kill terminates the monitor without asking for a verdict. It is used
// when the attempt is abandoned before the attack ran.
func (p *Process) Kill(grace time.Duration) {
	p.Send(Terminate)
	p.Wait(grace)
	p.closeLog()
}

func (p *Process) closeLog() {
	if p.logFile != nil {
		p.logFile.Close()
		p.logFile = nil
	}
}
