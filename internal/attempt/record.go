package attempt

import (
	"syscall"
	"time"

	"github.com/signalnine/ripedome/internal/monitor"
)

// Termination is how the attack generator left the attempt.
type Termination int

const (
	Exited Termination = iota
	Signaled
	TimedOut
	SpawnFailed
)

func (t Termination) String() string {
	switch t {
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	case TimedOut:
		return "timeout"
	case SpawnFailed:
		return "spawn_failed"
	default:
		return "unknown"
	}
}

// Record is the evidence gathered by one attempt. It lives only until the
// trial has been classified.
type Record struct {
	Attempt int

	PrimaryLog string
	MonitorLog string

	Supervised bool
	// MonitorRan is false when a supervised attempt could not start its
	// monitor; the monitor log is then empty.
	MonitorRan bool
	Monitor    monitor.Conclusion

	MarkerSeen bool

	Termination Termination
	ExitCode    int
	Signal      syscall.Signal
	Duration    time.Duration

	// StderrPath is the low-level stderr capture for this attempt. It
	// survives until the next trial reuses the slot.
	StderrPath string
}

// Outcome is what a Launcher reports about the attack generator process.
type Outcome struct {
	Termination Termination
	ExitCode    int
	Signal      syscall.Signal
	Duration    time.Duration
	// Err is set when the process could not be started.
	Err error
}

// SignalDescription is the text a shell prints when a child dies of sig.
// The crash pass of the classifier matches on these words.
func SignalDescription(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGSEGV:
		return "Segmentation fault"
	case syscall.SIGBUS:
		return "Bus error"
	case syscall.SIGILL:
		return "Illegal instruction"
	case syscall.SIGABRT:
		return "Aborted"
	case syscall.SIGKILL:
		return "Killed"
	default:
		return "terminated by signal " + sig.String()
	}
}
