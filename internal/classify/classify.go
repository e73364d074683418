// Package classify turns attempt evidence into per-trial verdicts and tags.
package classify

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/signalnine/ripedome/internal/attempt"
	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
)

// ImpossibleMarker is printed by a generator that cannot build the
// requested attack at all.
const ImpossibleMarker = "Impossible"

const (
	TagMonitorUnavailable = "MonitorUnavailable"
	TagMonitorForced      = "MonitorForced"
	TagTimeout            = "Timeout"
	TagSpawnFailed        = "SpawnFailed"
)

func Impossible(primaryLog string) bool {
	return strings.Contains(primaryLog, ImpossibleMarker)
}

// ViolationSignature is the text a monitor prints when it stops an attack.
func ViolationSignature(e matrix.Edge) string {
	switch e {
	case matrix.ForwardEdge:
		return "CFI CHECK ERROR"
	case matrix.BackwardEdge:
		return "-Violation-"
	default:
		return ""
	}
}

type CrashKind string

const (
	NoCrash  CrashKind = ""
	Segfault CrashKind = "SEGFAULT"
	BusError CrashKind = "BUSERROR"
	SigIll   CrashKind = "SIGILL"
)

func (k CrashKind) Tag() result.Tag {
	return result.Tag{Name: string(k), Severity: result.Severe}
}

// DetectCrash looks for a fatal-signal report in a stderr capture, falling
// back to the signal that ended the generator. The first match wins.
func DetectCrash(capture string, sig syscall.Signal) CrashKind {
	lower := strings.ToLower(capture)
	switch {
	case strings.Contains(lower, "segmentation fault"):
		return Segfault
	case strings.Contains(lower, "bus error"):
		return BusError
	case strings.Contains(lower, "illegal instruction"):
		return SigIll
	}
	switch sig {
	case syscall.SIGSEGV:
		return Segfault
	case syscall.SIGBUS:
		return BusError
	case syscall.SIGILL:
		return SigIll
	}
	return NoCrash
}

// CrashOf reads the attempt's stderr capture and reports the crash kind.
func CrashOf(rec *attempt.Record) (CrashKind, error) {
	return CrashAt(rec.StderrPath, rec.Signal)
}

// CrashAt is CrashOf for a capture that outlived its record. Every attempt
// leaves a capture behind, so a missing one is an error rather than a
// clean run.
func CrashAt(path string, sig syscall.Signal) (CrashKind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NoCrash, fmt.Errorf("reading stderr capture: %w", err)
	}
	return DetectCrash(string(data), sig), nil
}

// Succeeded is the per-attempt success predicate. crash is only consulted
// for supervised backward-edge modes, where a crash means the monitor
// stopped the hijacked return.
func Succeeded(mode matrix.Mode, rec *attempt.Record, crash CrashKind) bool {
	if !rec.MarkerSeen {
		return false
	}
	if !mode.Supervised() {
		return true
	}
	if !rec.MonitorRan {
		return false
	}
	if strings.Contains(rec.MonitorLog, ViolationSignature(mode.Edge())) {
		return false
	}
	if mode.Edge() == matrix.BackwardEdge && crash != NoCrash {
		return false
	}
	return true
}

// AttemptTags are the tags that come from how the attempt ran rather than
// from log text.
func AttemptTags(rec *attempt.Record) []result.Tag {
	var tags []result.Tag
	switch rec.Termination {
	case attempt.TimedOut:
		tags = append(tags, result.Tag{Name: TagTimeout, Severity: result.Info})
	case attempt.SpawnFailed:
		tags = append(tags, result.Tag{Name: TagSpawnFailed, Severity: result.Severe})
	}
	if rec.Supervised && !rec.MonitorRan {
		tags = append(tags, result.Tag{Name: TagMonitorUnavailable, Severity: result.Severe})
	}
	if rec.Monitor.Forced {
		tags = append(tags, result.Tag{Name: TagMonitorForced, Severity: result.Info})
	}
	return tags
}

// Reduce folds the success count of n attempts into a verdict.
func Reduce(successes, n int) result.Verdict {
	switch {
	case n > 0 && successes == n:
		return result.Success
	case successes == 0:
		return result.Failure
	default:
		return result.PartialSuccess
	}
}
