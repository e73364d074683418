package attempt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Slots are the fixed artifact paths shared by every attempt. Trials run
// sequentially, so each path has at most one writer at a time as long as
// every attempt goes through Acquire and Release.
type Slots struct {
	Dir          string
	Marker       string
	PrimaryLog   string
	MonitorLog   string
	StderrPrefix string
}

// StderrPath returns the stderr capture slot for attempt n.
func (s *Slots) StderrPath(n int) string {
	return fmt.Sprintf("%s%d", s.StderrPrefix, n)
}

// Lease holds the reset slots for one attempt.
type Lease struct {
	slots      *Slots
	Primary    *os.File
	Stderr     *os.File
	StderrPath string
	released   bool
}

// Acquire resets every slot attempt n will touch: the marker is removed,
// the primary log and the stderr capture are truncated and the monitor log
// is deleted. It must happen before any process of the attempt is spawned.
func (s *Slots) Acquire(n int) (*Lease, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	if err := removeIfExists(s.Marker); err != nil {
		return nil, fmt.Errorf("removing stale marker: %w", err)
	}
	if err := removeIfExists(s.MonitorLog); err != nil {
		return nil, fmt.Errorf("removing stale monitor log: %w", err)
	}
	for _, p := range []string{s.PrimaryLog, s.StderrPath(n)} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
	}

	primary, err := os.OpenFile(s.PrimaryLog, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resetting primary log: %w", err)
	}
	stderrPath := s.StderrPath(n)
	stderr, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("resetting stderr capture: %w", err)
	}
	return &Lease{slots: s, Primary: primary, Stderr: stderr, StderrPath: stderrPath}, nil
}

// TakeMarker reports whether the marker exists and removes it.
func (l *Lease) TakeMarker() (bool, error) {
	_, err := os.Stat(l.slots.Marker)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking marker: %w", err)
	}
	if err := removeIfExists(l.slots.Marker); err != nil {
		return true, fmt.Errorf("removing marker: %w", err)
	}
	return true, nil
}

// Release closes the attempt's files and removes the marker. It is safe to
// call more than once and runs on every exit path of an attempt.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.Primary.Close()
	l.Stderr.Close()
	removeIfExists(l.slots.Marker)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
