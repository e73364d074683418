//go:build linux

package attempt

import (
	"os/exec"
	"runtime"

	"golang.org/x/sys/unix"
)

// startOnCPU starts cmd already bound to cpu. The mask is narrowed on the
// forking thread for the duration of Start and the child inherits it, so the
// generator never runs elsewhere. If the mask cannot be set, cmd is started
// unpinned and pinErr says why.
func startOnCPU(cmd *exec.Cmd, cpu int) (pinErr, err error) {
	runtime.LockOSThread()

	var orig unix.CPUSet
	if pinErr = unix.SchedGetaffinity(0, &orig); pinErr != nil {
		runtime.UnlockOSThread()
		return pinErr, cmd.Start()
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if pinErr = unix.SchedSetaffinity(0, &set); pinErr != nil {
		runtime.UnlockOSThread()
		return pinErr, cmd.Start()
	}

	err = cmd.Start()

	// A thread with a narrowed mask must not go back to the scheduler.
	if unix.SchedSetaffinity(0, &orig) == nil {
		runtime.UnlockOSThread()
	}
	return nil, err
}
