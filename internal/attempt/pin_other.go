//go:build !linux

package attempt

import (
	"errors"
	"os/exec"
)

func startOnCPU(cmd *exec.Cmd, cpu int) (pinErr, err error) {
	return errors.New("cpu pinning is only supported on linux"), cmd.Start()
}
