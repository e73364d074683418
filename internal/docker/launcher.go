// Package docker runs the attack generator inside a throwaway container.
package docker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/signalnine/ripedome/internal/attempt"
)

// feedScript pipes the control line into the generator, which is $0 with
// its arguments in $@.
const feedScript = `printf '%s\n' "$RIPE_CONTROL" | "$0" "$@"`

// Launcher implements attempt.Launcher with one container per attempt. The
// generator's directory is mounted read-only and the scratch directory
// read-write at their host paths, so the marker the control line creates is
// visible to the harness.
type Launcher struct {
	Image      string
	ScratchDir string
}

func (d *Launcher) Launch(ctx context.Context, l *attempt.Launch) attempt.Outcome {
	start := time.Now()
	spawnFailed := func(err error) attempt.Outcome {
		return attempt.Outcome{Termination: attempt.SpawnFailed, ExitCode: -1, Err: err, Duration: time.Since(start)}
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return spawnFailed(fmt.Errorf("creating docker client: %w", err))
	}
	defer cli.Close()

	genPath, err := filepath.Abs(l.Path)
	if err != nil {
		return spawnFailed(fmt.Errorf("resolving generator path: %w", err))
	}
	mounts := []mount.Mount{
		{
			Type:     mount.TypeBind,
			Source:   filepath.Dir(genPath),
			Target:   filepath.Dir(genPath),
			ReadOnly: true,
		},
		{
			Type:   mount.TypeBind,
			Source: d.ScratchDir,
			Target: d.ScratchDir,
		},
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		Init:        &initTrue,
		SecurityOpt: []string{"seccomp=unconfined", "apparmor=unconfined"},
	}
	if l.PinCPU {
		hostCfg.CpusetCpus = strconv.Itoa(l.CPU)
	}

	containerCfg := &container.Config{
		Image:  d.Image,
		Cmd:    append([]string{"sh", "-c", feedScript, genPath}, l.Args...),
		Env:    []string{"RIPE_CONTROL=" + l.Stdin},
		Tty:    true,
		Labels: map[string]string{"ripedome": "true"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return spawnFailed(fmt.Errorf("creating container: %w", err))
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return spawnFailed(fmt.Errorf("starting container: %w", err))
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	waitResult := cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				copyLogs(cli, containerID, l.Output)
				return attempt.Outcome{Termination: attempt.TimedOut, ExitCode: -1, Duration: time.Since(start)}
			}
		case status := <-waitResult.Result:
			copyLogs(cli, containerID, l.Output)
			out := outcomeFromStatus(int(status.StatusCode))
			out.Duration = time.Since(start)
			return out
		}
	}
}

// copyLogs appends the container's terminal output to w. The container runs
// with a TTY so the stream is not multiplexed, only CRLF-translated.
func copyLogs(cli *client.Client, containerID string, w io.Writer) {
	logReader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil || logReader == nil {
		return
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	io.WriteString(w, strings.ReplaceAll(string(data), "\r\n", "\n"))
}

// outcomeFromStatus maps the shell's exit status back to a termination:
// 128+n means the generator died of signal n.
func outcomeFromStatus(code int) attempt.Outcome {
	if code > 128 && code < 128+65 {
		return attempt.Outcome{Termination: attempt.Signaled, ExitCode: -1, Signal: syscall.Signal(code - 128)}
	}
	return attempt.Outcome{Termination: attempt.Exited, ExitCode: code}
}
