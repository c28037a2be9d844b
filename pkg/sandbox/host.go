//go:build unix

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// HostRunner launches child processes directly on the host. It enforces the
// application-level bounds only (wall budget, stripped environment); stronger
// isolation comes from running the engine itself inside a locked-down
// environment or from the Docker-backed runner.
type HostRunner struct{}

// NewHostRunner constructs a host process runner.
func NewHostRunner() *HostRunner {
	return &HostRunner{}
}

// Run starts the command in its own process group and kills the whole group
// with SIGKILL once the wall budget expires.
func (r *HostRunner) Run(ctx context.Context, c Command) (ProcessResult, error) {
	if len(c.Argv) == 0 {
		return ProcessResult{}, errors.New("empty argv")
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = minimalEnv(c.Dir)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ProcessResult{}, fmt.Errorf("start process: %w", err)
	}

	timedOut := false
	done := make(chan struct{})
	timer := time.AfterFunc(c.WallBudget, func() {
		timedOut = true
		// Negative pid addresses the process group, so children spawned by
		// the submission die with it. SIGKILL is not catchable.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		close(done)
	})

	waitErr := cmd.Wait()
	stopped := timer.Stop()
	if !stopped {
		// The timer fired; wait for the kill to have been issued before
		// reading timedOut.
		<-done
	}
	duration := time.Since(start)

	if ctx.Err() != nil && !timedOut {
		return ProcessResult{}, ctx.Err()
	}

	result := ProcessResult{
		TimedOut: timedOut,
		Duration: duration,
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		if usage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok && usage != nil {
			// ru_maxrss is reported in kilobytes on Linux.
			result.MaxMemoryBytes = usage.Maxrss * 1024
		}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return ProcessResult{}, fmt.Errorf("wait process: %w", waitErr)
	}

	return result, nil
}
