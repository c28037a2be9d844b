package sandbox

import (
	"context"
	"io"
	"os"
	"time"
)

// Command describes one child process invocation inside a workspace.
type Command struct {
	Argv       []string
	Dir        string
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	WallBudget time.Duration
	MemoryMB   int64
	CPUShares  int64

	// Image is only consulted by container-backed runners.
	Image string
}

// ProcessResult summarises how a child process ended.
type ProcessResult struct {
	ExitCode       int
	TimedOut       bool
	OOMKilled      bool
	Duration       time.Duration
	MaxMemoryBytes int64
}

// Runner launches a single child process and waits for it. Implementations own
// the launch primitive (bare host process, container) and the forcible kill at
// the wall budget; everything above the process boundary lives in Executor.
type Runner interface {
	Run(ctx context.Context, cmd Command) (ProcessResult, error)
}

// minimalEnv is the environment handed to untrusted child processes: the host
// PATH plus HOME and TMPDIR pinned inside the workspace. Nothing else from the
// parent environment leaks through.
func minimalEnv(workspace string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + workspace,
		"TMPDIR=" + workspace,
		"LANG=C.UTF-8",
	}
}
