package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
)

// containerWorkdir is where the run workspace is mounted inside the container.
const containerWorkdir = "/workspace"

// DockerRunner launches each child process in a throwaway container with the
// workspace bind-mounted, no network, and a hard memory limit. It is the
// stronger of the two runners and the one to use for untrusted code.
type DockerRunner struct {
	client *client.Client
	logger zerolog.Logger
}

// DockerConfig groups container runner configuration values.
type DockerConfig struct {
	Host   string
	Logger zerolog.Logger
}

// NewDockerRunner constructs a Docker backed runner.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &DockerRunner{
		client: cli,
		logger: cfg.Logger.With().Str("component", "docker_runner").Logger(),
	}, nil
}

// Run executes the command in a fresh container and tears it down afterwards.
func (r *DockerRunner) Run(parent context.Context, c Command) (ProcessResult, error) {
	if c.Image == "" {
		return ProcessResult{}, errors.New("image is required")
	}

	ctx := parent
	if c.WallBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, c.WallBudget)
		defer cancel()
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    c.MemoryMB * 1024 * 1024,
			CPUShares: c.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: c.Dir,
			Target: containerWorkdir,
		}},
	}

	cfg := &container.Config{
		Image:        c.Image,
		Cmd:          c.Argv,
		Env:          minimalEnv(containerWorkdir),
		WorkingDir:   containerWorkdir,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    c.Stdin != nil,
		StdinOnce:    c.Stdin != nil,
		AttachStdin:  c.Stdin != nil,
	}

	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return ProcessResult{}, fmt.Errorf("container create: %w", err)
	}
	containerID := resp.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if c.Stdin != nil {
		attach, err := r.client.ContainerAttach(ctx, containerID, container.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			return ProcessResult{}, fmt.Errorf("container attach: %w", err)
		}
		go func() {
			defer attach.Close()
			_, _ = io.Copy(attach.Conn, c.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	start := time.Now()
	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return ProcessResult{}, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	result := ProcessResult{}
	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	result.Duration = time.Since(start)

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
		} else if !errors.Is(waitErr, context.Canceled) {
			return result, fmt.Errorf("container wait: %w", waitErr)
		} else {
			return result, waitErr
		}
	}

	inspect, err := r.client.ContainerInspect(parent, containerID)
	if err == nil && inspect.State != nil && inspect.State.OOMKilled {
		result.OOMKilled = true
	}

	logReader, err := r.client.ContainerLogs(parent, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	} else {
		defer logReader.Close()
		if _, err := stdcopy.StdCopy(c.Stdout, c.Stderr, logReader); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		}
	}

	if stats, err := r.client.ContainerStatsOneShot(parent, containerID); err == nil {
		defer stats.Body.Close()
		result.MaxMemoryBytes = decodeMemoryUsage(stats.Body)
	}

	return result, nil
}

func decodeMemoryUsage(body io.Reader) int64 {
	var data types.StatsJSON
	if err := json.NewDecoder(body).Decode(&data); err != nil {
		return 0
	}
	return int64(data.MemoryStats.MaxUsage)
}

// Close shuts down the runner's underlying client.
func (r *DockerRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
