// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package sandbox runs an agent inside a short-lived Docker container
// instead of a bare subprocess, for stronger isolation than the worktree
// alone provides. It supplements, and does not replace, worktree-based
// isolation — selecting it is a per-run configuration choice.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

const stopTimeout = 10 * time.Second

// Manager owns the lifecycle of containers this orchestrator starts to
// run agent processes.
type Manager struct {
	client *client.Client
}

// NewManager creates a Manager using the Docker client configuration
// found in the environment.
func NewManager() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}
	return &Manager{client: cli}, nil
}

// Close releases the underlying Docker client connection.
func (m *Manager) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// RunSpec describes one sandboxed agent invocation.
type RunSpec struct {
	Image      string
	WorktreeDir string
	Command    []string
	Env        []string
}

// Run creates a container bind-mounting WorktreeDir at /workspace, runs
// Command, waits for it to exit, and returns its combined logs. The
// container is always removed afterwards, success or failure.
func (m *Manager) Run(ctx context.Context, spec RunSpec) (string, error) {
	created, err := m.client.ContainerCreate(ctx, &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		Env:        spec.Env,
		WorkingDir: "/workspace",
	}, &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.WorktreeDir,
			Target: "/workspace",
		}},
		AutoRemove: false,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}
	defer m.stopAndRemove(context.Background(), created.ID)

	if err := m.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}

	statusCh, errCh := m.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("sandbox: wait for container: %w", err)
		}
	case <-statusCh:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return m.logs(context.Background(), created.ID, 0)
}

// stopAndRemove is idempotent: it tolerates the container already being
// stopped or already gone.
func (m *Manager) stopAndRemove(ctx context.Context, containerID string) {
	if containerID == "" {
		return
	}
	timeout := int(stopTimeout.Seconds())
	_ = m.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	_ = m.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// logs returns the last `tail` lines of combined stdout/stderr, or
// everything if tail is 0.
func (m *Manager) logs(ctx context.Context, containerID string, tail int) (string, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = fmt.Sprintf("%d", tail)
	}
	out, err := m.client.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("sandbox: read container logs: %w", err)
	}
	defer out.Close()

	data, err := io.ReadAll(out)
	if err != nil {
		return "", fmt.Errorf("sandbox: read container logs: %w", err)
	}
	return string(data), nil
}

// IsRunning reports whether containerID is currently running; false (with
// no error) if the container is absent.
func (m *Manager) IsRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := m.client.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("sandbox: inspect container: %w", err)
	}
	return inspect.State.Running, nil
}
