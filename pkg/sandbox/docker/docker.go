// Package docker implements a container-backed sandbox.Sandbox using the
// Docker Engine API directly: ValidatePath and Exec require nothing more
// than ContainerExecCreate/ContainerExecAttach, so no RPC layer sits
// between this package and the container.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/nstogner/agentcore/pkg/sandbox"
)

const (
	// LabelManager tags every container this package creates.
	LabelManager = "manager"
	// LabelManagerValue is the value of LabelManager.
	LabelManagerValue = "agentcore"
	// LabelSandboxID identifies which logical sandbox a container backs.
	LabelSandboxID = "agentcore-sandbox-id"
	// DefaultImage is the default sandbox container image.
	DefaultImage = "sandbox-python:latest"
	// ReconcileInterval is how often Manager.Run checks for drift.
	ReconcileInterval = 10 * time.Second
	// containerWorkdir is the directory Exec's working_dir is relative to.
	containerWorkdir = "/workspace"
	// previewPort is exposed on every sandbox container so code the agent
	// runs inside it (e.g. a dev server started via Exec) can be reached
	// from the host at a dynamically assigned port.
	previewPort = "8080"
)

// Lister supplies the set of sandbox IDs that should currently have a
// running container.
type Lister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Manager owns the Docker client and the container lifecycle for every
// sandbox ID it is asked to reconcile.
type Manager struct {
	client *client.Client
	image  string
}

// New creates a Manager using the Docker client configuration found in
// the environment (DOCKER_HOST, etc).
func New() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker sandbox: creating client: %w", err)
	}
	return &Manager{client: cli, image: DefaultImage}, nil
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// Run starts a reconciliation loop: every ReconcileInterval it ensures
// every ID returned by ids has a running container and stops any
// container whose ID is no longer returned. Blocks until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context, ids Lister) error {
	slog.Info("docker sandbox reconciliation loop starting")

	if err := m.reconcile(ctx, ids); err != nil {
		slog.Error("initial sandbox reconciliation failed", "error", err)
	}

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("docker sandbox reconciliation loop stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := m.reconcile(ctx, ids); err != nil {
				slog.Error("sandbox reconciliation failed", "error", err)
			}
		}
	}
}

func (m *Manager) reconcile(ctx context.Context, lister Lister) error {
	wanted, err := lister.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing sandbox IDs: %w", err)
	}
	wantedSet := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		wantedSet[id] = true
	}

	all, err := m.listAllManaged(ctx)
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}

	runningSet := make(map[string]bool)
	for _, c := range all {
		id := c.Labels[LabelSandboxID]
		runningSet[id] = true
		if !wantedSet[id] {
			slog.Info("stopping orphaned sandbox container", "sandboxID", id)
			m.stop(ctx, id)
		}
	}

	for _, id := range wanted {
		if !runningSet[id] {
			slog.Info("starting sandbox container", "sandboxID", id)
			if err := m.createAndStart(ctx, id); err != nil {
				slog.Error("failed to start sandbox container", "sandboxID", id, "error", err)
			}
		}
	}
	return nil
}

// Status reports the Docker container state for id ("running", "stopped",
// or the raw Docker state string).
func (m *Manager) Status(ctx context.Context, id string) (string, error) {
	containers, err := m.list(ctx, id)
	if err != nil {
		return "unknown", err
	}
	if len(containers) == 0 {
		return "stopped", nil
	}
	return containers[0].State, nil
}

// Sandbox returns a sandbox.Sandbox bound to id's container. The
// container must already be running, e.g. via Run's reconciliation loop
// or an explicit Ensure call.
func (m *Manager) Sandbox(id string) sandbox.Sandbox {
	return &Container{manager: m, id: id}
}

// Ensure creates and starts a container for id if one is not already
// running, without waiting for a reconciliation tick.
func (m *Manager) Ensure(ctx context.Context, id string) error {
	status, err := m.Status(ctx, id)
	if err != nil {
		return err
	}
	if status == "running" {
		return nil
	}
	return m.createAndStart(ctx, id)
}

func (m *Manager) createAndStart(ctx context.Context, id string) error {
	if _, _, err := m.client.ImageInspectWithRaw(ctx, m.image); err != nil {
		return fmt.Errorf("sandbox image %q not found: %w", m.image, err)
	}

	cfg := &container.Config{
		Image: m.image,
		Labels: map[string]string{
			LabelManager:   LabelManagerValue,
			LabelSandboxID: id,
		},
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: containerWorkdir,
		ExposedPorts: nat.PortSet{
			nat.Port(previewPort + "/tcp"): {},
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			nat.Port(previewPort + "/tcp"): []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: "0"},
			},
		},
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.containerName(id))
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	slog.Info("sandbox container started", "sandboxID", id, "containerID", resp.ID)
	return nil
}

func (m *Manager) stop(ctx context.Context, id string) {
	containers, err := m.list(ctx, id)
	if err != nil {
		slog.Warn("failed to list containers for stop", "sandboxID", id, "error", err)
		return
	}
	for _, c := range containers {
		timeout := 10
		if err := m.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			slog.Warn("failed to stop container", "id", c.ID, "error", err)
		}
		if err := m.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			slog.Warn("failed to remove container", "id", c.ID, "error", err)
		}
	}
}

func (m *Manager) containerName(id string) string {
	return "agentcore-sandbox-" + id
}

func (m *Manager) list(ctx context.Context, id string) ([]types.Container, error) {
	return m.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
			filters.Arg("label", LabelSandboxID+"="+id),
		),
	})
}

func (m *Manager) listAllManaged(ctx context.Context) ([]types.Container, error) {
	return m.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManager+"="+LabelManagerValue)),
	})
}

// PreviewPort returns the host port bound to the sandbox container's
// exposed preview port, for reaching a service the agent started inside
// it via Exec.
func (m *Manager) PreviewPort(ctx context.Context, id string) (string, error) {
	c, err := m.client.ContainerInspect(ctx, m.containerName(id))
	if err != nil {
		return "", fmt.Errorf("sandbox not running for %q: %w", id, err)
	}
	bindings := c.NetworkSettings.Ports[nat.Port(previewPort+"/tcp")]
	if len(bindings) == 0 {
		return "", fmt.Errorf("sandbox %q has no preview port bound", id)
	}
	return bindings[0].HostPort, nil
}

func (m *Manager) resolveContainerID(ctx context.Context, id string) (string, error) {
	c, err := m.client.ContainerInspect(ctx, m.containerName(id))
	if err != nil {
		return "", fmt.Errorf("sandbox not running for %q: %w", id, err)
	}
	if !c.State.Running {
		return "", fmt.Errorf("sandbox %q container exists but is not running (state: %s)", id, c.State.Status)
	}
	return c.ID, nil
}

// Container is a sandbox.Sandbox backed by a single running Docker
// container, using ContainerExecCreate/ContainerExecAttach to satisfy
// Exec.
type Container struct {
	manager *Manager
	id      string
}

var _ sandbox.Sandbox = (*Container)(nil)

// ValidatePath resolves path against containerWorkdir and rejects any
// result that escapes it, mirroring Local.ValidatePath's semantics
// without needing a host filesystem stat: the path may not exist on the
// host at all, only inside the container.
func (c *Container) ValidatePath(p string) (string, error) {
	resolved := path.Join(containerWorkdir, p)
	if resolved != containerWorkdir && !strings.HasPrefix(resolved, containerWorkdir+"/") {
		return "", fmt.Errorf("sandbox: path %q escapes sandbox root", p)
	}
	return resolved, nil
}

// Exec runs command inside the container via a fresh exec session,
// bounded by timeoutSeconds.
func (c *Container) Exec(ctx context.Context, command string, timeoutSeconds int, workingDir string) (sandbox.ExecResult, error) {
	containerID, err := c.manager.resolveContainerID(ctx, c.id)
	if err != nil {
		return sandbox.ExecResult{}, err
	}

	cwd := containerWorkdir
	if workingDir != "" {
		resolved, err := c.ValidatePath(workingDir)
		if err != nil {
			return sandbox.ExecResult{}, err
		}
		cwd = resolved
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	execCfg := types.ExecConfig{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   cwd,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := c.manager.client.ContainerExecCreate(execCtx, containerID, execCfg)
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("sandbox: creating exec: %w", err)
	}

	attach, err := c.manager.client.ContainerExecAttach(execCtx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("sandbox: attaching to exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
	if execCtx.Err() != nil {
		return sandbox.ExecResult{}, fmt.Errorf("sandbox: command timed out after %ds: %s", timeoutSeconds, command)
	}
	if copyErr != nil && copyErr != io.EOF {
		return sandbox.ExecResult{}, fmt.Errorf("sandbox: reading exec output: %w", copyErr)
	}

	inspect, err := c.manager.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("sandbox: inspecting exec result: %w", err)
	}

	return sandbox.ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
