package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerSwarmBackend runs one container per call attempt via the local
// Docker daemon (spec.md §4.K: "requires local dockerd; uses swarm for
// scheduling + admission on a single node; CPU/memory are enforced").
type DockerSwarmBackend struct {
	cli *client.Client
}

// NewDockerSwarmBackend dials the daemon from the standard DOCKER_HOST/
// DOCKER_* environment the docker CLI itself honors.
func NewDockerSwarmBackend() (*DockerSwarmBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("backend: connect to docker daemon: %w", err)
	}
	return &DockerSwarmBackend{cli: cli}, nil
}

func (b *DockerSwarmBackend) Name() string { return "docker-swarm" }

func (b *DockerSwarmBackend) Capabilities() CapabilityFlags {
	return CapabilityFlags{EnforcesResources: true}
}

func (b *DockerSwarmBackend) PrepareImage(ctx context.Context, ref string) (LocalImageHandle, error) {
	rc, err := b.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("backend: pull image %s: %w", ref, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return "", fmt.Errorf("backend: pull image %s: %w", ref, err)
	}
	return LocalImageHandle(ref), nil
}

func (b *DockerSwarmBackend) Run(ctx context.Context, spec RunSpec) (RunHandle, error) {
	binds := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		flag := "rw"
		if m.ReadOnly {
			flag = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, flag))
	}
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	hostCfg := &container.HostConfig{
		Binds:      binds,
		Privileged: spec.Privileged,
		Resources: container.Resources{
			NanoCPUs: int64(spec.CPU * 1e9),
			Memory:   spec.MemoryBytes,
		},
	}

	resp, err := b.cli.ContainerCreate(ctx, &container.Config{
		Image:      string(spec.Image),
		Cmd:        []string{spec.CommandPath},
		Env:        env,
		WorkingDir: spec.Cwd,
	}, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("backend: create container: %w", err)
	}

	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("backend: start container %s: %w", resp.ID, err)
	}
	return RunHandle(resp.ID), nil
}

func (b *DockerSwarmBackend) Poll(ctx context.Context, h RunHandle) (PollResult, error) {
	inspect, err := b.cli.ContainerInspect(ctx, string(h))
	if err != nil {
		return PollResult{}, fmt.Errorf("backend: inspect container %s: %w", h, err)
	}
	if inspect.State.Running {
		return PollResult{Status: Running}, nil
	}
	return PollResult{Status: Exited, ExitCode: inspect.State.ExitCode}, nil
}

func (b *DockerSwarmBackend) Kill(ctx context.Context, h RunHandle) error {
	if err := b.cli.ContainerKill(ctx, string(h), "SIGKILL"); err != nil {
		return fmt.Errorf("backend: kill container %s: %w", h, err)
	}
	return nil
}

func (b *DockerSwarmBackend) Logs(ctx context.Context, h RunHandle) (stdout, stderr []byte, err error) {
	rc, err := b.cli.ContainerLogs(ctx, string(h), container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, fmt.Errorf("backend: logs for container %s: %w", h, err)
	}
	defer rc.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, rc); err != nil {
		return nil, nil, fmt.Errorf("backend: demux logs for container %s: %w", h, err)
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

var _ Backend = (*DockerSwarmBackend)(nil)
var _ Capable = (*DockerSwarmBackend)(nil)
