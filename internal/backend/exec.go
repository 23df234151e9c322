package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
)

// execBackend drives a host CLI tool (podman, singularity, udocker) the way
// the teacher's DockerExecutor drives the docker binary: look up the
// binary, shell out per phase, and track handles by a local counter since
// none of these tools hand back a container ID the way dockerd does for
// every command path used here.
type execBackend struct {
	name      string
	binary    string
	runArgs   func(spec RunSpec) []string
	killArgs  func(pid string) []string
	resources CapabilityFlags

	mu      sync.Mutex
	procs   map[RunHandle]*exec.Cmd
	outputs map[RunHandle]*bytes.Buffer
	errbufs map[RunHandle]*bytes.Buffer
	next    int
}

func newExecBackend(name string, runArgs func(RunSpec) []string, caps CapabilityFlags) (*execBackend, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("backend: %s not found on PATH: %w", name, err)
	}
	return &execBackend{
		name:      name,
		binary:    path,
		runArgs:   runArgs,
		resources: caps,
		procs:     map[RunHandle]*exec.Cmd{},
		outputs:   map[RunHandle]*bytes.Buffer{},
		errbufs:   map[RunHandle]*bytes.Buffer{},
	}, nil
}

func (b *execBackend) Name() string                  { return b.name }
func (b *execBackend) Capabilities() CapabilityFlags { return b.resources }

func (b *execBackend) PrepareImage(ctx context.Context, ref string) (LocalImageHandle, error) {
	return LocalImageHandle(ref), nil
}

func (b *execBackend) Run(ctx context.Context, spec RunSpec) (RunHandle, error) {
	cmd := exec.CommandContext(ctx, b.binary, b.runArgs(spec)...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("backend: %s: start: %w", b.name, err)
	}

	b.mu.Lock()
	b.next++
	h := RunHandle(b.name + "-" + strconv.Itoa(b.next))
	b.procs[h] = cmd
	b.outputs[h] = &out
	b.errbufs[h] = &errb
	b.mu.Unlock()

	go cmd.Wait()
	return h, nil
}

func (b *execBackend) Poll(ctx context.Context, h RunHandle) (PollResult, error) {
	b.mu.Lock()
	cmd, ok := b.procs[h]
	b.mu.Unlock()
	if !ok {
		return PollResult{}, fmt.Errorf("backend: %s: unknown handle %s", b.name, h)
	}
	if cmd.ProcessState == nil {
		return PollResult{Status: Running}, nil
	}
	return PollResult{Status: Exited, ExitCode: cmd.ProcessState.ExitCode()}, nil
}

func (b *execBackend) Kill(ctx context.Context, h RunHandle) error {
	b.mu.Lock()
	cmd, ok := b.procs[h]
	b.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (b *execBackend) Logs(ctx context.Context, h RunHandle) (stdout, stderr []byte, err error) {
	b.mu.Lock()
	out, eb := b.outputs[h], b.errbufs[h]
	b.mu.Unlock()
	if out == nil {
		return nil, nil, fmt.Errorf("backend: %s: unknown handle %s", b.name, h)
	}
	return out.Bytes(), eb.Bytes(), nil
}

// NewPodmanBackend shells to `sudo podman run ...` per spec.md §4.K: requires
// passwordless sudoers, scheduling limits are advisory.
func NewPodmanBackend() (Backend, error) {
	return newExecBackend("podman", func(spec RunSpec) []string {
		args := []string{"run", "--rm", "-w", spec.Cwd}
		for _, m := range spec.Mounts {
			flag := "rw"
			if m.ReadOnly {
				flag = "ro"
			}
			args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, flag))
		}
		for k, v := range spec.Env {
			args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
		}
		if spec.Privileged {
			args = append(args, "--privileged")
		}
		return append(args, string(spec.Image), spec.CommandPath)
	}, CapabilityFlags{EnforcesResources: false})
}

// NewSingularityBackend shells to `singularity exec ...`; writable only
// under /tmp and the work directory, docker refs pulled via docker-import.
func NewSingularityBackend() (Backend, error) {
	return newExecBackend("singularity", func(spec RunSpec) []string {
		args := []string{"exec", "--pwd", spec.Cwd}
		for _, m := range spec.Mounts {
			args = append(args, "--bind", fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath))
		}
		return append(args, "docker://"+string(spec.Image), spec.CommandPath)
	}, CapabilityFlags{EnforcesResources: false})
}

// NewUdockerBackend shells to `udocker run ...`; no isolation guarantees,
// inputs mounted writable, resources advisory.
func NewUdockerBackend() (Backend, error) {
	return newExecBackend("udocker", func(spec RunSpec) []string {
		args := []string{"run"}
		for _, m := range spec.Mounts {
			args = append(args, "-v", fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath))
		}
		args = append(args, "--workdir="+spec.Cwd)
		return append(args, string(spec.Image), spec.CommandPath)
	}, CapabilityFlags{EnforcesResources: false})
}
