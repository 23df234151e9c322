// Package backend implements the container backend capability set of
// spec.md §4.K: prepare_image / run / poll / kill, with a docker-swarm
// backend backed by the real Docker client plus exec-shelled podman,
// singularity, and udocker variants for hosts without a Docker daemon.
package backend

import (
	"context"
)

// LocalImageHandle identifies a prepared container image in backend-specific
// terms (e.g. a resolved docker image ID).
type LocalImageHandle string

// RunHandle identifies a running or finished container.
type RunHandle string

// Mount binds a host path into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// RunSpec describes a single container invocation (spec.md §4.K's `run`).
type RunSpec struct {
	Image       LocalImageHandle
	Cwd         string
	Mounts      []Mount
	Env         map[string]string
	CommandPath string
	CPU         float64 // cores
	MemoryBytes int64
	Privileged  bool
}

// PollStatus is the closed set of poll outcomes.
type PollStatus int

const (
	Running PollStatus = iota
	Exited
)

// PollResult reports a container's current status.
type PollResult struct {
	Status   PollStatus
	ExitCode int
}

// Backend is the container execution capability spec.md §4.K requires every
// variant (docker-swarm, podman, singularity, udocker) to implement.
type Backend interface {
	Name() string
	PrepareImage(ctx context.Context, ref string) (LocalImageHandle, error)
	Run(ctx context.Context, spec RunSpec) (RunHandle, error)
	Poll(ctx context.Context, h RunHandle) (PollResult, error)
	Kill(ctx context.Context, h RunHandle) error
	// Logs returns the stdout/stderr of a finished or running container. The
	// task runtime streams these into the attempt directory's stdout.txt /
	// stderr.txt.
	Logs(ctx context.Context, h RunHandle) (stdout, stderr []byte, err error)
}

// Resources are advisory (podman/singularity/udocker) unless a backend's
// EnforcesResources flag reports true.
type CapabilityFlags struct {
	EnforcesResources bool
	Privileged        bool
}

// Capable is implemented by backends that want to report their
// resource-enforcement posture to the resource admission scheduler
// (internal/task), matching spec.md §4.K's per-variant constraint table.
type Capable interface {
	Capabilities() CapabilityFlags
}
