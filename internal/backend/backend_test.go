package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPodmanRunArgsMounts(t *testing.T) {
	b := &execBackend{
		name: "podman",
		runArgs: func(spec RunSpec) []string {
			args := []string{"run", "--rm", "-w", spec.Cwd}
			for _, m := range spec.Mounts {
				flag := "rw"
				if m.ReadOnly {
					flag = "ro"
				}
				args = append(args, "-v", m.HostPath+":"+m.ContainerPath+":"+flag)
			}
			return append(args, string(spec.Image), spec.CommandPath)
		},
	}
	spec := RunSpec{
		Image:       "ubuntu:20.04",
		Cwd:         "/work",
		Mounts:      []Mount{{HostPath: "/host/in", ContainerPath: "/work/in", ReadOnly: true}},
		CommandPath: "/work/command.sh",
	}
	captured := b.runArgs(spec)
	require.Contains(t, captured, "-v")
	assert.Contains(t, captured, "/host/in:/work/in:ro")
	assert.Equal(t, "/work/command.sh", captured[len(captured)-1])
	assert.Equal(t, "ubuntu:20.04", captured[len(captured)-2])
}

func TestPollUnknownHandleErrors(t *testing.T) {
	b, err := newExecBackend("true", func(RunSpec) []string { return nil }, CapabilityFlags{})
	if err != nil {
		t.Skip("no `true` binary on PATH in this environment")
	}
	_, err = b.Poll(context.Background(), RunHandle("nonexistent"))
	assert.Error(t, err)
}

func TestKillUnknownHandleIsNoop(t *testing.T) {
	b, err := newExecBackend("true", func(RunSpec) []string { return nil }, CapabilityFlags{})
	if err != nil {
		t.Skip("no `true` binary on PATH in this environment")
	}
	assert.NoError(t, b.Kill(context.Background(), RunHandle("nonexistent")))
}
