package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-wdl/wdlrun/internal/values"
)

// FileStager is the capability internal/download supplies for resolving a
// remote URI handle to a local path (spec.md §4.M); local handles resolve
// without it.
type FileStager interface {
	Stage(handle values.FileHandle) (string, error)
}

// AttemptPaths implements stdlib.PathMapper for one task attempt. CWD is
// the attempt's work directory (spec.md §6.3's workN, mounted directly as
// the container's cwd); WriteDir is the run-level write_/ subdirectory
// shared by every call's expression-evaluation side effects.
type AttemptPaths struct {
	CWD     string
	WriteDir string
	Stager  FileStager

	stdoutPath, stderrPath string
	nextOutput             int
}

func NewAttemptPaths(cwd, writeDir, stdoutPath, stderrPath string, stager FileStager) *AttemptPaths {
	return &AttemptPaths{
		CWD:        cwd,
		WriteDir:   writeDir,
		Stager:     stager,
		stdoutPath: stdoutPath,
		stderrPath: stderrPath,
	}
}

func (p *AttemptPaths) HostPath(handle values.FileHandle) (string, error) {
	if filepath.IsAbs(handle.Virtual) {
		if _, err := os.Stat(handle.Virtual); err == nil {
			return handle.Virtual, nil
		}
	}
	if p.Stager != nil {
		return p.Stager.Stage(handle)
	}
	return handle.Virtual, nil
}

func (p *AttemptPaths) NewOutputFile(name string) (values.FileHandle, string, error) {
	dir := p.WriteDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return values.FileHandle{}, "", fmt.Errorf("task: create write_ dir: %w", err)
	}
	p.nextOutput++
	base := name
	if base == "" {
		base = fmt.Sprintf("tmp.%d", p.nextOutput)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.%s", p.nextOutput, base))
	return values.FileHandle{Virtual: path}, path, nil
}

func (p *AttemptPaths) StdoutPath() (string, error) { return p.stdoutPath, nil }
func (p *AttemptPaths) StderrPath() (string, error) { return p.stderrPath, nil }

// digestFile computes a content digest for call-cache input/output
// canonicalization (spec.md §4.L), used when a local file has not changed
// since it was last hashed.
func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
