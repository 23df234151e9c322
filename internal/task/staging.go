package task

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// stageFiles walks a task's bound input/intermediate declarations for
// File/Directory values, mounting each into the container's view of the
// filesystem (spec.md §4.J step 2). By default files are mounted read-only
// at a path outside the work directory; under copyInputFiles they are
// copied into the work directory instead and no mount is created for them.
// Returns the mount list and a new environment whose File/Directory values
// have been rewritten to the container-side path.
func stageFiles(t *ast.Task, bound *env.Env, cwd string, copyInputFiles bool) ([]backend.Mount, *env.Env, error) {
	s := &stager{copyInputFiles: copyInputFiles, workDir: cwd}
	en := bound
	for _, d := range append(append([]*ast.Decl{}, t.Inputs...), t.Decls...) {
		v, ok := bound.Lookup(d.Name)
		if !ok {
			continue
		}
		nv, err := s.rewrite(v)
		if err != nil {
			return nil, nil, err
		}
		en = en.Bind(d.Name, nv)
	}
	return s.mounts, en, nil
}

type stager struct {
	workDir        string
	copyInputFiles bool
	mounts         []backend.Mount
	next           int
}

func (s *stager) rewrite(v values.Value) (values.Value, error) {
	if v.Type == nil {
		return v, nil
	}
	switch v.Type.Kind {
	case types.File, types.Directory:
		if v.Absent || v.File.Virtual == "" {
			return v, nil
		}
		return s.stageOne(v)
	case types.Array:
		out := make([]values.Value, len(v.Arr))
		for i, el := range v.Arr {
			nv, err := s.rewrite(el)
			if err != nil {
				return values.Value{}, err
			}
			out[i] = nv
		}
		nv := v
		nv.Arr = out
		return nv, nil
	case types.Pair:
		l, err := s.rewrite(*v.PL)
		if err != nil {
			return values.Value{}, err
		}
		r, err := s.rewrite(*v.PR)
		if err != nil {
			return values.Value{}, err
		}
		nv := v
		nv.PL, nv.PR = &l, &r
		return nv, nil
	case types.StructInstance, types.Object:
		out := make([]values.Field, len(v.Fields))
		for i, f := range v.Fields {
			nv, err := s.rewrite(f.Value)
			if err != nil {
				return values.Value{}, err
			}
			out[i] = values.Field{Name: f.Name, Value: nv}
		}
		nv := v
		nv.Fields = out
		return nv, nil
	}
	return v, nil
}

// stageOne mounts (or copies) a single File/Directory value, rewriting its
// handle to the path the container sees.
func (s *stager) stageOne(v values.Value) (values.Value, error) {
	host := v.File.Virtual
	if !filepath.IsAbs(host) {
		// Already relative to the work directory; nothing to stage.
		return v, nil
	}
	if _, err := os.Stat(host); err != nil {
		return values.Value{}, fmt.Errorf("stage %s: %w", host, err)
	}
	base := filepath.Base(host)

	if s.copyInputFiles {
		dest := filepath.Join(s.workDir, base)
		if err := copyFile(host, dest); err != nil {
			return values.Value{}, err
		}
		nv := v
		nv.File = values.FileHandle{Virtual: dest, Digest: v.File.Digest}
		return nv, nil
	}

	s.next++
	containerPath := filepath.Join("/mnt/inputs", fmt.Sprintf("%d", s.next), base)
	s.mounts = append(s.mounts, backend.Mount{HostPath: host, ContainerPath: containerPath, ReadOnly: true})
	nv := v
	nv.File = values.FileHandle{Virtual: containerPath, Digest: v.File.Digest}
	return nv, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// envInputs collects inputs marked for env-var passthrough (meta: { env:
// ["NAME", ...] }, the declaration-modifier convention this runner
// recognizes since the parser records task metadata as a free-form map
// rather than a typed per-declaration flag), shell-rendering each value.
func envInputs(t *ast.Task, bound *env.Env) map[string]string {
	names, ok := t.Meta["env"]
	if !ok {
		return nil
	}
	list, ok := names.([]any)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, n := range list {
		name, ok := n.(string)
		if !ok {
			continue
		}
		v, ok := bound.Lookup(name)
		if !ok {
			continue
		}
		out[name] = shellQuote(values.Render(v))
	}
	return out
}

// shellQuote wraps a value in single quotes, escaping any embedded single
// quote, so it is safe to place verbatim into a POSIX shell environment
// assignment (spec.md §4.J "their values are shell-escaped").
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
