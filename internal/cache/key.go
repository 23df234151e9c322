// Package cache implements the call cache (spec.md §4.L): a content-keyed
// store mapping a task's normalized source plus its bound inputs to the
// outputs JSON it previously produced, so identical calls can skip
// execution entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Key is the cache lookup key: H(source_digest || input_digest) (spec.md
// §4.L).
type Key string

// NewKey hashes a task's normalized source together with its canonically
// rendered bound inputs.
func NewKey(sourceDigest, inputDigest string) Key {
	h := sha256.Sum256([]byte(sourceDigest + "|" + inputDigest))
	return Key("sha256:" + hex.EncodeToString(h[:]))
}

var wsRun = regexp.MustCompile(`\s+`)

// SourceDigest hashes a task's normalized text: comments already stripped
// by the lexer (ast.Task never retains comment tokens, so there is nothing
// to strip here), whitespace collapsed to single spaces between tokens.
// The caller is responsible for folding in the digests of any tasks this
// one transitively imports/calls, so that editing a callee invalidates the
// caller's cache entries too.
func SourceDigest(normalizedText string) string {
	collapsed := wsRun.ReplaceAllString(strings.TrimSpace(normalizedText), " ")
	h := sha256.Sum256([]byte(collapsed))
	return hex.EncodeToString(h[:])
}

// InputDigest canonically hashes a task's bound inputs: declarations
// sorted by name, each value rendered through inputSignature so that file
// handles contribute their content digest (or mtime+size, when no digest
// has been computed) rather than an arbitrary local path.
func InputDigest(inputs map[string]values.Value) (string, error) {
	names := make([]string, 0, len(inputs))
	for n := range inputs {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		sig, err := inputSignature(inputs[n])
		if err != nil {
			return "", fmt.Errorf("cache: hash input %s: %w", n, err)
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(sig)
		b.WriteByte(';')
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:]), nil
}

// inputSignature renders one value into a canonical string, recursing
// through arrays/pairs/structs/maps the way internal/task's staging and
// output-path walks do.
func inputSignature(v values.Value) (string, error) {
	if v.Absent {
		return "null", nil
	}
	if v.Type == nil {
		return "untyped", nil
	}
	switch v.Type.Kind {
	case types.File, types.Directory:
		return fileSignature(v.File)
	case types.Array:
		parts := make([]string, len(v.Arr))
		for i, el := range v.Arr {
			s, err := inputSignature(el)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	case types.Pair:
		l, err := inputSignature(*v.PL)
		if err != nil {
			return "", err
		}
		r, err := inputSignature(*v.PR)
		if err != nil {
			return "", err
		}
		return "(" + l + "," + r + ")", nil
	case types.Map:
		if v.M == nil {
			return "{}", nil
		}
		keys, vals := v.M.Sorted()
		parts := make([]string, len(keys))
		for i := range keys {
			ks, err := inputSignature(keys[i])
			if err != nil {
				return "", err
			}
			vs, err := inputSignature(vals[i])
			if err != nil {
				return "", err
			}
			parts[i] = ks + ":" + vs
		}
		return "{" + strings.Join(parts, ",") + "}", nil
	case types.StructInstance, types.Object:
		fields := append([]values.Field{}, v.Fields...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		parts := make([]string, len(fields))
		for i, f := range fields {
			s, err := inputSignature(f.Value)
			if err != nil {
				return "", err
			}
			parts[i] = f.Name + "=" + s
		}
		return "{" + strings.Join(parts, ",") + "}", nil
	default:
		return values.Render(v), nil
	}
}

// fileSignature prefers a precomputed content digest; for a local file
// with none, it falls back to mtime+size (spec.md §4.L), which is cheaper
// than hashing the whole file on every lookup and is itself invalidated by
// the fsnotify watch in watch.go.
func fileSignature(h values.FileHandle) (string, error) {
	if h.Digest != "" {
		return h.Digest, nil
	}
	info, err := os.Stat(h.Virtual)
	if err != nil {
		// Remote or not-yet-materialized: identity is the URI itself.
		return "uri:" + h.Virtual, nil
	}
	return fmt.Sprintf("local:%s:%d:%d", h.Virtual, info.Size(), info.ModTime().UnixNano()), nil
}

// TaskSourceText reconstructs a stable textual form of a task used for
// SourceDigest, good enough to change whenever the task's meaningfully
// observable behavior changes: its command template, runtime block, and
// declared input/output shapes. This intentionally ignores comments and
// formatting, neither of which ast.Task retains.
func TaskSourceText(t *ast.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s ", t.Name)
	for _, d := range t.Inputs {
		fmt.Fprintf(&b, "in(%s:%s) ", d.Name, d.Type.String())
	}
	for _, d := range t.Decls {
		fmt.Fprintf(&b, "decl(%s:%s) ", d.Name, d.Type.String())
	}
	for _, part := range t.Command {
		if part.Expr != nil {
			b.WriteString("~{expr}")
		} else {
			b.WriteString(part.Literal)
		}
	}
	for _, d := range t.Outputs {
		fmt.Fprintf(&b, " out(%s:%s)", d.Name, d.Type.String())
	}
	return b.String()
}
