package ast

import (
	"path"
	"strings"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
)

// ImportResolver is the capability a host environment provides to fetch an
// imported document's source text by URI (relative file path, absolute
// path, or a remote http(s) URL per spec.md's import resolution rules).
// The one implementation provided, LocalResolver, handles local paths only
// and takes its file reader as an injected function, so ast itself does no
// I/O.
type ImportResolver interface {
	// Canonicalize returns the canonical URI a relative `uri` resolves to from
	// `fromSource`, without fetching it. Used both to fetch content and to
	// build the call-cache source digest (spec.md §9 most-failure-prone
	// note: canonicalization must be stable across relative-path variants).
	Canonicalize(fromSource, uri string) (string, error)
	// Fetch retrieves the document text at a canonical URI.
	Fetch(canonicalURI string) (string, error)
}

// Load parses source and recursively resolves its imports via resolver,
// returning every document keyed by canonical URI (source itself keyed by
// its own canonical form, "" if it has none, e.g. stdin).
func Load(sourceURI, src string, resolver ImportResolver) (map[string]*parser.Document, error) {
	docs := map[string]*parser.Document{}
	var visit func(uri, text string, chain []string) error
	visit = func(uri, text string, chain []string) error {
		for _, c := range chain {
			if c == uri {
				return errs.New(errs.KindImport, errs.Pos{Source: uri}, "import cycle: %s", strings.Join(append(chain, uri), " -> "))
			}
		}
		if _, ok := docs[uri]; ok {
			return nil
		}
		doc, err := parser.Parse(uri, text)
		if err != nil {
			return err
		}
		docs[uri] = doc
		for _, imp := range doc.Imports {
			canon, err := resolver.Canonicalize(uri, imp.URI)
			if err != nil {
				return errs.Wrap(errs.KindImport, err, "resolving import %q from %s", imp.URI, uri)
			}
			imp.URI = canon
			if _, ok := docs[canon]; ok {
				continue
			}
			childText, err := resolver.Fetch(canon)
			if err != nil {
				return errs.Wrap(errs.KindImport, err, "fetching import %q", canon)
			}
			if err := visit(canon, childText, append(chain, uri)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(sourceURI, src, nil); err != nil {
		return nil, err
	}
	return docs, nil
}

// LocalResolver resolves imports against a base directory on the local
// filesystem; used by the CLI's default run path (spec.md's import
// resolution scope explicitly excludes remote registries, so only
// file-relative and absolute paths are handled here).
type LocalResolver struct {
	ReadFile func(path string) (string, error)
}

func (r LocalResolver) Canonicalize(fromSource, uri string) (string, error) {
	if path.IsAbs(uri) {
		return path.Clean(uri), nil
	}
	dir := path.Dir(fromSource)
	return path.Clean(path.Join(dir, uri)), nil
}

func (r LocalResolver) Fetch(canonicalURI string) (string, error) {
	return r.ReadFile(canonicalURI)
}
