// Package graph builds the deterministic dependency graph described in
// spec.md §3/§4.H from a typechecked internal/ast.Program: one node per
// declaration, call, scatter/conditional section, plus a synthesized gather
// node for every binding a section introduces. The
// workflow state machine (internal/state) walks this graph; it never
// mutates it.
package graph

import (
	"fmt"
	"sort"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
)

// NodeKind is the closed set of graph node variants.
type NodeKind int

const (
	NodeDecl NodeKind = iota
	NodeCall
	NodeScatter
	NodeConditional
	NodeGather
)

func (k NodeKind) String() string {
	switch k {
	case NodeDecl:
		return "Decl"
	case NodeCall:
		return "Call"
	case NodeScatter:
		return "Scatter"
	case NodeConditional:
		return "Conditional"
	case NodeGather:
		return "Gather"
	}
	return "?"
}

// Node is one graph vertex. Exactly one of Decl/Call/Scatter/Conditional is
// set, matching its Kind, except for Gather nodes which set none of them
// and instead name the inner node they expose via GatherOf.
type Node struct {
	ID   string
	Kind NodeKind

	Decl        *ast.Decl
	Call        *ast.Call
	Scatter     *ast.Scatter
	Conditional *ast.Conditional

	// GatherOf is the inner node id a Gather node lifts, set only for
	// NodeGather.
	GatherOf string

	// Name is the binding name this node's runtime value is exposed under
	// (Decl.Name, Call.Alias, a Gather's lifted name, or a Scatter's bound
	// loop variable). Empty for Conditional nodes, which bind nothing.
	Name string

	// Section is the id of the immediately enclosing Scatter/Conditional
	// node, or "" for a top-level workflow node.
	Section string
	Depth   int
	Pos     errs.Pos

	// DependsOn is the node's resolved dependency set: prior siblings, the
	// enclosing scatter's bound name, or gathers exposing sibling-section
	// values (spec.md §3's graph invariants).
	DependsOn []string
}

// Graph is the built, immutable dependency graph for one workflow or task.
type Graph struct {
	nodes map[string]*Node
	order []string
}

func newGraph() *Graph { return &Graph{nodes: map[string]*Node{}} }

func (g *Graph) add(n *Node) {
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
}

// IDs returns every node id in construction (source) order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Get looks up a node by id.
func (g *Graph) Get(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Dependencies returns the dependency node ids of id, or nil if id is
// unknown.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(n.DependsOn))
	copy(out, n.DependsOn)
	return out
}

// SectionOf returns the enclosing section's node id and true, or ("",
// false) for a top-level node or an unknown id.
func (g *Graph) SectionOf(id string) (string, bool) {
	n, ok := g.nodes[id]
	if !ok || n.Section == "" {
		return "", false
	}
	return n.Section, true
}

// DirectChildren returns the ids of nodes declared immediately inside the
// given Scatter/Conditional section (not nested further), in source order.
// Gather nodes belong to the section's *enclosing* scope and are never
// returned here.
func (g *Graph) DirectChildren(sectionID string) []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].Section == sectionID {
			out = append(out, id)
		}
	}
	return out
}

type scope struct {
	parent *scope
	names  map[string]string
}

func (s *scope) lookup(name string) (string, bool) {
	for f := s; f != nil; f = f.parent {
		if id, ok := f.names[name]; ok {
			return id, true
		}
	}
	return "", false
}

func (s *scope) bind(name, id string) *scope {
	return &scope{parent: s, names: map[string]string{name: id}}
}

type localBinding struct {
	Name string
	ID   string
}

type builder struct {
	g         *Graph
	condCount int
}

// Build constructs the dependency graph for a program's workflow: inputs,
// then the body (recursing into scatter/conditional sections and emitting
// their gather nodes), then the output block as an implicit final section.
func Build(prog *ast.Program) (*Graph, error) {
	if prog.Workflow == nil {
		return newGraph(), nil
	}
	b := &builder{g: newGraph()}
	sc := &scope{names: map[string]string{}}

	for _, in := range prog.Workflow.Inputs {
		id := "decl-" + in.Name
		deps, err := b.resolveDeps(identsIn(in.Expr), sc)
		if err != nil {
			return nil, err
		}
		b.g.add(&Node{ID: id, Kind: NodeDecl, Decl: in, Name: in.Name, Pos: in.Pos, DependsOn: deps})
		sc = sc.bind(in.Name, id)
	}

	sc, _, err := b.buildBody(prog.Workflow.Body, "", 0, sc)
	if err != nil {
		return nil, err
	}

	for _, out := range prog.Workflow.Outputs {
		id := "output-" + out.Name
		deps, err := b.resolveDeps(identsIn(out.Expr), sc)
		if err != nil {
			return nil, err
		}
		b.g.add(&Node{ID: id, Kind: NodeDecl, Decl: out, Name: out.Name, Pos: out.Pos, DependsOn: deps})
		sc = sc.bind(out.Name, id)
	}

	return b.g, nil
}

// BuildTask constructs the (section-free) dependency graph for a task's own
// input/intermediate/output declarations, used by internal/task to bind
// values in dependency order during setup (spec.md §4.J step 1).
func BuildTask(task *ast.Task) (*Graph, error) {
	b := &builder{g: newGraph()}
	sc := &scope{names: map[string]string{}}

	bind := func(prefix string, decls []*ast.Decl) error {
		for _, d := range decls {
			id := prefix + d.Name
			deps, err := b.resolveDeps(identsIn(d.Expr), sc)
			if err != nil {
				return err
			}
			b.g.add(&Node{ID: id, Kind: NodeDecl, Decl: d, Name: d.Name, Pos: d.Pos, DependsOn: deps})
			sc = sc.bind(d.Name, id)
		}
		return nil
	}
	if err := bind("input-", task.Inputs); err != nil {
		return nil, err
	}
	if err := bind("decl-", task.Decls); err != nil {
		return nil, err
	}
	if err := bind("output-", task.Outputs); err != nil {
		return nil, err
	}
	return b.g, nil
}

func (b *builder) buildBody(elems []ast.Element, sectionID string, depth int, sc *scope) (*scope, []localBinding, error) {
	var local []localBinding

	for _, el := range elems {
		switch {
		case el.Decl != nil:
			id := prefixed(sectionID, "decl-"+el.Decl.Name)
			deps, err := b.resolveDeps(identsIn(el.Decl.Expr), sc)
			if err != nil {
				return nil, nil, err
			}
			b.g.add(&Node{ID: id, Kind: NodeDecl, Decl: el.Decl, Name: el.Decl.Name, Section: sectionID, Depth: depth, Pos: el.Decl.Pos, DependsOn: deps})
			sc = sc.bind(el.Decl.Name, id)
			local = append(local, localBinding{el.Decl.Name, id})

		case el.Call != nil:
			id := prefixed(sectionID, "call-"+el.Call.Alias)
			var names []string
			for _, in := range el.Call.Inputs {
				names = append(names, identsIn(in)...)
			}
			deps, err := b.resolveDeps(names, sc)
			if err != nil {
				return nil, nil, err
			}
			b.g.add(&Node{ID: id, Kind: NodeCall, Call: el.Call, Name: el.Call.Alias, Section: sectionID, Depth: depth, Pos: el.Call.Pos, DependsOn: deps})
			sc = sc.bind(el.Call.Alias, id)
			local = append(local, localBinding{el.Call.Alias, id})

		case el.Scatter != nil:
			scID := prefixed(sectionID, "scatter-"+el.Scatter.Var)
			deps, err := b.resolveDeps(identsIn(el.Scatter.Expr), sc)
			if err != nil {
				return nil, nil, err
			}
			b.g.add(&Node{ID: scID, Kind: NodeScatter, Scatter: el.Scatter, Name: el.Scatter.Var, Section: sectionID, Depth: depth, Pos: el.Scatter.Pos, DependsOn: deps})

			innerScope := sc.bind(el.Scatter.Var, scID)
			_, innerLocal, err := b.buildBody(el.Scatter.Body, scID, depth+1, innerScope)
			if err != nil {
				return nil, nil, err
			}
			for _, lb := range innerLocal {
				gid := scID + "/gather/" + lb.Name
				b.g.add(&Node{ID: gid, Kind: NodeGather, GatherOf: lb.ID, Name: lb.Name, Section: sectionID, Depth: depth, Pos: el.Scatter.Pos, DependsOn: []string{lb.ID}})
				sc = sc.bind(lb.Name, gid)
				local = append(local, localBinding{lb.Name, gid})
			}

		case el.Conditional != nil:
			b.condCount++
			cID := prefixed(sectionID, fmt.Sprintf("if-%d", b.condCount))
			deps, err := b.resolveDeps(identsIn(el.Conditional.Expr), sc)
			if err != nil {
				return nil, nil, err
			}
			b.g.add(&Node{ID: cID, Kind: NodeConditional, Conditional: el.Conditional, Section: sectionID, Depth: depth, Pos: el.Conditional.Pos, DependsOn: deps})

			_, innerLocal, err := b.buildBody(el.Conditional.Body, cID, depth+1, sc)
			if err != nil {
				return nil, nil, err
			}
			for _, lb := range innerLocal {
				gid := cID + "/gather/" + lb.Name
				b.g.add(&Node{ID: gid, Kind: NodeGather, GatherOf: lb.ID, Name: lb.Name, Section: sectionID, Depth: depth, Pos: el.Conditional.Pos, DependsOn: []string{lb.ID}})
				sc = sc.bind(lb.Name, gid)
				local = append(local, localBinding{lb.Name, gid})
			}
		}
	}

	return sc, local, nil
}

func prefixed(section, suffix string) string {
	if section == "" {
		return suffix
	}
	return section + "/" + suffix
}

// resolveDeps looks up every referenced name against scope, deduplicating
// and erroring on any name that doesn't resolve — which, for a program that
// has already passed internal/ast.Typecheck, indicates an internal bug
// rather than a user-facing error.
func (b *builder) resolveDeps(names []string, sc *scope) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, name := range names {
		id, ok := sc.lookup(name)
		if !ok {
			return nil, errs.New(errs.KindEval, errs.Pos{}, "internal: unresolved graph reference %q", name)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// identsIn collects every identifier referenced anywhere within an
// expression tree (including as the base of member/index chains), used to
// compute a node's dependency set.
func identsIn(e *parser.Expr) []string {
	var out []string
	var walk func(*parser.Expr)
	walk = func(e *parser.Expr) {
		if e == nil {
			return
		}
		switch e.Kind {
		case parser.ExprIdent:
			out = append(out, e.Name)
		case parser.ExprArray:
			for _, el := range e.Elems {
				walk(el)
			}
		case parser.ExprMap:
			for _, k := range e.MapKeys {
				walk(k)
			}
			for _, v := range e.MapVals {
				walk(v)
			}
		case parser.ExprPair:
			walk(e.Left)
			walk(e.Right)
		case parser.ExprObject, parser.ExprStructLiteral:
			for _, v := range e.FieldVals {
				walk(v)
			}
		case parser.ExprMember:
			walk(e.Object)
		case parser.ExprIndex:
			walk(e.Object)
			walk(e.Index)
		case parser.ExprUnary:
			walk(e.Arg)
		case parser.ExprBinary:
			walk(e.LHS)
			walk(e.RHS)
		case parser.ExprTernary:
			walk(e.Cond)
			walk(e.Then)
			walk(e.Else)
		case parser.ExprApply:
			for _, a := range e.Args {
				walk(a)
			}
		case parser.ExprInterpolatedString:
			for _, p := range e.Parts {
				walk(p.Expr)
			}
		}
	}
	walk(e)
	return out
}
