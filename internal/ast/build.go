package ast

import (
	"sort"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/types"
)

// Build converts every loaded document into a single typed Program. docs
// must contain exactly one document with a non-nil Workflow (the entry
// document); all others are treated as imported libraries contributing
// structs and tasks only (spec.md scope: no nested sub-workflow calls
// across documents beyond struct/task sharing, matching miniwdl's
// single-workflow-per-run model).
func Build(entryURI string, docs map[string]*parser.Document) (*Program, error) {
	entry, ok := docs[entryURI]
	if !ok {
		return nil, errs.New(errs.KindImport, errs.Pos{}, "entry document %q not found after import resolution", entryURI)
	}

	b := &builder{
		docs:    docs,
		structs: map[string]*types.Type{},
		tasks:   map[string]*Task{},
	}

	// Register struct types first (tasks/workflow decls may reference
	// them), across every loaded document so imported structs are visible
	// by their aliased name.
	order := sortedKeys(docs)
	for _, uri := range order {
		doc := docs[uri]
		for _, sd := range doc.Structs {
			if err := b.registerStruct(sd); err != nil {
				return nil, err
			}
		}
	}
	// Resolve member types now that every struct name is registered
	// (struct members may reference other structs, including forward
	// references within the same document).
	for _, uri := range order {
		doc := docs[uri]
		for _, sd := range doc.Structs {
			if err := b.finishStruct(sd); err != nil {
				return nil, err
			}
		}
	}
	if err := b.checkStructCycles(); err != nil {
		return nil, err
	}

	for _, uri := range order {
		doc := docs[uri]
		for _, td := range doc.Tasks {
			task, err := b.buildTask(td)
			if err != nil {
				return nil, err
			}
			if _, dup := b.tasks[task.Name]; dup {
				return nil, errs.Typef(errs.NameCollision, task.Pos, "duplicate task name %q", task.Name)
			}
			b.tasks[task.Name] = task
		}
	}

	if entry.Workflow == nil {
		return nil, errs.New(errs.KindSyntax, errs.Pos{Source: entryURI}, "document has no workflow")
	}
	wf, err := b.buildWorkflow(entry.Workflow)
	if err != nil {
		return nil, err
	}

	return &Program{
		Version:  entry.Version,
		Structs:  b.structs,
		Tasks:    b.tasks,
		Workflow: wf,
	}, nil
}

func sortedKeys(m map[string]*parser.Document) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type builder struct {
	docs    map[string]*parser.Document
	structs map[string]*types.Type
	tasks   map[string]*Task
	// pendingMembers tracks each struct's raw member syntax until
	// finishStruct resolves them (allows forward references between
	// structs declared in the same document).
	pendingMembers map[string][]parser.MemberDecl
}

func (b *builder) registerStruct(sd *parser.StructDef) error {
	if _, dup := b.structs[sd.Name]; dup {
		return errs.Typef(errs.NameCollision, sd.Pos, "duplicate struct name %q", sd.Name)
	}
	if b.pendingMembers == nil {
		b.pendingMembers = map[string][]parser.MemberDecl{}
	}
	b.pendingMembers[sd.Name] = sd.Members
	b.structs[sd.Name] = types.NewStruct(sd.Name, nil)
	return nil
}

func (b *builder) finishStruct(sd *parser.StructDef) error {
	members := make([]types.StructMember, 0, len(sd.Members))
	for _, m := range sd.Members {
		t, err := b.resolveType(m.Type)
		if err != nil {
			return err
		}
		members = append(members, types.StructMember{Name: m.Name, Type: t})
	}
	b.structs[sd.Name].Members = members
	return nil
}

// checkStructCycles rejects a struct that (transitively, through non-
// optional, non-container member types) contains itself, which would make
// it impossible to construct. Array/Map/Pair/optional indirection breaks
// the cycle since those have their own construction rules.
func (b *builder) checkStructCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return errs.New(errs.KindType, errs.Pos{}, "struct %q is recursively defined", name)
		}
		color[name] = gray
		for _, m := range b.structs[name].Members {
			if n := directStructRef(m.Type); n != "" {
				if err := visit(n); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	names := make([]string, 0, len(b.structs))
	for n := range b.structs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// directStructRef returns the referenced struct name if t is a bare
// (non-optional, non-container) struct type, else "".
func directStructRef(t *types.Type) string {
	if t.Kind == types.StructInstance && !t.Optional {
		return t.Name
	}
	return ""
}

func (b *builder) resolveType(te parser.TypeExpr) (*types.Type, error) {
	var t *types.Type
	switch te.Name {
	case "Boolean":
		t = types.Prim(types.Boolean)
	case "Int":
		t = types.Prim(types.Int)
	case "Float":
		t = types.Prim(types.Float)
	case "String":
		t = types.Prim(types.String)
	case "File":
		t = types.Prim(types.File)
	case "Directory":
		t = types.Prim(types.Directory)
	case "Object":
		t = types.Prim(types.Object)
	case "Array":
		if len(te.Params) != 1 {
			return nil, errs.New(errs.KindType, te.Pos, "Array requires exactly one type parameter")
		}
		item, err := b.resolveType(te.Params[0])
		if err != nil {
			return nil, err
		}
		t = types.NewArray(item, te.Nonempty)
	case "Map":
		if len(te.Params) != 2 {
			return nil, errs.New(errs.KindType, te.Pos, "Map requires exactly two type parameters")
		}
		k, err := b.resolveType(te.Params[0])
		if err != nil {
			return nil, err
		}
		v, err := b.resolveType(te.Params[1])
		if err != nil {
			return nil, err
		}
		t = types.NewMap(k, v)
	case "Pair":
		if len(te.Params) != 2 {
			return nil, errs.New(errs.KindType, te.Pos, "Pair requires exactly two type parameters")
		}
		l, err := b.resolveType(te.Params[0])
		if err != nil {
			return nil, err
		}
		r, err := b.resolveType(te.Params[1])
		if err != nil {
			return nil, err
		}
		t = types.NewPair(l, r)
	default:
		st, ok := b.structs[te.Name]
		if !ok {
			return nil, errs.New(errs.KindType, te.Pos, "unknown type %q", te.Name)
		}
		t = st
	}
	if te.Optional {
		t = t.AsOptional()
	}
	return t, nil
}

func (b *builder) buildDecl(d parser.Decl) (*Decl, error) {
	t, err := b.resolveType(d.Type)
	if err != nil {
		return nil, err
	}
	return &Decl{Name: d.Name, Type: t, Expr: d.Expr, Pos: d.Pos}, nil
}

func (b *builder) buildDecls(ds []parser.Decl) ([]*Decl, error) {
	out := make([]*Decl, 0, len(ds))
	seen := map[string]bool{}
	for _, d := range ds {
		if seen[d.Name] {
			return nil, errs.Typef(errs.NameCollision, d.Pos, "duplicate declaration name %q", d.Name)
		}
		seen[d.Name] = true
		nd, err := b.buildDecl(d)
		if err != nil {
			return nil, err
		}
		out = append(out, nd)
	}
	return out, nil
}

func (b *builder) buildTask(td *parser.TaskDef) (*Task, error) {
	inputs, err := b.buildDecls(td.Inputs)
	if err != nil {
		return nil, err
	}
	decls, err := b.buildDecls(td.Decls)
	if err != nil {
		return nil, err
	}
	outputs, err := b.buildDecls(td.Outputs)
	if err != nil {
		return nil, err
	}
	rt := map[string]*parser.Expr{}
	for _, r := range td.Runtime {
		rt[r.Name] = r.Expr
	}
	cmd, err := buildCommand(td.Command)
	if err != nil {
		return nil, err
	}
	return &Task{
		Name:          td.Name,
		Inputs:        inputs,
		Decls:         decls,
		Outputs:       outputs,
		Command:       cmd,
		CommandHeredoc: td.CommandHeredoc,
		Runtime:       rt,
		Meta:          td.Meta,
		ParameterMeta: td.ParameterMeta,
		Pos:           td.Pos,
	}, nil
}

func (b *builder) buildWorkflow(wd *parser.WorkflowDef) (*Workflow, error) {
	inputs, err := b.buildDecls(wd.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := b.buildDecls(wd.Outputs)
	if err != nil {
		return nil, err
	}
	body, err := b.buildElements(wd.Body)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		Name:          wd.Name,
		Inputs:        inputs,
		Outputs:       outputs,
		Body:          body,
		Meta:          wd.Meta,
		ParameterMeta: wd.ParameterMeta,
		AllowNestedInputs: wd.AllowNestedInputs,
		Pos:           wd.Pos,
	}, nil
}

func (b *builder) buildElements(els []parser.WorkflowElement) ([]Element, error) {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		switch {
		case el.Decl != nil:
			d, err := b.buildDecl(*el.Decl)
			if err != nil {
				return nil, err
			}
			out = append(out, Element{Decl: d})
		case el.Call != nil:
			c, err := b.buildCall(el.Call)
			if err != nil {
				return nil, err
			}
			out = append(out, Element{Call: c})
		case el.Scatter != nil:
			s, err := b.buildScatter(el.Scatter)
			if err != nil {
				return nil, err
			}
			out = append(out, Element{Scatter: s})
		case el.Conditional != nil:
			c, err := b.buildConditional(el.Conditional)
			if err != nil {
				return nil, err
			}
			out = append(out, Element{Conditional: c})
		}
	}
	return out, nil
}

func (b *builder) buildCall(c *parser.CallStmt) (*Call, error) {
	task, ok := b.tasks[c.Target]
	if !ok {
		return nil, errs.Typef(errs.NoSuchFunction, c.Pos, "call target %q is not a known task", c.Target)
	}
	alias := c.Alias
	if alias == "" {
		alias = lastSegment(c.Target)
	}
	inputs := map[string]*parser.Expr{}
	for _, in := range c.Inputs {
		inputs[in.Name] = in.Expr
	}
	return &Call{Alias: alias, Target: c.Target, Task: task, Inputs: inputs, Pos: c.Pos}, nil
}

func lastSegment(dotted string) string {
	last := dotted
	for i := len(dotted) - 1; i >= 0; i-- {
		if dotted[i] == '.' {
			last = dotted[i+1:]
			break
		}
	}
	return last
}

func (b *builder) buildScatter(s *parser.ScatterStmt) (*Scatter, error) {
	body, err := b.buildElements(s.Body)
	if err != nil {
		return nil, err
	}
	return &Scatter{Var: s.Var, Expr: s.Expr, Body: body, Pos: s.Pos}, nil
}

func (b *builder) buildConditional(c *parser.ConditionalStmt) (*Conditional, error) {
	body, err := b.buildElements(c.Body)
	if err != nil {
		return nil, err
	}
	return &Conditional{Expr: c.Expr, Body: body, Pos: c.Pos}, nil
}

// buildCommand resolves a command template's placeholders (captured by the
// lexer as raw, unparsed text per spec.md §4.D's command-body scan) into
// parsed expressions, the same way the parser resolves a quoted
// interpolated string's placeholders inline.
func buildCommand(parts []parser.StringPart) ([]CommandPart, error) {
	out := make([]CommandPart, 0, len(parts))
	for _, p := range parts {
		if p.Expr == "" {
			if p.Literal != "" {
				out = append(out, CommandPart{Literal: p.Literal, Pos: p.Pos})
			}
			continue
		}
		e, err := parser.ParseExprFragment(p.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, CommandPart{Expr: e, Sep: p.PlaceholderSep, Pos: p.Pos})
	}
	return out, nil
}
