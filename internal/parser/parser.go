package parser

import (
	"strconv"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// Parser is a recursive-descent parser with one token of lookahead.
type Parser struct {
	lex  *Lexer
	tok  Token
	peeked bool
	draft2 bool // version < 1.0: bare command blocks, no explicit `input {}`
}

// Parse parses a complete WDL document.
func Parse(source, src string) (*Document, error) {
	p := &Parser{lex: NewLexer(source, src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseDocument(source)
}

func (p *Parser) advance() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) at(kind TokKind, text string) bool {
	return p.tok.Kind == kind && (text == "" || p.tok.Text == text)
}

func (p *Parser) atKeyword(kw string) bool { return p.tok.Kind == TokKeyword && p.tok.Text == kw }
func (p *Parser) atSymbol(sym string) bool { return p.tok.Kind == TokSymbol && p.tok.Text == sym }

func (p *Parser) expectSymbol(sym string) (errs.Pos, error) {
	if !p.atSymbol(sym) {
		return errs.Pos{}, p.errorf("expected %q, got %q", sym, p.tok.Text)
	}
	pos := p.tok.Pos
	return pos, p.advance()
}

func (p *Parser) expectKeyword(kw string) (errs.Pos, error) {
	if !p.atKeyword(kw) {
		return errs.Pos{}, p.errorf("expected keyword %q, got %q", kw, p.tok.Text)
	}
	pos := p.tok.Pos
	return pos, p.advance()
}

func (p *Parser) expectIdent() (string, errs.Pos, error) {
	if p.tok.Kind != TokIdent && p.tok.Kind != TokKeyword {
		return "", errs.Pos{}, p.errorf("expected identifier, got %q", p.tok.Text)
	}
	name, pos := p.tok.Text, p.tok.Pos
	return name, pos, p.advance()
}

func (p *Parser) errorf(format string, args ...any) error {
	return errs.New(errs.KindSyntax, p.tok.Pos, format, args...)
}

func (p *Parser) parseDocument(source string) (*Document, error) {
	doc := &Document{Source: source, Pos: p.tok.Pos}

	vpos, err := p.expectKeyword("version")
	if err != nil {
		return nil, err
	}
	ver, _, err := p.expectIdent()
	if err != nil {
		// version idents like "1.0" lex as TokFloat, not TokIdent.
		if p.tok.Kind == TokFloat || p.tok.Kind == TokInt {
			ver = p.tok.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	doc.Version = ver
	doc.Pos = vpos
	p.draft2 = ver == "draft-2"

	for !p.at(TokEOF, "") {
		switch {
		case p.atKeyword("import"):
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			doc.Imports = append(doc.Imports, imp)
		case p.atKeyword("struct"):
			sd, err := p.parseStruct()
			if err != nil {
				return nil, err
			}
			doc.Structs = append(doc.Structs, sd)
		case p.atKeyword("task"):
			td, err := p.parseTask()
			if err != nil {
				return nil, err
			}
			doc.Tasks = append(doc.Tasks, td)
		case p.atKeyword("workflow"):
			if doc.Workflow != nil {
				return nil, p.errorf("a document may declare at most one workflow")
			}
			wf, err := p.parseWorkflow()
			if err != nil {
				return nil, err
			}
			doc.Workflow = wf
		default:
			return nil, p.errorf("unexpected top-level token %q", p.tok.Text)
		}
	}
	return doc, nil
}

func (p *Parser) parseImport() (*Import, error) {
	pos, err := p.expectKeyword("import")
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokString {
		return nil, p.errorf("expected string literal after import")
	}
	uri := flattenLiteral(p.tok.Parts)
	if err := p.advance(); err != nil {
		return nil, err
	}
	imp := &Import{URI: uri, Pos: pos}
	if p.atKeyword("as") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		imp.Alias = name
	}
	for p.atKeyword("alias") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		from, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKeyword("as"); err != nil {
			return nil, err
		}
		to, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		imp.Structs = append(imp.Structs, StructAlias{From: from, To: to})
	}
	return imp, nil
}

func flattenLiteral(parts []StringPart) string {
	s := ""
	for _, p := range parts {
		s += p.Literal
	}
	return s
}

func (p *Parser) parseStruct() (*StructDef, error) {
	pos, err := p.expectKeyword("struct")
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	sd := &StructDef{Name: name, Pos: pos}
	for !p.atSymbol("}") {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		mname, mpos, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		sd.Members = append(sd.Members, MemberDecl{Type: t, Name: mname, Pos: mpos})
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return sd, nil
}

func (p *Parser) parseType() (TypeExpr, error) {
	pos := p.tok.Pos
	name := p.tok.Text
	if p.tok.Kind != TokKeyword && p.tok.Kind != TokIdent {
		return TypeExpr{}, p.errorf("expected type name, got %q", p.tok.Text)
	}
	if err := p.advance(); err != nil {
		return TypeExpr{}, err
	}
	te := TypeExpr{Name: name, Pos: pos}
	if p.atSymbol("[") {
		if err := p.advance(); err != nil {
			return TypeExpr{}, err
		}
		for {
			param, err := p.parseType()
			if err != nil {
				return TypeExpr{}, err
			}
			te.Params = append(te.Params, param)
			if p.atSymbol(",") {
				if err := p.advance(); err != nil {
					return TypeExpr{}, err
				}
				continue
			}
			break
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return TypeExpr{}, err
		}
	}
	if p.atSymbol("+") {
		te.Nonempty = true
		if err := p.advance(); err != nil {
			return TypeExpr{}, err
		}
	}
	if p.atSymbol("?") {
		te.Optional = true
		if err := p.advance(); err != nil {
			return TypeExpr{}, err
		}
	}
	return te, nil
}

func (p *Parser) parseDeclList(stopSym string) ([]Decl, error) {
	var decls []Decl
	for !p.atSymbol(stopSym) {
		d, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func (p *Parser) parseDecl() (Decl, error) {
	t, err := p.parseType()
	if err != nil {
		return Decl{}, err
	}
	name, pos, err := p.expectIdent()
	if err != nil {
		return Decl{}, err
	}
	d := Decl{Type: t, Name: name, Pos: pos}
	if p.atSymbol("=") {
		if err := p.advance(); err != nil {
			return Decl{}, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return Decl{}, err
		}
		d.Expr = e
	}
	return d, nil
}

func (p *Parser) parseTask() (*TaskDef, error) {
	pos, err := p.expectKeyword("task")
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	td := &TaskDef{Name: name, Pos: pos}
	for !p.atSymbol("}") {
		switch {
		case p.atKeyword("input"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			decls, err := p.parseDeclList("}")
			if err != nil {
				return nil, err
			}
			td.Inputs = append(td.Inputs, decls...)
			if _, err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.atKeyword("output"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			decls, err := p.parseDeclList("}")
			if err != nil {
				return nil, err
			}
			td.Outputs = append(td.Outputs, decls...)
			if _, err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.atKeyword("command"):
			parts, heredoc, err := p.parseCommand()
			if err != nil {
				return nil, err
			}
			td.Command = parts
			td.CommandHeredoc = heredoc
		case p.atKeyword("runtime"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			for !p.atSymbol("}") {
				rn, rpos, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				if _, err := p.expectSymbol(":"); err != nil {
					return nil, err
				}
				re, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				td.Runtime = append(td.Runtime, RuntimeAttr{Name: rn, Expr: re, Pos: rpos})
			}
			if _, err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.atKeyword("meta"):
			m, err := p.parseMetaBlock("meta")
			if err != nil {
				return nil, err
			}
			td.Meta = m
		case p.atKeyword("parameter_meta"):
			m, err := p.parseMetaBlock("parameter_meta")
			if err != nil {
				return nil, err
			}
			td.ParameterMeta = m
		default:
			// A bare (non-input/output) declaration inside the task body.
			d, err := p.parseDecl()
			if err != nil {
				return nil, err
			}
			td.Decls = append(td.Decls, d)
		}
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return td, nil
}

// parseCommand handles both `command { ... }` (draft-2 and later) and
// `command <<< ... >>>` (1.0+). Both forms accept `${}` and `~{}`
// placeholders; only the terminator differs (see ScanCommandBody).
func (p *Parser) parseCommand() ([]StringPart, bool, error) {
	if _, err := p.expectKeyword("command"); err != nil {
		return nil, false, err
	}
	heredoc := p.atSymbol("<<<")
	if !heredoc && !p.atSymbol("{") {
		return nil, false, p.errorf("expected %q or %q after command, got %q", "{", "<<<", p.tok.Text)
	}
	// The lexer's raw cursor is already positioned just past the opening
	// delimiter (Next() consumed it into p.tok): scan the raw command body
	// directly rather than tokenizing, so shell syntax isn't mistaken for
	// WDL tokens.
	parts, err := p.lex.ScanCommandBody(heredoc)
	if err != nil {
		return nil, false, err
	}
	if err := p.advance(); err != nil {
		return nil, false, err
	}
	return parts, heredoc, nil
}

func (p *Parser) parseMetaBlock(kw string) (map[string]any, error) {
	if _, err := p.expectKeyword(kw); err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	m := map[string]any{}
	for !p.atSymbol("}") {
		name, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		v, err := p.parseMetaValue()
		if err != nil {
			return nil, err
		}
		m[name] = v
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return m, nil
}

// parseMetaValue parses meta/parameter_meta's JSON-like value grammar
// (meta values are opaque JSON, not WDL expressions, per spec.md's
// meta/parameter_meta note — preserved verbatim, never evaluated).
func (p *Parser) parseMetaValue() (any, error) {
	switch {
	case p.atSymbol("{"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		m := map[string]any{}
		for !p.atSymbol("}") {
			name, _, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol(":"); err != nil {
				return nil, err
			}
			v, err := p.parseMetaValue()
			if err != nil {
				return nil, err
			}
			m[name] = v
			if p.atSymbol(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
		return m, nil
	case p.atSymbol("["):
		if err := p.advance(); err != nil {
			return nil, err
		}
		var arr []any
		for !p.atSymbol("]") {
			v, err := p.parseMetaValue()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
			if p.atSymbol(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		return arr, nil
	case p.tok.Kind == TokInt:
		n, _ := strconv.ParseInt(p.tok.Text, 10, 64)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case p.tok.Kind == TokFloat:
		f, _ := strconv.ParseFloat(p.tok.Text, 64)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return f, nil
	case p.atKeyword("true") || p.atKeyword("false"):
		b := p.tok.Text == "true"
		if err := p.advance(); err != nil {
			return nil, err
		}
		return b, nil
	case p.atKeyword("null"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		if p.tok.Kind != TokString {
			return nil, p.errorf("expected a meta value, got %q", p.tok.Text)
		}
		lit := flattenLiteral(p.tok.Parts)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return lit, nil
	}
}

func (p *Parser) parseWorkflow() (*WorkflowDef, error) {
	pos, err := p.expectKeyword("workflow")
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	wf := &WorkflowDef{Name: name, Pos: pos}
	for !p.atSymbol("}") {
		switch {
		case p.atKeyword("input"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			decls, err := p.parseDeclList("}")
			if err != nil {
				return nil, err
			}
			wf.Inputs = append(wf.Inputs, decls...)
			if _, err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.atKeyword("output"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			decls, err := p.parseDeclList("}")
			if err != nil {
				return nil, err
			}
			wf.Outputs = append(wf.Outputs, decls...)
			if _, err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.atKeyword("meta"):
			m, err := p.parseMetaBlock("meta")
			if err != nil {
				return nil, err
			}
			wf.Meta = m
		case p.atKeyword("parameter_meta"):
			m, err := p.parseMetaBlock("parameter_meta")
			if err != nil {
				return nil, err
			}
			wf.ParameterMeta = m
		case p.atKeyword("call"):
			c, err := p.parseCall()
			if err != nil {
				return nil, err
			}
			wf.Body = append(wf.Body, WorkflowElement{Call: c})
		case p.atKeyword("scatter"):
			s, err := p.parseScatter()
			if err != nil {
				return nil, err
			}
			wf.Body = append(wf.Body, WorkflowElement{Scatter: s})
		case p.atKeyword("if"):
			c, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			wf.Body = append(wf.Body, WorkflowElement{Conditional: c})
		default:
			d, err := p.parseDecl()
			if err != nil {
				return nil, err
			}
			wf.Body = append(wf.Body, WorkflowElement{Decl: &d})
		}
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	if p.draft2 {
		wf.AllowNestedInputs = true
	}
	return wf, nil
}

func (p *Parser) parseBlockBody() ([]WorkflowElement, error) {
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var body []WorkflowElement
	for !p.atSymbol("}") {
		switch {
		case p.atKeyword("call"):
			c, err := p.parseCall()
			if err != nil {
				return nil, err
			}
			body = append(body, WorkflowElement{Call: c})
		case p.atKeyword("scatter"):
			s, err := p.parseScatter()
			if err != nil {
				return nil, err
			}
			body = append(body, WorkflowElement{Scatter: s})
		case p.atKeyword("if"):
			c, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			body = append(body, WorkflowElement{Conditional: c})
		default:
			d, err := p.parseDecl()
			if err != nil {
				return nil, err
			}
			body = append(body, WorkflowElement{Decl: &d})
		}
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseCall() (*CallStmt, error) {
	pos, err := p.expectKeyword("call")
	if err != nil {
		return nil, err
	}
	target, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	for p.atSymbol(".") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		seg, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		target += "." + seg
	}
	c := &CallStmt{Target: target, Pos: pos}
	if p.atKeyword("as") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		alias, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		c.Alias = alias
	}
	if p.atSymbol("{") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.atKeyword("input") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol(":"); err != nil {
				return nil, err
			}
		}
		for !p.atSymbol("}") {
			iname, ipos, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			ci := CallInput{Name: iname, Pos: ipos}
			if p.atSymbol("=") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				ci.Expr = e
			}
			c.Inputs = append(c.Inputs, ci)
			if p.atSymbol(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseScatter() (*ScatterStmt, error) {
	pos, err := p.expectKeyword("scatter")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	v, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlockBody()
	if err != nil {
		return nil, err
	}
	return &ScatterStmt{Var: v, Expr: e, Body: body, Pos: pos}, nil
}

func (p *Parser) parseConditional() (*ConditionalStmt, error) {
	pos, err := p.expectKeyword("if")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlockBody()
	if err != nil {
		return nil, err
	}
	return &ConditionalStmt{Expr: e, Body: body, Pos: pos}, nil
}
