package parser

import (
	"strconv"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// Expression grammar, lowest to highest precedence:
//
//	ternary   := or ("?" expr ":" expr)?
//	or        := and ("||" and)*
//	and       := eq ("&&" eq)*
//	eq        := rel (("=="|"!=") rel)*
//	rel       := add (("<"|"<="|">"|">=") add)*
//	add       := mul (("+"|"-") mul)*
//	mul       := unary (("*"|"/"|"%") unary)*
//	unary     := ("!"|"-"|"+") unary | postfix
//	postfix   := primary ("." ident | "[" expr "]")*
//	primary   := literal | ident | "(" expr ")" | array | map | pair | object | apply

func (p *Parser) parseExpr() (*Expr, error) { return p.parseTernary() }

// ParseExprFragment parses a raw expression fragment captured by the
// lexer's balanced-brace placeholder scan (parser.StringPart.Expr) outside
// of any enclosing string/command literal. internal/ast uses it to resolve
// a task's command-template placeholders (spec.md §4.J step 4) once their
// raw text has already been split out of the surrounding command body,
// the same sub-parser construction parseInterpolatedString uses inline for
// `~{}`/`${}` placeholders inside a quoted string.
func ParseExprFragment(raw string) (*Expr, error) {
	p := &Parser{lex: NewLexer("", raw)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseExpr()
}

func (p *Parser) parseTernary() (*Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.atSymbol("?") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprTernary, Pos: pos, Cond: cond, Then: then, Else: els}, nil
	}
	return cond, nil
}

func (p *Parser) parseBinaryLevel(next func() (*Expr, error), ops ...string) (*Expr, error) {
	lhs, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := ""
		for _, op := range ops {
			if p.atSymbol(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return lhs, nil
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := next()
		if err != nil {
			return nil, err
		}
		lhs = &Expr{Kind: ExprBinary, Pos: pos, BinOp: matched, LHS: lhs, RHS: rhs}
	}
}

func (p *Parser) parseOr() (*Expr, error)  { return p.parseBinaryLevel(p.parseAnd, "||") }
func (p *Parser) parseAnd() (*Expr, error) { return p.parseBinaryLevel(p.parseEq, "&&") }
func (p *Parser) parseEq() (*Expr, error)  { return p.parseBinaryLevel(p.parseRel, "==", "!=") }
func (p *Parser) parseRel() (*Expr, error) {
	return p.parseBinaryLevel(p.parseAdd, "<=", ">=", "<", ">")
}
func (p *Parser) parseAdd() (*Expr, error) { return p.parseBinaryLevel(p.parseMul, "+", "-") }
func (p *Parser) parseMul() (*Expr, error) { return p.parseBinaryLevel(p.parseUnary, "*", "/", "%") }

func (p *Parser) parseUnary() (*Expr, error) {
	if p.atSymbol("!") || p.atSymbol("-") || p.atSymbol("+") {
		op := p.tok.Text
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprUnary, Pos: pos, Op: op, Arg: arg}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (*Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atSymbol("."):
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, _, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			e = &Expr{Kind: ExprMember, Pos: pos, Object: e, Member: name}
		case p.atSymbol("["):
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			e = &Expr{Kind: ExprIndex, Pos: pos, Object: e, Index: idx}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (*Expr, error) {
	pos := p.tok.Pos
	switch {
	case p.tok.Kind == TokInt:
		n, err := strconv.ParseInt(p.tok.Text, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid Int literal %q", p.tok.Text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLiteral, LitKind: LitInt, IntV: n, Pos: pos}, nil

	case p.tok.Kind == TokFloat:
		f, err := strconv.ParseFloat(p.tok.Text, 64)
		if err != nil {
			return nil, p.errorf("invalid Float literal %q", p.tok.Text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLiteral, LitKind: LitFloat, FloatV: f, Pos: pos}, nil

	case p.atKeyword("true") || p.atKeyword("false"):
		b := p.tok.Text == "true"
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLiteral, LitKind: LitBool, BoolV: b, Pos: pos}, nil

	case p.atKeyword("null"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLiteral, LitKind: LitNull, Pos: pos}, nil

	case p.tok.Kind == TokString:
		return p.parseInterpolatedString()

	case p.atSymbol("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.atSymbol(",") {
			// Pair literal (left, right).
			if err := p.advance(); err != nil {
				return nil, err
			}
			second, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return &Expr{Kind: ExprPair, Pos: pos, Left: first, Right: second}, nil
		}
		if _, err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return first, nil

	case p.atSymbol("["):
		if err := p.advance(); err != nil {
			return nil, err
		}
		var elems []*Expr
		for !p.atSymbol("]") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.atSymbol(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprArray, Pos: pos, Elems: elems}, nil

	case p.atSymbol("{"):
		return p.parseMapOrObject(pos, "")

	case p.atKeyword("object"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("{"); err != nil {
			return nil, err
		}
		return p.parseObjectBody(pos, "")

	case p.tok.Kind == TokIdent:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.atSymbol("(") {
			return p.parseApply(name, pos)
		}
		if p.atSymbol("{") {
			// Struct literal: StructName { field: expr, ... }
			if err := p.advance(); err != nil {
				return nil, err
			}
			return p.parseObjectBody(pos, name)
		}
		return &Expr{Kind: ExprIdent, Pos: pos, Name: name}, nil

	default:
		return nil, p.errorf("unexpected token %q in expression", p.tok.Text)
	}
}

func (p *Parser) parseApply(name string, pos errs.Pos) (*Expr, error) {
	if _, err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var args []*Expr
	for !p.atSymbol(")") {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.atSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprApply, Pos: pos, FuncName: name, Args: args}, nil
}

func (p *Parser) parseMapOrObject(pos errs.Pos, structName string) (*Expr, error) {
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	if p.atSymbol("}") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprMap, Pos: pos}, nil
	}
	// A bare `{ key: value, ... }` literal is always parsed as a map
	// (ExprMap), and the typechecker types it as a Map. Object and struct
	// literals are recognized only by the `object` keyword or a struct name
	// before the brace (parseObjectBody).
	return p.parseMapBody(pos)
}

func (p *Parser) parseMapBody(pos errs.Pos) (*Expr, error) {
	var keys, vals []*Expr
	for !p.atSymbol("}") {
		k, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		vals = append(vals, v)
		if p.atSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprMap, Pos: pos, MapKeys: keys, MapVals: vals}, nil
}

func (p *Parser) parseObjectBody(pos errs.Pos, structName string) (*Expr, error) {
	var names []string
	var vals []*Expr
	for !p.atSymbol("}") {
		name, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		vals = append(vals, v)
		if p.atSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	kind := ExprObject
	if structName != "" {
		kind = ExprStructLiteral
	}
	return &Expr{Kind: kind, Pos: pos, FieldNames: names, FieldVals: vals, StructName: structName}, nil
}

// parseInterpolatedString bridges the already-lexed TokString's raw parts
// into Expr nodes, recursively parsing each placeholder's captured text as
// a full expression with its own sub-parser.
func (p *Parser) parseInterpolatedString() (*Expr, error) {
	tok := p.tok
	if err := p.advance(); err != nil {
		return nil, err
	}
	e := &Expr{Kind: ExprInterpolatedString, Pos: tok.Pos}
	for _, rp := range tok.Parts {
		if rp.Expr == "" {
			if rp.Literal != "" {
				e.Parts = append(e.Parts, InterpPart{Literal: rp.Literal})
			}
			continue
		}
		sub := &Parser{lex: NewLexer(p.lex.source, rp.Expr), draft2: p.draft2}
		if err := sub.advance(); err != nil {
			return nil, err
		}
		inner, err := sub.parseExpr()
		if err != nil {
			return nil, err
		}
		e.Parts = append(e.Parts, InterpPart{Expr: inner, Sep: rp.PlaceholderSep})
	}
	return e, nil
}
