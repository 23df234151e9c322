// Package parser implements a hand-written lexer and recursive-descent
// parser for WDL source (draft-2, 1.0, 1.1, development), producing a raw
// syntax tree annotated with source positions. See spec.md §4.D.
package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-wdl/wdlrun/internal/errs"
)

type TokKind int

const (
	TokEOF TokKind = iota
	TokIdent
	TokInt
	TokFloat
	TokString       // whole quoted string; Parts holds its literal and placeholder segments
	TokStringPart   // literal text segment of an interpolated string
	TokPlaceholderStart // "${" or "~{"
	TokPlaceholderEnd   // "}"
	TokCommandStart     // "command {" or "command <<<"
	TokCommandEnd       // "}" or ">>>"
	TokCommandText      // raw command body segment (between placeholders)
	TokSymbol           // punctuation: ( ) [ ] { } , . : = + - * / % == != <= >= < > && || ! ? <<< >>>
	TokKeyword
)

// Token is one lexical unit with its exact source span. For TokString,
// Parts carries the decomposed literal/placeholder segments (see
// ScanQuotedInterpolated); Text is unused for that kind.
type Token struct {
	Kind  TokKind
	Text  string
	Parts []StringPart
	Pos   errs.Pos
}

var keywords = map[string]bool{
	"version": true, "import": true, "as": true, "alias": true,
	"workflow": true, "task": true, "struct": true, "call": true,
	"if": true, "then": true, "else": true, "scatter": true, "in": true,
	"input": true, "output": true, "command": true, "runtime": true,
	"meta": true, "parameter_meta": true, "String": true, "Int": true,
	"Float": true, "Boolean": true, "File": true, "Directory": true,
	"Array": true, "Map": true, "Pair": true, "Object": true,
	"true": true, "false": true, "null": true, "object": true,
}

// Lexer tokenizes WDL source text. Command blocks and interpolated strings
// need lexer-mode switches (raw text vs. expression), so the lexer exposes
// mode-aware scanning methods instead of a single flat token stream.
type Lexer struct {
	src    string
	source string // filename/URI for Pos
	pos    int    // byte offset
	line   int
	col    int
}

func NewLexer(source, src string) *Lexer {
	return &Lexer{src: src, source: source, line: 1, col: 1}
}

func (l *Lexer) here() errs.Pos {
	return errs.Pos{Source: l.source, Line: l.line, Column: l.col}
}

func (l *Lexer) eof() bool { return l.pos >= len(l.src) }

func (l *Lexer) peekByte() byte {
	if l.eof() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) skipTrivia() {
	for !l.eof() {
		b := l.peekByte()
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			l.advance()
			continue
		}
		if b == '#' {
			for !l.eof() && l.peekByte() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

// Next scans the next token in normal expression mode.
func (l *Lexer) Next() (Token, error) {
	l.skipTrivia()
	start := l.here()
	if l.eof() {
		return Token{Kind: TokEOF, Pos: start}, nil
	}
	b := l.peekByte()

	switch {
	case isIdentStart(b):
		return l.scanIdentOrKeyword(start), nil
	case isDigit(b):
		return l.scanNumber(start)
	case b == '"' || b == '\'':
		if l.peekAt(1) == b && l.peekAt(2) == b {
			parts, pos, err := l.ScanTripleQuotedInterpolated()
			if err != nil {
				return Token{}, err
			}
			return Token{Kind: TokString, Parts: parts, Pos: pos}, nil
		}
		parts, pos, err := l.ScanQuotedInterpolated()
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: TokString, Parts: parts, Pos: pos}, nil
	}

	// Multi-char symbols first.
	if l.match("<<<") {
		return Token{Kind: TokSymbol, Text: "<<<", Pos: start}, nil
	}
	if l.match(">>>") {
		return Token{Kind: TokSymbol, Text: ">>>", Pos: start}, nil
	}
	for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "${", "~{"} {
		if l.match(op) {
			kind := TokSymbol
			if op == "${" || op == "~{" {
				kind = TokPlaceholderStart
			}
			return Token{Kind: kind, Text: op, Pos: start}, nil
		}
	}

	single := "(){}[],.:=+-*/%<>!?"
	if strings.IndexByte(single, b) >= 0 {
		l.advance()
		return Token{Kind: TokSymbol, Text: string(b), Pos: start}, nil
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	return Token{}, errs.New(errs.KindLexical, start, "unexpected character %q", r)
}

func (l *Lexer) match(lit string) bool {
	if strings.HasPrefix(l.src[l.pos:], lit) {
		for range lit {
			l.advance()
		}
		return true
	}
	return false
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isIdentCont(b byte) bool { return isIdentStart(b) || isDigit(b) }
func isDigit(b byte) bool     { return b >= '0' && b <= '9' }

func (l *Lexer) scanIdentOrKeyword(start errs.Pos) Token {
	s := l.pos
	for !l.eof() && isIdentCont(l.peekByte()) {
		l.advance()
	}
	text := l.src[s:l.pos]
	kind := TokIdent
	if keywords[text] {
		kind = TokKeyword
	}
	return Token{Kind: kind, Text: text, Pos: start}
}

func (l *Lexer) scanNumber(start errs.Pos) (Token, error) {
	s := l.pos
	for !l.eof() && isDigit(l.peekByte()) {
		l.advance()
	}
	isFloat := false
	if l.peekByte() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		for !l.eof() && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		save := l.pos
		l.advance()
		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.advance()
		}
		if isDigit(l.peekByte()) {
			isFloat = true
			for !l.eof() && isDigit(l.peekByte()) {
				l.advance()
			}
		} else {
			l.pos = save
		}
	}
	text := l.src[s:l.pos]
	kind := TokInt
	if isFloat {
		kind = TokFloat
	}
	return Token{Kind: kind, Text: text, Pos: start}, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '\\':
		return '\\'
	case '\'':
		return '\''
	case '"':
		return '"'
	default:
		return c
	}
}

// Save/Restore let the parser backtrack the lexer for small lookaheads
// (e.g. distinguishing `Array[Int]` type syntax from an index expression).
type State struct {
	pos, line, col int
}

func (l *Lexer) Save() State      { return State{l.pos, l.line, l.col} }
func (l *Lexer) Restore(s State)  { l.pos, l.line, l.col = s.pos, s.line, s.col }

func (l *Lexer) Pos() errs.Pos { return l.here() }

func (l *Lexer) Rest() string { return l.src[l.pos:] }

// fmtPos is a helper for error messages embedding a Pos.
func fmtPos(p errs.Pos) string { return fmt.Sprintf("%s", p) }

// StringPart is one segment of an interpolated string or command block: a
// literal run of text, or a nested expression bounded by a placeholder.
type StringPart struct {
	Literal    string // valid when Expr == ""
	Expr       string // raw, unparsed expression source; "" + Literal!="" means literal
	PlaceholderSep string // "${" or "~{", recorded for draft-2 compatibility checks
	Pos        errs.Pos
}

// ScanQuotedInterpolated scans a full `"..."`/`'...'` string literal
// starting at the opening quote, splitting it into literal/placeholder
// parts. Placeholders are balanced-brace scanned (nesting counted) so a
// `{` inside a nested map/object literal inside a placeholder doesn't
// terminate early.
func (l *Lexer) ScanQuotedInterpolated() ([]StringPart, errs.Pos, error) {
	start := l.here()
	if l.eof() || (l.peekByte() != '"' && l.peekByte() != '\'') {
		return nil, start, errs.New(errs.KindLexical, start, "expected string literal")
	}
	quote := l.advance()
	var parts []StringPart
	var lit strings.Builder
	litStart := l.here()
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, StringPart{Literal: lit.String(), Pos: litStart})
			lit.Reset()
		}
	}
	for {
		if l.eof() {
			return nil, start, errs.New(errs.KindLexical, start, "unterminated string literal")
		}
		b := l.peekByte()
		if b == quote {
			l.advance()
			break
		}
		if b == '\\' {
			l.advance()
			if l.eof() {
				return nil, start, errs.New(errs.KindLexical, start, "unterminated escape in string")
			}
			lit.WriteByte(unescape(l.advance()))
			continue
		}
		if (b == '$' || b == '~') && l.peekAt(1) == '{' {
			sep := string(l.advance()) + string(l.advance())
			flush()
			exprStart := l.here()
			expr, err := l.scanBalancedBraceBody()
			if err != nil {
				return nil, start, err
			}
			parts = append(parts, StringPart{Expr: expr, PlaceholderSep: sep, Pos: exprStart})
			litStart = l.here()
			continue
		}
		lit.WriteByte(l.advance())
	}
	flush()
	return parts, start, nil
}

// ScanTripleQuotedInterpolated scans a `"""..."""`/`'''...'''` multi-line
// string literal (WDL 1.1, spec.md §4.D) starting at the opening
// triple-delimiter. A `\<newline>` is a line continuation: the newline and
// the next line's leading horizontal whitespace are dropped rather than
// kept in the literal; other backslash escapes use the same table as
// ordinary quoted strings. Once scanned, the parts have their common
// leading-whitespace prefix (over non-empty lines) stripped, per
// stripCommonIndent.
func (l *Lexer) ScanTripleQuotedInterpolated() ([]StringPart, errs.Pos, error) {
	start := l.here()
	quote := l.peekByte()
	if l.eof() || (quote != '"' && quote != '\'') || l.peekAt(1) != quote || l.peekAt(2) != quote {
		return nil, start, errs.New(errs.KindLexical, start, "expected multi-line string literal")
	}
	l.advance()
	l.advance()
	l.advance()

	var parts []StringPart
	var lit strings.Builder
	litStart := l.here()
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, StringPart{Literal: lit.String(), Pos: litStart})
			lit.Reset()
		}
	}
	for {
		if l.eof() {
			return nil, start, errs.New(errs.KindLexical, start, "unterminated multi-line string literal")
		}
		if l.peekByte() == quote && l.peekAt(1) == quote && l.peekAt(2) == quote {
			l.advance()
			l.advance()
			l.advance()
			break
		}
		b := l.peekByte()
		if b == '\\' && l.peekAt(1) == '\n' {
			l.advance() // backslash
			l.advance() // newline
			for !l.eof() && (l.peekByte() == ' ' || l.peekByte() == '\t') {
				l.advance()
			}
			continue
		}
		if b == '\\' {
			l.advance()
			if l.eof() {
				return nil, start, errs.New(errs.KindLexical, start, "unterminated escape in string")
			}
			lit.WriteByte(unescape(l.advance()))
			continue
		}
		if (b == '$' || b == '~') && l.peekAt(1) == '{' {
			sep := string(l.advance()) + string(l.advance())
			flush()
			exprStart := l.here()
			expr, err := l.scanBalancedBraceBody()
			if err != nil {
				return nil, start, err
			}
			parts = append(parts, StringPart{Expr: expr, PlaceholderSep: sep, Pos: exprStart})
			litStart = l.here()
			continue
		}
		lit.WriteByte(l.advance())
	}
	flush()
	stripCommonIndent(parts)
	return parts, start, nil
}

// stripCommonIndent applies spec.md §4.D's un-indent rule in place: find the
// longest run of leading spaces/tabs common to every non-empty line (a
// placeholder counts as content, ending the leading-whitespace run without
// adding to it), then remove up to that many leading whitespace bytes from
// the start of every line, blank or not.
func stripCommonIndent(parts []StringPart) {
	common := -1
	leading := 0
	inLeadingRun := true
	sawContent := false

	finishLine := func() {
		if sawContent && (common == -1 || leading < common) {
			common = leading
		}
		leading, inLeadingRun, sawContent = 0, true, false
	}

	for _, p := range parts {
		if p.PlaceholderSep != "" {
			inLeadingRun = false
			sawContent = true
			continue
		}
		for i := 0; i < len(p.Literal); i++ {
			switch ch := p.Literal[i]; {
			case ch == '\n':
				finishLine()
			case inLeadingRun && (ch == ' ' || ch == '\t'):
				leading++
			default:
				inLeadingRun = false
				sawContent = true
			}
		}
	}
	finishLine()

	if common <= 0 {
		return
	}

	atLineStart := true
	stripped := 0
	for i := range parts {
		p := &parts[i]
		if p.PlaceholderSep != "" {
			atLineStart = false
			continue
		}
		var out strings.Builder
		for j := 0; j < len(p.Literal); j++ {
			ch := p.Literal[j]
			if ch == '\n' {
				out.WriteByte(ch)
				atLineStart, stripped = true, 0
				continue
			}
			if atLineStart && stripped < common && (ch == ' ' || ch == '\t') {
				stripped++
				continue
			}
			atLineStart = false
			out.WriteByte(ch)
		}
		p.Literal = out.String()
	}
}

// scanBalancedBraceBody consumes up to (and including) the matching `}` for
// a placeholder whose opening `${`/`~{` has already been consumed, returning
// the raw text between them (braces, strings and nested placeholders inside
// are balanced so they don't terminate the scan early).
func (l *Lexer) scanBalancedBraceBody() (string, error) {
	start := l.pos
	depth := 1
	for {
		if l.eof() {
			return "", errs.New(errs.KindLexical, l.here(), "unterminated placeholder")
		}
		b := l.peekByte()
		switch b {
		case '{':
			depth++
			l.advance()
		case '}':
			depth--
			if depth == 0 {
				text := l.src[start:l.pos]
				l.advance()
				return text, nil
			}
			l.advance()
		case '"', '\'':
			quote := l.advance()
			for !l.eof() && l.peekByte() != quote {
				if l.peekByte() == '\\' {
					l.advance()
				}
				if l.eof() {
					break
				}
				l.advance()
			}
			if !l.eof() {
				l.advance()
			}
		default:
			l.advance()
		}
	}
}

// ScanCommandBody consumes a command block body. heredoc selects `<<< >>>`
// vs `command { }` delimiter semantics (only the terminator differs; both
// forms support `${}`/`~{}` placeholders with the same balanced scan).
func (l *Lexer) ScanCommandBody(heredoc bool) ([]StringPart, error) {
	var parts []StringPart
	var lit strings.Builder
	litStart := l.here()
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, StringPart{Literal: lit.String(), Pos: litStart})
			lit.Reset()
		}
	}
	closer := "}"
	if heredoc {
		closer = ">>>"
	}
	for {
		if l.eof() {
			return nil, errs.New(errs.KindLexical, l.here(), "unterminated command block")
		}
		if strings.HasPrefix(l.Rest(), closer) {
			for range closer {
				l.advance()
			}
			break
		}
		b := l.peekByte()
		if (b == '$' || b == '~') && l.peekAt(1) == '{' {
			sep := string(l.advance()) + string(l.advance())
			flush()
			exprStart := l.here()
			expr, err := l.scanBalancedBraceBody()
			if err != nil {
				return nil, err
			}
			parts = append(parts, StringPart{Expr: expr, PlaceholderSep: sep, Pos: exprStart})
			litStart = l.here()
			continue
		}
		lit.WriteByte(l.advance())
	}
	flush()
	return parts, nil
}
