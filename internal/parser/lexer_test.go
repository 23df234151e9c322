package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func scanOneString(t *testing.T, src string) []StringPart {
	t.Helper()
	l := NewLexer("test.wdl", src)
	tok, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, TokString, tok.Kind)
	return tok.Parts
}

func flatten(parts []StringPart) string {
	var out string
	for _, p := range parts {
		if p.PlaceholderSep == "" {
			out += p.Literal
		} else {
			out += "~{" + p.Expr + "}"
		}
	}
	return out
}

func TestSimpleQuotedStringUnaffectedByTripleQuoteChanges(t *testing.T) {
	parts := scanOneString(t, `"hello ~{name}!"`)
	require.Equal(t, `hello ~{name}!`, flatten(parts))
}

func TestTripleQuotedStringStripsCommonIndent(t *testing.T) {
	src := "\"\"\"\n    first\n      second\n    third\n    \"\"\""
	parts := scanOneString(t, src)
	require.Equal(t, "\nfirst\n  second\nthird\n", flatten(parts))
}

func TestTripleQuotedStringWithSinglesQuotesDelimiter(t *testing.T) {
	src := "'''\n  a\n  b\n'''"
	parts := scanOneString(t, src)
	require.Equal(t, "\na\nb\n", flatten(parts))
}

func TestTripleQuotedStringHonorsLineContinuation(t *testing.T) {
	src := "\"\"\"\n  one \\\n    two\n\"\"\""
	parts := scanOneString(t, src)
	require.Equal(t, "\none two\n", flatten(parts))
}

func TestTripleQuotedStringWithPlaceholderCountsAsContent(t *testing.T) {
	src := "\"\"\"\n  prefix ~{x} suffix\n  plain\n\"\"\""
	parts := scanOneString(t, src)
	require.Equal(t, "\nprefix ~{x} suffix\nplain\n", flatten(parts))
}

func TestTripleQuotedStringBlankLinesDoNotAffectCommonIndent(t *testing.T) {
	src := "\"\"\"\n    a\n\n    b\n    \"\"\""
	parts := scanOneString(t, src)
	require.Equal(t, "\na\n\nb\n", flatten(parts))
}

func TestTripleQuotedStringNoCommonIndentLeavesTextUnchanged(t *testing.T) {
	src := "\"\"\"\na\n  b\n\"\"\""
	parts := scanOneString(t, src)
	require.Equal(t, "\na\n  b\n", flatten(parts))
}

func TestTripleQuotedStringUnterminatedIsLexicalError(t *testing.T) {
	l := NewLexer("test.wdl", `"""unterminated`)
	_, err := l.Next()
	require.Error(t, err)
}
