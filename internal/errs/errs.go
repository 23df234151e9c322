// Package errs defines the stable error taxonomy shared by every subsystem.
package errs

import "fmt"

// Kind is a stable error classification, independent of message text.
type Kind string

const (
	KindSyntax        Kind = "SyntaxError"
	KindLexical       Kind = "LexicalError"
	KindImport        Kind = "ImportError"
	KindType          Kind = "TypeError"
	KindInput         Kind = "InputError"
	KindEval          Kind = "EvalError"
	KindFilesystem    Kind = "FilesystemError"
	KindTaskFailure   Kind = "TaskFailure"
	KindInterrupted   Kind = "Interrupted"
	KindConfiguration Kind = "ConfigurationError"
)

// TypeVariant narrows KindType per spec.md §7.
type TypeVariant string

const (
	StaticTypeMismatch TypeVariant = "StaticTypeMismatch"
	NoSuchFunction     TypeVariant = "NoSuchFunction"
	NoSuchMember       TypeVariant = "NoSuchMember"
	IncompatibleOperand TypeVariant = "IncompatibleOperand"
	NameCollision      TypeVariant = "NameCollision"
	ForwardReference   TypeVariant = "ForwardReference"
	QuantityCoercion   TypeVariant = "QuantityCoercion"
)

// Pos is a source position, carried on every parse/type error.
type Pos struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	EndLine   int `json:"end_line,omitempty"`
	EndColumn int `json:"end_column,omitempty"`
}

func (p Pos) String() string {
	if p.Source == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.Source, p.Line, p.Column)
}

// Error is the shared error envelope. It is comparable by Kind via errors.Is
// (through Is) and carries an optional Pos and cause.
type Error struct {
	Kind    Kind
	Variant TypeVariant
	Pos     Pos
	Message string
	Cause   error
	// ExitCode is the underlying container's exit status, set only on a
	// KindTaskFailure produced by a non-zero/excluded return code (spec.md
	// §6.1 "the task exit code on task failure"); zero otherwise.
	ExitCode int
}

func (e *Error) Error() string {
	if e.Pos.Line != 0 {
		if e.Variant != "" {
			return fmt.Sprintf("%s(%s) at %s: %s", e.Kind, e.Variant, e.Pos, e.Message)
		}
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Message)
	}
	if e.Variant != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Variant, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &Error{Kind: KindTaskFailure}) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Variant != "" && t.Variant != e.Variant {
		return false
	}
	return true
}

func New(kind Kind, pos Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Typef(variant TypeVariant, pos Pos, format string, args ...any) *Error {
	return &Error{Kind: KindType, Variant: variant, Pos: pos, Message: fmt.Sprintf(format, args...)}
}
