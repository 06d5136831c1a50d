package codegen

import (
	"fmt"

	"github.com/xplshn/glisp/pkg/token"
)

// ErrorKind classifies lowering failures.
type ErrorKind int

const (
	// ErrUnresolved is an identifier with no binding in scope.
	ErrUnresolved ErrorKind = iota
	// ErrUnsupported is a construct no lowering rule matches.
	ErrUnsupported
	// ErrArity is a call whose argument count differs from the definition.
	ErrArity
	// ErrDuplicate is a function or parameter name defined twice.
	ErrDuplicate
)

var errorKindNames = [...]string{
	ErrUnresolved:  "unresolved identifier",
	ErrUnsupported: "unsupported construct",
	ErrArity:       "arity mismatch",
	ErrDuplicate:   "duplicate definition",
}

func (k ErrorKind) String() string { return errorKindNames[k] }

// Error is a code generation failure anchored at a source token.
type Error struct {
	Kind ErrorKind
	Tok  token.Token
	Msg  string
}

func errorf(kind ErrorKind, tok token.Token, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Tok.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%d:%d: %s: %s", e.Tok.Line, e.Tok.Column, e.Kind, e.Msg)
}

func (e *Error) Token() token.Token { return e.Tok }

// Message is the text shown next to the caret line.
func (e *Error) Message() string { return e.Kind.String() + ": " + e.Msg }

// Is lets errors.Is match on kind alone: errors.Is(err, &Error{Kind: ErrArity}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}
