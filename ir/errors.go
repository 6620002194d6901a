package ir

import (
	"fmt"
	"strings"
)

// ErrorKind classifies construction and verification failures.
type ErrorKind int

const (
	DuplicateDefinition ErrorKind = iota + 1
	DuplicateLabel
	TypeMismatch
	ArityMismatch
	BlockAlreadyTerminated
	MissingTerminator
	DominanceViolation
	UnresolvedCallee
	NoInsertPoint
	InvalidHandle
	ModuleFrozen
	TargetAlreadySet
)

var errorKindNames = map[ErrorKind]string{
	DuplicateDefinition:    "duplicate definition",
	DuplicateLabel:         "duplicate label",
	TypeMismatch:           "type mismatch",
	ArityMismatch:          "arity mismatch",
	BlockAlreadyTerminated: "block already terminated",
	MissingTerminator:      "missing terminator",
	DominanceViolation:     "dominance violation",
	UnresolvedCallee:       "unresolved callee",
	NoInsertPoint:          "no insert point",
	InvalidHandle:          "invalid handle",
	ModuleFrozen:           "module frozen",
	TargetAlreadySet:       "target already set",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is a construction or verification failure. Func and Block locate the
// failure when known.
type Error struct {
	Kind  ErrorKind
	Func  string
	Block string
	Msg   string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("ir: ")
	sb.WriteString(e.Kind.String())
	if e.Func != "" {
		fmt.Fprintf(&sb, " in function %q", e.Func)
	}
	if e.Block != "" {
		fmt.Fprintf(&sb, " block %q", e.Block)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	return sb.String()
}

// Is matches any *Error of the same kind, so the Err* sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrDuplicateDefinition    = &Error{Kind: DuplicateDefinition}
	ErrDuplicateLabel         = &Error{Kind: DuplicateLabel}
	ErrTypeMismatch           = &Error{Kind: TypeMismatch}
	ErrArityMismatch          = &Error{Kind: ArityMismatch}
	ErrBlockAlreadyTerminated = &Error{Kind: BlockAlreadyTerminated}
	ErrMissingTerminator      = &Error{Kind: MissingTerminator}
	ErrDominanceViolation     = &Error{Kind: DominanceViolation}
	ErrUnresolvedCallee       = &Error{Kind: UnresolvedCallee}
	ErrNoInsertPoint          = &Error{Kind: NoInsertPoint}
	ErrInvalidHandle          = &Error{Kind: InvalidHandle}
	ErrModuleFrozen           = &Error{Kind: ModuleFrozen}
	ErrTargetAlreadySet       = &Error{Kind: TargetAlreadySet}
)

func newError(kind ErrorKind, f *Function, b *Block, format string, args ...interface{}) *Error {
	e := &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
	if f != nil {
		e.Func = f.name
	}
	if b != nil {
		e.Block = b.label
	}
	return e
}
