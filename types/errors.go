package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies failures so callers can branch on them instead of string matching.
type Kind int

const (
	KindOther Kind = iota
	KindMalformedRecord
	KindIncompatibleVersion
	KindIOFailure
	KindConcurrentOperation
	KindEncoding
	KindNotFound
	KindAmbiguous
)

func (k Kind) String() string {
	return []string{"other", "malformed record", "incompatible version", "i/o failure",
		"concurrent operation", "encoding", "not found", "ambiguous"}[k]
}

// Sentinels for errors.Is.  Any *Error matches the sentinel of its kind.
var (
	ErrMalformedRecord     = &Error{Kind: KindMalformedRecord}
	ErrIncompatibleVersion = &Error{Kind: KindIncompatibleVersion}
	ErrIOFailure           = &Error{Kind: KindIOFailure}
	ErrConcurrentOperation = &Error{Kind: KindConcurrentOperation}
	ErrEncoding            = &Error{Kind: KindEncoding}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAmbiguous           = &Error{Kind: KindAmbiguous}
)

type Error struct {
	Kind   Kind
	Op     string
	Offset int // -1 when there is no meaningful position
	Err    error
}

func NewError(k Kind, op string, offset int, msg string) *Error {
	return &Error{Kind: k, Op: op, Offset: offset, Err: errors.New(msg)}
}

// WrapError attaches a kind to err.  A nil err stays nil.
func WrapError(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Offset: -1, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Offset >= 0 && e.Err != nil {
		msg += fmt.Sprintf(" at offset %v", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// KindOf digs the first *Error out of a chain.  Unclassified errors are KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}
