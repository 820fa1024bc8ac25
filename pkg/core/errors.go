package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so that every surface (HTTP, CLI) can map it to
// the right response without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidQuery
	KindIndexUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidQuery:
		return "invalid_query"
	case KindIndexUnavailable:
		return "index_unavailable"
	default:
		return "internal"
	}
}

// Sentinels usable with errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrIndexUnavailable = errors.New("index unavailable")
	ErrInternal         = errors.New("internal error")
)

// Error carries the failure kind, the operation that failed and an optional
// underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidQuery:
		return e.Kind == KindInvalidQuery
	case ErrIndexUnavailable:
		return e.Kind == KindIndexUnavailable
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

// Message returns the human readable part of the error without the operation
// prefix.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func InvalidQuery(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidQuery, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func IndexUnavailable(op, format string, args ...any) error {
	return &Error{Kind: KindIndexUnavailable, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. A nil err yields nil.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf reports the kind of err. Errors that carry no kind are internal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// MessageOf returns the user facing message of err.
func MessageOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message()
	}
	return err.Error()
}
