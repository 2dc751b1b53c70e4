package sticky

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput     Kind = "INVALID_INPUT"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindSendFailed       Kind = "SEND_FAILED"
	KindPersistFailed    Kind = "PERSIST_FAILED"
)

// Sentinels for errors.Is.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrSendFailed       = &Error{Kind: KindSendFailed}
	ErrPersistFailed    = &Error{Kind: KindPersistFailed}
)

// Error is returned by the user-initiated engine operations.
type Error struct {
	Kind      Kind
	Op        string
	ChannelID string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ChannelID != "" {
		msg += fmt.Sprintf(" (channel %s)", e.ChannelID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can compare against the
// sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, op, channelID string, cause error) error {
	return &Error{Kind: kind, Op: op, ChannelID: channelID, Err: cause}
}

// KindOf returns the kind of err, or "" when err is not a sticky error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
