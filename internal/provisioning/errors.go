package provisioning

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuthFailure      Kind = "auth_failure"
	KindTimeout          Kind = "timeout"
	KindUnexpectedLayout Kind = "unexpected_layout"
	KindUnknown          Kind = "unknown"
)

var (
	ErrNotFound      = errors.New("account not found in provider")
	errUsernameTaken = errors.New("username already exists in provider")
)

// Error is the only failure shape adapters return besides ErrNotFound.
type Error struct {
	Kind     Kind
	Op       string
	Username string
	// Artifact is the path of the diagnostic capture, when one was taken.
	Artifact string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provisioning %s %q: %s", e.Op, e.Username, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Artifact != "" {
		msg += " (artifact " + e.Artifact + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies any error returned by an adapter call.
func KindOf(err error) Kind {
	var perr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perr):
		return perr.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnknown
	}
}

// Wrap turns err into an *Error, keeping the kind of an existing one.
func Wrap(op, username string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Username: username, Err: err}
}
