package tsclient

import (
	"errors"
	"fmt"

	"github.com/m-lab/tstorage-client/buffer"
	"github.com/m-lab/tstorage-client/iostream"
)

// ErrorKind identifies which arm of the public error taxonomy (spec.md
// §7) an *Error belongs to. The zero value, KindOK, never appears on a
// returned error — it exists so a default ErrorKind is visibly "no
// error" rather than some arbitrary first kind.
type ErrorKind int

const (
	KindOK ErrorKind = iota
	KindInvalid
	KindLimitExceeded
	KindResourceExhaustion
	KindReceiveError
	KindSendError
	KindUnexpected
	KindServerStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindInvalid:
		return "invalid"
	case KindLimitExceeded:
		return "limit-exceeded"
	case KindResourceExhaustion:
		return "resource-exhaustion"
	case KindReceiveError:
		return "receive-error"
	case KindSendError:
		return "send-error"
	case KindUnexpected:
		return "unexpected"
	case KindServerStatus:
		return "server-status"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is against a *Error's Kind, independent of Cause
// or ServerCode.
var (
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrLimitExceeded      = &Error{Kind: KindLimitExceeded}
	ErrResourceExhaustion = &Error{Kind: KindResourceExhaustion}
	ErrReceive            = &Error{Kind: KindReceiveError}
	ErrSendFailed         = &Error{Kind: KindSendError}
	ErrUnexpected         = &Error{Kind: KindUnexpected}
)

// Error is the public error type returned by every Channel operation
// that can fail. Kind is always set; Cause carries the underlying
// component error (if any); ServerCode is meaningful only when
// Kind == KindServerStatus.
type Error struct {
	Kind       ErrorKind
	Cause      error
	ServerCode int32
}

func (e *Error) Error() string {
	if e.Kind == KindServerStatus {
		return fmt.Sprintf("tsclient: server-status(%d)", e.ServerCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("tsclient: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("tsclient: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports equality by Kind alone, so errors.Is(err, tsclient.ErrInvalid)
// matches any *Error{Kind: KindInvalid} regardless of Cause or ServerCode.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// ServerStatus constructs the error the channel surfaces when a response
// header's result field is non-zero.
func ServerStatus(code int32) *Error {
	return &Error{Kind: KindServerStatus, ServerCode: code}
}

// classify maps a component-level error (from buffer, iostream, or a
// decode failure) onto the public taxonomy. The ChannelStateMachine is
// the sole place this happens, per spec.md §7's propagation policy.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, buffer.ErrLimitExceeded):
		return newError(KindLimitExceeded, err)
	case errors.Is(err, buffer.ErrResourceExhaustion):
		return newError(KindResourceExhaustion, err)
	case errors.Is(err, iostream.ErrReceive):
		return newError(KindReceiveError, err)
	case errors.Is(err, iostream.ErrSendFailed):
		return newError(KindSendError, err)
	default:
		return newError(KindUnexpected, err)
	}
}
