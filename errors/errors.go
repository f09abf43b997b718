package errors

import (
	stderrors "errors"

	perrors "github.com/pingcap/errors"
)

const (
	ErrCodePanic                 = 1000
	ErrCodeUnresumableCheckpoint = 2000
	ErrCodeStreamUnavailable     = 3000
)

// ObserverError carries a stable code so callers can tell the fatal
// construction-time failures apart from transient stream failures after
// the error has been wrapped by Trace/Annotate.
type ObserverError struct {
	Code uint16
	error
}

func NewObserverError(code uint16, err error) error {
	return &ObserverError{
		Code:  code,
		error: err,
	}
}

func NewObserverErrorMessage(code uint16, message string) error {
	return &ObserverError{
		Code:  code,
		error: perrors.New(message),
	}
}

var (
	// ErrUnresumableCheckpoint: the requested starting position no longer
	// exists in the oplog. Fatal, never retried internally; the caller
	// needs a full resync.
	ErrUnresumableCheckpoint = NewObserverErrorMessage(ErrCodeUnresumableCheckpoint, "starting checkpoint no longer present in oplog")

	// ErrStreamUnavailable: the source is temporarily unreachable. The
	// observer performs no automatic reconnection; restart from the last
	// dispatched checkpoint.
	ErrStreamUnavailable = NewObserverErrorMessage(ErrCodeStreamUnavailable, "oplog stream unavailable")
)

func code(err error) (uint16, bool) {
	var oe *ObserverError
	if stderrors.As(Cause(err), &oe) {
		return oe.Code, true
	}
	return 0, false
}

func IsUnresumableCheckpoint(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeUnresumableCheckpoint
}

func IsStreamUnavailable(err error) bool {
	c, ok := code(err)
	return ok && c == ErrCodeStreamUnavailable
}
