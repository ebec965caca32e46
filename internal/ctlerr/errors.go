// Package ctlerr defines the error kinds that cross component boundaries in onionctl.
//
// Every failure coming back from the tunnel daemon, the filesystem or a conflicting
// operation is converted into one of four kinds before it leaves the component that
// observed it:
//
//   - StorageError: the bridge configuration could not be read or written
//   - TunnelError: the tunnel daemon rejected or failed a start/stop/list/close request
//   - BusyError: a conflicting operation is already in flight
//   - ValidationError: user input was rejected before anything was persisted
//
// Callers use errors.As or the Is* helpers to branch on the kind.
package ctlerr

import (
	"errors"
	"fmt"
)

// StorageError reports a corrupt or unwritable bridge configuration.
type StorageError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("bridge config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TunnelError reports a failure from the tunnel daemon. Reason is surfaced verbatim.
type TunnelError struct {
	Op     string // "start", "stop", "list", "close", "refresh"
	Reason string
	Err    error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("tunnel %s failed: %s", e.Op, e.Reason)
}

func (e *TunnelError) Unwrap() error { return e.Err }

// NewTunnelError wraps err, using its message as the reason.
func NewTunnelError(op string, err error) *TunnelError {
	var te *TunnelError
	if errors.As(err, &te) {
		return &TunnelError{Op: op, Reason: te.Reason, Err: err}
	}
	return &TunnelError{Op: op, Reason: err.Error(), Err: err}
}

// BusyError reports that a conflicting operation is already running. It is never retried
// automatically.
type BusyError struct {
	Op string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s already in progress, try again", e.Op)
}

// ValidationError reports rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsStorage(err error) bool {
	var e *StorageError
	return errors.As(err, &e)
}

func IsTunnel(err error) bool {
	var e *TunnelError
	return errors.As(err, &e)
}

func IsBusy(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}
