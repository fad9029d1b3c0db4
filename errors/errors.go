// Package errors classifies Data Hub operation outcomes into the status
// vocabulary the query and push surfaces expose to callers, and separates
// that vocabulary from client-contract violations, which never surface as
// a status and instead terminate the offending session.
package errors

import (
	"errors"
	"fmt"
)

// Status is the outcome of a hub read or write operation.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusDuplicate
	StatusUnavailable
	StatusUnsupported
	StatusFormatError
	StatusOverflow
	StatusNoMemory
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusDuplicate:
		return "duplicate"
	case StatusUnavailable:
		return "unavailable"
	case StatusUnsupported:
		return "unsupported"
	case StatusFormatError:
		return "format_error"
	case StatusOverflow:
		return "overflow"
	case StatusNoMemory:
		return "no_memory"
	default:
		return "unknown"
	}
}

// Sentinel errors matching the status vocabulary. Use errors.Is to test for
// them; they survive wrapping via Wrap.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("resource already exists with a different type")
	ErrUnavailable  = errors.New("resource has no current value")
	ErrUnsupported  = errors.New("operation not supported for this resource")
	ErrFormatError  = errors.New("value is not of the requested type")
	ErrOverflow     = errors.New("numeric value overflows the requested representation")
	ErrNoMemory     = errors.New("resource limit reached")
	ErrClientKilled = errors.New("client session terminated for a contract violation")
)

var statusErrors = map[Status]error{
	StatusNotFound:    ErrNotFound,
	StatusDuplicate:   ErrDuplicate,
	StatusUnavailable: ErrUnavailable,
	StatusUnsupported: ErrUnsupported,
	StatusFormatError: ErrFormatError,
	StatusOverflow:    ErrOverflow,
	StatusNoMemory:    ErrNoMemory,
}

// Classify maps err to the Status a caller-facing query result should
// report. A nil err classifies as StatusOK; an error matching none of the
// sentinels classifies as StatusUnavailable, since query callers must
// receive some non-OK status rather than an opaque internal error.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	for status, sentinel := range statusErrors {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	return StatusUnavailable
}

// Wrap annotates err with the component, method, and action that produced
// it, preserving it for errors.Is/errors.As.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// ClientFault records a caller-contract violation: a push, handler
// registration, or default assignment that names a resource under a role
// it cannot legally target, or otherwise breaks the wire contract. A
// ClientFault is never returned to the offending client as a status — the
// collaborator bound to the hub is expected to call KillClient, and the
// caller sees ErrClientKilled instead.
type ClientFault struct {
	Component string
	Operation string
	Reason    string
}

func (f *ClientFault) Error() string {
	return fmt.Sprintf("%s.%s: client fault: %s", f.Component, f.Operation, f.Reason)
}

// Fault constructs a ClientFault describing a contract violation detected
// during component's operation.
func Fault(component, operation, reason string) *ClientFault {
	return &ClientFault{Component: component, Operation: operation, Reason: reason}
}
