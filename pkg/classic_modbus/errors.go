package classic_modbus

import (
	"errors"
	"fmt"
)

// Cycle status codes reported for each protocol stage.
const (
	STATUS_OK        = 0
	STATUS_CONNECT   = 1
	STATUS_TRANSPORT = 2
	STATUS_HEADER    = 3
	STATUS_MISMATCH  = 4
	STATUS_BODY      = 5
)

var (
	ErrHostUnreachable  = errors.New("host unreachable")
	ErrConnectFailed    = errors.New("socket connect failed")
	ErrInvalidRequest   = errors.New("invalid read request")
	ErrTransport        = errors.New("request write failed")
	ErrHeaderRead       = errors.New("response header read failed")
	ErrResponseMismatch = errors.New("response mismatch")
	ErrBodyRead         = errors.New("response body read failed")
)

var kindStatus = map[error]int{
	ErrHostUnreachable:  STATUS_CONNECT,
	ErrConnectFailed:    STATUS_CONNECT,
	ErrInvalidRequest:   STATUS_TRANSPORT,
	ErrTransport:        STATUS_TRANSPORT,
	ErrHeaderRead:       STATUS_HEADER,
	ErrResponseMismatch: STATUS_MISMATCH,
	ErrBodyRead:         STATUS_BODY,
}

// ProtocolError reports the stage of the exchange that failed.
type ProtocolError struct {
	Kind   error
	Status int
	Err    error
}

func newProtocolError(kind error, err error) *ProtocolError {
	status, ok := kindStatus[kind]
	if !ok {
		status = STATUS_CONNECT
	}
	return &ProtocolError{Kind: kind, Status: status, Err: err}
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Err)
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusOf maps an error returned by the session to a cycle status code.
// Errors that do not come from the session report STATUS_CONNECT.
func StatusOf(err error) int {
	if err == nil {
		return STATUS_OK
	}
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Status
	}
	return STATUS_CONNECT
}
