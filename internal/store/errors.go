package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type OperationErrorCode string

const (
	OpErrValidation OperationErrorCode = "validation_failed"
	OpErrEncode     OperationErrorCode = "encode_failed"
	OpErrDecode     OperationErrorCode = "decode_failed"
	OpErrTransport  OperationErrorCode = "transport_failed"
	OpErrTimeout    OperationErrorCode = "timeout"
	OpErrStatus     OperationErrorCode = "bad_status"
	OpErrRejected   OperationErrorCode = "rejected"
)

// OperationError — сбой запроса к бэкенду
type OperationError struct {
	Backend    string
	Op         string
	Code       OperationErrorCode
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("%s %s failed (code=%s status=%d): %s", e.Backend, e.Op, e.Code, e.StatusCode, msg)
}

func (e *OperationError) Unwrap() error { return e.Cause }

func opErr(backend, op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Backend: backend, Op: op, Code: code, Message: msg, Cause: cause}
}

func statusErr(backend, op string, status int, body []byte) error {
	return &OperationError{
		Backend:    backend,
		Op:         op,
		Code:       OpErrStatus,
		StatusCode: status,
		Message:    fmt.Sprintf("http status=%d body=%q", status, truncate(body, 512)),
	}
}

func classifyHTTPError(backend, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(backend, op, OpErrTimeout, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(backend, op, OpErrTimeout, "request timed out", err)
	}
	return opErr(backend, op, OpErrTransport, "request failed", err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
