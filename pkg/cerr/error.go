package cerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"

	"github.com/taskforge-ai/taskforge/pkg/clog"
)

// Detail carries a user-facing detail attached to an Error, typically a
// per-field validation message.
type Detail struct {
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

type Error struct {
	Code    Code
	Msg     string // returned to the caller together with Code
	Err     error  // underlying error, kept for logs only
	Stack   string // stack trace, captured for error-level codes
	Details []Detail
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.HTTPStatusToLevel(code.HTTPCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) AddDetail(msg string) *Error {
	e.Details = append(e.Details, Detail{Message: msg})
	return e
}

func (e *Error) AddDetailWithRule(msg, rule string) *Error {
	e.Details = append(e.Details, Detail{Message: msg, Rule: rule})
	return e
}

// Normalize converts an arbitrary error into a *Error, mapping context
// cancellation and deadline expiry onto their codes and recording the error
// on the request context for logging.
func Normalize(ctx context.Context, err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "connection closed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(DeadlineExceeded, "deadline exceeded", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled" {
		return NewError(Canceled, "connection closed", err)
	}

	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Stack != "" {
			clog.AddStack(ctx, cerr.Stack)
		}
		return cerr
	}
	return NewError(Unknown, "unknown error", err)
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}
