package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatch. Use errors.Is to check.
var (
	ErrMalformedCall   = errors.New("malformed function call")
	ErrUnknownFunction = errors.New("unknown function")
)

// HandlerError reports that a registered handler failed (returned an error or
// panicked) during Dispatch. The surrounding conversation turn treats it as
// "no result" and continues; it never propagates as a panic.
type HandlerError struct {
	Function string
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("function %s failed: %v", e.Function, e.Err)
}

// Unwrap supports errors.Is/errors.As on wrapped chains.
func (e *HandlerError) Unwrap() error { return e.Err }

// IsHandlerError returns true if err is or wraps a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// panicError wraps a recovered panic value so it can travel inside HandlerError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
