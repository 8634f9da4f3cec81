package engine

import "errors"

// Code is a machine-readable error classification surfaced by the engine,
// the state store, the token manager, and the context helpers. Codes are
// used both for structured reporting (Execution.Error.Code) and for retry
// whitelist matching (RetryPolicy.RetryOn).
type Code string

// Error kinds.
const (
	CodeFlowInvalid        Code = "FLOW_INVALID"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeFlowNotFound       Code = "FLOW_NOT_FOUND"
	CodeStepNotFound       Code = "STEP_NOT_FOUND"
	CodeHandlerNotFound    Code = "HANDLER_NOT_FOUND"
	CodeExecutionNotFound  Code = "EXECUTION_NOT_FOUND"
	CodeMaxSteps           Code = "MAX_STEPS"
	CodeMaxIterations      Code = "MAX_ITERATIONS"
	CodeInputError         Code = "INPUT_ERROR"
	CodeHandlerError       Code = "HANDLER_ERROR"
	CodeStepFailed         Code = "STEP_FAILED"
	CodeContextValueTooBig Code = "CONTEXT_VALUE_TOO_LARGE"
	CodeContextSizeLimit   Code = "CONTEXT_SIZE_LIMIT"
	CodeContextKeyLimit    Code = "CONTEXT_KEY_LIMIT"
	CodeContextNesting     Code = "CONTEXT_NESTING_LIMIT"
	CodeInvalidResumeToken Code = "INVALID_RESUME_TOKEN"
	CodeResumeTokenExpired Code = "RESUME_TOKEN_EXPIRED"
	CodeExecutionNotWait   Code = "EXECUTION_NOT_WAITING"
	CodeExecutionCancelled Code = "EXECUTION_CANCELLED"
	CodeCancelled          Code = "CANCELLED"
)

// Error is the engine's structured error type. It carries a Code for
// programmatic handling alongside a human-readable Message, and optionally
// wraps an underlying Cause for error-chain inspection via errors.Unwrap,
// so callers can use errors.Is / IsCode instead of string comparison.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs an *Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error with the given code and message, wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsCode reports whether err is an *Error (directly or in its chain) with
// the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate for malformed
// retry configuration.
var ErrInvalidRetryPolicy = errors.New("engine: invalid retry policy")
