package llm

import "fmt"

// ErrorKind is the machine-readable failure classification reported by
// model callers.
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"             // bad/missing credentials
	KindRateLimit       ErrorKind = "rate_limit"       // provider throttled the call
	KindTimeout         ErrorKind = "timeout"          // per-call deadline exceeded
	KindNetwork         ErrorKind = "network"          // transport failure or 5xx
	KindMalformedOutput ErrorKind = "malformed_output" // response not valid for the schema
)

// CallError wraps a model call failure with its kind so the orchestrator
// can decide whether the job attempt is retryable.
type CallError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm call failed (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm call failed (%s): %s", e.Kind, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// Transient reports whether a retry of the unchanged call can be expected
// to succeed. Auth failures and malformed output (after the repair
// attempt) are permanent.
func (e *CallError) Transient() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindNetwork:
		return true
	}
	return false
}

// NewCallError builds a CallError with an optional cause.
func NewCallError(kind ErrorKind, message string, cause error) *CallError {
	return &CallError{Kind: kind, Message: message, Cause: cause}
}
