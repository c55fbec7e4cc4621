package event

import "time"

// HandlerResult is the immutable value returned by every handler invocation.
type HandlerResult struct {
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryAfter   time.Duration  `json:"retry_after,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SuccessResult returns a successful handler result.
func SuccessResult() HandlerResult {
	return HandlerResult{Success: true}
}

// FailureResult returns a failed handler result with the given message.
func FailureResult(msg string) HandlerResult {
	return HandlerResult{Success: false, ErrorMessage: msg}
}

// RetryResult returns a failed handler result proposing a retry delay.
func RetryResult(msg string, after time.Duration) HandlerResult {
	return HandlerResult{Success: false, ErrorMessage: msg, RetryAfter: after}
}
