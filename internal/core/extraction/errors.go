package extraction

import (
	"errors"
	"fmt"
)

// Error is the failure signal of the extraction protocol client.
// Retryable reports whether the whole extraction could plausibly
// succeed on a fresh attempt (connection faults, 5xx). Terminal
// conditions such as 4xx rejections, job-reported failures, poll
// timeouts and missing artifacts are not retried within one attempt;
// the orchestrator decides whether to retry the document.
type Error struct {
	Message   string
	Retryable bool
}

func (e *Error) Error() string { return e.Message }

// IsRetryable reports whether err is an extraction.Error marked retryable.
func IsRetryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

func terminalErr(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Retryable: false}
}

func transientErr(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Retryable: true}
}
