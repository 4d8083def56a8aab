package common

import (
	"context"
	"errors"
	"fmt"
)

// RetryableError wraps an error that the owning component is expected to
// retry with backoff instead of treating as terminal.
type RetryableError struct {
	Err error
}

func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func IsRetryableError(err error) bool {
	var retryable *RetryableError

	return errors.As(err, &retryable)
}

func IsContextDoneErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var (
	ErrSigningTimeout  = errors.New("signing backend timed out")
	ErrSigningRejected = errors.New("signing backend rejected proposal")
)

// ProtocolError marks a malformed event or proposal. Terminal for that
// item; the watcher records it to the dead letter keyspace and moves on.
type ProtocolError struct {
	Reason string
	Err    error
}

func NewProtocolError(reason string, err error) *ProtocolError {
	return &ProtocolError{Reason: reason, Err: err}
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}

	return e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func IsProtocolError(err error) bool {
	var protocolErr *ProtocolError

	return errors.As(err, &protocolErr)
}
