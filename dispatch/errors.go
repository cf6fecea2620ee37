package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrURLRequired indicates that a webhook was created without a target URL.
	ErrURLRequired = errors.New("dispatch: webhook url is required")
	// ErrStreamRequired indicates that a stream publisher was created without a stream name.
	ErrStreamRequired = errors.New("dispatch: stream name is required")
	// ErrClientRequired indicates that a nil redis client was provided.
	ErrClientRequired = errors.New("dispatch: redis client is required")
	// ErrSenderRequired indicates that a queue was created without a sender.
	ErrSenderRequired = errors.New("dispatch: sender is required")
	// ErrQueueFull is returned when the queue buffer is saturated.
	ErrQueueFull = errors.New("dispatch: queue is full")
	// ErrQueueClosed is returned by Dispatch after Close.
	ErrQueueClosed = errors.New("dispatch: queue is closed")
)

// StatusError reports a webhook response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("dispatch: webhook responded %d", e.StatusCode)
	}

	return fmt.Sprintf("dispatch: webhook responded %d: %s", e.StatusCode, e.Body)
}
