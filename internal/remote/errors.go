// ABOUTME: Error taxonomy for remote store failures
// ABOUTME: Transport failures, rejected mutations and not-found are distinguishable via errors.Is/As

package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/para-sync/internal/entity"
)

// ErrNotFound is returned when a row does not exist for the current user.
var ErrNotFound = errors.New("not found")

// ErrSubscriptionClosed is returned when an operation targets a closed subscription.
var ErrSubscriptionClosed = errors.New("subscription closed")

// TransportError is a remote call that failed before producing a result.
type TransportError struct {
	Op         string
	Collection entity.Collection
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s: transport failure: %v", e.Op, e.Collection, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedMutationError is a write the remote store explicitly refused.
type RejectedMutationError struct {
	Op         Op
	Collection entity.Collection
	Reason     string
	Err        error
}

func (e *RejectedMutationError) Error() string {
	return fmt.Sprintf("%s %s rejected: %s", e.Op, e.Collection, e.Reason)
}

func (e *RejectedMutationError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejected reports whether err is a RejectedMutationError.
func IsRejected(err error) bool {
	var re *RejectedMutationError
	return errors.As(err, &re)
}

// Classify makes sure err belongs to the taxonomy. Typed errors and
// ErrNotFound pass through; context expiry becomes a timeout; anything else
// is treated as a transport failure.
func Classify(op string, c entity.Collection, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || IsTransport(err) || IsRejected(err) {
		return err
	}
	return &TransportError{
		Op:         op,
		Collection: c,
		Timeout:    errors.Is(err, context.DeadlineExceeded),
		Err:        err,
	}
}
