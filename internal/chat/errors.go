package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller branching.
var (
	// ErrUnauthorized means no authenticated requester was presented.
	// Never retried; callers redirect to auth.
	ErrUnauthorized = errors.New("chat: no authenticated requester")

	// ErrEmptyContent rejects a send with no message body.
	ErrEmptyContent = errors.New("chat: content is required")

	// ErrRoomNotFound means the referenced room does not exist.
	ErrRoomNotFound = errors.New("chat: room not found")

	// ErrNotSupportTicket rejects lifecycle operations that only apply to
	// store_to_admin rooms.
	ErrNotSupportTicket = errors.New("chat: room is not a support ticket")
)

// StoreError wraps a failed backing-store request. Transient: sends and
// get-or-create may be retried by the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the operation. Store
// failures are always considered transient.
func (e *StoreError) Retryable() bool { return true }

// storeErr wraps err as a StoreError unless it is already part of the
// taxonomy.
func storeErr(op string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
