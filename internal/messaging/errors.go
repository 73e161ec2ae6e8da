package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller does not resolve to a practice member.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for absent conversations, conversations in another
	// practice and conversations the caller does not participate in alike.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidInput is returned for empty content or malformed identifiers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrContentBlocked matches every *BlockedError.
	ErrContentBlocked = errors.New("content blocked")
	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage error")
)

// BlockedError carries the classifier's reason for rejecting a message.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "content blocked: " + e.Reason
}

// Is reports ErrContentBlocked as a match.
func (e *BlockedError) Is(target error) bool {
	return target == ErrContentBlocked
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
