package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared by the server, the client and the transports.
// Every error returned by a list operation wraps exactly one of them.
var (
	// ErrValidation is a malformed request or payload, never retried.
	ErrValidation = errors.New("validation")
	// ErrNotFound is an id absent on remove / move.
	ErrNotFound = errors.New("not found")
	// ErrStorage is a persistence failure, the request may be retried.
	ErrStorage = errors.New("storage")
	// ErrTransport is a broadcast channel failure.
	ErrTransport = errors.New("transport")
)

var errorKinds = []error{ErrValidation, ErrNotFound, ErrStorage, ErrTransport}

// NewValidationError builds an ErrValidation error.
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError builds an ErrNotFound error for the item id.
func NewNotFoundError(id int64) error {
	return fmt.Errorf("%w: item %d", ErrNotFound, id)
}

// NewStorageError wraps a persistence error into ErrStorage.
func NewStorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// RestoreError maps an error that lost its type crossing a transport (net/rpc, HTTP)
// back to the error kind using the message prefix.
func RestoreError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return err
		}
	}

	msg := err.Error()
	for _, kind := range errorKinds {
		prefix := kind.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return fmt.Errorf("%w: %s", kind, strings.TrimPrefix(msg, prefix))
		}
	}

	return err
}
