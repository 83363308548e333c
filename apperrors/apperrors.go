// Package apperrors holds the error conditions surfaced by the catalog,
// upload and editor packages.
//
// Callers classify with errors.Is; the sentinels are always wrapped with
// context describing the operation that failed.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed is returned for missing or out-of-range input.  It
	// is always raised before any store or network call.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPermissionDenied is returned when the current identity may not
	// perform the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBusy is returned when an upload or a review submission is started
	// while another is in flight.
	ErrBusy = errors.New("already in progress")

	// ErrStoreFailure wraps any error reported by the document store.
	ErrStoreFailure = errors.New("store failure")

	// ErrUploadFailure wraps any error reported by the object store during a
	// transfer.
	ErrUploadFailure = errors.New("upload failure")
)

// Validation returns an ErrValidationFailed error with a user-facing reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// PermissionDenied returns an ErrPermissionDenied error naming the action.
func PermissionDenied(action string) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, action)
}

// Store wraps err as a store failure, keeping err in the chain so the
// underlying message (and any typed error) is passed through.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("while %s: %w: %w", op, ErrStoreFailure, err)
}

// Upload wraps an object store error message as an upload failure.
func Upload(message string) error {
	return fmt.Errorf("%w: %s", ErrUploadFailure, message)
}
