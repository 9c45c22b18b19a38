// Package apperr defines the error taxonomy shared by the decision engines
// and the HTTP layer. Callers wrap these sentinels with fmt.Errorf("...: %w")
// and test for them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a recall, booking or vehicle lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrDataIntegrity marks an invariant violation in stored data, such as
	// more good parts than parts or a user pointing at a vehicle that no
	// longer exists.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrCollaboratorUnavailable wraps failures of the identity provider,
	// storage, recall lookup or text generation collaborators.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrConflict is returned when a write cannot proceed because of
	// existing state (for example a second active booking for one part).
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation failed")
)

// Unavailable wraps err so that it matches ErrCollaboratorUnavailable while
// still exposing the underlying cause through errors.Is / errors.As.
func Unavailable(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", collaborator, ErrCollaboratorUnavailable, err)
}

// Integrity formats a data-integrity error.
func Integrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}

// Invalid formats a validation error.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
