package orgs

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Sentinel errors forming the service's error taxonomy. Handlers map these
// to HTTP statuses at the boundary; everything else surfaces as a 500.
var (
	// ErrUnauthenticated indicates the request carries no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates the caller is authenticated but lacks the
	// role or ownership required for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or state-transition violation.
	ErrConflict = errors.New("conflict")

	// ErrInvariant indicates a business invariant would be broken,
	// e.g. removing an organization's last admin.
	ErrInvariant = errors.New("invariant violation")

	// ErrExpired indicates a time-boxed entity is past its expiry.
	ErrExpired = errors.New("expired")
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
