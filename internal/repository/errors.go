// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// allocator, lifecycle manager and dispatcher to distinguish between
// failure scenarios. ErrConflict in particular is not always a fault:
// a duplicate-key insert into the message ledger is the expected signal
// that a redelivered message has already been processed.
package repository

import (
	"errors"
	"strings"
)

// ErrConflict is returned when an insert or update violates a unique
// constraint, such as recording the same message id twice or reserving
// a second claim for the same (attendee, event) pair.
var ErrConflict = errors.New("conflict")

// ErrEventNotFound is returned when no event matches the requested id or code.
var ErrEventNotFound = errors.New("event not found")

// ErrClaimNotFound is returned when no claim matches the requested lookup.
var ErrClaimNotFound = errors.New("claim not found")

// ErrAdminNotFound is returned when no admin matches the requested username.
var ErrAdminNotFound = errors.New("admin not found")

// ErrNoneAvailable is returned by claim allocation when the event has no
// unreserved claims left.
var ErrNoneAvailable = errors.New("no claims available")

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
