// Package repository defines the store contracts used by the reservation
// service together with their MySQL and in-memory implementations.  The
// sentinel values below are shared by every backend so that higher layers
// can tell a missing row from a lost conditional write.
package repository

import "errors"

// ErrNotFound is returned when no row matches the requested code.
// Services translate it into their own not-found error.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write matched no row because
// the current state differed from the expected one, for example a place
// that was already TAKEN when the caller expected AVAILABLE.  Callers must
// re-read before deciding whether the conflict is a real failure.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when a create collides with an existing code.
var ErrDuplicate = errors.New("duplicate code")
