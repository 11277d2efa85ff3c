package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/place-reservation/internal/model"
)

// Kind classifies the expected, recoverable outcomes of the services.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInactive          Kind = "INACTIVE"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindResourceBusy      Kind = "RESOURCE_BUSY"
	KindUnauthorized      Kind = "UNAUTHORIZED"
)

// Error is a typed domain failure.  Entity names what the failure is
// about (place, reservation, actor) and Code its identifier.
type Error struct {
	Kind    Kind
	Entity  string
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure whatever its entity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may retry unchanged.  Only a lost
// race for a place qualifies.
func (e *Error) Retryable() bool { return e.Kind == KindResourceBusy }

// Sentinels for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInactive          = &Error{Kind: KindInactive, Message: "inactive"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrResourceBusy      = &Error{Kind: KindResourceBusy, Message: "resource busy"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

// Entities named in errors.
const (
	EntityPlace       = "place"
	EntityReservation = "reservation"
	EntityActor       = "actor"
)

func notFound(entity, code string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Code: code, Message: "not found"}
}

func inactive(entity, code string) error {
	return &Error{Kind: KindInactive, Entity: entity, Code: code, Message: "is inactive"}
}

func unauthorized(entity, code string) error {
	return &Error{Kind: KindUnauthorized, Entity: entity, Code: code, Message: "belongs to another company"}
}

func busy(code, holder string) error {
	msg := "is already taken"
	if holder != "" {
		msg = "is already taken by " + holder
	}
	return &Error{Kind: KindResourceBusy, Entity: EntityPlace, Code: code, Message: msg}
}

func invalidTransition(code, op string, from model.ReservationStatus) error {
	return &Error{
		Kind:    KindInvalidTransition,
		Entity:  EntityReservation,
		Code:    code,
		Message: fmt.Sprintf("cannot %s from %s", op, from),
	}
}

// KindOf returns the kind of a domain error and false for anything else.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
