// Package services defines the business logic for accounts, conversations,
// messages, notifications and the live chat gateway. This file centralizes
// the service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Errors are grouped into classes (ErrValidation, ErrNotFound, ErrForbidden,
// ErrConflict). Every specific error wraps its class, so handlers map results
// to HTTP status codes with errors.Is against the class alone. Datastore and
// other unexpected failures are wrapped in *ServerError.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-realtime-chat/internal/repo"
)

// Error classes.
var (
	// ErrValidation marks malformed or rule-breaking input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an operation the caller may not perform.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict marks a write that clashes with existing state.
	ErrConflict = errors.New("conflict")

	// ErrServer is matched by every *ServerError.
	ErrServer = errors.New("server error")
)

// Specific errors.
var (
	ErrEmptyContent     = fmt.Errorf("%w: content is empty", ErrValidation)
	ErrContentTooLong   = fmt.Errorf("%w: content too long", ErrValidation)
	ErrNoParticipants   = fmt.Errorf("%w: participants are required", ErrValidation)
	ErrUnknownUsers     = fmt.Errorf("%w: one or more participants do not exist", ErrValidation)
	ErrInvalidRoom      = fmt.Errorf("%w: room is required", ErrValidation)
	ErrInvalidProfile   = fmt.Errorf("%w: nothing to update", ErrValidation)
	ErrGroupNameTooLong = fmt.Errorf("%w: group name too long", ErrValidation)

	errInvalidUsername = fmt.Errorf("%w: username must be 4-20 letters, digits, '_', '.' or '-'", ErrValidation)
	errInvalidPassword = fmt.Errorf("%w: password must be 6-72 characters with an uppercase letter and one of @$!%%*?&", ErrValidation)
	errInvalidPhoto    = fmt.Errorf("%w: profile photo must be a non-empty URI", ErrValidation)

	ErrConversationNotFound = fmt.Errorf("%w: conversation not found", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("%w: message not found", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("%w: notification not found", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)

	// ErrNotParticipant is returned when the caller is not a member of the
	// conversation it acts on.
	ErrNotParticipant = fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)

	// ErrNotOwner is returned when marking another user's notification.
	ErrNotOwner = fmt.Errorf("%w: notification belongs to another user", ErrForbidden)

	ErrUsernameTaken = fmt.Errorf("%w: Username is already taken", ErrConflict)

	// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
	// password. It belongs to no class and maps to 401.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ServerError wraps an unexpected failure with the operation that hit it.
type ServerError struct {
	Op  string
	Err error
}

func (e *ServerError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ServerError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrServer) hold for every ServerError.
func (e *ServerError) Is(target error) bool { return target == ErrServer }

// serverErr wraps err unless it is nil or already classified.
func serverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	return &ServerError{Op: op, Err: err}
}

func isClassified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrInvalidCredentials)
}

// isNotFound treats repo-level not-found sentinels as "not found".
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
