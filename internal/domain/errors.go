// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a malformed or incomplete submission. No state change occurred.
var ErrValidation = errors.New("validation failed")

// ErrInvalidState indicates a transition attempted from the wrong state or by a
// role that does not match the current stage. No state change occurred.
var ErrInvalidState = errors.New("invalid state for requested transition")

// ErrAlreadyProcessing indicates a duplicate submission while an automated
// evaluation is already in flight for the same document.
var ErrAlreadyProcessing = errors.New("evaluation already in progress")
