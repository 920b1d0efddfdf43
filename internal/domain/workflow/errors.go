package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when the intent is not legal from the current status
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotAuthorized is returned when the actor may not perform the intent
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNoApproverFound is returned when approver resolution exhausts the manager chain
	ErrNoApproverFound = errors.New("no approver found")

	// ErrInvariantViolation is returned when a request would break slot ordering
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrPropagationFailed marks a remote write that did not succeed after retries
	ErrPropagationFailed = errors.New("propagation failed")

	// ErrNotFound is returned when a request does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a status name is not a lifecycle state
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guarded transition for a trigger refuses
	ErrGuardFailed = errors.New("guard condition failed")
)
