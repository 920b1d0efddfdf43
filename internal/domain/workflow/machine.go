package workflow

import "context"

// StateMachine tracks a current state and validates transitions against it
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has any transition from the current state
	CanFire(trigger Trigger) bool

	// Fire executes the first transition whose guard passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current state
	PermittedTriggers() []Trigger
}
