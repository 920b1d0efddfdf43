package workflow

import "fmt"

// State is the lifecycle status of an investment request
type State string

const (
	StateDraft         State = "DRAFT"
	StateSubmitted     State = "SUBMITTED"
	StateDMApproved    State = "DM_APPROVED"
	StateRDApproved    State = "RD_APPROVED"
	StateAVPApproved   State = "AVP_APPROVED"
	StateFinalApproved State = "FINAL_APPROVED"
	StateRejected      State = "REJECTED"
)

var validStates = map[State]bool{
	StateDraft:         true,
	StateSubmitted:     true,
	StateDMApproved:    true,
	StateRDApproved:    true,
	StateAVPApproved:   true,
	StateFinalApproved: true,
	StateRejected:      true,
}

var terminalStates = map[State]bool{
	StateFinalApproved: true,
	StateRejected:      true,
}

// pendingByLevel maps the number of filled approval slots to the pending state
var pendingByLevel = []State{
	StateSubmitted,
	StateDMApproved,
	StateRDApproved,
	StateAVPApproved,
}

// IsTerminal returns true if no approval action can move the request further.
// REJECTED can still be revised back to DRAFT.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsPending returns true while the request awaits a next approver
func (s State) IsPending() bool {
	for _, p := range pendingByLevel {
		if s == p {
			return true
		}
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a stored or requested status name. Unknown names
// return ErrInvalidState.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
	}
	return s, nil
}

// PendingStateForLevel returns the pending state for a request with the
// given number of filled slots. ok is false when no pending state exists.
func PendingStateForLevel(filled int) (State, bool) {
	if filled < 0 || filled >= len(pendingByLevel) {
		return "", false
	}
	return pendingByLevel[filled], true
}

// PendingLevel is the inverse of PendingStateForLevel
func (s State) PendingLevel() (int, bool) {
	for i, p := range pendingByLevel {
		if s == p {
			return i, true
		}
	}
	return 0, false
}
