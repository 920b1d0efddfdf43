package event

// Type identifies the type of domain event
type Type string

const (
	// TypeMutationApplied fires after a local mutation and its outbox task commit
	TypeMutationApplied Type = "mutation.applied"
	// TypeRequestPropagated fires once the system of record accepted a task
	TypeRequestPropagated Type = "request.propagated"
	// TypeTaskParked fires when a task exhausts its retries
	TypeTaskParked Type = "task.parked"
	// TypeCacheReconciled fires after a snapshot replaced the local cache
	TypeCacheReconciled Type = "cache.reconciled"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeMutationApplied,
		TypeRequestPropagated,
		TypeTaskParked,
		TypeCacheReconciled:
		return true
	default:
		return false
	}
}
