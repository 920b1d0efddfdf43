package entity

import "time"

// TaskOp is the remote operation a propagation task performs
type TaskOp string

const (
	TaskOpUpsert TaskOp = "UPSERT"
	TaskOpDelete TaskOp = "DELETE"
)

// TaskStatus tracks a propagation task through the outbox
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusDone    TaskStatus = "DONE"
	// TaskStatusParked tasks exhausted their retries and block their request
	// until an operator requeues them.
	TaskStatusParked TaskStatus = "PARKED"
)

// PropagationTask carries one locally applied mutation to the system of record.
// Seq is assigned on enqueue and orders tasks of the same request.
type PropagationTask struct {
	Seq           int64          `json:"seq"`
	RequestID     string         `json:"request_id"`
	Op            TaskOp         `json:"op"`
	Payload       *RequestRecord `json:"payload,omitempty"`
	Status        TaskStatus     `json:"status"`
	Attempts      int            `json:"attempts"`
	LastError     string         `json:"last_error,omitempty"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
