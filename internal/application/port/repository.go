package port

import (
	"context"
	"errors"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// ErrAlreadyExists is returned when inserting a request id that is already cached
var ErrAlreadyExists = errors.New("already exists")

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	Statuses       []workflow.State
	CreatedBy      string
	NextApproverID string
	// InvolvedUser matches the creator, the on-behalf-of user or a contributor
	InvolvedUser string
	Theater      string
	Quarter      string
	Limit        int
	Offset       int
}

// RequestRepository persists the local cache of investment requests
type RequestRepository interface {
	Insert(ctx context.Context, req *entity.InvestmentRequest) error
	Update(ctx context.Context, req *entity.InvestmentRequest) error
	// Upsert writes a row from a remote snapshot, setting its remote watermark
	Upsert(ctx context.Context, req *entity.InvestmentRequest, remoteUpdatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	// GetByID returns nil, nil when the request does not exist
	GetByID(ctx context.Context, id string) (*entity.InvestmentRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]*entity.InvestmentRequest, error)
	ListIDs(ctx context.Context) ([]string, error)
	SetRemoteUpdatedAt(ctx context.Context, id string, at time.Time) error
}

// OutboxRepository is the durable per-request FIFO of propagation tasks
type OutboxRepository interface {
	// Enqueue stores the task and assigns its Seq
	Enqueue(ctx context.Context, task *entity.PropagationTask) error
	// ClaimableHeads returns, per request, the oldest open task when that task
	// is PENDING and due at now. Requests listed in skip are left out.
	ClaimableHeads(ctx context.Context, now time.Time, skip []string, limit int) ([]*entity.PropagationTask, error)
	GetBySeq(ctx context.Context, seq int64) (*entity.PropagationTask, error)
	MarkDone(ctx context.Context, seq int64, at time.Time) error
	MarkRetry(ctx context.Context, seq int64, attempts int, lastErr string, next time.Time) error
	MarkParked(ctx context.Context, seq int64, attempts int, lastErr string, at time.Time) error
	// Requeue moves a parked task back to PENDING with its attempts reset
	Requeue(ctx context.Context, seq int64, at time.Time) error
	// HasOpen reports whether the request has a PENDING or PARKED task
	HasOpen(ctx context.Context, requestID string) (bool, error)
	ListParked(ctx context.Context) ([]*entity.PropagationTask, error)
	CountByStatus(ctx context.Context) (map[entity.TaskStatus]int, error)
	PurgeDone(ctx context.Context, before time.Time) (int64, error)
}

// AuditRepository is append-only
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	ListByRequest(ctx context.Context, requestID string) ([]*entity.AuditEntry, error)
}

// WatermarkRepository stores the last remote high-water mark absorbed per source
type WatermarkRepository interface {
	// Get returns the zero time when the source has never been reconciled
	Get(ctx context.Context, source string) (time.Time, error)
	Set(ctx context.Context, source string, at time.Time) error
}

// DirectoryData is a complete copy of the reference data
type DirectoryData struct {
	Users          []*entity.User          `json:"users"`
	Accounts       []*entity.Account       `json:"accounts"`
	FinalApprovers []*entity.FinalApprover `json:"final_approvers"`
}

// DirectoryRepository keeps the last directory snapshot for warm starts
type DirectoryRepository interface {
	ReplaceAll(ctx context.Context, data *DirectoryData) error
	Load(ctx context.Context) (*DirectoryData, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
