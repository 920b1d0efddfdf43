package port

import (
	"context"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

// Logical data sources tracked by high-water mark
const (
	SourceInvestmentRequests = "INVESTMENT_REQUESTS"
	SourceDirectory          = "DIRECTORY"
)

// RemoteSnapshot is a bulk read of one data source
type RemoteSnapshot struct {
	Source        string
	HighWaterMark time.Time
	Records       []*entity.RequestRecord
}

// RemoteStore is the authoritative system of record
type RemoteStore interface {
	// ReadRequest returns nil, nil when the request does not exist remotely
	ReadRequest(ctx context.Context, id string) (*entity.RequestRecord, error)
	// WriteRequest stores the full snapshot and returns the remote modification time.
	// Writing the same snapshot twice is harmless.
	WriteRequest(ctx context.Context, rec *entity.RequestRecord) (time.Time, error)
	DeleteRequest(ctx context.Context, id string) (time.Time, error)
	ReadHighWaterMark(ctx context.Context, source string) (time.Time, error)
	ReadSnapshot(ctx context.Context, source string) (*RemoteSnapshot, error)
}

// DirectorySource supplies reference data, always read in bulk
type DirectorySource interface {
	ReadUsers(ctx context.Context) ([]*entity.User, error)
	ReadAccounts(ctx context.Context) ([]*entity.Account, error)
	ReadFinalApprovers(ctx context.Context) ([]*entity.FinalApprover, error)
}

// ChangeNotice tells other instances that the system of record moved
type ChangeNotice struct {
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
	Origin    string    `json:"origin"`
}

// ChangeNotifier publishes change notices after successful propagation
type ChangeNotifier interface {
	Publish(ctx context.Context, notice ChangeNotice) error
}
