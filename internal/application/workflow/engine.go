package workflow

import (
	"context"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

// Engine computes approval transitions. It owns no data: every call is a
// function of the request, the directory and the intent.
type Engine interface {
	// Apply validates the intent against the request and returns the mutation
	// to persist. The input request is never modified.
	Apply(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent) (*entity.Mutation, error)

	// ResolveApprover finds the user who approves the given level
	ResolveApprover(req *entity.InvestmentRequest, dir port.Directory, level int) (*entity.User, error)

	// PreviewChain lists the approvers a new request from ownerID in theater
	// would pass through, assuming each approves in turn
	PreviewChain(dir port.Directory, ownerID, theater string) ([]ChainStep, error)

	// AvailableIntents lists what actorID may do with the request right now
	AvailableIntents(req *entity.InvestmentRequest, actorID string) []IntentKind
}
