package workflow

import (
	"fmt"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// DefaultMaxChainDepth bounds the manager walk
const DefaultMaxChainDepth = 10

// resolveApprover walks the owner's manager chain for a user at the target
// level. The first final approver met on the way is used regardless of level;
// when the chain runs out the theater's final approver closes it.
func resolveApprover(dir port.Directory, req *entity.InvestmentRequest, level, maxDepth int) (*entity.User, error) {
	if level < entity.LevelDM || level > entity.SlotCount {
		return nil, fmt.Errorf("%w: level %d out of range", domainwf.ErrNoApproverFound, level)
	}

	ownerID := req.Owner()
	current, ok := dir.User(ownerID)
	if !ok {
		return theaterFallback(dir, req, level, fmt.Sprintf("owner %s is not in the directory", ownerID))
	}

	visited := map[string]bool{current.ID: true}
	for depth := 0; depth < maxDepth; depth++ {
		if current.ManagerID == "" {
			return theaterFallback(dir, req, level, fmt.Sprintf("chain ended at %s", current.ID))
		}
		if visited[current.ManagerID] {
			return nil, fmt.Errorf("%w: manager cycle through %s while resolving %s for request %s",
				domainwf.ErrNoApproverFound, current.ManagerID, entity.LevelName(level), req.ID)
		}

		manager, ok := dir.User(current.ManagerID)
		if !ok {
			return theaterFallback(dir, req, level, fmt.Sprintf("manager %s of %s is not in the directory", current.ManagerID, current.ID))
		}
		visited[manager.ID] = true

		if manager.ApprovalLevel == level || manager.IsFinalApprover {
			return manager, nil
		}
		current = manager
	}

	return theaterFallback(dir, req, level, fmt.Sprintf("chain deeper than %d", maxDepth))
}

func theaterFallback(dir port.Directory, req *entity.InvestmentRequest, level int, reason string) (*entity.User, error) {
	if req.Theater != "" {
		if fa, ok := dir.FinalApproverFor(req.Theater); ok && fa.ID != req.Owner() {
			return fa, nil
		}
	}
	return nil, fmt.Errorf("%w: %s for request %s: %s", domainwf.ErrNoApproverFound, entity.LevelName(level), req.ID, reason)
}

// isTheaterFinal reports whether userID closes the chain for the theater
func isTheaterFinal(dir port.Directory, theater, userID string) bool {
	if theater == "" {
		return false
	}
	fa, ok := dir.FinalApproverFor(theater)
	return ok && fa.ID == userID
}
