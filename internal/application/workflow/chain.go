package workflow

import (
	"fmt"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// ChainStep is one approver on a previewed chain
type ChainStep struct {
	Level     int                `json:"level"`
	LevelName string             `json:"level_name"`
	Approver  entity.ApproverRef `json:"approver"`
	Title     string             `json:"title,omitempty"`
	Final     bool               `json:"final"`
}

// PreviewChain resolves level by level exactly as submit and approve do, and
// stops at the approver whose approval would close the chain.
func (e *engineImpl) PreviewChain(dir port.Directory, ownerID, theater string) ([]ChainStep, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: preview needs an owner", domainwf.ErrNoApproverFound)
	}
	req := &entity.InvestmentRequest{
		ID:        "preview:" + ownerID,
		Theater:   theater,
		CreatedBy: ownerID,
		Phase:     entity.Draft{},
	}

	steps := make([]ChainStep, 0, entity.SlotCount)
	for level := entity.LevelDM; level <= entity.SlotCount; level++ {
		approver, err := e.ResolveApprover(req, dir, level)
		if err != nil {
			return nil, err
		}

		final := level == entity.SlotCount || approver.IsFinalApprover || isTheaterFinal(dir, theater, approver.ID)
		steps = append(steps, ChainStep{
			Level:     level,
			LevelName: entity.LevelName(level),
			Approver:  refOf(approver),
			Title:     approver.Title,
			Final:     final,
		})
		if final {
			break
		}
	}
	return steps, nil
}
