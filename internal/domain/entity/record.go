package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// RequestRecord is the flat shape exchanged with the system of record and
// stored in audit snapshots and outbox payloads.
type RequestRecord struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	AccountID            string          `json:"account_id"`
	AccountName          string          `json:"account_name"`
	InvestmentType       string          `json:"investment_type"`
	Quarter              string          `json:"quarter"`
	Theater              string          `json:"theater"`
	IndustrySegment      string          `json:"industry_segment"`
	RequestedAmount      decimal.Decimal `json:"requested_amount"`
	Narrative            Narrative       `json:"narrative"`
	Contributors         []string        `json:"contributors,omitempty"`
	OnBehalfOf           string          `json:"on_behalf_of,omitempty"`
	Status               string          `json:"status"`
	CurrentApprovalLevel int             `json:"current_approval_level"`
	NextApproverID       string          `json:"next_approver_id,omitempty"`
	NextApproverName     string          `json:"next_approver_name,omitempty"`
	Slots                []ApprovalSlot  `json:"slots"`
	Submission           *ActionRecord   `json:"submission,omitempty"`
	Withdrawal           *Withdrawal     `json:"withdrawal,omitempty"`
	Rejection            *Rejection      `json:"rejection,omitempty"`
	CreatedBy            string          `json:"created_by"`
	CreatedByName        string          `json:"created_by_name,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ToRecord flattens the request
func (r *InvestmentRequest) ToRecord() *RequestRecord {
	c := r.Clone()
	rec := &RequestRecord{
		ID:                   c.ID,
		Title:                c.Title,
		AccountID:            c.AccountID,
		AccountName:          c.AccountName,
		InvestmentType:       c.InvestmentType,
		Quarter:              c.Quarter,
		Theater:              c.Theater,
		IndustrySegment:      c.IndustrySegment,
		RequestedAmount:      c.RequestedAmount,
		Narrative:            c.Narrative,
		Contributors:         c.Contributors,
		OnBehalfOf:           c.OnBehalfOf,
		Status:               c.Status().String(),
		CurrentApprovalLevel: c.CurrentApprovalLevel(),
		Slots:                c.Slots[:],
		Submission:           c.Submission,
		Withdrawal:           c.Withdrawal,
		Rejection:            c.Rejection,
		CreatedBy:            c.CreatedBy,
		CreatedByName:        c.CreatedByName,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	if next, ok := c.NextApprover(); ok {
		rec.NextApproverID = next.ID
		rec.NextApproverName = next.Name
	}
	return rec
}

// FromRecord rebuilds a request from its flat shape. Records whose status,
// level, next approver and slots disagree are rejected with
// ErrInvariantViolation rather than repaired.
func FromRecord(rec *RequestRecord) (*InvestmentRequest, error) {
	if rec == nil {
		return nil, violation("nil record")
	}
	if len(rec.Slots) > SlotCount {
		return nil, violation("request %s: %d slots, at most %d allowed", rec.ID, len(rec.Slots), SlotCount)
	}

	req := &InvestmentRequest{
		ID:              rec.ID,
		Title:           rec.Title,
		AccountID:       rec.AccountID,
		AccountName:     rec.AccountName,
		InvestmentType:  rec.InvestmentType,
		Quarter:         rec.Quarter,
		Theater:         rec.Theater,
		IndustrySegment: rec.IndustrySegment,
		RequestedAmount: rec.RequestedAmount,
		Narrative:       rec.Narrative,
		Contributors:    rec.Contributors,
		OnBehalfOf:      rec.OnBehalfOf,
		Submission:      rec.Submission,
		Withdrawal:      rec.Withdrawal,
		Rejection:       rec.Rejection,
		CreatedBy:       rec.CreatedBy,
		CreatedByName:   rec.CreatedByName,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	copy(req.Slots[:], rec.Slots)

	status, err := workflow.ParseState(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %w", workflow.ErrInvariantViolation, rec.ID, err)
	}

	if !status.IsPending() && rec.NextApproverID != "" {
		return nil, violation("request %s: next approver set while %s", rec.ID, status)
	}

	switch status {
	case workflow.StateDraft:
		req.Phase = Draft{}
	case workflow.StateFinalApproved:
		req.Phase = FinalApproved{}
	case workflow.StateRejected:
		req.Phase = Rejected{}
	default:
		req.Phase = Pending{NextApprover: ApproverRef{ID: rec.NextApproverID, Name: rec.NextApproverName}}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	filled := req.CurrentApprovalLevel()
	if rec.CurrentApprovalLevel != filled {
		return nil, violation("request %s: current level %d but %d slots filled", rec.ID, rec.CurrentApprovalLevel, filled)
	}
	if level, ok := status.PendingLevel(); ok && level != filled {
		return nil, violation("request %s: status %s but %d slots filled", rec.ID, status, filled)
	}

	return req.Clone(), nil
}
