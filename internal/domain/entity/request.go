package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// Approval levels, one slot each
const (
	LevelDM   = 1
	LevelRD   = 2
	LevelAVP  = 3
	LevelGVP  = 4
	SlotCount = 4
)

var levelNames = [...]string{"", "DM", "RD", "AVP", "GVP"}

// LevelName returns the short role name for an approval level
func LevelName(level int) string {
	if level <= 0 || level >= len(levelNames) {
		return fmt.Sprintf("L%d", level)
	}
	return levelNames[level]
}

// Narrative holds the free-text fields that stay editable before submission
type Narrative struct {
	Justification   string `json:"justification"`
	ExpectedOutcome string `json:"expected_outcome"`
	RiskAssessment  string `json:"risk_assessment"`
	ExpectedROI     string `json:"expected_roi,omitempty"`
	OpportunityLink string `json:"opportunity_link,omitempty"`
}

// ApproverRef identifies the user currently authorized to act
type ApproverRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ApprovalSlot is empty until its level approves, then never changes
type ApprovalSlot struct {
	ApproverID    string     `json:"approver_id,omitempty"`
	ApproverName  string     `json:"approver_name,omitempty"`
	ApproverTitle string     `json:"approver_title,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	Comment       string     `json:"comment,omitempty"`
	Final         bool       `json:"final,omitempty"`
}

// Filled reports whether the level has approved
func (s ApprovalSlot) Filled() bool {
	return s.ApproverID != ""
}

func (s ApprovalSlot) isZero() bool {
	return s.ApproverID == "" && s.ApproverName == "" && s.ApproverTitle == "" &&
		s.ApprovedAt == nil && s.Comment == "" && !s.Final
}

// ActionRecord captures who did something, when, and what they said
type ActionRecord struct {
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	At        time.Time `json:"at"`
	Comment   string    `json:"comment,omitempty"`
}

// Withdrawal records a return to DRAFT. SentBack is set when an approver
// returned the request rather than its owner.
type Withdrawal struct {
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	At        time.Time `json:"at"`
	Comment   string    `json:"comment,omitempty"`
	SentBack  bool      `json:"sent_back,omitempty"`
}

// Rejection is attached to the first unfilled level, which never gets an owner
type Rejection struct {
	Level     int       `json:"level"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	At        time.Time `json:"at"`
	Comment   string    `json:"comment,omitempty"`
}

// Phase is the lifecycle position of a request. Only Pending carries a next
// approver, so a terminal request can never point at one.
type Phase interface {
	isPhase()
}

// Draft is editable and not yet in the approval chain
type Draft struct{}

// Pending awaits NextApprover at level CurrentApprovalLevel()+1
type Pending struct {
	NextApprover ApproverRef
}

// FinalApproved is terminal
type FinalApproved struct{}

// Rejected is terminal for approvals but can be revised back to Draft
type Rejected struct{}

func (Draft) isPhase()         {}
func (Pending) isPhase()       {}
func (FinalApproved) isPhase() {}
func (Rejected) isPhase()      {}

// InvestmentRequest is the central entity routed through the approval chain
type InvestmentRequest struct {
	ID              string
	Title           string
	AccountID       string
	AccountName     string
	InvestmentType  string
	Quarter         string
	Theater         string
	IndustrySegment string
	RequestedAmount decimal.Decimal
	Narrative       Narrative

	// Contributors may edit, submit and withdraw alongside the creator
	Contributors []string
	OnBehalfOf   string

	Phase      Phase
	Slots      [SlotCount]ApprovalSlot
	Submission *ActionRecord
	Withdrawal *Withdrawal
	Rejection  *Rejection

	CreatedBy     string
	CreatedByName string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// RemoteUpdatedAt is the last modification time confirmed by the system of record
	RemoteUpdatedAt *time.Time
}

// CurrentApprovalLevel is the number of filled slots
func (r *InvestmentRequest) CurrentApprovalLevel() int {
	n := 0
	for _, s := range r.Slots {
		if s.Filled() {
			n++
		}
	}
	return n
}

// Status derives the lifecycle status from the phase and slot count
func (r *InvestmentRequest) Status() workflow.State {
	switch r.Phase.(type) {
	case Draft:
		return workflow.StateDraft
	case Pending:
		if s, ok := workflow.PendingStateForLevel(r.CurrentApprovalLevel()); ok {
			return s
		}
		return workflow.StateAVPApproved
	case FinalApproved:
		return workflow.StateFinalApproved
	case Rejected:
		return workflow.StateRejected
	}
	return workflow.StateDraft
}

// NextApprover returns the designated approver while the request is pending
func (r *InvestmentRequest) NextApprover() (ApproverRef, bool) {
	if p, ok := r.Phase.(Pending); ok {
		return p.NextApprover, true
	}
	return ApproverRef{}, false
}

// Owner is the user the request is raised for
func (r *InvestmentRequest) Owner() string {
	if r.OnBehalfOf != "" {
		return r.OnBehalfOf
	}
	return r.CreatedBy
}

// CanEdit reports whether userID may edit, submit, revise or withdraw
func (r *InvestmentRequest) CanEdit(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == r.CreatedBy || userID == r.OnBehalfOf {
		return true
	}
	for _, c := range r.Contributors {
		if c == userID {
			return true
		}
	}
	return false
}

// ClearSlots empties every approval slot
func (r *InvestmentRequest) ClearSlots() {
	r.Slots = [SlotCount]ApprovalSlot{}
}

// History derives one entry per filled slot, in level order
func (r *InvestmentRequest) History() []ApprovalHistoryEntry {
	entries := make([]ApprovalHistoryEntry, 0, SlotCount)
	for i, s := range r.Slots {
		if !s.Filled() {
			break
		}
		entry := ApprovalHistoryEntry{
			RequestID:     r.ID,
			Level:         i + 1,
			LevelName:     LevelName(i + 1),
			ApproverID:    s.ApproverID,
			ApproverName:  s.ApproverName,
			ApproverTitle: s.ApproverTitle,
			Comment:       s.Comment,
			Final:         s.Final,
		}
		if s.ApprovedAt != nil {
			entry.ApprovedAt = *s.ApprovedAt
		}
		entries = append(entries, entry)
	}
	return entries
}

// Clone returns a deep copy
func (r *InvestmentRequest) Clone() *InvestmentRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Contributors = append([]string(nil), r.Contributors...)
	for i, s := range r.Slots {
		if s.ApprovedAt != nil {
			t := *s.ApprovedAt
			cp.Slots[i].ApprovedAt = &t
		}
	}
	if r.Submission != nil {
		v := *r.Submission
		cp.Submission = &v
	}
	if r.Withdrawal != nil {
		v := *r.Withdrawal
		cp.Withdrawal = &v
	}
	if r.Rejection != nil {
		v := *r.Rejection
		cp.Rejection = &v
	}
	if r.RemoteUpdatedAt != nil {
		t := *r.RemoteUpdatedAt
		cp.RemoteUpdatedAt = &t
	}
	return &cp
}

// Validate checks slot ordering and phase consistency
func (r *InvestmentRequest) Validate() error {
	if r.ID == "" {
		return violation("request has no id")
	}

	filled := 0
	finals := 0
	for i, s := range r.Slots {
		if !s.Filled() {
			if !s.isZero() {
				return violation("request %s: empty %s slot carries data", r.ID, LevelName(i+1))
			}
			continue
		}
		if filled != i {
			return violation("request %s: %s slot filled while an earlier level is empty", r.ID, LevelName(i+1))
		}
		if s.ApprovedAt == nil {
			return violation("request %s: %s slot has no approval time", r.ID, LevelName(i+1))
		}
		filled++
		if s.Final {
			finals++
		}
	}

	switch p := r.Phase.(type) {
	case Draft:
		if filled != 0 {
			return violation("request %s: draft has %d filled slots", r.ID, filled)
		}
	case Pending:
		if filled >= SlotCount {
			return violation("request %s: pending with every slot filled", r.ID)
		}
		if p.NextApprover.ID == "" {
			return violation("request %s: pending without next approver", r.ID)
		}
		if finals != 0 {
			return violation("request %s: pending with a final slot", r.ID)
		}
	case FinalApproved:
		if filled == 0 {
			return violation("request %s: final approval with no filled slot", r.ID)
		}
		if finals != 1 || !r.Slots[filled-1].Final {
			return violation("request %s: final approval must flag exactly the last filled slot", r.ID)
		}
	case Rejected:
		if r.Rejection == nil {
			return violation("request %s: rejected without rejection record", r.ID)
		}
		if r.Rejection.Level != filled+1 {
			return violation("request %s: rejection at level %d but %d slots filled", r.ID, r.Rejection.Level, filled)
		}
		if finals != 0 {
			return violation("request %s: rejected with a final slot", r.ID)
		}
	case nil:
		return violation("request %s: missing phase", r.ID)
	default:
		return violation("request %s: unknown phase %T", r.ID, p)
	}

	return nil
}

func violation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", workflow.ErrInvariantViolation, fmt.Sprintf(format, args...))
}
