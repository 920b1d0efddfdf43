package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func slot(id string, final bool) ApprovalSlot {
	at := t0
	return ApprovalSlot{ApproverID: id, ApproverName: id, ApprovedAt: &at, Final: final}
}

func pendingRequest(filled int) *InvestmentRequest {
	r := &InvestmentRequest{
		ID:              "req-1",
		Title:           "Partner enablement",
		RequestedAmount: decimal.RequireFromString("1200.50"),
		CreatedBy:       "alice",
		CreatedAt:       t0,
		UpdatedAt:       t0,
		Phase:           Pending{NextApprover: ApproverRef{ID: "next", Name: "Next"}},
	}
	for i := 0; i < filled; i++ {
		r.Slots[i] = slot("approver", false)
	}
	return r
}

func TestInvestmentRequest_Status(t *testing.T) {
	tests := []struct {
		name string
		req  *InvestmentRequest
		want workflow.State
	}{
		{"draft", &InvestmentRequest{ID: "r", Phase: Draft{}}, workflow.StateDraft},
		{"submitted", pendingRequest(0), workflow.StateSubmitted},
		{"dm approved", pendingRequest(1), workflow.StateDMApproved},
		{"rd approved", pendingRequest(2), workflow.StateRDApproved},
		{"avp approved", pendingRequest(3), workflow.StateAVPApproved},
		{"final", &InvestmentRequest{ID: "r", Phase: FinalApproved{}}, workflow.StateFinalApproved},
		{"rejected", &InvestmentRequest{ID: "r", Phase: Rejected{}}, workflow.StateRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInvestmentRequest_Validate(t *testing.T) {
	finalAt := func(filled int) *InvestmentRequest {
		r := pendingRequest(filled)
		r.Phase = FinalApproved{}
		r.Slots[filled-1].Final = true
		return r
	}

	tests := []struct {
		name    string
		build   func() *InvestmentRequest
		wantErr bool
	}{
		{"valid pending", func() *InvestmentRequest { return pendingRequest(2) }, false},
		{"valid final at DM", func() *InvestmentRequest { return finalAt(1) }, false},
		{"valid final at GVP", func() *InvestmentRequest { return finalAt(4) }, false},
		{"missing id", func() *InvestmentRequest {
			r := pendingRequest(0)
			r.ID = ""
			return r
		}, true},
		{"gap in slots", func() *InvestmentRequest {
			r := pendingRequest(0)
			r.Slots[1] = slot("rd", false)
			return r
		}, true},
		{"draft with slots", func() *InvestmentRequest {
			r := pendingRequest(1)
			r.Phase = Draft{}
			return r
		}, true},
		{"pending without approver", func() *InvestmentRequest {
			r := pendingRequest(1)
			r.Phase = Pending{}
			return r
		}, true},
		{"pending with all slots", func() *InvestmentRequest { return pendingRequest(4) }, true},
		{"final not on last slot", func() *InvestmentRequest {
			r := finalAt(2)
			r.Slots[1].Final = false
			r.Slots[0].Final = true
			return r
		}, true},
		{"final with no slots", func() *InvestmentRequest {
			r := pendingRequest(0)
			r.Phase = FinalApproved{}
			return r
		}, true},
		{"rejected without record", func() *InvestmentRequest {
			r := pendingRequest(1)
			r.Phase = Rejected{}
			return r
		}, true},
		{"rejected at wrong level", func() *InvestmentRequest {
			r := pendingRequest(1)
			r.Phase = Rejected{}
			r.Rejection = &Rejection{Level: 3, ActorID: "rd", At: t0}
			return r
		}, true},
		{"rejected at next level", func() *InvestmentRequest {
			r := pendingRequest(1)
			r.Phase = Rejected{}
			r.Rejection = &Rejection{Level: 2, ActorID: "rd", At: t0}
			return r
		}, false},
		{"empty slot with comment", func() *InvestmentRequest {
			r := pendingRequest(1)
			r.Slots[2].Comment = "stray"
			return r
		}, true},
		{"nil phase", func() *InvestmentRequest {
			r := pendingRequest(0)
			r.Phase = nil
			return r
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr {
				if !errors.Is(err, workflow.ErrInvariantViolation) {
					t.Errorf("Validate() error = %v, want ErrInvariantViolation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestInvestmentRequest_CanEdit(t *testing.T) {
	r := &InvestmentRequest{CreatedBy: "alice", OnBehalfOf: "bob", Contributors: []string{"carol"}}

	for _, user := range []string{"alice", "bob", "carol"} {
		if !r.CanEdit(user) {
			t.Errorf("CanEdit(%q) = false, want true", user)
		}
	}
	for _, user := range []string{"", "mallory"} {
		if r.CanEdit(user) {
			t.Errorf("CanEdit(%q) = true, want false", user)
		}
	}
	if r.Owner() != "bob" {
		t.Errorf("Owner() = %q, want bob", r.Owner())
	}
}

func TestInvestmentRequest_History(t *testing.T) {
	r := pendingRequest(2)
	r.Slots[1].Comment = "ok"

	h := r.History()
	if len(h) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(h))
	}
	if h[0].Level != LevelDM || h[0].LevelName != "DM" {
		t.Errorf("first entry = %d/%s, want 1/DM", h[0].Level, h[0].LevelName)
	}
	if h[1].LevelName != "RD" || h[1].Comment != "ok" || !h[1].ApprovedAt.Equal(t0) {
		t.Errorf("second entry = %+v", h[1])
	}
}

func TestInvestmentRequest_Clone(t *testing.T) {
	r := pendingRequest(1)
	r.Contributors = []string{"carol"}
	r.Submission = &ActionRecord{ActorID: "alice", At: t0}

	c := r.Clone()
	c.Contributors[0] = "dave"
	*c.Slots[0].ApprovedAt = t0.Add(time.Hour)
	c.Submission.Comment = "changed"

	if r.Contributors[0] != "carol" {
		t.Error("clone shares contributors")
	}
	if !r.Slots[0].ApprovedAt.Equal(t0) {
		t.Error("clone shares slot time")
	}
	if r.Submission.Comment != "" {
		t.Error("clone shares submission")
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	r := pendingRequest(2)
	r.OnBehalfOf = "bob"

	rec := r.ToRecord()
	if rec.Status != string(workflow.StateRDApproved) || rec.CurrentApprovalLevel != 2 || rec.NextApproverID != "next" {
		t.Fatalf("ToRecord() = status %s level %d next %q", rec.Status, rec.CurrentApprovalLevel, rec.NextApproverID)
	}

	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord() error: %v", err)
	}
	if back.Status() != workflow.StateRDApproved || !back.RequestedAmount.Equal(r.RequestedAmount) {
		t.Errorf("FromRecord() = %s %s", back.Status(), back.RequestedAmount)
	}
	if next, ok := back.NextApprover(); !ok || next.ID != "next" {
		t.Errorf("NextApprover() = %+v, %v", next, ok)
	}
}

func TestFromRecord_Rejects(t *testing.T) {
	valid := func() *RequestRecord { return pendingRequest(1).ToRecord() }

	tests := []struct {
		name   string
		mutate func(*RequestRecord)
	}{
		{"unknown status", func(r *RequestRecord) { r.Status = "ARCHIVED" }},
		{"final with next approver", func(r *RequestRecord) {
			r.Status = string(workflow.StateFinalApproved)
			r.Slots[0].Final = true
		}},
		{"level disagrees with slots", func(r *RequestRecord) { r.CurrentApprovalLevel = 3 }},
		{"status disagrees with slots", func(r *RequestRecord) { r.Status = string(workflow.StateRDApproved) }},
		{"too many slots", func(r *RequestRecord) { r.Slots = append(r.Slots, ApprovalSlot{}) }},
		{"pending without approver", func(r *RequestRecord) { r.NextApproverID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid()
			tt.mutate(rec)
			if _, err := FromRecord(rec); !errors.Is(err, workflow.ErrInvariantViolation) {
				t.Errorf("FromRecord() error = %v, want ErrInvariantViolation", err)
			}
		})
	}

	unknown := valid()
	unknown.Status = "ARCHIVED"
	if _, err := FromRecord(unknown); !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("FromRecord() error = %v, want ErrInvalidState", err)
	}

	if _, err := FromRecord(nil); !errors.Is(err, workflow.ErrInvariantViolation) {
		t.Errorf("FromRecord(nil) error = %v", err)
	}
}
