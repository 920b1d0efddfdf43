package entity

import "time"

// ApprovalHistoryEntry is one filled approval slot as shown to callers
type ApprovalHistoryEntry struct {
	RequestID     string    `json:"request_id"`
	Level         int       `json:"level"`
	LevelName     string    `json:"level_name"`
	ApproverID    string    `json:"approver_id"`
	ApproverName  string    `json:"approver_name"`
	ApproverTitle string    `json:"approver_title"`
	ApprovedAt    time.Time `json:"approved_at"`
	Comment       string    `json:"comment,omitempty"`
	Final         bool      `json:"final"`
}
