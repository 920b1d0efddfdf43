package entity

import "time"

// AuditAction names a recorded transition
type AuditAction string

const (
	AuditCreate       AuditAction = "CREATE"
	AuditUpdateDraft  AuditAction = "UPDATE_DRAFT"
	AuditDeleteDraft  AuditAction = "DELETE_DRAFT"
	AuditSubmit       AuditAction = "SUBMIT"
	AuditApprove      AuditAction = "APPROVE"
	AuditFinalApprove AuditAction = "FINAL_APPROVE"
	AuditReject       AuditAction = "REJECT"
	AuditWithdraw     AuditAction = "WITHDRAW"
	AuditSendBack     AuditAction = "SEND_BACK"
	AuditRevise       AuditAction = "REVISE"
)

// AuditEntry is an append-only record of one transition
type AuditEntry struct {
	ID        int64          `json:"id"`
	RequestID string         `json:"request_id"`
	Action    AuditAction    `json:"action"`
	ActorID   string         `json:"actor_id"`
	Comment   string         `json:"comment,omitempty"`
	Before    *RequestRecord `json:"before,omitempty"`
	After     *RequestRecord `json:"after,omitempty"`
	At        time.Time      `json:"at"`
}
