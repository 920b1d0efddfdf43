package entity

import "time"

// Mutation is the result of applying one intent: the state before and after
// plus what the audit log should say about it. After is nil for deletions.
type Mutation struct {
	Action  AuditAction
	ActorID string
	Comment string
	Before  *InvestmentRequest
	After   *InvestmentRequest
	At      time.Time
}

// AuditEntry builds the audit record for the mutation
func (m *Mutation) AuditEntry() *AuditEntry {
	entry := &AuditEntry{
		Action:  m.Action,
		ActorID: m.ActorID,
		Comment: m.Comment,
		At:      m.At,
	}
	if m.Before != nil {
		entry.RequestID = m.Before.ID
		entry.Before = m.Before.ToRecord()
	}
	if m.After != nil {
		entry.RequestID = m.After.ID
		entry.After = m.After.ToRecord()
	}
	return entry
}
