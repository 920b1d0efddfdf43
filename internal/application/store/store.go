package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MutateFunc computes a mutation from the current request. It runs under the
// request's lock and must not do remote I/O. Returning a nil mutation means
// nothing changes.
type MutateFunc func(current *entity.InvestmentRequest) (*entity.Mutation, error)

// ReplaceStats summarizes one ReplaceFromRemote call
type ReplaceStats struct {
	Upserted       int
	Removed        int
	SkippedOpen    int
	SkippedInvalid int
	// SkippedStale counts rows whose confirmed remote write is newer than the snapshot
	SkippedStale   int
}

// Store is the local, authoritative-for-reads cache of investment requests.
// Every local change commits its row, its outbox task and its audit entry in
// one transaction.
type Store struct {
	requests   port.RequestRepository
	outbox     port.OutboxRepository
	audit      port.AuditRepository
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	locks      *keyLock
	logger     Logger
	now        func() time.Time
}

// Option configures the store
type Option func(*Store)

// WithDispatcher publishes mutation.applied after each commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *Store) {
		s.dispatcher = d
	}
}

// WithClock overrides the clock used for outbox timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a request store
func New(
	requests port.RequestRepository,
	outbox port.OutboxRepository,
	audit port.AuditRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) *Store {
	s := &Store{
		requests:  requests,
		outbox:    outbox,
		audit:     audit,
		txManager: txManager,
		locks:     newKeyLock(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached request or ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (*entity.InvestmentRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", domainwf.ErrNotFound, id)
	}
	return req, nil
}

func (s *Store) List(ctx context.Context, filter port.RequestFilter) ([]*entity.InvestmentRequest, error) {
	return s.requests.List(ctx, filter)
}

// Create inserts a new request with a CREATE audit entry and an UPSERT task
func (s *Store) Create(ctx context.Context, req *entity.InvestmentRequest, actorID string) (*entity.InvestmentRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	existing, err := s.requests.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: request %s", port.ErrAlreadyExists, req.ID)
	}

	m := &entity.Mutation{
		Action:  entity.AuditCreate,
		ActorID: actorID,
		After:   req.Clone(),
		At:      req.CreatedAt,
	}
	if err := s.commit(ctx, m, s.requests.Insert); err != nil {
		return nil, err
	}
	s.publish(ctx, m)
	return m.After.Clone(), nil
}

// Apply serializes fn with every other change to the same request and
// commits its result
func (s *Store) Apply(ctx context.Context, id string, fn MutateFunc) (*entity.InvestmentRequest, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if m == nil {
		return current, nil
	}
	if m.After == nil || m.After.ID != id {
		return nil, fmt.Errorf("%w: mutation of %s does not produce that request", domainwf.ErrInvariantViolation, id)
	}
	if err := m.After.Validate(); err != nil {
		return nil, err
	}
	if m.Before == nil {
		m.Before = current
	}

	if err := s.commit(ctx, m, s.requests.Update); err != nil {
		return nil, err
	}
	s.publish(ctx, m)
	return m.After.Clone(), nil
}

// Delete removes a request and queues its remote deletion. fn decides whether
// the removal is allowed and returns the mutation to audit.
func (s *Store) Delete(ctx context.Context, id string, fn MutateFunc) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	m, err := fn(current.Clone())
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	m.Before = current
	m.After = nil

	now := s.now().UTC()
	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requests.Delete(ctx, id); err != nil {
			return err
		}
		task := &entity.PropagationTask{
			RequestID:     id,
			Op:            entity.TaskOpDelete,
			Status:        entity.TaskStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.outbox.Enqueue(ctx, task); err != nil {
			return err
		}
		return s.audit.Append(ctx, m.AuditEntry())
	})
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	s.publish(ctx, m)
	return nil
}

func (s *Store) commit(ctx context.Context, m *entity.Mutation, write func(context.Context, *entity.InvestmentRequest) error) error {
	now := s.now().UTC()
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := write(ctx, m.After); err != nil {
			return err
		}
		task := &entity.PropagationTask{
			RequestID:     m.After.ID,
			Op:            entity.TaskOpUpsert,
			Payload:       m.After.ToRecord(),
			Status:        entity.TaskStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.outbox.Enqueue(ctx, task); err != nil {
			return err
		}
		return s.audit.Append(ctx, m.AuditEntry())
	})
	if err != nil {
		return fmt.Errorf("failed to commit %s of %s: %w", m.Action, m.After.ID, err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, m *entity.Mutation) {
	if s.dispatcher == nil {
		return
	}
	id := ""
	status := ""
	if m.After != nil {
		id = m.After.ID
		status = m.After.Status().String()
	} else if m.Before != nil {
		id = m.Before.ID
	}
	evt := event.NewEvent(event.TypeMutationApplied, id, map[string]interface{}{
		event.KeyAction:  string(m.Action),
		event.KeyActorID: m.ActorID,
		event.KeyStatus:  status,
	})
	if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
		s.logger.Error("Mutation handlers failed", "request_id", id, "error", err)
	}
}

// ConfirmPropagated closes a task the system of record accepted and records
// the remote modification time on the request
func (s *Store) ConfirmPropagated(ctx context.Context, seq int64, id string, remoteAt time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.outbox.MarkDone(ctx, seq, s.now()); err != nil {
			return err
		}
		return s.requests.SetRemoteUpdatedAt(ctx, id, remoteAt)
	})
}

// ReplaceFromRemote makes the cache match a remote snapshot taken at
// high-water mark asOf, except for requests with local changes still waiting
// to propagate and requests whose confirmed remote write is newer than the
// snapshot. Invalid remote records are logged and left out. A zero asOf only
// compares each record with the row's confirmed watermark.
func (s *Store) ReplaceFromRemote(ctx context.Context, records []*entity.RequestRecord, asOf time.Time) (ReplaceStats, error) {
	var stats ReplaceStats
	remote := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			stats.SkippedInvalid++
			continue
		}
		remote[rec.ID] = true

		if err := s.replaceOne(ctx, rec, asOf, &stats); err != nil {
			return stats, err
		}
	}

	ids, err := s.requests.ListIDs(ctx)
	if err != nil {
		return stats, err
	}
	for _, id := range ids {
		if remote[id] {
			continue
		}
		if err := s.pruneOne(ctx, id, asOf, &stats); err != nil {
			return stats, err
		}
	}

	s.logger.Info("Cache replaced from remote",
		"upserted", stats.Upserted,
		"removed", stats.Removed,
		"skipped_open", stats.SkippedOpen,
		"skipped_invalid", stats.SkippedInvalid,
		"skipped_stale", stats.SkippedStale,
	)
	return stats, nil
}

func (s *Store) replaceOne(ctx context.Context, rec *entity.RequestRecord, asOf time.Time, stats *ReplaceStats) error {
	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	open, err := s.outbox.HasOpen(ctx, rec.ID)
	if err != nil {
		return err
	}
	if open {
		stats.SkippedOpen++
		return nil
	}

	local, err := s.requests.GetByID(ctx, rec.ID)
	if err != nil {
		return err
	}
	if local != nil && confirmedAfter(local, rec.UpdatedAt, asOf) {
		stats.SkippedStale++
		return nil
	}

	req, err := entity.FromRecord(rec)
	if err != nil {
		stats.SkippedInvalid++
		s.logger.Error("Skipping invalid remote record", "request_id", rec.ID, "error", err)
		return nil
	}

	if err := s.requests.Upsert(ctx, req, rec.UpdatedAt); err != nil {
		return err
	}
	stats.Upserted++
	return nil
}

func (s *Store) pruneOne(ctx context.Context, id string, asOf time.Time, stats *ReplaceStats) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	open, err := s.outbox.HasOpen(ctx, id)
	if err != nil {
		return err
	}
	if open {
		stats.SkippedOpen++
		return nil
	}

	if !asOf.IsZero() {
		local, err := s.requests.GetByID(ctx, id)
		if err != nil {
			return err
		}
		// created and confirmed after the snapshot was read
		if local != nil && local.RemoteUpdatedAt != nil && local.RemoteUpdatedAt.After(asOf) {
			stats.SkippedStale++
			return nil
		}
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return err
	}
	stats.Removed++
	return nil
}

// confirmedAfter reports whether the row holds a remote write newer than the
// snapshot record or the snapshot itself
func confirmedAfter(local *entity.InvestmentRequest, recordAt, asOf time.Time) bool {
	if local.RemoteUpdatedAt == nil {
		return false
	}
	if local.RemoteUpdatedAt.After(recordAt) {
		return true
	}
	return !asOf.IsZero() && local.RemoteUpdatedAt.After(asOf)
}

// ApprovalHistory lists the filled approval slots of a request
func (s *Store) ApprovalHistory(ctx context.Context, id string) ([]entity.ApprovalHistoryEntry, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return req.History(), nil
}

// AuditTrail lists every recorded transition of a request, oldest first.
// It works for deleted requests too.
func (s *Store) AuditTrail(ctx context.Context, id string) ([]*entity.AuditEntry, error) {
	return s.audit.ListByRequest(ctx, id)
}
