// Package memory is an in-process system of record used by tests, demos and
// single-node deployments without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

// Op names a remote operation for fault hooks
type Op string

const (
	OpRead     Op = "read"
	OpWrite    Op = "write"
	OpDelete   Op = "delete"
	OpSnapshot Op = "snapshot"
)

// Hook runs before an operation; a non-nil error fails it
type Hook func(ctx context.Context, op Op, id string) error

// Store implements port.RemoteStore and port.DirectorySource
type Store struct {
	mu       sync.RWMutex
	records  map[string]*entity.RequestRecord
	hwm      time.Time
	users    []*entity.User
	accounts []*entity.Account
	finals   []*entity.FinalApprover
	hook     Hook
	now      func() time.Time
}

// Option configures the store
type Option func(*Store)

// WithClock replaces time.Now for modification times
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithHook installs a fault injection hook
func WithHook(h Hook) Option {
	return func(s *Store) {
		s.hook = h
	}
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*entity.RequestRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHook replaces the fault hook; nil removes it
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// SetDirectory replaces the reference data
func (s *Store) SetDirectory(data *port.DirectoryData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append([]*entity.User(nil), data.Users...)
	s.accounts = append([]*entity.Account(nil), data.Accounts...)
	s.finals = append([]*entity.FinalApprover(nil), data.FinalApprovers...)
}

// SeedDirectory loads reference data during startup
func (s *Store) SeedDirectory(ctx context.Context, data *port.DirectoryData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.SetDirectory(data)
	return nil
}

func (s *Store) run(ctx context.Context, op Op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	h := s.hook
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(ctx, op, id)
}

// tick advances the high-water mark strictly; callers hold mu
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.hwm) {
		t = s.hwm.Add(time.Microsecond)
	}
	s.hwm = t
	return t
}

func (s *Store) ReadRequest(ctx context.Context, id string) (*entity.RequestRecord, error) {
	if err := s.run(ctx, OpRead, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (s *Store) WriteRequest(ctx context.Context, rec *entity.RequestRecord) (time.Time, error) {
	if rec == nil || rec.ID == "" {
		return time.Time{}, fmt.Errorf("write request: record has no id")
	}
	if err := s.run(ctx, OpWrite, rec.ID); err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(rec)
	return s.tick(), nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) (time.Time, error) {
	if err := s.run(ctx, OpDelete, id); err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return s.tick(), nil
}

func (s *Store) ReadHighWaterMark(ctx context.Context, source string) (time.Time, error) {
	if err := s.run(ctx, OpRead, ""); err != nil {
		return time.Time{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hwm, nil
}

func (s *Store) ReadSnapshot(ctx context.Context, source string) (*port.RemoteSnapshot, error) {
	if err := s.run(ctx, OpSnapshot, ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &port.RemoteSnapshot{
		Source:        source,
		HighWaterMark: s.hwm,
		Records:       make([]*entity.RequestRecord, 0, len(s.records)),
	}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, copyRecord(rec))
	}
	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].ID < snap.Records[j].ID })
	return snap, nil
}

func (s *Store) ReadUsers(ctx context.Context) ([]*entity.User, error) {
	if err := s.run(ctx, OpSnapshot, port.SourceDirectory); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.User, len(s.users))
	for i, u := range s.users {
		cp := *u
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) ReadAccounts(ctx context.Context) ([]*entity.Account, error) {
	if err := s.run(ctx, OpSnapshot, port.SourceDirectory); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Account, len(s.accounts))
	for i, a := range s.accounts {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) ReadFinalApprovers(ctx context.Context) ([]*entity.FinalApprover, error) {
	if err := s.run(ctx, OpSnapshot, port.SourceDirectory); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.FinalApprover, len(s.finals))
	for i, f := range s.finals {
		cp := *f
		out[i] = &cp
	}
	return out, nil
}

func copyRecord(rec *entity.RequestRecord) *entity.RequestRecord {
	cp := *rec
	cp.Contributors = append([]string(nil), rec.Contributors...)
	cp.Slots = append([]entity.ApprovalSlot(nil), rec.Slots...)
	return &cp
}
