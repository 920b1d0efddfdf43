package directory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Snapshot is an immutable copy of the directory. Workflow decisions take one
// snapshot and use it throughout, so a concurrent refresh never shows them a
// half-replaced org tree.
type Snapshot struct {
	users    map[string]*entity.User
	accounts map[string]*entity.Account
	finals   map[string]string
	loadedAt time.Time
}

func newSnapshot(data *port.DirectoryData, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		users:    make(map[string]*entity.User, len(data.Users)),
		accounts: make(map[string]*entity.Account, len(data.Accounts)),
		finals:   make(map[string]string, len(data.FinalApprovers)),
		loadedAt: loadedAt,
	}
	for _, u := range data.Users {
		if u == nil || u.ID == "" {
			continue
		}
		cp := *u
		s.users[u.ID] = &cp
	}
	for _, a := range data.Accounts {
		if a == nil || a.ID == "" {
			continue
		}
		cp := *a
		s.accounts[a.ID] = &cp
	}
	for _, f := range data.FinalApprovers {
		if f == nil || f.Theater == "" {
			continue
		}
		s.finals[f.Theater] = f.UserID
	}
	return s
}

func (s *Snapshot) User(id string) (*entity.User, bool) {
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (s *Snapshot) Account(id string) (*entity.Account, bool) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (s *Snapshot) FinalApproverFor(theater string) (*entity.User, bool) {
	id, ok := s.finals[theater]
	if !ok {
		return nil, false
	}
	return s.User(id)
}

// Cache holds the current directory snapshot and swaps it atomically on refresh
type Cache struct {
	current atomic.Pointer[Snapshot]
	source  port.DirectorySource
	repo    port.DirectoryRepository
	logger  Logger
	now     func() time.Time
}

// NewCache creates an empty cache. repo may be nil, in which case refreshed
// data is not persisted and LoadPersisted is a no-op.
func NewCache(source port.DirectorySource, repo port.DirectoryRepository, logger Logger) *Cache {
	c := &Cache{
		source: source,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	c.current.Store(newSnapshot(&port.DirectoryData{}, time.Time{}))
	return c
}

// Snapshot returns the directory as of now
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// View implements port.DirectoryViewer
func (c *Cache) View() port.Directory {
	return c.Snapshot()
}

func (c *Cache) User(id string) (*entity.User, bool) {
	return c.Snapshot().User(id)
}

func (c *Cache) Account(id string) (*entity.Account, bool) {
	return c.Snapshot().Account(id)
}

func (c *Cache) FinalApproverFor(theater string) (*entity.User, bool) {
	return c.Snapshot().FinalApproverFor(theater)
}

// Replace swaps in a complete copy of the directory
func (c *Cache) Replace(data *port.DirectoryData) {
	if data == nil {
		data = &port.DirectoryData{}
	}
	c.current.Store(newSnapshot(data, c.now()))
}

// Refresh reads the full directory from the source, persists it and swaps it in.
// The previous snapshot stays in place when any read fails.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("directory source not configured")
	}

	users, err := c.source.ReadUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to read users: %w", err)
	}
	accounts, err := c.source.ReadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}
	finals, err := c.source.ReadFinalApprovers(ctx)
	if err != nil {
		return fmt.Errorf("failed to read final approvers: %w", err)
	}

	data := &port.DirectoryData{Users: users, Accounts: accounts, FinalApprovers: finals}
	if c.repo != nil {
		if err := c.repo.ReplaceAll(ctx, data); err != nil {
			return fmt.Errorf("failed to persist directory: %w", err)
		}
	}

	c.Replace(data)
	c.logger.Info("Directory refreshed",
		"users", len(users),
		"accounts", len(accounts),
		"final_approvers", len(finals),
	)
	return nil
}

// LoadPersisted fills the cache from the last persisted copy
func (c *Cache) LoadPersisted(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	data, err := c.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted directory: %w", err)
	}
	if data == nil || len(data.Users) == 0 {
		return nil
	}
	c.Replace(data)
	c.logger.Info("Directory loaded from local cache", "users", len(data.Users))
	return nil
}

// Stats reports the size and age of the current snapshot
func (c *Cache) Stats() (users, accounts int, loadedAt time.Time) {
	s := c.Snapshot()
	return len(s.users), len(s.accounts), s.loadedAt
}

var (
	_ port.Directory       = (*Cache)(nil)
	_ port.DirectoryViewer = (*Cache)(nil)
	_ port.Directory       = (*Snapshot)(nil)
)
