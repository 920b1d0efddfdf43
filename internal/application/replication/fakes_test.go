package replication

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/store"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memOutbox keeps the same head-of-request semantics as the SQL outbox
type memOutbox struct {
	mu    sync.Mutex
	tasks map[int64]*entity.PropagationTask
	next  int64
}

func newMemOutbox() *memOutbox {
	return &memOutbox{tasks: make(map[int64]*entity.PropagationTask)}
}

func (m *memOutbox) Enqueue(ctx context.Context, task *entity.PropagationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	task.Seq = m.next
	if task.Status == "" {
		task.Status = entity.TaskStatusPending
	}
	cp := *task
	m.tasks[cp.Seq] = &cp
	return nil
}

func (m *memOutbox) ordered() []*entity.PropagationTask {
	out := make([]*entity.PropagationTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (m *memOutbox) ClaimableHeads(ctx context.Context, now time.Time, skip []string, limit int) ([]*entity.PropagationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	seen := make(map[string]bool)
	var heads []*entity.PropagationTask
	for _, t := range m.ordered() {
		if t.Status == entity.TaskStatusDone || seen[t.RequestID] {
			continue
		}
		seen[t.RequestID] = true
		if skipped[t.RequestID] || t.Status != entity.TaskStatusPending || t.NextAttemptAt.After(now) {
			continue
		}
		cp := *t
		heads = append(heads, &cp)
		if limit > 0 && len(heads) == limit {
			break
		}
	}
	return heads, nil
}

func (m *memOutbox) GetBySeq(ctx context.Context, seq int64) (*entity.PropagationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[seq]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memOutbox) update(seq int64, fn func(t *entity.PropagationTask)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[seq]
	if !ok {
		return errors.New("no such task")
	}
	fn(t)
	return nil
}

func (m *memOutbox) MarkDone(ctx context.Context, seq int64, at time.Time) error {
	return m.update(seq, func(t *entity.PropagationTask) { t.Status = entity.TaskStatusDone; t.UpdatedAt = at })
}

func (m *memOutbox) MarkRetry(ctx context.Context, seq int64, attempts int, lastErr string, next time.Time) error {
	return m.update(seq, func(t *entity.PropagationTask) {
		t.Attempts = attempts
		t.LastError = lastErr
		t.NextAttemptAt = next
	})
}

func (m *memOutbox) MarkParked(ctx context.Context, seq int64, attempts int, lastErr string, at time.Time) error {
	return m.update(seq, func(t *entity.PropagationTask) {
		t.Status = entity.TaskStatusParked
		t.Attempts = attempts
		t.LastError = lastErr
	})
}

func (m *memOutbox) Requeue(ctx context.Context, seq int64, at time.Time) error {
	return m.update(seq, func(t *entity.PropagationTask) {
		t.Status = entity.TaskStatusPending
		t.Attempts = 0
		t.NextAttemptAt = at
	})
}

func (m *memOutbox) HasOpen(ctx context.Context, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.RequestID == requestID && t.Status != entity.TaskStatusDone {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOutbox) ListParked(ctx context.Context) ([]*entity.PropagationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PropagationTask
	for _, t := range m.ordered() {
		if t.Status == entity.TaskStatusParked {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOutbox) CountByStatus(ctx context.Context) (map[entity.TaskStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[entity.TaskStatus]int{}
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (m *memOutbox) PurgeDone(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// confirmer closes tasks in the outbox and remembers the remote times
type confirmer struct {
	outbox *memOutbox
	mu     sync.Mutex
	times  map[string]time.Time
}

func (c *confirmer) ConfirmPropagated(ctx context.Context, seq int64, id string, remoteAt time.Time) error {
	c.mu.Lock()
	if c.times == nil {
		c.times = make(map[string]time.Time)
	}
	c.times[id] = remoteAt
	c.mu.Unlock()
	return c.outbox.MarkDone(ctx, seq, remoteAt)
}

// fakeRemote records writes per request and can fail or block them
type fakeRemote struct {
	mu       sync.Mutex
	records  map[string]*entity.RequestRecord
	writes   map[string][]string
	active   map[string]int
	maxPar   map[string]int
	failWith error
	// block, when set, is consulted before each write
	block func(rec *entity.RequestRecord) <-chan struct{}
	clock func() time.Time

	hwm      time.Time
	hwmErr   error
	snapErr  error
	hwmReads int
	snaps    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[string]*entity.RequestRecord),
		writes:  make(map[string][]string),
		active:  make(map[string]int),
		maxPar:  make(map[string]int),
		clock:   time.Now,
	}
}

func (f *fakeRemote) enter(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[id]++
	if f.active[id] > f.maxPar[id] {
		f.maxPar[id] = f.active[id]
	}
}

func (f *fakeRemote) leave(id string) {
	f.mu.Lock()
	f.active[id]--
	f.mu.Unlock()
}

func (f *fakeRemote) ReadRequest(ctx context.Context, id string) (*entity.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id], nil
}

func (f *fakeRemote) WriteRequest(ctx context.Context, rec *entity.RequestRecord) (time.Time, error) {
	f.enter(rec.ID)
	defer f.leave(rec.ID)

	if f.block != nil {
		if ch := f.block(rec); ch != nil {
			select {
			case <-ch:
			case <-ctx.Done():
				return time.Time{}, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return time.Time{}, f.failWith
	}
	cp := *rec
	f.records[rec.ID] = &cp
	f.writes[rec.ID] = append(f.writes[rec.ID], rec.Title)
	f.hwm = f.clock()
	return f.hwm, nil
}

func (f *fakeRemote) DeleteRequest(ctx context.Context, id string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return time.Time{}, f.failWith
	}
	delete(f.records, id)
	f.writes[id] = append(f.writes[id], "<deleted>")
	f.hwm = f.clock()
	return f.hwm, nil
}

func (f *fakeRemote) ReadHighWaterMark(ctx context.Context, source string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hwmReads++
	return f.hwm, f.hwmErr
}

func (f *fakeRemote) ReadSnapshot(ctx context.Context, source string) (*port.RemoteSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps++
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	snap := &port.RemoteSnapshot{Source: source, HighWaterMark: f.hwm}
	for _, rec := range f.records {
		cp := *rec
		snap.Records = append(snap.Records, &cp)
	}
	return snap, nil
}

func (f *fakeRemote) writesOf(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes[id]...)
}

type fakeReplacer struct {
	mu    sync.Mutex
	calls [][]*entity.RequestRecord
	asOf  []time.Time
	err   error
}

func (f *fakeReplacer) ReplaceFromRemote(ctx context.Context, records []*entity.RequestRecord, asOf time.Time) (store.ReplaceStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.ReplaceStats{}, f.err
	}
	f.calls = append(f.calls, records)
	f.asOf = append(f.asOf, asOf)
	return store.ReplaceStats{Upserted: len(records)}, nil
}

type memWatermarks struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func (m *memWatermarks) Get(ctx context.Context, source string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[source], nil
}

func (m *memWatermarks) Set(ctx context.Context, source string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks == nil {
		m.marks = make(map[string]time.Time)
	}
	m.marks[source] = at
	return nil
}

type countingDirectory struct {
	mu    sync.Mutex
	count int
	err   error
}

func (d *countingDirectory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	return d.err
}
