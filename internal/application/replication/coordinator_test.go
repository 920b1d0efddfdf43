package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func enqueueUpsert(t *testing.T, outbox *memOutbox, id, title string) int64 {
	t.Helper()
	task := &entity.PropagationTask{
		RequestID: id,
		Op:        entity.TaskOpUpsert,
		Payload:   &entity.RequestRecord{ID: id, Title: title},
		CreatedAt: t0,
	}
	require.NoError(t, outbox.Enqueue(context.Background(), task))
	return task.Seq
}

func testConfig() CoordinatorConfig {
	cfg := DefaultCoordinatorConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.AttemptTimeout = time.Second
	cfg.BaseBackoff = time.Second
	cfg.MaxBackoff = 10 * time.Second
	cfg.MaxAttempts = 3
	cfg.Origin = "node-a"
	return cfg
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []port.ChangeNotice
}

func (n *recordingNotifier) Publish(ctx context.Context, notice port.ChangeNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func TestCoordinator_FlushPropagatesInOrder(t *testing.T) {
	outbox := newMemOutbox()
	remote := newFakeRemote()
	conf := &confirmer{outbox: outbox}
	notifier := &recordingNotifier{}
	clock := &fakeClock{t: t0}

	c := NewCoordinator(testConfig(), outbox, remote, conf, nopLogger{},
		WithNotifier(notifier), WithCoordinatorClock(clock.Now))

	enqueueUpsert(t, outbox, "a", "v1")
	enqueueUpsert(t, outbox, "b", "b1")
	enqueueUpsert(t, outbox, "a", "v2")
	enqueueUpsert(t, outbox, "a", "v3")
	require.NoError(t, outbox.Enqueue(context.Background(), &entity.PropagationTask{
		RequestID: "b", Op: entity.TaskOpDelete,
	}))

	require.NoError(t, c.Flush(context.Background()))

	assert.Equal(t, []string{"v1", "v2", "v3"}, remote.writesOf("a"))
	assert.Equal(t, []string{"b1", "<deleted>"}, remote.writesOf("b"))

	rec, _ := remote.ReadRequest(context.Background(), "a")
	require.NotNil(t, rec)
	assert.Equal(t, "v3", rec.Title)

	counts, err := c.Backlog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, counts[entity.TaskStatusDone])
	assert.Zero(t, counts[entity.TaskStatusPending])

	assert.Contains(t, conf.times, "a")
	assert.Len(t, notifier.notices, 5)
	for _, n := range notifier.notices {
		assert.Equal(t, "node-a", n.Origin)
		assert.Equal(t, port.SourceInvestmentRequests, n.Source)
	}
}

func TestCoordinator_DelayedWriteKeepsRequestOrder(t *testing.T) {
	outbox := newMemOutbox()
	remote := newFakeRemote()
	conf := &confirmer{outbox: outbox}

	hold := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	remote.block = func(rec *entity.RequestRecord) <-chan struct{} {
		if rec.ID == "a" && rec.Title == "v2" {
			once.Do(func() { close(started) })
			return hold
		}
		return nil
	}

	cfg := testConfig()
	cfg.Workers = 4
	c := NewCoordinator(cfg, outbox, remote, conf, nopLogger{})

	enqueueUpsert(t, outbox, "a", "v1")
	enqueueUpsert(t, outbox, "a", "v2")
	enqueueUpsert(t, outbox, "a", "v3")
	enqueueUpsert(t, outbox, "b", "b1")

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second write of a never started")
	}

	// other requests keep moving while a is held
	assert.Eventually(t, func() bool {
		return len(remote.writesOf("b")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"v1"}, remote.writesOf("a"))

	close(hold)

	assert.Eventually(t, func() bool {
		return len(remote.writesOf("a")) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"v1", "v2", "v3"}, remote.writesOf("a"))

	rec, _ := remote.ReadRequest(context.Background(), "a")
	require.NotNil(t, rec)
	assert.Equal(t, "v3", rec.Title)
}

func TestCoordinator_NeverRunsTwoTasksOfOneRequest(t *testing.T) {
	outbox := newMemOutbox()
	remote := newFakeRemote()
	remote.block = func(rec *entity.RequestRecord) <-chan struct{} {
		ch := make(chan struct{})
		go func() {
			time.Sleep(time.Millisecond)
			close(ch)
		}()
		return ch
	}
	conf := &confirmer{outbox: outbox}

	cfg := testConfig()
	cfg.Workers = 8
	c := NewCoordinator(cfg, outbox, remote, conf, nopLogger{})

	ids := []string{"a", "b", "c"}
	for i := 0; i < 10; i++ {
		for _, id := range ids {
			enqueueUpsert(t, outbox, id, fmt.Sprintf("%s-%d", id, i))
		}
	}

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		counts, _ := outbox.CountByStatus(context.Background())
		return counts[entity.TaskStatusDone] == 30
	}, 5*time.Second, 10*time.Millisecond)

	for _, id := range ids {
		remote.mu.Lock()
		assert.Equal(t, 1, remote.maxPar[id], "request %s", id)
		remote.mu.Unlock()

		writes := remote.writesOf(id)
		require.Len(t, writes, 10)
		for i, w := range writes {
			assert.Equal(t, fmt.Sprintf("%s-%d", id, i), w)
		}
	}
}

func TestCoordinator_RetryThenPark(t *testing.T) {
	outbox := newMemOutbox()
	remote := newFakeRemote()
	remote.failWith = errors.New("remote unavailable")
	conf := &confirmer{outbox: outbox}
	clock := &fakeClock{t: t0}

	events := make(chan *event.Event, 10)
	d := dispatcher.NewDispatcher()
	d.Subscribe(event.TypeTaskParked, func(ctx context.Context, evt *event.Event) error {
		events <- evt
		return nil
	})

	c := NewCoordinator(testConfig(), outbox, remote, conf, nopLogger{},
		WithCoordinatorClock(clock.Now), WithCoordinatorDispatcher(d))

	first := enqueueUpsert(t, outbox, "a", "v1")
	second := enqueueUpsert(t, outbox, "a", "v2")
	ctx := context.Background()

	require.NoError(t, c.Flush(ctx))
	task, _ := outbox.GetBySeq(ctx, first)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, entity.TaskStatusPending, task.Status)
	assert.Equal(t, t0.Add(time.Second), task.NextAttemptAt)
	assert.Equal(t, "remote unavailable", task.LastError)

	// not due yet
	require.NoError(t, c.Flush(ctx))
	task, _ = outbox.GetBySeq(ctx, first)
	assert.Equal(t, 1, task.Attempts)

	clock.Advance(time.Second)
	require.NoError(t, c.Flush(ctx))
	task, _ = outbox.GetBySeq(ctx, first)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, clock.Now().Add(2*time.Second), task.NextAttemptAt)

	clock.Advance(2 * time.Second)
	require.NoError(t, c.Flush(ctx))
	task, _ = outbox.GetBySeq(ctx, first)
	assert.Equal(t, entity.TaskStatusParked, task.Status)
	assert.Equal(t, 3, task.Attempts)

	select {
	case evt := <-events:
		assert.Equal(t, "a", evt.RequestID)
	default:
		t.Fatal("expected task.parked event")
	}

	// the parked head blocks the rest of the request
	remote.mu.Lock()
	remote.failWith = nil
	remote.mu.Unlock()
	clock.Advance(time.Hour)
	require.NoError(t, c.Flush(ctx))
	assert.Empty(t, remote.writesOf("a"))
	later, _ := outbox.GetBySeq(ctx, second)
	assert.Equal(t, entity.TaskStatusPending, later.Status)

	parked, err := c.Parked(ctx)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, first, parked[0].Seq)

	requeued, err := c.Requeue(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusPending, requeued.Status)
	assert.Zero(t, requeued.Attempts)

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []string{"v1", "v2"}, remote.writesOf("a"))
}

func TestCoordinator_RequeueErrors(t *testing.T) {
	outbox := newMemOutbox()
	c := NewCoordinator(testConfig(), outbox, newFakeRemote(), &confirmer{outbox: outbox}, nopLogger{})
	seq := enqueueUpsert(t, outbox, "a", "v1")

	_, err := c.Requeue(context.Background(), 999)
	assert.True(t, errors.Is(err, domainwf.ErrNotFound))

	_, err = c.Requeue(context.Background(), seq)
	assert.True(t, errors.Is(err, ErrTaskNotParked))
}

func TestCoordinator_Backoff(t *testing.T) {
	c := NewCoordinator(testConfig(), newMemOutbox(), newFakeRemote(), nil, nopLogger{})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestCoordinator_StartTwice(t *testing.T) {
	outbox := newMemOutbox()
	c := NewCoordinator(testConfig(), outbox, newFakeRemote(), &confirmer{outbox: outbox}, nopLogger{})

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	assert.Equal(t, "sync-coordinator", c.Name())
}
