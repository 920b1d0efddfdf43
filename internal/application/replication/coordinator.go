package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

// Confirmer closes tasks the system of record accepted
type Confirmer interface {
	ConfirmPropagated(ctx context.Context, seq int64, id string, remoteAt time.Time) error
}

// CoordinatorConfig holds configuration for the propagation pool
type CoordinatorConfig struct {
	Workers        int
	PollInterval   time.Duration
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
	DoneRetention  time.Duration
	// Origin identifies this instance in change notices
	Origin string
}

// DefaultCoordinatorConfig returns default configuration
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Workers:        4,
		PollInterval:   5 * time.Second,
		AttemptTimeout: 15 * time.Second,
		BaseBackoff:    time.Second,
		MaxBackoff:     5 * time.Minute,
		MaxAttempts:    8,
		DoneRetention:  24 * time.Hour,
	}
}

// Coordinator drains the outbox into the system of record. Tasks of one
// request run one at a time in Seq order; different requests run in parallel
// up to Workers.
type Coordinator struct {
	config     CoordinatorConfig
	outbox     port.OutboxRepository
	remote     port.RemoteStore
	confirmer  Confirmer
	dispatcher dispatcher.Dispatcher
	notifier   port.ChangeNotifier
	logger     Logger
	now        func() time.Time

	inFlightMu sync.Mutex
	inFlight   map[string]bool

	wake chan struct{}
	sem  chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex
	cancel    context.CancelFunc
	isRunning bool
	done      chan struct{}
}

// CoordinatorOption configures the coordinator
type CoordinatorOption func(*Coordinator)

// WithNotifier announces successful propagation to other instances
func WithNotifier(n port.ChangeNotifier) CoordinatorOption {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithCoordinatorDispatcher publishes request.propagated and task.parked
func WithCoordinatorDispatcher(d dispatcher.Dispatcher) CoordinatorOption {
	return func(c *Coordinator) {
		c.dispatcher = d
	}
}

// WithCoordinatorClock overrides the clock used for scheduling retries
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a new coordinator
func NewCoordinator(
	config CoordinatorConfig,
	outbox port.OutboxRepository,
	remote port.RemoteStore,
	confirmer Confirmer,
	logger Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	c := &Coordinator{
		config:    config,
		outbox:    outbox,
		remote:    remote,
		confirmer: confirmer,
		logger:    logger,
		now:       time.Now,
		inFlight:  make(map[string]bool),
		wake:      make(chan struct{}, 1),
		sem:       make(chan struct{}, config.Workers),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Name() string {
	return "sync-coordinator"
}

// Start begins the propagation loop
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return fmt.Errorf("coordinator already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.isRunning = true
	c.done = make(chan struct{})

	c.logger.Info("Sync coordinator started",
		"workers", c.config.Workers,
		"poll_interval", c.config.PollInterval,
		"max_attempts", c.config.MaxAttempts)

	go c.loop(loopCtx, c.done)
	c.Wake()
	return nil
}

// Stop cancels the loop and waits for in-flight attempts. Interrupted
// attempts are not counted and run again after restart.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.wg.Wait()
	c.logger.Info("Sync coordinator stopped")
	return nil
}

// Wake asks the loop to look for work now
func (c *Coordinator) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// HandleMutation is subscribed to mutation.applied
func (c *Coordinator) HandleMutation(ctx context.Context, evt *event.Event) error {
	c.Wake()
	return nil
}

func (c *Coordinator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.purge(ctx)
		case <-c.wake:
		}
		c.dispatchDue(ctx)
	}
}

// dispatchDue starts every claimable head that fits in the pool
func (c *Coordinator) dispatchDue(ctx context.Context) {
	free := cap(c.sem) - len(c.sem)
	if free <= 0 {
		return
	}

	tasks, err := c.claim(ctx, free)
	if err != nil {
		c.logger.Error("Failed to claim propagation tasks", "error", err)
		return
	}

	for i, task := range tasks {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			for _, rest := range tasks[i:] {
				c.release(rest.RequestID)
			}
			return
		}
		c.wg.Add(1)
		go func(task *entity.PropagationTask) {
			defer c.wg.Done()
			c.process(ctx, task)
			c.release(task.RequestID)
			<-c.sem
			// the next task of this request may be due already
			c.Wake()
		}(task)
	}
}

// Flush propagates until nothing is due, waiting for every attempt it starts
func (c *Coordinator) Flush(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tasks, err := c.claim(ctx, c.config.Workers)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		var wg sync.WaitGroup
		for _, task := range tasks {
			wg.Add(1)
			go func(task *entity.PropagationTask) {
				defer wg.Done()
				defer c.release(task.RequestID)
				c.process(ctx, task)
			}(task)
		}
		wg.Wait()
	}
}

// claim reads due heads and marks their requests in flight
func (c *Coordinator) claim(ctx context.Context, limit int) ([]*entity.PropagationTask, error) {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	skip := make([]string, 0, len(c.inFlight))
	for id := range c.inFlight {
		skip = append(skip, id)
	}

	tasks, err := c.outbox.ClaimableHeads(ctx, c.now(), skip, limit)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		c.inFlight[task.RequestID] = true
	}
	return tasks, nil
}

func (c *Coordinator) release(requestID string) {
	c.inFlightMu.Lock()
	delete(c.inFlight, requestID)
	c.inFlightMu.Unlock()
}

func (c *Coordinator) process(ctx context.Context, task *entity.PropagationTask) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	remoteAt, err := c.propagate(attemptCtx, task)
	cancel()

	if err == nil {
		c.succeed(ctx, task, remoteAt)
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.fail(ctx, task, err)
}

func (c *Coordinator) propagate(ctx context.Context, task *entity.PropagationTask) (time.Time, error) {
	switch task.Op {
	case entity.TaskOpUpsert:
		if task.Payload == nil {
			return time.Time{}, fmt.Errorf("task %d has no payload", task.Seq)
		}
		return c.remote.WriteRequest(ctx, task.Payload)
	case entity.TaskOpDelete:
		return c.remote.DeleteRequest(ctx, task.RequestID)
	default:
		return time.Time{}, fmt.Errorf("task %d has unknown op %q", task.Seq, task.Op)
	}
}

func (c *Coordinator) succeed(ctx context.Context, task *entity.PropagationTask, remoteAt time.Time) {
	if err := c.confirmer.ConfirmPropagated(ctx, task.Seq, task.RequestID, remoteAt); err != nil {
		// The remote write landed; replaying it later is harmless.
		c.logger.Error("Failed to confirm propagated task",
			"seq", task.Seq,
			"request_id", task.RequestID,
			"error", err)
		return
	}

	c.logger.Info("Request propagated",
		"seq", task.Seq,
		"request_id", task.RequestID,
		"op", task.Op,
		"attempts", task.Attempts+1)

	c.publish(ctx, event.NewEvent(event.TypeRequestPropagated, task.RequestID, map[string]interface{}{
		event.KeySeq:      task.Seq,
		event.KeyAttempts: task.Attempts + 1,
	}))

	if c.notifier != nil {
		notice := port.ChangeNotice{
			Source:    port.SourceInvestmentRequests,
			RequestID: task.RequestID,
			At:        remoteAt,
			Origin:    c.config.Origin,
		}
		if err := c.notifier.Publish(ctx, notice); err != nil {
			c.logger.Error("Failed to publish change notice", "request_id", task.RequestID, "error", err)
		}
	}
}

func (c *Coordinator) fail(ctx context.Context, task *entity.PropagationTask, cause error) {
	attempts := task.Attempts + 1
	err := fmt.Errorf("%w: task %d of %s: %v", domainwf.ErrPropagationFailed, task.Seq, task.RequestID, cause)
	now := c.now()

	if attempts >= c.config.MaxAttempts {
		if markErr := c.outbox.MarkParked(ctx, task.Seq, attempts, cause.Error(), now); markErr != nil {
			c.logger.Error("Failed to park task", "seq", task.Seq, "error", markErr)
			return
		}
		c.logger.Error("Propagation task parked",
			"seq", task.Seq,
			"request_id", task.RequestID,
			"attempts", attempts,
			"error", err)
		c.publish(ctx, event.NewEvent(event.TypeTaskParked, task.RequestID, map[string]interface{}{
			event.KeySeq:      task.Seq,
			event.KeyAttempts: attempts,
			event.KeyError:    cause.Error(),
		}))
		return
	}

	next := now.Add(c.backoff(attempts))
	if markErr := c.outbox.MarkRetry(ctx, task.Seq, attempts, cause.Error(), next); markErr != nil {
		c.logger.Error("Failed to schedule retry", "seq", task.Seq, "error", markErr)
		return
	}
	c.logger.Error("Propagation attempt failed",
		"seq", task.Seq,
		"request_id", task.RequestID,
		"attempts", attempts,
		"next_attempt_at", next,
		"error", err)
}

// backoff is BaseBackoff doubled per failed attempt, capped at MaxBackoff
func (c *Coordinator) backoff(attempts int) time.Duration {
	d := c.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if c.config.MaxBackoff > 0 && d >= c.config.MaxBackoff {
			return c.config.MaxBackoff
		}
	}
	if c.config.MaxBackoff > 0 && d > c.config.MaxBackoff {
		return c.config.MaxBackoff
	}
	return d
}

func (c *Coordinator) publish(ctx context.Context, evt *event.Event) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Dispatch(ctx, evt); err != nil {
		c.logger.Error("Event handlers failed", "event_type", evt.Type, "error", err)
	}
}

func (c *Coordinator) purge(ctx context.Context) {
	if c.config.DoneRetention <= 0 {
		return
	}
	n, err := c.outbox.PurgeDone(ctx, c.now().Add(-c.config.DoneRetention))
	if err != nil {
		c.logger.Error("Failed to purge finished tasks", "error", err)
		return
	}
	if n > 0 {
		c.logger.Info("Purged finished tasks", "count", n)
	}
}

// ErrTaskNotParked is returned when requeueing a task that is not parked
var ErrTaskNotParked = errors.New("task is not parked")

// Requeue gives a parked task a fresh set of attempts
func (c *Coordinator) Requeue(ctx context.Context, seq int64) (*entity.PropagationTask, error) {
	task, err := c.outbox.GetBySeq(ctx, seq)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %d", domainwf.ErrNotFound, seq)
	}
	if task.Status != entity.TaskStatusParked {
		return nil, fmt.Errorf("%w: task %d is %s", ErrTaskNotParked, seq, task.Status)
	}
	if err := c.outbox.Requeue(ctx, seq, c.now()); err != nil {
		return nil, err
	}

	c.logger.Info("Parked task requeued", "seq", seq, "request_id", task.RequestID)
	c.Wake()
	return c.outbox.GetBySeq(ctx, seq)
}

// Parked lists tasks waiting for an operator
func (c *Coordinator) Parked(ctx context.Context) ([]*entity.PropagationTask, error) {
	return c.outbox.ListParked(ctx)
}

// Backlog counts outbox tasks by status
func (c *Coordinator) Backlog(ctx context.Context) (map[entity.TaskStatus]int, error) {
	return c.outbox.CountByStatus(ctx)
}
