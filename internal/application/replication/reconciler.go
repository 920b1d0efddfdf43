package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/store"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
)

// Replacer applies a remote snapshot to the local cache
type Replacer interface {
	ReplaceFromRemote(ctx context.Context, records []*entity.RequestRecord, asOf time.Time) (store.ReplaceStats, error)
}

// DirectoryRefresher reloads reference data
type DirectoryRefresher interface {
	Refresh(ctx context.Context) error
}

// ErrReconcileInProgress is returned when a run is requested while one is active
var ErrReconcileInProgress = errors.New("reconciliation already in progress")

// Reconciliation steps reported by Status
const (
	StepIdle      = "idle"
	StepDirectory = "refreshing directory"
	StepWatermark = "checking high-water mark"
	StepSnapshot  = "reading snapshot"
	StepReplace   = "replacing cache"
	StepDone      = "done"
)

// ReconcilerConfig holds configuration for cache reconciliation
type ReconcilerConfig struct {
	Interval       time.Duration
	Timeout        time.Duration
	RefreshRetries int
	RetryDelay     time.Duration
	RunOnStart     bool
}

// DefaultReconcilerConfig returns default configuration
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:       time.Minute,
		Timeout:        2 * time.Minute,
		RefreshRetries: 2,
		RetryDelay:     2 * time.Second,
		RunOnStart:     true,
	}
}

// Status describes the current or last reconciliation run
type Status struct {
	Running       bool               `json:"running"`
	Step          string             `json:"step"`
	Progress      int                `json:"progress"`
	Attempt       int                `json:"attempt"`
	LastRunAt     time.Time          `json:"last_run_at,omitempty"`
	LastSuccessAt time.Time          `json:"last_success_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	LastStats     store.ReplaceStats `json:"last_stats"`
	Watermark     time.Time          `json:"watermark,omitempty"`
}

// Reconciler pulls remote snapshots into the cache when the remote
// high-water mark moves past the local one
type Reconciler struct {
	config     ReconcilerConfig
	remote     port.RemoteStore
	replacer   Replacer
	watermarks port.WatermarkRepository
	directory  DirectoryRefresher
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time

	runMu    sync.Mutex
	statusMu sync.RWMutex
	status   Status

	trigger chan bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	isRunning bool
	done      chan struct{}
}

// ReconcilerOption configures the reconciler
type ReconcilerOption func(*Reconciler)

// WithDirectory refreshes reference data at the start of every run
func WithDirectory(d DirectoryRefresher) ReconcilerOption {
	return func(r *Reconciler) {
		r.directory = d
	}
}

// WithReconcilerDispatcher publishes cache.reconciled
func WithReconcilerDispatcher(d dispatcher.Dispatcher) ReconcilerOption {
	return func(r *Reconciler) {
		r.dispatcher = d
	}
}

// NewReconciler creates a new reconciler
func NewReconciler(
	config ReconcilerConfig,
	remote port.RemoteStore,
	replacer Replacer,
	watermarks port.WatermarkRepository,
	logger Logger,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		config:     config,
		remote:     remote,
		replacer:   replacer,
		watermarks: watermarks,
		logger:     logger,
		now:        time.Now,
		status:     Status{Step: StepIdle},
		trigger:    make(chan bool, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Name() string {
	return "cache-reconciler"
}

// Start runs reconciliation at startup and then on the interval
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("reconciler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.isRunning = true
	r.done = make(chan struct{})

	r.logger.Info("Cache reconciler started", "interval", r.config.Interval)
	go r.loop(loopCtx, r.done)
	if r.config.RunOnStart {
		r.Trigger(true)
	}
	return nil
}

// Stop ends the loop, waiting for an active run to notice cancellation
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("Cache reconciler stopped")
	return nil
}

// Trigger requests a run. force skips the high-water mark comparison.
func (r *Reconciler) Trigger(force bool) {
	select {
	case r.trigger <- force:
	default:
		if force {
			// upgrade a queued unforced request
			select {
			case <-r.trigger:
			default:
			}
			select {
			case r.trigger <- true:
			default:
			}
		}
	}
}

// HandleChangeNotice reacts to another instance writing to the remote
func (r *Reconciler) HandleChangeNotice(ctx context.Context, notice port.ChangeNotice) {
	r.Trigger(false)
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		force := false
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case force = <-r.trigger:
		}

		if err := r.RunOnce(ctx, force); err != nil && !errors.Is(err, ErrReconcileInProgress) {
			r.logger.Error("Reconciliation failed", "error", err)
		}
	}
}

// RunOnce reconciles now, retrying a failed run up to RefreshRetries times
func (r *Reconciler) RunOnce(ctx context.Context, force bool) error {
	if !r.runMu.TryLock() {
		return ErrReconcileInProgress
	}
	defer r.runMu.Unlock()

	r.updateStatus(func(s *Status) {
		s.Running = true
		s.LastRunAt = r.now()
		s.LastError = ""
	})

	var err error
retry:
	for attempt := 1; ; attempt++ {
		r.updateStatus(func(s *Status) { s.Attempt = attempt })

		if err = r.run(ctx, force); err == nil {
			break
		}
		r.logger.Error("Reconciliation attempt failed", "attempt", attempt, "error", err)
		if attempt > r.config.RefreshRetries {
			break
		}

		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(r.config.RetryDelay):
		}
	}

	r.updateStatus(func(s *Status) {
		s.Running = false
		if err != nil {
			s.LastError = err.Error()
			return
		}
		s.Step = StepDone
		s.Progress = 100
		s.LastSuccessAt = r.now()
	})
	return err
}

func (r *Reconciler) run(ctx context.Context, force bool) error {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	if r.directory != nil {
		r.step(StepDirectory, 10)
		if err := r.directory.Refresh(ctx); err != nil {
			return fmt.Errorf("directory refresh: %w", err)
		}
	}

	r.step(StepWatermark, 30)
	remoteHWM, err := r.remote.ReadHighWaterMark(ctx, port.SourceInvestmentRequests)
	if err != nil {
		return fmt.Errorf("read remote high-water mark: %w", err)
	}
	localHWM, err := r.watermarks.Get(ctx, port.SourceInvestmentRequests)
	if err != nil {
		return fmt.Errorf("read local watermark: %w", err)
	}
	if !force && !remoteHWM.After(localHWM) {
		r.updateStatus(func(s *Status) { s.Watermark = localHWM })
		return nil
	}

	r.step(StepSnapshot, 50)
	snapshot, err := r.remote.ReadSnapshot(ctx, port.SourceInvestmentRequests)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	hwm := snapshot.HighWaterMark
	if hwm.IsZero() {
		hwm = remoteHWM
	}

	r.step(StepReplace, 80)
	stats, err := r.replacer.ReplaceFromRemote(ctx, snapshot.Records, hwm)
	if err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	if err := r.watermarks.Set(ctx, port.SourceInvestmentRequests, hwm); err != nil {
		return fmt.Errorf("store watermark: %w", err)
	}

	r.updateStatus(func(s *Status) {
		s.LastStats = stats
		s.Watermark = hwm
	})

	if r.dispatcher != nil {
		evt := event.NewEvent(event.TypeCacheReconciled, "", map[string]interface{}{
			event.KeySource:   port.SourceInvestmentRequests,
			event.KeyUpserted: stats.Upserted,
			event.KeyRemoved:  stats.Removed,
			event.KeySkipped:  stats.SkippedOpen + stats.SkippedInvalid + stats.SkippedStale,
		})
		if err := r.dispatcher.Dispatch(ctx, evt); err != nil {
			r.logger.Error("Reconciliation handlers failed", "error", err)
		}
	}
	return nil
}

func (r *Reconciler) step(name string, progress int) {
	r.updateStatus(func(s *Status) {
		s.Step = name
		s.Progress = progress
	})
}

func (r *Reconciler) updateStatus(fn func(*Status)) {
	r.statusMu.Lock()
	fn(&r.status)
	r.statusMu.Unlock()
}

// Status returns a copy of the current reconciliation status
func (r *Reconciler) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}
