package replication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
)

func reconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:       time.Hour,
		Timeout:        time.Second,
		RefreshRetries: 2,
		RetryDelay:     time.Millisecond,
	}
}

type reconcilerFixture struct {
	remote     *fakeRemote
	replacer   *fakeReplacer
	watermarks *memWatermarks
	directory  *countingDirectory
	events     chan *event.Event
	r          *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		remote:     newFakeRemote(),
		replacer:   &fakeReplacer{},
		watermarks: &memWatermarks{},
		directory:  &countingDirectory{},
		events:     make(chan *event.Event, 10),
	}
	d := dispatcher.NewDispatcher()
	d.Subscribe(event.TypeCacheReconciled, func(ctx context.Context, evt *event.Event) error {
		f.events <- evt
		return nil
	})
	f.r = NewReconciler(reconcilerConfig(), f.remote, f.replacer, f.watermarks, nopLogger{},
		WithDirectory(f.directory), WithReconcilerDispatcher(d))
	return f
}

func TestReconciler_ReplacesWhenRemoteMoved(t *testing.T) {
	f := newReconcilerFixture(t)
	f.remote.records["a"] = &entity.RequestRecord{ID: "a", Title: "remote"}
	f.remote.hwm = t0

	require.NoError(t, f.r.RunOnce(context.Background(), false))

	require.Len(t, f.replacer.calls, 1)
	assert.Len(t, f.replacer.calls[0], 1)
	assert.Equal(t, t0, f.replacer.asOf[0], "snapshot high-water mark bounds the replace")
	mark, _ := f.watermarks.Get(context.Background(), port.SourceInvestmentRequests)
	assert.Equal(t, t0, mark)
	assert.Equal(t, 1, f.directory.count)

	status := f.r.Status()
	assert.False(t, status.Running)
	assert.Equal(t, StepDone, status.Step)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 1, status.LastStats.Upserted)
	assert.Equal(t, t0, status.Watermark)
	assert.Empty(t, status.LastError)

	select {
	case evt := <-f.events:
		assert.Equal(t, int64(1), evt.GetPayloadInt(event.KeyUpserted))
	default:
		t.Fatal("expected cache.reconciled event")
	}
}

func TestReconciler_SkipsWhenWatermarkUnchanged(t *testing.T) {
	f := newReconcilerFixture(t)
	f.remote.hwm = t0
	require.NoError(t, f.watermarks.Set(context.Background(), port.SourceInvestmentRequests, t0))

	require.NoError(t, f.r.RunOnce(context.Background(), false))
	assert.Zero(t, f.remote.snaps)
	assert.Empty(t, f.replacer.calls)
	assert.Equal(t, 1, f.directory.count)

	// forcing reads the snapshot anyway
	require.NoError(t, f.r.RunOnce(context.Background(), true))
	assert.Equal(t, 1, f.remote.snaps)
	assert.Len(t, f.replacer.calls, 1)
}

func TestReconciler_RetriesFailedRuns(t *testing.T) {
	f := newReconcilerFixture(t)
	f.remote.hwmErr = errors.New("remote down")

	err := f.r.RunOnce(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote down")
	assert.Equal(t, 3, f.remote.hwmReads)

	status := f.r.Status()
	assert.Equal(t, 3, status.Attempt)
	assert.Contains(t, status.LastError, "remote down")
	assert.True(t, status.LastSuccessAt.IsZero())
}

func TestReconciler_DirectoryFailureAbortsRun(t *testing.T) {
	f := newReconcilerFixture(t)
	f.directory.err = errors.New("directory down")

	err := f.r.RunOnce(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, 3, f.directory.count)
	assert.Zero(t, f.remote.hwmReads)
}

func TestReconciler_ReplaceErrorKeepsWatermark(t *testing.T) {
	f := newReconcilerFixture(t)
	f.remote.hwm = t0
	f.replacer.err = errors.New("disk full")

	require.Error(t, f.r.RunOnce(context.Background(), false))
	mark, _ := f.watermarks.Get(context.Background(), port.SourceInvestmentRequests)
	assert.True(t, mark.IsZero())
}

func TestReconciler_TriggeredByChangeNotice(t *testing.T) {
	f := newReconcilerFixture(t)
	f.remote.hwm = t0

	require.NoError(t, f.r.Start(context.Background()))
	defer f.r.Stop()

	f.r.HandleChangeNotice(context.Background(), port.ChangeNotice{Source: port.SourceInvestmentRequests, Origin: "node-b"})

	select {
	case <-f.events:
	case <-time.After(2 * time.Second):
		t.Fatal("notice did not trigger reconciliation")
	}
}

func TestReconciler_TriggerUpgradesToForce(t *testing.T) {
	f := newReconcilerFixture(t)

	f.r.Trigger(false)
	f.r.Trigger(true)
	assert.True(t, <-f.r.trigger)

	f.r.Trigger(true)
	f.r.Trigger(false)
	assert.True(t, <-f.r.trigger)
}
