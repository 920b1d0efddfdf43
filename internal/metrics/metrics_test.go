package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
)

func TestSubscribe(t *testing.T) {
	d := dispatcher.NewDispatcher()
	Subscribe(d)
	ctx := context.Background()

	before := testutil.ToFloat64(MutationsTotal.WithLabelValues("APPROVE"))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeMutationApplied, "r", map[string]interface{}{
		event.KeyAction: "APPROVE",
	})))
	assert.Equal(t, before+1, testutil.ToFloat64(MutationsTotal.WithLabelValues("APPROVE")))

	before = testutil.ToFloat64(PropagationsTotal)
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeRequestPropagated, "r", map[string]interface{}{
		event.KeyAttempts: 2,
	})))
	assert.Equal(t, before+1, testutil.ToFloat64(PropagationsTotal))

	before = testutil.ToFloat64(ParkedTotal)
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeTaskParked, "r", nil)))
	assert.Equal(t, before+1, testutil.ToFloat64(ParkedTotal))

	before = testutil.ToFloat64(ReconciledRecords.WithLabelValues("upserted"))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeCacheReconciled, "", map[string]interface{}{
		event.KeyUpserted: 3,
		event.KeyRemoved:  1,
	})))
	assert.Equal(t, before+3, testutil.ToFloat64(ReconciledRecords.WithLabelValues("upserted")))

	assert.Contains(t, d.HandlerNames(event.TypeMutationApplied), "metrics.mutations")
}

func TestHandler_SamplesBacklog(t *testing.T) {
	h := Handler(func(ctx context.Context) (map[entity.TaskStatus]int, error) {
		return map[entity.TaskStatus]int{entity.TaskStatusPending: 4, entity.TaskStatusParked: 1}, nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `governor_outbox_tasks{status="PENDING"} 4`), body)
	assert.True(t, strings.Contains(body, `governor_outbox_tasks{status="PARKED"} 1`))
	assert.Equal(t, 0.0, testutil.ToFloat64(OutboxTasks.WithLabelValues("DONE")))
}
