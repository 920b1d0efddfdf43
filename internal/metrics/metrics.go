// Package metrics exposes Prometheus collectors fed by domain events
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/dispatcher"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
)

var (
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_mutations_total",
			Help: "Committed request mutations by audit action",
		},
		[]string{"action"},
	)

	PropagationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_propagations_total",
			Help: "Outbox tasks written to the system of record",
		},
	)

	PropagationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "governor_propagation_attempts",
			Help:    "Attempts needed per propagated task",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
	)

	ParkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_tasks_parked_total",
			Help: "Outbox tasks parked after exhausting retries",
		},
	)

	ReconciledRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_reconciled_records_total",
			Help: "Records absorbed from remote snapshots by outcome",
		},
		[]string{"outcome"},
	)

	OutboxTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "governor_outbox_tasks",
			Help: "Outbox tasks by status, sampled when metrics are scraped",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "governor_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Subscribe feeds the counters from dispatched events
func Subscribe(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeMutationApplied, "metrics.mutations", func(ctx context.Context, evt *event.Event) error {
		MutationsTotal.WithLabelValues(evt.GetPayloadString(event.KeyAction)).Inc()
		return nil
	})
	d.SubscribeNamed(event.TypeRequestPropagated, "metrics.propagations", func(ctx context.Context, evt *event.Event) error {
		PropagationsTotal.Inc()
		PropagationAttempts.Observe(float64(evt.GetPayloadInt(event.KeyAttempts)))
		return nil
	})
	d.SubscribeNamed(event.TypeTaskParked, "metrics.parked", func(ctx context.Context, evt *event.Event) error {
		ParkedTotal.Inc()
		return nil
	})
	d.SubscribeNamed(event.TypeCacheReconciled, "metrics.reconciled", func(ctx context.Context, evt *event.Event) error {
		ReconciledRecords.WithLabelValues("upserted").Add(float64(evt.GetPayloadInt(event.KeyUpserted)))
		ReconciledRecords.WithLabelValues("removed").Add(float64(evt.GetPayloadInt(event.KeyRemoved)))
		ReconciledRecords.WithLabelValues("skipped").Add(float64(evt.GetPayloadInt(event.KeySkipped)))
		return nil
	})
}

// BacklogFunc counts outbox tasks by status
type BacklogFunc func(ctx context.Context) (map[entity.TaskStatus]int, error)

// Handler samples the outbox backlog and then serves the registry
func Handler(backlog BacklogFunc) http.Handler {
	next := promhttp.Handler()
	statuses := []entity.TaskStatus{entity.TaskStatusPending, entity.TaskStatusParked, entity.TaskStatusDone}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if backlog != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			counts, err := backlog(ctx)
			cancel()
			if err == nil {
				for _, s := range statuses {
					OutboxTasks.WithLabelValues(string(s)).Set(float64(counts[s]))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
