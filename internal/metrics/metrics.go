// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosstalk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosstalk_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Protocol metrics
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosstalk_verdicts_total",
			Help: "Turn decisions by agent, deciding stage and outcome",
		},
		[]string{"agent", "stage", "respond"},
	)

	GuardStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosstalk_loop_guard_states_total",
			Help: "Loop guard outcomes by agent and state",
		},
		[]string{"agent", "state"},
	)

	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosstalk_replies_total",
			Help: "Replies published by agent",
		},
		[]string{"agent"},
	)

	GenerateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosstalk_generate_errors_total",
			Help: "Failed generation calls by agent",
		},
		[]string{"agent"},
	)

	// Infrastructure metrics
	HistoryReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosstalk_history_reads_total",
			Help: "Room history reads by result",
		},
		[]string{"result"}, // "ok" or "error"
	)

	HistoryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crosstalk_history_latency_seconds",
			Help:    "Room history read latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
		},
	)
)

// ObserveVerdict records one turn decision.
func ObserveVerdict(agentID string, v a2a.Verdict) {
	Verdicts.WithLabelValues(agentID, string(v.Stage), strconv.FormatBool(v.ShouldRespond)).Inc()
	if v.Guard != nil {
		GuardStates.WithLabelValues(agentID, string(v.Guard.State)).Inc()
	}
}

// InstrumentHistory wraps a history reader with read counters and latency.
func InstrumentHistory(next a2a.HistoryReader) a2a.HistoryReader {
	if next == nil {
		return nil
	}
	return &instrumentedHistory{next: next}
}

type instrumentedHistory struct {
	next a2a.HistoryReader
}

func (h *instrumentedHistory) RecentMessages(ctx context.Context, roomID string, count int) ([]a2a.Message, error) {
	start := time.Now()
	msgs, err := h.next.RecentMessages(ctx, roomID, count)
	HistoryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		HistoryReads.WithLabelValues("error").Inc()
		return nil, err
	}
	HistoryReads.WithLabelValues("ok").Inc()
	return msgs, nil
}
