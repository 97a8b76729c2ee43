// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatTurnsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total number of chat turns completed, by action",
		},
		[]string{"action"},
	)

	ChatTurnsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_failed_total",
			Help: "Total number of chat turns that ended in an error",
		},
		[]string{"error_code"},
	)

	ChatTurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "Duration of turn processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	ChatTurnsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_turns_active",
			Help: "Number of turns currently in flight",
		},
	)

	KnowledgeRetrievals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_retrievals_total",
			Help: "Knowledge retrievals by backend and result (hit, empty, error, cache_hit)",
		},
		[]string{"backend", "result"},
	)

	KnowledgeChunksLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "knowledge_chunks_loaded",
			Help: "Number of chunks in the active knowledge snapshot",
		},
	)

	KnowledgeReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_reloads_total",
			Help: "Knowledge corpus reload attempts by status",
		},
		[]string{"status"},
	)

	TelemetryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_events_total",
			Help: "Telemetry events by delivery status (sent, failed, dropped)",
		},
		[]string{"status"},
	)
)
