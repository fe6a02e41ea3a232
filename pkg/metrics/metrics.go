// Package metrics declares the service's prometheus collectors. They are
// registered on the default registry and served at /metrics.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_sent_total",
			Help: "Messages persisted, by kind (direct, group).",
		},
		[]string{"kind"},
	)

	Receipts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_receipts_total",
			Help: "Read receipts applied, by kind (direct, group).",
		},
		[]string{"kind"},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_deliveries_total",
			Help: "Events handed to live connections, by event name.",
		},
		[]string{"event"},
	)

	Dropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_connections_dropped_total",
			Help: "Connections dropped because their send buffer was full.",
		},
	)

	RetentionPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_retention_purged_total",
			Help: "Messages removed by retention passes.",
		},
	)

	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_live_connections",
			Help: "Open websocket connections.",
		},
	)

	CallRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_call_rooms",
			Help: "Call signaling rooms currently open.",
		},
	)

	DiskUsedPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_disk_used_pct",
			Help: "Used space on the database volume, in percent.",
		},
	)

	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_op_duration_seconds",
			Help:    "Latency of tracker and signaling operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		Receipts,
		Deliveries,
		Dropped,
		RetentionPurged,
		LiveConnections,
		CallRooms,
		DiskUsedPct,
		OpDuration,
		gcPauseTotal,
		heapAlloc,
	)
}
