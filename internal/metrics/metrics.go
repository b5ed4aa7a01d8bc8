// Package metrics provides Prometheus instrumentation for the sync engine:
// live event and intent throughput, REST latency, and loop/registry gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LiveEvents counts pushed events by type and outcome:
	// "applied", "duplicate", "dropped".
	LiveEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_live_events_total",
		Help: "Live events received from the push stream",
	}, []string{"type", "outcome"})

	// HistoryLoads counts history fetches by result: "ok", "failed", "stale".
	HistoryLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_history_loads_total",
		Help: "History fetches by result",
	}, []string{"result"})

	// Intents counts outbound intents by type and result: "sent",
	// "rejected", "throttled", "failed".
	Intents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_intents_total",
		Help: "Outbound intents by type and result",
	}, []string{"type", "result"})

	// Deletes counts delete requests by result: "confirmed", "rolled_back".
	Deletes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_deletes_total",
		Help: "Message delete requests by result",
	}, []string{"result"})

	// MembershipOps counts group membership requests by op ("add", "kick",
	// "leave") and result ("ok", "rejected", "failed").
	MembershipOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_membership_ops_total",
		Help: "Group membership requests by result",
	}, []string{"op", "result"})

	// APILatency records REST request latency in seconds, by operation.
	APILatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_api_latency_seconds",
		Help:    "REST request latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"op"})

	// APIErrors counts REST failures by operation and class:
	// "transport" or "server".
	APIErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_api_errors_total",
		Help: "REST request failures",
	}, []string{"op", "class"})

	// LoopQueueDepth tracks the number of tasks waiting on the engine loop.
	LoopQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_loop_queue_depth",
		Help: "Tasks queued on the engine loop",
	})

	// Conversations tracks registered conversations.
	Conversations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_conversations",
		Help: "Conversations currently registered",
	})

	// UnreadTotal tracks the sum of unread counters across conversations.
	UnreadTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_unread_total",
		Help: "Unread messages across all conversations",
	})

	// OnlineUsers tracks users currently reported online.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_online_users",
		Help: "Users currently reported online",
	})
)

func init() {
	prometheus.MustRegister(
		LiveEvents,
		HistoryLoads,
		Intents,
		Deletes,
		MembershipOps,
		APILatency,
		APIErrors,
		LoopQueueDepth,
		Conversations,
		UnreadTotal,
		OnlineUsers,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
