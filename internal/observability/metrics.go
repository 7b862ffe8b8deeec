package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "transitions_total", Help: "Ride lifecycle operations by action and result"},
		[]string{"action", "result"},
	)
	RideConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "conflicts_total", Help: "Compare-and-transition attempts that lost a race"},
		[]string{"action"},
	)
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "notifications_published_total", Help: "Lifecycle events handed to each sink"},
		[]string{"sink", "result"},
	)
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "notifications_dropped_total", Help: "Messages dropped for slow subscribers"})
	WSSubscribers        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_lifecycle", Name: "ws_subscribers", Help: "Live WebSocket subscriptions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_lifecycle",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
