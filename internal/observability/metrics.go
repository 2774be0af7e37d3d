package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	realtimeConnections   *prometheus.GaugeVec
	realtimeEventsTotal   *prometheus.CounterVec
	realtimeDeliveries    *prometheus.CounterVec
	chatMessagesPersisted *prometheus.CounterVec
	noticesPublished      prometheus.Counter
	busMessagesTotal      *prometheus.CounterVec
	storeExpiredTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the realtime layer.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of REST API requests served.",
		}, []string{"surface", "method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for REST API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"surface", "method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by REST endpoints.",
		}, []string{"surface", "method", "route", "status"})

		realtimeConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Live realtime connections by role.",
		}, []string{"role"})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Inbound realtime events by type and outcome.",
		}, []string{"event", "outcome"})

		realtimeDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Push frames handed to connections by event and outcome.",
		}, []string{"event", "outcome"})

		chatMessagesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Chat messages written to the message store by direction.",
		}, []string{"direction"})

		noticesPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notices_published_total",
			Help: "Notices created and fanned out.",
		})

		busMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_bus_messages_total",
			Help: "Cross-node delivery bus traffic by bus and outcome.",
		}, []string{"bus", "outcome"})

		storeExpiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_expired_records_total",
			Help: "Records removed by the store expiry reaper.",
		}, []string{"store"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			realtimeConnections, realtimeEventsTotal, realtimeDeliveries,
			chatMessagesPersisted, noticesPublished, busMessagesTotal, storeExpiredTotal,
		)
	})
}

// APIRequests exposes the counter for REST requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for REST requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for REST error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RealtimeConnections exposes the live connection gauge.
func RealtimeConnections() *prometheus.GaugeVec {
	RegisterMetrics()
	return realtimeConnections
}

// RealtimeEvents exposes the inbound event counter.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// RealtimeDeliveries exposes the push delivery counter.
func RealtimeDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeDeliveries
}

// ChatMessagesPersisted exposes the persisted chat message counter.
func ChatMessagesPersisted() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesPersisted
}

// NoticesPublished exposes the notice counter.
func NoticesPublished() prometheus.Counter {
	RegisterMetrics()
	return noticesPublished
}

// BusMessages exposes the delivery bus counter.
func BusMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return busMessagesTotal
}

// StoreExpired exposes the expiry reaper counter.
func StoreExpired() *prometheus.CounterVec {
	RegisterMetrics()
	return storeExpiredTotal
}
