package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesCreated      prometheus.Counter
	NotificationsCreated *prometheus.CounterVec
	HistoryEntries       prometheus.Counter
	UsersPurged          prometheus.Counter
	RateLimited          prometheus.Counter
	RateLimiterKeys      prometheus.Gauge
	AccessDenied         prometheus.Counter
	DeliveryAttempts     *prometheus.CounterVec
	DeliveryDropped      prometheus.Counter
	DeliveryQueueDepth   prometheus.Gauge
	ReadCacheLookups     *prometheus.CounterVec
	RoleDenied           prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		MessagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_messages_created_total",
			Help: "Total number of messages committed",
		}),
		NotificationsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirenote_notifications_created_total",
				Help: "Total number of notifications derived from messages",
			},
			[]string{"type"},
		),
		HistoryEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_message_history_entries_total",
			Help: "Total number of edit history rows recorded",
		}),
		UsersPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_users_purged_total",
			Help: "Total number of user accounts removed with their data",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_rate_limited_total",
			Help: "Total number of write requests rejected by the rate limiter",
		}),
		RateLimiterKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirenote_rate_limiter_keys",
			Help: "Number of origin keys tracked by the rate limiter",
		}),
		AccessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_access_window_denied_total",
			Help: "Total number of requests rejected outside the access window",
		}),
		DeliveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirenote_delivery_attempts_total",
				Help: "Notification delivery attempts by result",
			},
			[]string{"result"},
		),
		DeliveryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_delivery_dropped_total",
			Help: "Notices dropped because the delivery queue was full",
		}),
		DeliveryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirenote_delivery_queue_depth",
			Help: "Notices waiting for delivery",
		}),
		ReadCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirenote_read_cache_lookups_total",
				Help: "Read cache lookups for unread and thread queries by result",
			},
			[]string{"result"},
		),
		RoleDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirenote_role_denied_total",
			Help: "Total number of requests rejected for lacking a required role",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.MessagesCreated,
		m.NotificationsCreated,
		m.HistoryEntries,
		m.UsersPurged,
		m.RateLimited,
		m.RateLimiterKeys,
		m.AccessDenied,
		m.DeliveryAttempts,
		m.DeliveryDropped,
		m.DeliveryQueueDepth,
		m.ReadCacheLookups,
		m.RoleDenied,
	)
	return m
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageCreated() {
	if m != nil {
		m.MessagesCreated.Inc()
	}
}

func (m *Metrics) NotificationCreated(kind string) {
	if m != nil {
		m.NotificationsCreated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) HistoryRecorded() {
	if m != nil {
		m.HistoryEntries.Inc()
	}
}

func (m *Metrics) UserPurged() {
	if m != nil {
		m.UsersPurged.Inc()
	}
}

func (m *Metrics) RateLimitRejected() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) SetRateLimiterKeys(n int) {
	if m != nil {
		m.RateLimiterKeys.Set(float64(n))
	}
}

func (m *Metrics) AccessWindowDenied() {
	if m != nil {
		m.AccessDenied.Inc()
	}
}

func (m *Metrics) DeliveryAttempt(result string) {
	if m != nil {
		m.DeliveryAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DeliveryDrop() {
	if m != nil {
		m.DeliveryDropped.Inc()
	}
}

func (m *Metrics) SetDeliveryQueueDepth(n int) {
	if m != nil {
		m.DeliveryQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) ReadCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ReadCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RoleGateDenied() {
	if m != nil {
		m.RoleDenied.Inc()
	}
}
