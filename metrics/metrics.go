package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the request lifecycle and its protections
var (
	RequestsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_requests_created_total",
			Help: "Total number of print requests created",
		},
		[]string{"request_type"},
	)

	StatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_request_status_changes_total",
			Help: "Total number of status transitions",
		},
		[]string{"from", "to"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification attempts by template and outcome",
		},
		[]string{"template", "outcome"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests denied by the rate limiter",
		},
		[]string{"action"},
	)

	UploadRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_rejections_total",
			Help: "Uploads rejected by the admission gate",
		},
		[]string{"reason"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Register registers all Prometheus metrics on reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsCreatedTotal,
		StatusChangesTotal,
		NotificationsTotal,
		RateLimitedTotal,
		UploadRejectionsTotal,
		HTTPRequestDuration,
	)
}
