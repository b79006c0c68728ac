package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginsStarted is a counter for authorization redirects issued.
	LoginsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oauthsample_logins_started_total",
			Help: "The total number of authorization redirects issued.",
		},
	)

	// Callbacks is a counter for handled callbacks by outcome.
	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthsample_callbacks_total",
			Help: "The total number of authorization callbacks handled, by outcome.",
		},
		[]string{"outcome"},
	)

	// TokenRequestDuration is a histogram of token endpoint round trips.
	TokenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oauthsample_token_request_duration_seconds",
			Help:    "A histogram of token endpoint request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"grant_type"},
	)

	// PendingAuthorizations is a gauge of authorizations awaiting a callback.
	PendingAuthorizations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oauthsample_pending_authorizations",
			Help: "The number of authorizations waiting for their callback.",
		},
	)

	// PendingExpired is a counter for pending authorizations evicted by the sweeper.
	PendingExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oauthsample_pending_expired_total",
			Help: "The total number of pending authorizations evicted after their TTL.",
		},
	)

	// ResourceRequests is a counter for protected resource calls.
	ResourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthsample_resource_requests_total",
			Help: "The total number of protected resource requests, by path and status code.",
		},
		[]string{"path", "code"},
	)

	// AdminOperations is a counter for registry admin calls.
	AdminOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthsample_admin_operations_total",
			Help: "The total number of registry admin operations, by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// HTTPRequests is a counter for requests served by the web application.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthsample_http_requests_total",
			Help: "The total number of HTTP requests served, by route and status code.",
		},
		[]string{"route", "code"},
	)
)
