package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records primary credential checks by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_auth_attempts_total",
			Help: "Total number of password authentication attempts",
		},
		[]string{"result"},
	)

	// TwoFactorVerifications counts challenge verifications (success|invalid_code|expired|invalid_challenge|error).
	TwoFactorVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_two_factor_verifications_total",
			Help: "Total number of two-factor challenge verifications",
		},
		[]string{"result"},
	)

	// AuthorizationDecisions counts lock-scoped authorization decisions.
	AuthorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_authorization_decisions_total",
			Help: "Total number of lock authorization decisions",
		},
		[]string{"resource", "action", "result"},
	)

	// PinValidations counts PIN checks by result (granted|denied|device_mismatch).
	PinValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_pin_validations_total",
			Help: "Total number of PIN validation attempts",
		},
		[]string{"result"},
	)

	// DeviceAuthentications counts API key checks by result (valid|invalid).
	DeviceAuthentications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_device_authentications_total",
			Help: "Total number of device API key validations",
		},
		[]string{"result"},
	)

	// RateLimited counts requests rejected by a limiter scope.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"scope"},
	)

	// EventsPublished counts broker deliveries of access events.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockgate_events_published_total",
			Help: "Total number of access events handed to the broker",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lockgate_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockgate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
