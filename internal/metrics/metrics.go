// Package metrics holds the prometheus collectors for the auth subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
	OutcomeCacheHit  = "cache_hit"
	OutcomeOpen      = "breaker_open"
)

var (
	// Registrations counts registration attempts.
	// Labels:
	//   - outcome: "success", "invalid", "duplicate", "error"
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_registrations_total",
			Help: "Total number of account registration attempts",
		},
		[]string{"outcome"},
	)

	// Logins counts login attempts.
	// Labels:
	//   - outcome: "success", "invalid", "error"
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	Logouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_logouts_total",
			Help: "Total number of logouts",
		},
	)

	// GateRejections counts requests turned away by the authorization gate.
	// Labels:
	//   - level: "authenticated", "admin"
	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_gate_rejections_total",
			Help: "Total number of requests rejected by the authorization gate",
		},
		[]string{"level"},
	)

	// GeoLookups counts ip geolocation lookups.
	// Labels:
	//   - outcome: "success", "cache_hit", "error", "breaker_open"
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_geo_lookups_total",
			Help: "Total number of ip geolocation lookups",
		},
		[]string{"outcome"},
	)

	// MemorySessions reports the number of sessions held by the in-memory session store.
	MemorySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_memory_sessions",
			Help: "Number of sessions held by the in-memory session store",
		},
	)

	// AuditFailures counts swallowed failures while writing the login audit trail.
	AuditFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_audit_failures_total",
			Help: "Total number of login audit writes that failed",
		},
	)
)
