package medauth

import (
	"time"

	internalflows "github.com/medauth/medauth/internal/flows"
	"github.com/medauth/medauth/internal/rate"
	"github.com/medauth/medauth/internal/stores"
	"github.com/medauth/medauth/jwt"
	"github.com/medauth/medauth/password"
	"github.com/medauth/medauth/session"
)

// Engine is the authentication core. All fields are set once by Build and
// never mutated; every method is safe for concurrent use.
type Engine struct {
	config Config

	sessions *session.Store
	otps     *stores.OTPStore
	pending  *stores.PendingStore
	limiter  *rate.Limiter

	accounts AccountStore
	mailer   Mailer

	passwordHash *password.Argon2
	jwtManager   *jwt.Manager

	audit   *auditDispatcher
	metrics *Metrics

	flows internalflows.Service
}

// Close drains the audit dispatcher. It does not close the Redis client or
// the account store; those belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the counters. Zeroed
// when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) ready() bool {
	return e != nil && e.sessions != nil && e.accounts != nil && e.flows.Initialized()
}
