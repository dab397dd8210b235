package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK             = "ok"
	OutcomeDegraded       = "degraded"
	OutcomeDuplicate      = "duplicate"
	OutcomeInvalid        = "invalid"
	OutcomeInvalidCode    = "invalid_code"
	OutcomeExpiredCode    = "expired_code"
	OutcomeStagingMissing = "staging_missing"
	OutcomeIncomplete     = "incomplete"
	OutcomeCreated        = "created"
	OutcomeExisting       = "existing"
	OutcomeFailed         = "failed"
	OutcomeError          = "error"
)

// Signup counts onboarding outcomes. A nil *Signup records nothing.
type Signup struct {
	begin        *prometheus.CounterVec
	confirm      *prometheus.CounterVec
	provisioning *prometheus.CounterVec
	notification *prometheus.CounterVec
	reaped       prometheus.Counter
}

// NewSignup registers the onboarding counters on registerer.
func NewSignup(registerer prometheus.Registerer, env string) *Signup {
	constLabels := prometheus.Labels{"service": "onboarding", "env": env}
	m := &Signup{
		begin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "onboarding_signup_begin_total",
			Help:        "Signup submissions by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		confirm: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "onboarding_signup_confirm_total",
			Help:        "Signup confirmations by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "onboarding_provisioning_total",
			Help:        "Profile provisioning calls by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		notification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "onboarding_notification_total",
			Help:        "Welcome notifications by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "onboarding_reaper_purged_total",
			Help:        "Abandoned pending signups removed by housekeeping.",
			ConstLabels: constLabels,
		}),
	}
	registerer.MustRegister(m.begin, m.confirm, m.provisioning, m.notification, m.reaped)
	return m
}

// Begin records a signup submission outcome.
func (m *Signup) Begin(outcome string) {
	if m == nil {
		return
	}
	m.begin.WithLabelValues(outcome).Inc()
}

// Confirm records a confirmation outcome.
func (m *Signup) Confirm(outcome string) {
	if m == nil {
		return
	}
	m.confirm.WithLabelValues(outcome).Inc()
}

// Provisioning records a provisioning outcome.
func (m *Signup) Provisioning(outcome string) {
	if m == nil {
		return
	}
	m.provisioning.WithLabelValues(outcome).Inc()
}

// Notification records a welcome mail outcome.
func (m *Signup) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notification.WithLabelValues(outcome).Inc()
}

// Reaped adds n purged pending signups.
func (m *Signup) Reaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}
