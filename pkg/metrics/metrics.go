// Copyright 2025 Certen Protocol
//
// Registry is the agent's Prometheus metrics surface: per-stage validator
// and TEL engine outcomes, escrow occupancy, and mailbox poll results.
// Grounded on the prometheus/client_golang usage pattern found across the
// retrieved example pack (e.g. the rotation service's health/metrics.go),
// adapted here to take an explicit prometheus.Registerer rather than
// registering against the global default registry, so an agent process
// embedding more than one identifier's engine (or a test) never collides on
// metric name registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this engine emits.
type Registry struct {
	ValidatorOutcomes *prometheus.CounterVec
	TelOutcomes       *prometheus.CounterVec
	ReplyOutcomes     *prometheus.CounterVec
	ValidationSeconds *prometheus.HistogramVec
	EscrowSize        *prometheus.GaugeVec
	MailboxPollTotal  *prometheus.CounterVec
}

// New builds and registers a Registry against reg. Passing
// prometheus.NewRegistry() gives the caller an isolated registry (useful in
// tests or when running several agents in one process); passing
// prometheus.DefaultRegisterer matches the usual single-process exporter
// setup.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ValidatorOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keri_validator_outcomes_total",
			Help: "Count of key event validation outcomes by outcome label.",
		}, []string{"outcome"}),
		TelOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keri_tel_outcomes_total",
			Help: "Count of TEL event validation outcomes by outcome label.",
		}, []string{"outcome"}),
		ReplyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keri_reply_outcomes_total",
			Help: "Count of OOBI/KSN reply acceptance outcomes by outcome label.",
		}, []string{"outcome"}),
		ValidationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keri_validation_seconds",
			Help:    "Duration of one event validation pipeline run.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"pipeline"}),
		EscrowSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keri_escrow_size",
			Help: "Current number of entries buffered in each escrow.",
		}, []string{"escrow"}),
		MailboxPollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keri_mailbox_poll_total",
			Help: "Count of mailbox polls by topic and result.",
		}, []string{"topic", "result"}),
	}
	reg.MustRegister(
		r.ValidatorOutcomes, r.TelOutcomes, r.ReplyOutcomes,
		r.ValidationSeconds, r.EscrowSize, r.MailboxPollTotal,
	)
	return r
}

// ObserveValidator records a validator.Result's outcome.
func (r *Registry) ObserveValidator(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.ValidatorOutcomes.WithLabelValues(outcome).Inc()
	r.ValidationSeconds.WithLabelValues("kel").Observe(seconds)
}

// ObserveTel records a tel.Result's outcome.
func (r *Registry) ObserveTel(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.TelOutcomes.WithLabelValues(outcome).Inc()
	r.ValidationSeconds.WithLabelValues("tel").Observe(seconds)
}

// ObserveReply records a reply.Result's outcome.
func (r *Registry) ObserveReply(outcome string) {
	if r == nil {
		return
	}
	r.ReplyOutcomes.WithLabelValues(outcome).Inc()
}

// SetEscrowSize reports escrow's current occupancy.
func (r *Registry) SetEscrowSize(escrow string, n int) {
	if r == nil {
		return
	}
	r.EscrowSize.WithLabelValues(escrow).Set(float64(n))
}

// ObserveMailboxPoll records one mailbox poll's result ("ok" or "error").
func (r *Registry) ObserveMailboxPoll(topic, result string) {
	if r == nil {
		return
	}
	r.MailboxPollTotal.WithLabelValues(topic, result).Inc()
}
