// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	handshakes    *prometheus.CounterVec
	sendCodes     *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mfa_handshakes_total",
			Help: "Handshake attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		sendCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mfa_send_code_total",
			Help: "Send-code requests by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mfa_verifications_total",
			Help: "Callback verification outcomes.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(m.handshakes, m.sendCodes, m.verifications)
	return m
}

func (m *Metrics) HandshakeObserved(providerID, outcome string) {
	m.handshakes.WithLabelValues(providerID, outcome).Inc()
}

func (m *Metrics) SendCodeObserved(outcome string) {
	m.sendCodes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VerificationObserved(outcome string) {
	m.verifications.WithLabelValues(outcome).Inc()
}

// Handler serves the scrape endpoint for this registry only.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
