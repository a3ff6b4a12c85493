// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the agent's Prometheus counters. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LTM save outcomes.
const (
	SaveSaved     = "saved"
	SaveDuplicate = "duplicate"
	SaveEmpty     = "empty"
	SaveError     = "error"
)

// Metrics groups the agent's collectors.
type Metrics struct {
	renders        *prometheus.CounterVec
	enrichFailures *prometheus.CounterVec
	ltmSaves       *prometheus.CounterVec
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citation_renders_total",
			Help: "Citations rendered, by engine (csl or fallback).",
		}, []string{"engine"}),
		enrichFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citation_enrichment_failures_total",
			Help: "Failed enrichment calls, by source.",
		}, []string{"source"}),
		ltmSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citation_ltm_saves_total",
			Help: "Long-term memory save attempts, by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citation_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citation_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.renders, m.enrichFailures, m.ltmSaves, m.requests, m.duration)
	return m
}

// Render counts one rendered citation or bibliography.
func (m *Metrics) Render(engine string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(engine).Inc()
}

// EnrichmentFailed counts a failed call to an enrichment source.
func (m *Metrics) EnrichmentFailed(source string) {
	if m == nil {
		return
	}
	m.enrichFailures.WithLabelValues(source).Inc()
}

// LTMSave counts a save attempt with its outcome.
func (m *Metrics) LTMSave(outcome string) {
	if m == nil {
		return
	}
	m.ltmSaves.WithLabelValues(outcome).Inc()
}

// Request records a served HTTP request.
func (m *Metrics) Request(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}
