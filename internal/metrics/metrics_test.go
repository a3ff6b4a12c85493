// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Render("csl")
	m.Render("fallback")
	m.Render("fallback")
	m.EnrichmentFailed("crossref")
	m.LTMSave(SaveDuplicate)
	m.Request("/process", 200, 15*time.Millisecond)

	assert.Equal(t, 1.0, value(t, m.renders.WithLabelValues("csl")))
	assert.Equal(t, 2.0, value(t, m.renders.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, value(t, m.enrichFailures.WithLabelValues("crossref")))
	assert.Equal(t, 1.0, value(t, m.ltmSaves.WithLabelValues(SaveDuplicate)))
	assert.Equal(t, 1.0, value(t, m.requests.WithLabelValues("/process", "200")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Render("csl")
		m.EnrichmentFailed("llm")
		m.LTMSave(SaveSaved)
		m.Request("/health", 200, time.Millisecond)
	})
}
