// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts served requests. A nil *Metrics records nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	challenges prometheus.Counter
	entries    prometheus.GaugeFunc
}

// NewMetrics registers the distributor collectors with reg. It panics on
// duplicate registration, like promauto.
func NewMetrics(reg prometheus.Registerer, doc *Document) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certpin",
			Subsystem: "distributor",
			Name:      "requests_total",
			Help:      "Total number of fingerprint requests by transport and status code.",
		}, []string{"transport", "code"}),
		challenges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "certpin",
			Subsystem: "distributor",
			Name:      "challenges_signed_total",
			Help:      "Total number of challenge responses signed.",
		}),
	}
	if doc != nil {
		m.entries = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "certpin",
			Subsystem: "distributor",
			Name:      "served_entries",
			Help:      "Number of entries in the served document.",
		}, func() float64 { return float64(doc.Len()) })
	}
	return m
}

func (m *Metrics) observeRequest(transport string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeChallenge() {
	if m == nil {
		return
	}
	m.challenges.Inc()
}
