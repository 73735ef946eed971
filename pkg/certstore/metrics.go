// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports store activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	updates     *prometheus.CounterVec
	fetches     prometheus.Counter
	validations *prometheus.CounterVec
	entries     prometheus.Gauge
}

// NewMetrics creates the store collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certpin",
				Name:      "updates_total",
				Help:      "Total number of completed update requests.",
			},
			[]string{"type", "result"},
		),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "certpin",
			Name:      "fetches_total",
			Help:      "Total number of requests sent to the fingerprint service.",
		}),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certpin",
				Name:      "validations_total",
				Help:      "Total number of certificate validations by verdict.",
			},
			[]string{"result"},
		),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "certpin",
			Name:      "persisted_entries",
			Help:      "Number of fingerprint entries in the persisted database.",
		}),
	}

	for _, c := range []prometheus.Collector{m.updates, m.fetches, m.validations, m.entries} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%w: registering metrics: %w", ErrInvalidConfig, err)
		}
	}
	return m, nil
}

func (m *Metrics) observeUpdate(updateType UpdateType, result UpdateResult) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(updateType.String(), result.String()).Inc()
}

func (m *Metrics) observeFetch() {
	if m == nil {
		return
	}
	m.fetches.Inc()
}

func (m *Metrics) observeValidation(result ValidationResult) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result.String()).Inc()
}

func (m *Metrics) setEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
