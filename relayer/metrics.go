// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type RelayerMetrics struct {
	RequestCount       *prometheus.CounterVec
	FailedRequestCount *prometheus.CounterVec
	RequestLatencyMS   *prometheus.GaugeVec
}

func NewRelayerMetrics(registerer prometheus.Registerer) *RelayerMetrics {
	m := RelayerMetrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "request_count",
				Help: "Number of relayer API requests received",
			},
			[]string{"endpoint"},
		),
		FailedRequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_request_count",
				Help: "Number of relayer API requests that failed",
			},
			[]string{"endpoint", "failure_reason"},
		),
		RequestLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "request_latency_ms",
				Help: "Latency of the last successful request in milliseconds",
			},
			[]string{"endpoint"},
		),
	}

	registerer.MustRegister(m.RequestCount)
	registerer.MustRegister(m.FailedRequestCount)
	registerer.MustRegister(m.RequestLatencyMS)

	return &m
}
