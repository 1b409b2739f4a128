// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	OperationCount        *prometheus.CounterVec
	FailedOperationCount  *prometheus.CounterVec
	OperationLatencyMS    *prometheus.GaugeVec
	IntegrityFailureCount prometheus.Counter
}

func NewVaultMetrics(registerer prometheus.Registerer) *VaultMetrics {
	m := VaultMetrics{
		OperationCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operation_count",
				Help: "Number of vault operations started",
			},
			[]string{"operation"},
		),
		FailedOperationCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_operation_count",
				Help: "Number of vault operations that failed",
			},
			[]string{"operation", "failure_kind"},
		),
		OperationLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "operation_latency_ms",
				Help: "Latency of the last successful operation in milliseconds",
			},
			[]string{"operation"},
		),
		IntegrityFailureCount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "integrity_failure_count",
				Help: "Number of decrypted identifiers that did not match their commitment",
			},
		),
	}

	registerer.MustRegister(m.OperationCount)
	registerer.MustRegister(m.FailedOperationCount)
	registerer.MustRegister(m.OperationLatencyMS)
	registerer.MustRegister(m.IntegrityFailureCount)

	return &m
}
