// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisec_gateway_requests_total",
			Help: "Total number of requests processed by the gateway",
		},
		[]string{"status"},
	)
	promInspectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apisec_gateway_inspection_duration_milliseconds",
			Help:    "Inspection duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
		},
		[]string{"engine"},
	)
	promDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisec_gateway_decisions_total",
			Help: "Inspection decisions by category",
		},
		[]string{"decision", "category"},
	)
	promBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apisec_gateway_blocked_requests_total",
			Help: "Total number of blocked inspection requests",
		},
	)
	promDetectionConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apisec_gateway_detection_confidence",
			Help:    "Confidence of inspection decisions",
			Buckets: []float64{0.1, 0.25, 0.5, 0.7, 0.85, 0.95, 0.99, 1.0},
		},
	)
	promAuditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apisec_gateway_audit_dropped_total",
			Help: "Audit events dropped because the queue was full or the sink failed",
		},
	)
)

// metricsOnce ensures metrics are registered only once
var metricsOnce sync.Once

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(promRequestsTotal)
		prometheus.MustRegister(promInspectionDuration)
		prometheus.MustRegister(promDecisionsTotal)
		prometheus.MustRegister(promBlockedTotal)
		prometheus.MustRegister(promDetectionConfidence)
		prometheus.MustRegister(promAuditDropped)
	})
}

func init() {
	registerMetrics()
}
