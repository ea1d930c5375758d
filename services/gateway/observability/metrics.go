// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability is the gateway's metrics surface: prometheus
// series for scraping plus an in-process JSON snapshot that needs no
// external collector.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Prometheus Series
// =============================================================================

var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recordfabric",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total requests received by the gateway.",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recordfabric",
		Subsystem: "gateway",
		Name:      "errors_total",
		Help:      "Failed requests by error kind.",
	}, []string{"kind"})

	downstreamTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recordfabric",
		Subsystem: "gateway",
		Name:      "downstream_requests_total",
		Help:      "Forwarded requests by downstream service and status class.",
	}, []string{"service", "status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recordfabric",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request latency.",
		Buckets:   prometheus.DefBuckets,
	})
)

// =============================================================================
// Snapshot State
// =============================================================================

// LatencyEntry is one recent request in the bounded ring.
type LatencyEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Route         string    `json:"route"`
	Downstream    string    `json:"downstream_service,omitempty"`
	Status        int       `json:"status"`
	LatencyMillis float64   `json:"latency_ms"`
}

// Snapshot is the JSON metrics view.
type Snapshot struct {
	UptimeSeconds   float64          `json:"uptime_seconds"`
	RequestsTotal   uint64           `json:"requests_total"`
	SuccessesTotal  uint64           `json:"successes_total"`
	FailuresTotal   uint64           `json:"failures_total"`
	FailuresByKind  map[string]int64 `json:"failures_by_kind"`
	DownstreamTotal map[string]int64 `json:"downstream_requests_total"`
	RecentLatencies []LatencyEntry   `json:"recent_latencies"`
}

// Metrics owns the snapshot counters and the latency ring. The
// prometheus series above are process-wide and updated alongside.
//
// # Thread Safety
//
// Safe for concurrent use; all snapshot state sits under one mutex.
type Metrics struct {
	mu sync.Mutex

	startedAt  time.Time
	requests   uint64
	successes  uint64
	failures   uint64
	byKind     map[string]int64
	downstream map[string]int64

	ring     []LatencyEntry
	ringNext int
	ringFull bool
}

// DefaultRingCapacity bounds the recent-latency ring.
const DefaultRingCapacity = 256

// NewMetrics creates the snapshot state.
func NewMetrics(ringCapacity int) *Metrics {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	return &Metrics{
		startedAt:  time.Now(),
		byKind:     make(map[string]int64),
		downstream: make(map[string]int64),
		ring:       make([]LatencyEntry, ringCapacity),
	}
}

// RecordRequest records one completed gateway request. errorKind is
// empty for successes.
func (m *Metrics) RecordRequest(route, downstream string, status int, latency time.Duration, errorKind string) {
	requestsTotal.Inc()
	requestDuration.Observe(latency.Seconds())
	if errorKind != "" {
		errorsTotal.WithLabelValues(errorKind).Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	if errorKind == "" && status < 400 {
		m.successes++
	} else {
		m.failures++
		if errorKind != "" {
			m.byKind[errorKind]++
		}
	}

	m.ring[m.ringNext] = LatencyEntry{
		Timestamp:     time.Now(),
		Route:         route,
		Downstream:    downstream,
		Status:        status,
		LatencyMillis: float64(latency.Microseconds()) / 1000,
	}
	m.ringNext++
	if m.ringNext == len(m.ring) {
		m.ringNext = 0
		m.ringFull = true
	}
}

// RecordDownstream counts one forwarded request by service and status
// class ("2xx", "5xx", "error").
func (m *Metrics) RecordDownstream(service, statusClass string) {
	downstreamTotal.WithLabelValues(service, statusClass).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.downstream[service]++
}

// Snapshot returns a copy of the current counters and ring, oldest entry
// first.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := make(map[string]int64, len(m.byKind))
	for k, v := range m.byKind {
		byKind[k] = v
	}
	downstream := make(map[string]int64, len(m.downstream))
	for k, v := range m.downstream {
		downstream[k] = v
	}

	var recent []LatencyEntry
	if m.ringFull {
		recent = append(recent, m.ring[m.ringNext:]...)
		recent = append(recent, m.ring[:m.ringNext]...)
	} else {
		recent = append(recent, m.ring[:m.ringNext]...)
	}

	return Snapshot{
		UptimeSeconds:   time.Since(m.startedAt).Seconds(),
		RequestsTotal:   m.requests,
		SuccessesTotal:  m.successes,
		FailuresTotal:   m.failures,
		FailuresByKind:  byKind,
		DownstreamTotal: downstream,
		RecentLatencies: recent,
	}
}

// =============================================================================
// HTTP Surface
// =============================================================================

// SnapshotHandler serves the JSON snapshot.
func (m *Metrics) SnapshotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, m.Snapshot())
	}
}

// PrometheusHandler serves the scrape-format exposition.
func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
