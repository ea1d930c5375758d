// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the static table of downstream services and their
// periodically probed health.
//
// Descriptors are created at startup and never change; the health updater
// is the only writer after init. Services are never deregistered — an
// unreachable record persists until the next successful probe.
package registry

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Types
// =============================================================================

// Status is a probed service's health state.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusUnhealthy   Status = "unhealthy"
	StatusUnreachable Status = "unreachable"
	StatusUnknown     Status = "unknown"
)

// Route maps a gateway path prefix to the downstream prefix it rewrites to.
type Route struct {
	// Prefix is the gateway-side path prefix, e.g. "/api/analysis".
	Prefix string `json:"prefix"`

	// Rewrite replaces Prefix when forwarding, e.g. "/analyze".
	Rewrite string `json:"rewrite"`
}

// Descriptor is one known downstream service. Unique by Name; immutable
// after registry construction.
type Descriptor struct {
	Name       string   `json:"name"`
	BaseURL    string   `json:"base_url"`
	HealthPath string   `json:"health_path"`
	Alternates []string `json:"alternates,omitempty"`
	Routes     []Route  `json:"routes"`
}

// HealthRecord is the latest probe outcome for one service.
type HealthRecord struct {
	ServiceName   string    `json:"service_name"`
	Status        Status    `json:"status"`
	LastProbeTime time.Time `json:"last_probe_time"`
	LatencyMillis float64   `json:"last_latency_ms"`
	LastError     string    `json:"last_error,omitempty"`
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the service table plus health snapshot.
//
// # Thread Safety
//
// Safe for concurrent use. Descriptors are read-only after construction;
// the health map has a single writer (the prober) and many readers.
type Registry struct {
	descriptors map[string]Descriptor
	order       []string

	mu     sync.RWMutex
	health map[string]HealthRecord

	client   *http.Client
	interval time.Duration
}

// Config configures a Registry.
type Config struct {
	// Interval is the probe period; 0 selects 30s.
	Interval time.Duration

	// ProbeTimeout bounds one probe request; 0 selects 5s.
	ProbeTimeout time.Duration
}

// New creates a registry over a fixed descriptor set. Every service
// starts with StatusUnknown until its first probe.
func New(descriptors []Descriptor, cfg Config) *Registry {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}

	r := &Registry{
		descriptors: make(map[string]Descriptor, len(descriptors)),
		order:       make([]string, 0, len(descriptors)),
		health:      make(map[string]HealthRecord, len(descriptors)),
		client:      &http.Client{Timeout: cfg.ProbeTimeout},
		interval:    cfg.Interval,
	}
	for _, d := range descriptors {
		if d.HealthPath == "" {
			d.HealthPath = "/health"
		}
		r.descriptors[d.Name] = d
		r.order = append(r.order, d.Name)
		r.health[d.Name] = HealthRecord{ServiceName: d.Name, Status: StatusUnknown}
	}
	return r
}

// Resolve returns the descriptor for name, or NotFound.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, faults.NotFound("service " + name)
	}
	return d, nil
}

// ResolveRoute matches path against every descriptor's route prefixes and
// returns the longest match. The boolean is false when nothing matches.
func (r *Registry) ResolveRoute(path string) (Descriptor, Route, bool) {
	var (
		best      Descriptor
		bestRoute Route
		bestLen   = -1
	)
	for _, name := range r.order {
		d := r.descriptors[name]
		for _, route := range d.Routes {
			if !matchesPrefix(path, route.Prefix) {
				continue
			}
			if len(route.Prefix) > bestLen {
				best, bestRoute, bestLen = d, route, len(route.Prefix)
			}
		}
	}
	return best, bestRoute, bestLen >= 0
}

// RewritePath maps a matched gateway path to its downstream path.
func (route Route) RewritePath(path string) string {
	suffix := strings.TrimPrefix(path, route.Prefix)
	if suffix == "" {
		return route.Rewrite
	}
	return route.Rewrite + suffix
}

// Health returns the record for one service; unknown names yield an
// unknown-status record.
func (r *Registry) Health(name string) HealthRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.health[name]; ok {
		return rec
	}
	return HealthRecord{ServiceName: name, Status: StatusUnknown}
}

// AllHealth returns a copy of the full health snapshot.
func (r *Registry) AllHealth() map[string]HealthRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthRecord, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// Names returns the registered service names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// =============================================================================
// Probing
// =============================================================================

// Start runs the background probe loop until ctx is cancelled. One sweep
// runs immediately so health is populated soon after boot.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		r.ProbeAll(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ProbeAll(ctx)
			}
		}
	}()
}

// ProbeAll probes every service concurrently and updates the snapshot.
func (r *Registry) ProbeAll(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range r.order {
		d := r.descriptors[name]
		g.Go(func() error {
			rec := r.probe(ctx, d)
			r.mu.Lock()
			r.health[d.Name] = rec
			r.mu.Unlock()
			if rec.Status != StatusHealthy {
				slog.Warn("service probe failed",
					"service", d.Name,
					"status", string(rec.Status),
					"error", rec.LastError,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// probe performs one health request against d.
func (r *Registry) probe(ctx context.Context, d Descriptor) HealthRecord {
	rec := HealthRecord{ServiceName: d.Name, LastProbeTime: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+d.HealthPath, nil)
	if err != nil {
		rec.Status = StatusUnreachable
		rec.LastError = err.Error()
		return rec
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	rec.LatencyMillis = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		rec.Status = StatusUnreachable
		rec.LastError = err.Error()
		return rec
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		rec.Status = StatusHealthy
	} else {
		rec.Status = StatusUnhealthy
		rec.LastError = resp.Status
	}
	return rec
}

// matchesPrefix is a path-segment-aware prefix test: "/api/data" matches
// "/api/data" and "/api/data/firms" but not "/api/database".
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
