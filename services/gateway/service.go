// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway is the single ingress for the record fabric. It owns the
// service registry, forwards /api/* traffic to downstream services through
// the redundancy pipeline, and exposes the aggregated health and metrics
// surface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/RecordFabric/pkg/config"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/services/gateway/observability"
	"github.com/AleutianAI/RecordFabric/services/gateway/registry"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds gateway construction options.
type Config struct {
	Host string
	Port int

	// Descriptors is the downstream service table. Empty selects the
	// default fabric layout on localhost.
	Descriptors []registry.Descriptor

	// Manager is the shared redundancy state; nil selects fabric defaults.
	Manager *redundancy.Manager

	// RateLimit is requests/second per client IP; 0 disables limiting.
	RateLimit float64
	Burst     int

	HealthInterval time.Duration

	// TracingEndpoint is the OTLP gRPC collector; empty disables tracing.
	TracingEndpoint string
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if len(c.Descriptors) == 0 {
		appCfg, _ := config.Load("")
		c.Descriptors = DescriptorsFromConfig(appCfg)
	}
	if c.Manager == nil {
		c.Manager = redundancy.NewManager(redundancy.ManagerConfig{})
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 30 * time.Second
	}
}

// routeTable maps each fabric service to its gateway prefixes and the
// downstream paths they rewrite to.
var routeTable = map[string][]registry.Route{
	"analysis":     {{Prefix: "/api/analysis", Rewrite: "/analyze"}},
	"scraping":     {{Prefix: "/api/scraping", Rewrite: "/scrape"}},
	"validation":   {{Prefix: "/api/validation", Rewrite: "/validate"}},
	"vector":       {{Prefix: "/api/vectors", Rewrite: "/vectors"}},
	"gis":          {{Prefix: "/api/gis", Rewrite: "/gis"}},
	"acris":        {{Prefix: "/api/acris", Rewrite: "/acris"}},
	"data":         {{Prefix: "/api/data", Rewrite: "/data"}},
	"google-drive": {{Prefix: "/api/drive", Rewrite: "/drive"}},
}

// DescriptorsFromConfig builds the registry table from the loaded fabric
// configuration, preserving the canonical service order.
func DescriptorsFromConfig(appCfg *config.Config) []registry.Descriptor {
	descriptors := make([]registry.Descriptor, 0, len(config.ServiceNames))
	for _, name := range config.ServiceNames {
		endpoint := appCfg.Services[name]
		if endpoint.URL == "" {
			endpoint.URL = fmt.Sprintf("http://localhost:%d", config.ServicePort(name))
		}
		descriptors = append(descriptors, registry.Descriptor{
			Name:       name,
			BaseURL:    endpoint.URL,
			Alternates: endpoint.Alternates,
			Routes:     routeTable[name],
		})
	}
	return descriptors
}

// =============================================================================
// Service
// =============================================================================

// Service is the running gateway.
type Service interface {
	// Router exposes the gin engine for serving and tests.
	Router() *gin.Engine

	// Registry exposes the service table and health snapshot.
	Registry() *registry.Registry

	// Run starts the health prober and serves until ctx is cancelled.
	Run(ctx context.Context) error
}

type service struct {
	cfg      Config
	router   *gin.Engine
	registry *registry.Registry
	proxy    *proxy
	metrics  *observability.Metrics

	shutdownTracer func(context.Context)
}

var _ Service = (*service)(nil)

// New builds the gateway from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()

	reg := registry.New(cfg.Descriptors, registry.Config{Interval: cfg.HealthInterval})
	metrics := observability.NewMetrics(0)

	s := &service{
		cfg:      cfg,
		registry: reg,
		metrics:  metrics,
		proxy:    newProxy(reg, cfg.Manager, metrics),
	}

	if cfg.TracingEndpoint != "" {
		shutdown, err := initTracer(cfg.TracingEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		s.shutdownTracer = shutdown
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if s.shutdownTracer != nil {
		router.Use(otelgin.Middleware("gateway-service"))
	}
	router.Use(corsMiddleware())
	router.Use(rateLimitMiddleware(cfg.RateLimit, cfg.Burst))

	router.GET("/health", s.handleHealth)
	router.GET("/services", s.handleServices)
	router.GET("/metrics", metrics.SnapshotHandler())
	router.GET("/metrics/prom", observability.PrometheusHandler())
	router.NoRoute(s.proxy.Handle)

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine          { return s.router }
func (s *service) Registry() *registry.Registry { return s.registry }

// Run starts the background health prober and serves HTTP until ctx is
// cancelled, then drains in-flight requests.
func (s *service) Run(ctx context.Context) error {
	s.registry.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.shutdownTracer != nil {
		defer s.shutdownTracer(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

// =============================================================================
// Handlers
// =============================================================================

// handleHealth aggregates the registry's latest probe sweep. The gateway
// reports "degraded" when any downstream is unhealthy or unreachable; it
// never removes a service from the table.
func (s *service) handleHealth(c *gin.Context) {
	all := s.registry.AllHealth()

	status := "ok"
	for _, rec := range all {
		if rec.Status == registry.StatusUnhealthy || rec.Status == registry.StatusUnreachable {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"gateway":  "healthy",
		"services": all,
	})
}

// handleServices lists the registered downstream services with their
// routes and current health.
func (s *service) handleServices(c *gin.Context) {
	type entry struct {
		registry.Descriptor
		Health registry.HealthRecord `json:"health"`
	}

	out := make([]entry, 0, len(s.registry.Names()))
	for _, name := range s.registry.Names() {
		d, err := s.registry.Resolve(name)
		if err != nil {
			continue
		}
		out = append(out, entry{Descriptor: d, Health: s.registry.Health(name)})
	}
	c.JSON(http.StatusOK, gin.H{"services": out, "count": len(out)})
}
