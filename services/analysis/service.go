// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
	"github.com/AleutianAI/RecordFabric/services/data"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds analysis service construction options.
type Config struct {
	Host string
	Port int

	// Source supplies the firm corpus; nil selects the data service at
	// DataServiceURL through the redundancy pipeline.
	Source FirmSource

	// DataServiceURL is the data service base; used when Source is nil.
	DataServiceURL string

	// Manager is the redundancy state for the remote source; nil selects
	// fabric defaults.
	Manager *redundancy.Manager
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8001
	}
	if c.Source == nil {
		if c.DataServiceURL == "" {
			c.DataServiceURL = "http://localhost:8007"
		}
		if c.Manager == nil {
			c.Manager = redundancy.NewManager(redundancy.ManagerConfig{})
		}
		c.Source = NewDataServiceSource(c.DataServiceURL, c.Manager)
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the running analysis service.
type Service interface {
	Router() *gin.Engine
	Run() error
}

type service struct {
	cfg    Config
	source FirmSource
	router *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the analysis service from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()
	s := &service{cfg: cfg, source: cfg.Source}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/analyze")
	{
		group.POST("/fraud", s.analyze(analyzeFraud))
		group.POST("/nexus", s.analyze(analyzeNexus))
		group.POST("/connections", s.analyze(analyzeConnections))
		group.POST("/violations", s.analyze(analyzeViolations))
		group.POST("/all", s.analyze(analyzeAll))
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("analysis service listening", "addr", addr)
	return s.router.Run(addr)
}

// =============================================================================
// Handlers
// =============================================================================

type analysisRequest struct {
	Filters map[string]any `json:"filters,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type analysisFunc func(a Analyzer, firms []data.Firm) any

func analyzeFraud(a Analyzer, firms []data.Firm) any       { return a.FraudPatterns(firms) }
func analyzeNexus(a Analyzer, firms []data.Firm) any       { return a.NexusPatterns(firms) }
func analyzeConnections(a Analyzer, firms []data.Firm) any { return a.Connections(firms) }
func analyzeViolations(a Analyzer, firms []data.Firm) any  { return a.Violations(firms) }

func analyzeAll(a Analyzer, firms []data.Firm) any {
	return gin.H{
		"fraud":       a.FraudPatterns(firms),
		"nexus":       a.NexusPatterns(firms),
		"connections": a.Connections(firms),
		"violations":  a.Violations(firms),
	}
}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "analysis"})
}

// analyze is the shared handler body: bind, filter the corpus, run one
// analysis function.
func (s *service) analyze(fn analysisFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
			return
		}

		analyzer := Analyzer{}
		if req.Options != nil {
			if raw, ok := req.Options["min_cluster_size"]; ok {
				n, err := validation.Integer(raw, "options.min_cluster_size", 2, 100)
				if err != nil {
					faults.Respond(c, err)
					return
				}
				analyzer.MinClusterSize = n
			}
		}

		firms, err := s.source.Firms(c.Request.Context())
		if err != nil {
			faults.Respond(c, err)
			return
		}
		firms, err = applyFilters(firms, req.Filters)
		if err != nil {
			faults.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "results": fn(analyzer, firms)})
	}
}

// applyFilters narrows the corpus on exact state / principal_broker match.
// Unknown filter keys are rejected so typos fail loudly.
func applyFilters(firms []data.Firm, filters map[string]any) ([]data.Firm, error) {
	if len(filters) == 0 {
		return firms, nil
	}

	want := data.Filter{}
	for key, raw := range filters {
		value, ok := raw.(string)
		if !ok {
			return nil, faults.InvalidArgument("filters."+key, "must be a string")
		}
		switch key {
		case "state":
			want.State = value
		case "principal_broker":
			want.PrincipalBroker = value
		default:
			return nil, faults.InvalidArgument("filters."+key, "unknown filter")
		}
	}

	var out []data.Firm
	for _, f := range firms {
		if want.State != "" && f.State != want.State {
			continue
		}
		if want.PrincipalBroker != "" && f.PrincipalBroker != want.PrincipalBroker {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
