// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scraping is the scraping service: listing and records collection
// for airbnb, vrbo, front-office, and ACRIS targets. Work is queued on an
// in-process FIFO and executed by a bounded worker pool; every scrape runs
// through the redundancy pipeline because the upstream is a third party.
package scraping

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
)

// =============================================================================
// Scraper
// =============================================================================

// Scraper performs one scrape against an external source.
type Scraper interface {
	// Scrape collects records for kind ("airbnb", "vrbo", "front",
	// "acris") with the job's targets and params.
	Scrape(ctx context.Context, kind string, targets []string, params map[string]any) (any, error)
}

// stubScraper is the offline scraper: it returns a deterministic listing
// skeleton per target so the queue, status, and pipeline paths are fully
// exercisable without a headless browser.
type stubScraper struct{}

func (stubScraper) Scrape(_ context.Context, kind string, targets []string, params map[string]any) (any, error) {
	listings := make([]map[string]any, 0, len(targets))
	for _, target := range targets {
		listings = append(listings, map[string]any{
			"source": kind,
			"target": target,
			"status": "pending_review",
		})
	}
	if kind == "acris" {
		return map[string]any{"search_type": params["search_type"], "records": []any{}}, nil
	}
	return listings, nil
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds scraping service construction options.
type Config struct {
	Host string
	Port int

	// Scraper executes the actual collection; nil selects the offline stub.
	Scraper Scraper

	// Workers bounds concurrent scrapes; 0 selects 2.
	Workers int

	// Manager is the redundancy state for upstream calls; nil selects
	// fabric defaults.
	Manager *redundancy.Manager
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8002
	}
	if c.Scraper == nil {
		c.Scraper = stubScraper{}
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.Manager == nil {
		c.Manager = redundancy.NewManager(redundancy.ManagerConfig{})
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the running scraping service.
type Service interface {
	Router() *gin.Engine

	// Start launches the worker pool. Run calls it; tests call it with
	// their own context.
	Start(ctx context.Context)

	Run(ctx context.Context) error
}

type service struct {
	cfg     Config
	queue   *Queue
	manager *redundancy.Manager
	router  *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the scraping service from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()

	s := &service{cfg: cfg, manager: cfg.Manager}
	s.queue = NewQueue(cfg.Workers, 0, func(ctx context.Context, job *Job) (any, error) {
		return redundancy.Execute(ctx, s.manager, redundancy.Op[any]{
			Target: "scraper:" + job.Kind,
			Primary: func(ctx context.Context) (any, error) {
				return cfg.Scraper.Scrape(ctx, job.Kind, job.Targets, job.Params)
			},
		})
	})

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/scrape")
	{
		group.POST("/airbnb", s.handleListings("airbnb"))
		group.POST("/vrbo", s.handleListings("vrbo"))
		group.POST("/front", s.handleListings("front"))
		group.POST("/acris", s.handleACRIS)
		group.GET("/jobs/:id", s.handleJob)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine       { return s.router }
func (s *service) Start(ctx context.Context) { s.queue.Start(ctx) }

func (s *service) Run(ctx context.Context) error {
	s.Start(ctx)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("scraping service listening", "addr", addr, "workers", s.cfg.Workers)
	return s.router.Run(addr)
}

// =============================================================================
// Handlers
// =============================================================================

type scrapeRequest struct {
	Targets []string       `json:"targets"`
	Options map[string]any `json:"options,omitempty"`
}

type acrisRequest struct {
	SearchType string         `json:"search_type"`
	Params     map[string]any `json:"params"`
}

// acrisSearchTypes is the closed set accepted by the ACRIS scraper.
var acrisSearchTypes = []string{"block-lot", "address", "party", "document"}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "scraping",
		"queued":  s.queue.Len(),
	})
}

// handleListings enqueues a listings scrape after validating that every
// target parses as an address.
func (s *service) handleListings(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
			return
		}
		if _, err := validation.List(req.Targets, "targets", 1, 50); err != nil {
			faults.Respond(c, err)
			return
		}
		for i, target := range req.Targets {
			if _, err := validation.Address(target, fmt.Sprintf("targets[%d]", i)); err != nil {
				faults.Respond(c, err)
				return
			}
		}

		job, err := s.queue.Enqueue(kind, req.Targets, validation.SanitizeMap(req.Options))
		if err != nil {
			faults.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "queued", "job": job})
	}
}

// handleACRIS enqueues a property-records search.
func (s *service) handleACRIS(c *gin.Context) {
	var req acrisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}

	valid := false
	for _, t := range acrisSearchTypes {
		if req.SearchType == t {
			valid = true
			break
		}
	}
	if !valid {
		faults.Respond(c, faults.InvalidArgument("search_type",
			"must be one of: "+strings.Join(acrisSearchTypes, ", ")))
		return
	}
	if _, err := validation.Mapping(req.Params, "params"); err != nil {
		faults.Respond(c, err)
		return
	}

	params := validation.SanitizeMap(req.Params)
	params["search_type"] = req.SearchType

	job, err := s.queue.Enqueue("acris", nil, params)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued", "job": job})
}

func (s *service) handleJob(c *gin.Context) {
	job, err := s.queue.Get(c.Param("id"))
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
