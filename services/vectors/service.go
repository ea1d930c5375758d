// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectors is the vector service: deterministic embedding plus the
// collection/upsert/search surface over a pluggable store backend.
package vectors

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/services/vectors/embed"
	"github.com/AleutianAI/RecordFabric/services/vectors/store"
	"github.com/AleutianAI/RecordFabric/services/vectors/store/memory"
)

// =============================================================================
// Configuration
// =============================================================================

// Config configures the vector service.
type Config struct {
	// Host and Port form the listen address; Port 0 selects 8004.
	Host string
	Port int

	// Engine embeds query and document text; nil selects the
	// deterministic feature-hash encoder.
	Engine embed.Engine

	// Store is the vector backend; nil selects the in-memory store.
	Store store.Store
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8004
	}
	if c.Engine == nil {
		c.Engine = embed.NewFeatureHashEngine(embed.Options{})
	}
	if c.Store == nil {
		c.Store = memory.New()
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the vector service surface.
type Service interface {
	// Router exposes the gin engine, primarily for tests.
	Router() *gin.Engine

	// Run blocks serving HTTP on the configured address.
	Run() error
}

type service struct {
	config Config
	engine embed.Engine
	store  store.Store
	router *gin.Engine
}

var _ Service = (*service)(nil)

// New creates the vector service with its routes registered.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()

	s := &service{
		config: cfg,
		engine: cfg.Engine,
		store:  cfg.Store,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)

	v := router.Group("/vectors")
	{
		v.POST("/embed", s.handleEmbed)
		v.POST("/store", s.handleStore)
		v.POST("/store/batch", s.handleStoreBatch)
		v.POST("/search", s.handleSearch)
		v.GET("/collections", s.handleCollections)
		v.GET("/:collection/:id", s.handleGet)
		v.DELETE("/:collection/:id", s.handleDelete)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	slog.Info("vector service listening",
		"addr", addr,
		"model", s.engine.Model(),
		"dimension", s.engine.Dimension(),
	)
	return s.router.Run(addr)
}
