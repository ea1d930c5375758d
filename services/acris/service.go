// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package acris

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
)

// boroughCodes maps borough names to ACRIS numeric codes.
var boroughCodes = map[string]string{
	"Manhattan":     "1",
	"Bronx":         "2",
	"Brooklyn":      "3",
	"Queens":        "4",
	"Staten Island": "5",
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds ACRIS service construction options.
type Config struct {
	Host string
	Port int

	// Client performs the upstream searches; nil selects the open-data
	// client at BaseURL.
	Client Client

	// BaseURL overrides the open-data endpoint. Ignored when Client is set.
	BaseURL string

	// Manager is the redundancy state for upstream calls; nil selects
	// fabric defaults.
	Manager *redundancy.Manager
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8006
	}
	if c.Manager == nil {
		c.Manager = redundancy.NewManager(redundancy.ManagerConfig{})
	}
	if c.Client == nil {
		c.Client = NewClient(c.BaseURL, c.Manager)
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the running ACRIS service.
type Service interface {
	Router() *gin.Engine
	Run() error
}

type service struct {
	cfg    Config
	client Client
	router *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the ACRIS service from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()
	s := &service{cfg: cfg, client: cfg.Client}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/acris/search")
	{
		group.POST("/block-lot", s.handleBlockLot)
		group.POST("/address", s.handleAddress)
		group.POST("/party", s.handleParty)
		group.POST("/document", s.handleDocument)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("acris service listening", "addr", addr)
	return s.router.Run(addr)
}

// =============================================================================
// Handlers
// =============================================================================

type blockLotRequest struct {
	Borough string `json:"borough"`
	Block   string `json:"block"`
	Lot     string `json:"lot"`
}

type addressRequest struct {
	Address string `json:"address"`
	Borough string `json:"borough,omitempty"`
}

type partyRequest struct {
	PartyName    string `json:"party_name"`
	DocumentType string `json:"document_type,omitempty"`
}

type documentRequest struct {
	DocumentID string `json:"document_id"`
}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "acris"})
}

func (s *service) handleBlockLot(c *gin.Context) {
	var req blockLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	borough, err := validation.Borough(req.Borough, "borough")
	if err != nil {
		faults.Respond(c, err)
		return
	}
	block, lot, err := validation.BlockLot(req.Block, req.Lot)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	records, err := s.client.SearchBlockLot(c.Request.Context(), boroughCodes[borough], block, lot)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	respondResults(c, records)
}

func (s *service) handleAddress(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	address, err := validation.Address(req.Address, "address")
	if err != nil {
		faults.Respond(c, err)
		return
	}
	code := ""
	if req.Borough != "" {
		borough, err := validation.Borough(req.Borough, "borough")
		if err != nil {
			faults.Respond(c, err)
			return
		}
		code = boroughCodes[borough]
	}

	records, err := s.client.SearchAddress(c.Request.Context(), address, code)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	respondResults(c, records)
}

func (s *service) handleParty(c *gin.Context) {
	var req partyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	party, err := validation.String(req.PartyName, "party_name", 2, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	docType := ""
	if req.DocumentType != "" {
		docType, err = validation.String(req.DocumentType, "document_type", 2, 32)
		if err != nil {
			faults.Respond(c, err)
			return
		}
	}

	records, err := s.client.SearchParty(c.Request.Context(), party, docType)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	respondResults(c, records)
}

// handleDocument returns exactly one record; zero matches is a NotFound.
func (s *service) handleDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	docID, err := validation.String(req.DocumentID, "document_id", 4, 64)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	records, err := s.client.SearchDocument(c.Request.Context(), docID)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	if len(records) == 0 {
		faults.Respond(c, faults.NotFound("document "+docID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "result": records[0]})
}

func respondResults(c *gin.Context, records []Record) {
	if records == nil {
		records = []Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": records,
		"count":   len(records),
	})
}
