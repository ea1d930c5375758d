// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation is the validation service: the HTTP surface over the
// shared validation kit. Strict endpoints (license, address) reject bad
// input with the kit's InvalidArgument fault; the firm and batch endpoints
// aggregate per-field findings into a report instead.
package validation

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	kit "github.com/AleutianAI/RecordFabric/pkg/validation"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds validation service construction options.
type Config struct {
	Host string
	Port int
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8003
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the running validation service.
type Service interface {
	Router() *gin.Engine
	Run() error
}

type service struct {
	cfg    Config
	router *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the validation service from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()
	s := &service{cfg: cfg}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/validate")
	{
		group.POST("/license", s.handleLicense)
		group.POST("/address", s.handleAddress)
		group.POST("/firm", s.handleFirm)
		group.POST("/batch", s.handleBatch)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("validation service listening", "addr", addr)
	return s.router.Run(addr)
}

// =============================================================================
// Handlers
// =============================================================================

// validateRequest mirrors the wire contract shared by the single-value
// endpoints: the value under test plus an optional type discriminator.
type validateRequest struct {
	Data           any    `json:"data"`
	ValidationType string `json:"validation_type,omitempty"`
}

type batchRequest struct {
	Items          []map[string]any `json:"items"`
	ValidationType string           `json:"validation_type"`
}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "validation"})
}

// handleLicense validates one license number. Rejections carry the field
// name and digit count in the fault message.
func (s *service) handleLicense(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	raw, ok := req.Data.(string)
	if !ok {
		faults.Respond(c, faults.InvalidArgument("data", "must be a string"))
		return
	}

	normalized, err := kit.LicenseNumber(raw, "license_number")
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "normalized": normalized})
}

func (s *service) handleAddress(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	raw, ok := req.Data.(string)
	if !ok {
		faults.Respond(c, faults.InvalidArgument("data", "must be a string"))
		return
	}

	normalized, err := kit.Address(raw, "address")
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "normalized": normalized})
}

// handleFirm validates a firm object field by field and returns an
// aggregated report rather than failing on the first finding.
func (s *service) handleFirm(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	firm, ok := req.Data.(map[string]any)
	if !ok {
		faults.Respond(c, faults.InvalidArgument("data", "must be an object"))
		return
	}

	report := validateFirm(firm)
	c.JSON(http.StatusOK, report)
}

func (s *service) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if _, err := kit.List(req.Items, "items", 1, 1000); err != nil {
		faults.Respond(c, err)
		return
	}
	if req.ValidationType != "firm" {
		faults.Respond(c, faults.InvalidArgument("validation_type", "must be \"firm\""))
		return
	}

	results := make([]firmReport, 0, len(req.Items))
	valid := 0
	for _, item := range req.Items {
		report := validateFirm(item)
		if report.Valid {
			valid++
		}
		results = append(results, report)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": results,
		"total":   len(results),
		"valid":   valid,
		"invalid": len(results) - valid,
	})
}

// =============================================================================
// Firm report
// =============================================================================

// firmReport is the aggregated outcome of validating one firm record.
type firmReport struct {
	Valid      bool              `json:"valid"`
	Reasons    []string          `json:"reasons,omitempty"`
	Normalized map[string]string `json:"normalized,omitempty"`
}

// validateFirm checks the required identity fields and any optional contact
// fields present, collecting every finding.
func validateFirm(firm map[string]any) firmReport {
	report := firmReport{Valid: true, Normalized: map[string]string{}}

	record := func(field string, value string, validate func(string, string) (string, error)) {
		normalized, err := validate(value, field)
		if err != nil {
			report.Valid = false
			report.Reasons = append(report.Reasons, faults.From(err).Message)
			return
		}
		report.Normalized[field] = normalized
	}

	name, _ := firm["firm_name"].(string)
	record("firm_name", name, func(v, f string) (string, error) {
		return kit.String(v, f, 1, 256)
	})

	if address, ok := firm["address"].(string); ok && address != "" {
		record("address", address, kit.Address)
	}
	if license, ok := firm["license_number"].(string); ok && license != "" {
		record("license_number", license, kit.LicenseNumber)
	}
	if email, ok := firm["email"].(string); ok && email != "" {
		record("email", email, kit.Email)
	}
	if phone, ok := firm["phone"].(string); ok && phone != "" {
		record("phone", phone, kit.Phone)
	}

	if len(report.Normalized) == 0 {
		report.Normalized = nil
	}
	return report
}
