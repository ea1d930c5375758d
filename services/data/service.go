// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds data service construction options.
type Config struct {
	Host string
	Port int

	// Dir is the badger directory; empty selects in-memory.
	Dir string

	// Repository overrides the badger store entirely (tests).
	Repository Repository
}

func (c *Config) applyDefaults() error {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8007
	}
	if c.Repository == nil {
		repo, err := OpenRepository(c.Dir)
		if err != nil {
			return err
		}
		c.Repository = repo
	}
	return nil
}

// =============================================================================
// Service
// =============================================================================

// Service is the running data service.
type Service interface {
	Router() *gin.Engine
	Run() error
	Close() error
}

type service struct {
	cfg    Config
	repo   Repository
	router *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the data service from cfg.
func New(cfg Config) (Service, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	s := &service{cfg: cfg, repo: cfg.Repository}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/data")
	{
		group.GET("/firms", s.handleList)
		group.GET("/firms/:id", s.handleGet)
		group.POST("/firms", s.handleCreate)
		group.PUT("/firms/:id", s.handleUpdate)
		group.DELETE("/firms/:id", s.handleDelete)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }
func (s *service) Close() error        { return s.repo.Close() }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("data service listening", "addr", addr, "dir", s.cfg.Dir)
	return s.router.Run(addr)
}

// =============================================================================
// Handlers
// =============================================================================

// firmRequest is the create body; every update field is optional.
type firmRequest struct {
	FirmID          string         `json:"firm_id"`
	FirmName        string         `json:"firm_name"`
	Address         string         `json:"address"`
	PrincipalBroker string         `json:"principal_broker"`
	LicenseNumber   string         `json:"license_number"`
	State           string         `json:"state"`
	Phone           string         `json:"phone"`
	Email           string         `json:"email"`
	Metadata        map[string]any `json:"metadata"`
}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "data"})
}

// handleList returns firms matching the query filters, paginated.
func (s *service) handleList(c *gin.Context) {
	filter := Filter{
		PrincipalBroker: c.Query("principal_broker"),
		Address:         c.Query("address"),
		State:           c.Query("state"),
	}

	page, pageSize, err := pagination(c)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	firms, err := s.repo.List(c.Request.Context(), filter)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	total := len(firms)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"firms":     firms[start:end],
		"count":     end - start,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *service) handleGet(c *gin.Context) {
	firm, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "firm": firm})
}

func (s *service) handleCreate(c *gin.Context) {
	var req firmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	firm, err := firmFromRequest(req)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.repo.Get(ctx, firm.FirmID); err == nil {
		faults.Respond(c, faults.ConfigConflict("firm "+firm.FirmID+" already exists"))
		return
	}

	now := time.Now().UTC()
	firm.CreatedAt = now
	firm.UpdatedAt = now
	if err := s.repo.Put(ctx, firm); err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "firm": firm})
}

// handleUpdate merges the non-empty request fields into the stored firm.
func (s *service) handleUpdate(c *gin.Context) {
	var req firmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}

	ctx := c.Request.Context()
	firm, err := s.repo.Get(ctx, c.Param("id"))
	if err != nil {
		faults.Respond(c, err)
		return
	}

	if req.FirmName != "" {
		firm.FirmName = req.FirmName
	}
	if req.Address != "" {
		if _, err := validation.Address(req.Address, "address"); err != nil {
			faults.Respond(c, err)
			return
		}
		firm.Address = req.Address
	}
	if req.PrincipalBroker != "" {
		firm.PrincipalBroker = req.PrincipalBroker
	}
	if req.LicenseNumber != "" {
		if _, err := validation.LicenseNumber(req.LicenseNumber, "license_number"); err != nil {
			faults.Respond(c, err)
			return
		}
		firm.LicenseNumber = req.LicenseNumber
	}
	if req.State != "" {
		firm.State = req.State
	}
	if req.Phone != "" {
		firm.Phone = req.Phone
	}
	if req.Email != "" {
		if _, err := validation.Email(req.Email, "email"); err != nil {
			faults.Respond(c, err)
			return
		}
		firm.Email = req.Email
	}
	if len(req.Metadata) > 0 {
		if firm.Metadata == nil {
			firm.Metadata = map[string]any{}
		}
		for k, v := range validation.SanitizeMap(req.Metadata) {
			firm.Metadata[k] = v
		}
	}

	firm.UpdatedAt = time.Now().UTC()
	if err := s.repo.Put(ctx, firm); err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "firm": firm})
}

func (s *service) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := s.repo.Delete(c.Request.Context(), id); err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "firm " + id + " deleted"})
}

// firmFromRequest validates the create body and builds the record.
func firmFromRequest(req firmRequest) (Firm, error) {
	if _, err := validation.String(req.FirmID, "firm_id", 1, 128); err != nil {
		return Firm{}, err
	}
	if _, err := validation.String(req.FirmName, "firm_name", 1, 256); err != nil {
		return Firm{}, err
	}
	if _, err := validation.Address(req.Address, "address"); err != nil {
		return Firm{}, err
	}
	if req.LicenseNumber != "" {
		if _, err := validation.LicenseNumber(req.LicenseNumber, "license_number"); err != nil {
			return Firm{}, err
		}
	}
	if req.Email != "" {
		if _, err := validation.Email(req.Email, "email"); err != nil {
			return Firm{}, err
		}
	}
	if req.Phone != "" {
		cleaned, err := validation.Phone(req.Phone, "phone")
		if err != nil {
			return Firm{}, err
		}
		req.Phone = cleaned
	}

	return Firm{
		FirmID:          req.FirmID,
		FirmName:        req.FirmName,
		Address:         req.Address,
		PrincipalBroker: req.PrincipalBroker,
		LicenseNumber:   req.LicenseNumber,
		State:           req.State,
		Phone:           req.Phone,
		Email:           req.Email,
		Metadata:        validation.SanitizeMap(req.Metadata),
	}, nil
}

// pagination reads page/page_size query params with the kit's bounds.
func pagination(c *gin.Context) (int, int, error) {
	page := 1
	pageSize := 50
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, faults.InvalidArgument("page", "must be an integer")
		}
		page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, faults.InvalidArgument("page_size", "must be an integer")
		}
		pageSize = n
	}
	return validation.Pagination(page, pageSize)
}
