// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package drive

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds Drive service construction options.
type Config struct {
	Host string
	Port int

	// Client talks to Drive; nil selects the Google client built from
	// CredentialsFile. With neither, every operation returns an
	// authentication fault rather than failing construction, so the
	// service still reports health in credential-less deployments.
	Client Client

	// CredentialsFile is the service-account key path.
	CredentialsFile string

	// Manager is the redundancy state for upstream calls; nil selects
	// fabric defaults.
	Manager *redundancy.Manager
}

func (c *Config) applyDefaults(ctx context.Context) {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8008
	}
	if c.Manager == nil {
		c.Manager = redundancy.NewManager(redundancy.ManagerConfig{})
	}
	if c.Client == nil {
		client, err := NewGoogleClient(ctx, c.CredentialsFile)
		if err != nil {
			slog.Warn("drive service running without credentials", "error", err)
			client = unauthenticatedClient{err: err}
		}
		c.Client = client
	}
}

// unauthenticatedClient refuses every operation with the construction fault.
type unauthenticatedClient struct{ err error }

func (u unauthenticatedClient) List(context.Context, ListQuery) ([]FileMeta, error) {
	return nil, u.err
}
func (u unauthenticatedClient) Info(context.Context, string) (FileMeta, error) {
	return FileMeta{}, u.err
}
func (u unauthenticatedClient) Download(context.Context, string) ([]byte, string, error) {
	return nil, "", u.err
}
func (u unauthenticatedClient) Export(context.Context, string, string) ([]byte, error) {
	return nil, u.err
}
func (u unauthenticatedClient) Create(context.Context, CreateSpec) (FileMeta, error) {
	return FileMeta{}, u.err
}
func (u unauthenticatedClient) Update(context.Context, string, UpdateSpec) (FileMeta, error) {
	return FileMeta{}, u.err
}
func (u unauthenticatedClient) Move(context.Context, string, string) (FileMeta, error) {
	return FileMeta{}, u.err
}
func (u unauthenticatedClient) Copy(context.Context, string, string) (FileMeta, error) {
	return FileMeta{}, u.err
}
func (u unauthenticatedClient) Delete(context.Context, string) error { return u.err }

// =============================================================================
// Service
// =============================================================================

// Service is the running Drive service.
type Service interface {
	Router() *gin.Engine
	Run() error
}

type service struct {
	cfg     Config
	client  Client
	manager *redundancy.Manager
	router  *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the Drive service from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults(context.Background())
	s := &service{cfg: cfg, client: cfg.Client, manager: cfg.Manager}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/drive")
	{
		group.POST("/list", s.handleList)
		group.POST("/download", s.handleDownload)
		group.POST("/export", s.handleExport)
		group.POST("/create", s.handleCreate)
		group.POST("/move", s.handleMove)
		group.POST("/copy", s.handleCopy)
		group.PUT("/update", s.handleUpdate)
		group.GET("/info/:id", s.handleInfo)
		group.DELETE("/delete/:id", s.handleDelete)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("drive service listening", "addr", addr)
	return s.router.Run(addr)
}

// call routes one Drive operation through the redundancy pipeline. Reads
// pass a cache key; writes never do.
func call[T any](s *service, ctx context.Context, cacheKey string, fn func(context.Context) (T, error)) (T, error) {
	return redundancy.Execute(ctx, s.manager, redundancy.Op[T]{
		Target:   "google-drive",
		CacheKey: cacheKey,
		Primary:  fn,
	})
}

// =============================================================================
// Handlers
// =============================================================================

type fileIDRequest struct {
	FileID string `json:"file_id"`
}

type exportRequest struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
}

type moveRequest struct {
	FileID        string `json:"file_id"`
	DestinationID string `json:"destination_id"`
}

type copyRequest struct {
	FileID string `json:"file_id"`
	Name   string `json:"name,omitempty"`
}

type updateRequest struct {
	FileID      string `json:"file_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *service) handleHealth(c *gin.Context) {
	_, degraded := s.client.(unauthenticatedClient)
	status := "healthy"
	if degraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "service": "google-drive"})
}

func (s *service) handleList(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if q.PageSize != 0 {
		if _, err := validation.Integer(q.PageSize, "page_size", 1, 1000); err != nil {
			faults.Respond(c, err)
			return
		}
	}

	files, err := call(s, c.Request.Context(), "", s.listFn(q))
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "files": files, "count": len(files)})
}

func (s *service) listFn(q ListQuery) func(context.Context) ([]FileMeta, error) {
	return func(ctx context.Context) ([]FileMeta, error) { return s.client.List(ctx, q) }
}

type download struct {
	Content  []byte `json:"content"`
	MimeType string `json:"mime_type"`
}

func (s *service) handleDownload(c *gin.Context) {
	var req fileIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	fileID, err := validation.String(req.FileID, "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	result, err := call(s, c.Request.Context(), "drive:download:"+fileID,
		func(ctx context.Context) (download, error) {
			content, mimeType, err := s.client.Download(ctx, fileID)
			return download{Content: content, MimeType: mimeType}, err
		})
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"file_id":   fileID,
		"mime_type": result.MimeType,
		"size":      len(result.Content),
		"content":   base64.StdEncoding.EncodeToString(result.Content),
	})
}

func (s *service) handleExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	fileID, err := validation.String(req.FileID, "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	mimeType, err := validation.String(req.MimeType, "mime_type", 3, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	content, err := call(s, c.Request.Context(), "drive:export:"+fileID+":"+mimeType,
		func(ctx context.Context) ([]byte, error) {
			return s.client.Export(ctx, fileID, mimeType)
		})
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"file_id":   fileID,
		"mime_type": mimeType,
		"size":      len(content),
		"content":   base64.StdEncoding.EncodeToString(content),
	})
}

func (s *service) handleCreate(c *gin.Context) {
	var spec CreateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	name, err := validation.String(spec.Name, "name", 1, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	spec.Name = validation.Sanitize(name)

	meta, err := call(s, c.Request.Context(), "",
		func(ctx context.Context) (FileMeta, error) { return s.client.Create(ctx, spec) })
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "file": meta})
}

func (s *service) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	fileID, err := validation.String(req.FileID, "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	destID, err := validation.String(req.DestinationID, "destination_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	meta, err := call(s, c.Request.Context(), "",
		func(ctx context.Context) (FileMeta, error) { return s.client.Move(ctx, fileID, destID) })
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "file": meta})
}

func (s *service) handleCopy(c *gin.Context) {
	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	fileID, err := validation.String(req.FileID, "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	meta, err := call(s, c.Request.Context(), "",
		func(ctx context.Context) (FileMeta, error) {
			return s.client.Copy(ctx, fileID, validation.Sanitize(req.Name))
		})
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "file": meta})
}

func (s *service) handleUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	fileID, err := validation.String(req.FileID, "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	if req.Name == "" && req.Description == "" {
		faults.Respond(c, faults.InvalidArgument("body", "must set name or description"))
		return
	}
	spec := UpdateSpec{
		Name:        validation.Sanitize(req.Name),
		Description: validation.Sanitize(req.Description),
	}

	meta, err := call(s, c.Request.Context(), "",
		func(ctx context.Context) (FileMeta, error) { return s.client.Update(ctx, fileID, spec) })
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "file": meta})
}

func (s *service) handleInfo(c *gin.Context) {
	fileID, err := validation.String(c.Param("id"), "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	meta, err := call(s, c.Request.Context(), "drive:info:"+fileID,
		func(ctx context.Context) (FileMeta, error) { return s.client.Info(ctx, fileID) })
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "file": meta})
}

func (s *service) handleDelete(c *gin.Context) {
	fileID, err := validation.String(c.Param("id"), "file_id", 4, 256)
	if err != nil {
		faults.Respond(c, err)
		return
	}

	_, err = call(s, c.Request.Context(), "",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.client.Delete(ctx, fileID)
		})
	if err != nil {
		faults.Respond(c, err)
		return
	}
	// A later info read must not resurrect the file from cache.
	s.manager.Cache().Delete("drive:info:" + fileID)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "file " + fileID + " deleted"})
}
