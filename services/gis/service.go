// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gis is the GIS service: geospatial file conversion and
// inspection behind a pluggable converter.
package gis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
)

// =============================================================================
// Converter
// =============================================================================

// ConvertSpec describes one conversion.
type ConvertSpec struct {
	InputFile    string `json:"input_file"`
	OutputFormat string `json:"output_format"`
	OutputFile   string `json:"output_file,omitempty"`
	TargetSRS    string `json:"target_srs,omitempty"`
}

// ConvertResult is the outcome of one conversion.
type ConvertResult struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Format     string `json:"format"`
	SRS        string `json:"srs,omitempty"`
}

// FileInfo describes a geospatial file.
type FileInfo struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Layer  string `json:"layer,omitempty"`
}

// Converter performs the actual geospatial work.
type Converter interface {
	Convert(ctx context.Context, spec ConvertSpec) (ConvertResult, error)
	Info(ctx context.Context, filePath string) (FileInfo, error)
}

// inputFormats maps accepted input extensions to their format names.
var inputFormats = map[string]string{
	".shp":     "shapefile",
	".geojson": "geojson",
	".json":    "geojson",
	".kml":     "kml",
	".gpkg":    "geopackage",
	".csv":     "csv",
}

// outputFormats maps accepted output format names to their extensions.
var outputFormats = map[string]string{
	"geojson":    ".geojson",
	"shapefile":  ".shp",
	"kml":        ".kml",
	"geopackage": ".gpkg",
}

// pathConverter is the default converter: it resolves formats and output
// paths without touching the filesystem, leaving the heavy lifting to an
// external toolchain invoked by deployment-specific converters.
type pathConverter struct{}

func (pathConverter) Convert(_ context.Context, spec ConvertSpec) (ConvertResult, error) {
	ext := strings.ToLower(path.Ext(spec.InputFile))
	if _, ok := inputFormats[ext]; !ok {
		return ConvertResult{}, faults.InvalidArgument("input_file",
			fmt.Sprintf("unsupported extension %q", ext))
	}
	outExt, ok := outputFormats[spec.OutputFormat]
	if !ok {
		return ConvertResult{}, faults.InvalidArgument("output_format",
			"must be one of: "+strings.Join(formatNames(), ", "))
	}

	output := spec.OutputFile
	if output == "" {
		output = strings.TrimSuffix(spec.InputFile, ext) + outExt
	}
	return ConvertResult{
		InputFile:  spec.InputFile,
		OutputFile: output,
		Format:     spec.OutputFormat,
		SRS:        spec.TargetSRS,
	}, nil
}

func (pathConverter) Info(_ context.Context, filePath string) (FileInfo, error) {
	ext := strings.ToLower(path.Ext(filePath))
	format, ok := inputFormats[ext]
	if !ok {
		return FileInfo{}, faults.InvalidArgument("file_path",
			fmt.Sprintf("unsupported extension %q", ext))
	}
	layer := strings.TrimSuffix(path.Base(filePath), ext)
	return FileInfo{Path: filePath, Format: format, Layer: layer}, nil
}

func formatNames() []string {
	return []string{"geojson", "shapefile", "kml", "geopackage"}
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds GIS service construction options.
type Config struct {
	Host string
	Port int

	// Converter does the conversions; nil selects the path-only default.
	Converter Converter
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8005
	}
	if c.Converter == nil {
		c.Converter = pathConverter{}
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the running GIS service.
type Service interface {
	Router() *gin.Engine
	Run() error
}

type service struct {
	cfg       Config
	converter Converter
	router    *gin.Engine
}

var _ Service = (*service)(nil)

// New builds the GIS service from cfg.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()
	s := &service{cfg: cfg, converter: cfg.Converter}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	group := router.Group("/gis")
	{
		group.POST("/convert", s.handleConvert)
		group.POST("/batch", s.handleBatch)
		group.GET("/info/*path", s.handleInfo)
	}

	s.router = router
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	slog.Info("gis service listening", "addr", addr)
	return s.router.Run(addr)
}

// =============================================================================
// Handlers
// =============================================================================

type batchRequest struct {
	InputFiles   []string `json:"input_files"`
	OutputFormat string   `json:"output_format"`
	OutputDir    string   `json:"output_dir,omitempty"`
	TargetSRS    string   `json:"target_srs,omitempty"`
}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "gis"})
}

func (s *service) handleConvert(c *gin.Context) {
	var spec ConvertSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if _, err := validation.String(spec.InputFile, "input_file", 1, 1024); err != nil {
		faults.Respond(c, err)
		return
	}
	if spec.OutputFormat == "" {
		spec.OutputFormat = "geojson"
	}

	result, err := s.converter.Convert(c.Request.Context(), spec)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "result": result})
}

// handleBatch converts every input concurrently; the whole batch fails on
// the first rejected input so callers never receive a partial success.
func (s *service) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if _, err := validation.List(req.InputFiles, "input_files", 1, 100); err != nil {
		faults.Respond(c, err)
		return
	}
	if req.OutputFormat == "" {
		req.OutputFormat = "geojson"
	}

	results := make([]ConvertResult, len(req.InputFiles))
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.SetLimit(4)
	for i, input := range req.InputFiles {
		g.Go(func() error {
			spec := ConvertSpec{
				InputFile:    input,
				OutputFormat: req.OutputFormat,
				TargetSRS:    req.TargetSRS,
			}
			if req.OutputDir != "" {
				ext := strings.ToLower(path.Ext(input))
				spec.OutputFile = path.Join(req.OutputDir,
					strings.TrimSuffix(path.Base(input), ext)+outputFormats[req.OutputFormat])
			}
			result, err := s.converter.Convert(ctx, spec)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": results, "count": len(results)})
}

func (s *service) handleInfo(c *gin.Context) {
	filePath := strings.TrimPrefix(c.Param("path"), "/")
	if _, err := validation.String(filePath, "file_path", 1, 1024); err != nil {
		faults.Respond(c, err)
		return
	}

	info, err := s.converter.Info(c.Request.Context(), filePath)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "info": info})
}
