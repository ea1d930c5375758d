// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/validation"
	"github.com/AleutianAI/RecordFabric/services/vectors/store"
)

// =============================================================================
// Request/Response Shapes
// =============================================================================

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
}

// storePoint is one point in a store request. Either Text (embedded
// server-side) or Vector must be supplied, not both.
type storePoint struct {
	ID      string         `json:"id"`
	Text    string         `json:"text,omitempty"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type storeRequest struct {
	Collection string `json:"collection"`
	storePoint
}

type storeBatchRequest struct {
	Collection string       `json:"collection"`
	Points     []storePoint `json:"points"`
}

type searchRequest struct {
	Collection     string         `json:"collection"`
	QueryText      string         `json:"query_text,omitempty"`
	QueryVector    []float32      `json:"query_vector,omitempty"`
	Limit          int            `json:"limit"`
	ScoreThreshold *float64       `json:"score_threshold,omitempty"`
	Filter         map[string]any `json:"filter,omitempty"`
}

type searchResponse struct {
	Results []store.Result `json:"results"`
	Count   int            `json:"count"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"model":     s.engine.Model(),
		"dimension": s.engine.Dimension(),
	})
}

func (s *service) handleEmbed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if _, err := validation.List(req.Texts, "texts", 1, 256); err != nil {
		faults.Respond(c, err)
		return
	}

	embeddings, err := s.engine.EmbedBatch(c.Request.Context(), req.Texts)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, embedResponse{
		Embeddings: embeddings,
		Dimension:  s.engine.Dimension(),
		Model:      s.engine.Model(),
	})
}

func (s *service) handleStore(c *gin.Context) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	count, err := s.storePoints(c, req.Collection, []storePoint{req.storePoint})
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored", "count": count})
}

func (s *service) handleStoreBatch(c *gin.Context) {
	var req storeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if _, err := validation.List(req.Points, "points", 1, 1000); err != nil {
		faults.Respond(c, err)
		return
	}
	count, err := s.storePoints(c, req.Collection, req.Points)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored", "count": count})
}

// storePoints resolves text to vectors, ensures the collection, and
// upserts. The collection is created on first write with the batch's
// vector width; later writes must match it.
func (s *service) storePoints(c *gin.Context, collection string, reqPoints []storePoint) (int, error) {
	if _, err := validation.String(collection, "collection", 1, 128); err != nil {
		return 0, err
	}

	ctx := c.Request.Context()
	points := make([]store.Point, 0, len(reqPoints))
	for _, rp := range reqPoints {
		if _, err := validation.String(rp.ID, "id", 1, 256); err != nil {
			return 0, err
		}
		vector := rp.Vector
		if len(vector) == 0 {
			if rp.Text == "" {
				return 0, faults.InvalidArgument("text", "either text or vector is required")
			}
			embedded, err := s.engine.Embed(ctx, rp.Text)
			if err != nil {
				return 0, err
			}
			vector = embedded
		} else if rp.Text != "" {
			return 0, faults.InvalidArgument("vector", "text and vector are mutually exclusive")
		}
		points = append(points, store.Point{
			ID:      rp.ID,
			Vector:  vector,
			Payload: validation.SanitizeMap(rp.Payload),
		})
	}

	if err := s.store.EnsureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return 0, err
	}
	if err := s.store.Upsert(ctx, collection, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

func (s *service) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		faults.Respond(c, faults.InvalidArgument("body", "must be valid JSON"))
		return
	}
	if _, err := validation.String(req.Collection, "collection", 1, 128); err != nil {
		faults.Respond(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if _, err := validation.Integer(req.Limit, "limit", 1, 1000); err != nil {
		faults.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	vector := req.QueryVector
	if len(vector) == 0 {
		if req.QueryText == "" {
			faults.Respond(c, faults.InvalidArgument("query_text", "either query_text or query_vector is required"))
			return
		}
		embedded, err := s.engine.Embed(ctx, req.QueryText)
		if err != nil {
			faults.Respond(c, err)
			return
		}
		vector = embedded
	}

	results, err := s.store.Search(ctx, store.Query{
		Collection:     req.Collection,
		Vector:         vector,
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		Filter:         req.Filter,
	})
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *service) handleCollections(c *gin.Context) {
	collections, err := s.store.Collections(c.Request.Context())
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections, "count": len(collections)})
}

func (s *service) handleGet(c *gin.Context) {
	collection := c.Param("collection")
	id := c.Param("id")

	point, err := s.store.Get(c.Request.Context(), collection, id)
	if err != nil {
		faults.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, point)
}

func (s *service) handleDelete(c *gin.Context) {
	collection := c.Param("collection")
	id := c.Param("id")

	if err := s.store.Delete(c.Request.Context(), collection, id); err != nil {
		faults.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
