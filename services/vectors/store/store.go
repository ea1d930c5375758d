// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the vector store contract and the semantics every
// backend must honor: idempotent collection lifecycle, last-write-wins
// upsert, and deterministic filtered k-NN under cosine similarity.
//
// Two backends implement it: memory (exact in-process semantics, also the
// test double) and weaviate (the production engine).
package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Types
// =============================================================================

// Collection is a named vector namespace with a fixed dimension. The
// distance metric is always cosine.
type Collection struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
}

// Point is one stored vector with its payload. ID is unique per
// collection; re-upserting an ID replaces vector and payload atomically.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Query describes one filtered k-NN search.
type Query struct {
	Collection string `json:"collection"`

	// Vector is the query embedding; its length must match the collection.
	Vector []float32 `json:"vector"`

	// Limit caps the result count.
	Limit int `json:"limit"`

	// ScoreThreshold, when set, drops results scoring below it.
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`

	// Filter is a conjunction of payload equality constraints. A filter
	// key absent from a point's payload means the point does not match.
	Filter map[string]any `json:"filter,omitempty"`
}

// Result is one search hit. Score is cosine similarity in [-1, 1].
type Result struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// =============================================================================
// Store Interface
// =============================================================================

// Store is the vector backend contract.
//
// # Description
//
// All methods honor the error taxonomy: absent identifiers are NotFound,
// shape mismatches are InvalidArgument, a dimension conflict on an
// existing collection is ConfigConflict, and backend network/IO failures
// surface as Transient.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureCollection creates the collection if absent. Idempotent when
	// the dimension matches; ConfigConflict when it does not.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes points atomically per point. Duplicate IDs within the
	// batch collapse to the last occurrence.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Get returns the point or NotFound.
	Get(ctx context.Context, collection, id string) (Point, error)

	// Search runs filtered k-NN. Ordering is score descending, ties
	// broken by ID ascending.
	Search(ctx context.Context, q Query) ([]Result, error)

	// Delete removes the point; deleting a missing ID is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Collections lists known collections.
	Collections(ctx context.Context) ([]Collection, error)
}

// =============================================================================
// Shared Semantics
// =============================================================================

// ValidatePoint rejects a point whose vector does not fit the collection:
// wrong length, or any non-finite component.
func ValidatePoint(p Point, dimension int) error {
	if p.ID == "" {
		return faults.InvalidArgument("id", "must not be empty")
	}
	if len(p.Vector) != dimension {
		return faults.InvalidArgument("vector",
			fmt.Sprintf("length %d does not match collection dimension %d", len(p.Vector), dimension))
	}
	for _, v := range p.Vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return faults.InvalidArgument("vector", "components must be finite")
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b. Both are expected to
// be unit-norm, so this is the plain dot product.
func Cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// MatchesFilter reports whether payload satisfies every equality
// constraint in filter. An empty filter matches everything; a constraint
// on a key the payload lacks matches nothing.
func MatchesFilter(payload, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := payload[key]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// SortResults orders hits score descending, ties by ID ascending, and
// truncates to limit.
func SortResults(results []Result, limit int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// scalarEqual compares payload scalars. JSON decoding turns all numbers
// into float64, so numeric values compare numerically across int widths.
func scalarEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
