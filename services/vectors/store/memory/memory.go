// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory is the reference vector store: exact contract semantics,
// no external process. It backs tests and small single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/services/vectors/store"
)

// Store is the in-memory backend.
//
// # Thread Safety
//
// Reads take the read lock; Upsert, Delete, and EnsureCollection take the
// write lock. Points are copied on read so callers never alias internal
// state.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	points    map[string]store.Point
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

var _ store.Store = (*Store)(nil)

// EnsureCollection implements store.Store.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if name == "" {
		return faults.InvalidArgument("collection", "must not be empty")
	}
	if dimension <= 0 {
		return faults.InvalidArgument("dimension", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[name]; ok {
		if existing.dimension != dimension {
			return faults.ConfigConflict("collection " + name + " already exists with a different dimension")
		}
		return nil
	}
	s.collections[name] = &collection{
		dimension: dimension,
		points:    make(map[string]store.Point),
	}
	return nil
}

// Upsert implements store.Store. Points are validated before any write so
// a bad batch leaves the collection untouched.
func (s *Store) Upsert(ctx context.Context, name string, points []store.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		return faults.NotFound("collection " + name)
	}
	for _, p := range points {
		if err := store.ValidatePoint(p, coll.dimension); err != nil {
			return err
		}
	}
	// Later duplicates overwrite earlier ones, so the last wins.
	for _, p := range points {
		coll.points[p.ID] = copyPoint(p)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, name, id string) (store.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return store.Point{}, faults.NotFound("collection " + name)
	}
	p, ok := coll.points[id]
	if !ok {
		return store.Point{}, faults.NotFound("point " + id)
	}
	return copyPoint(p), nil
}

// Search implements store.Store.
func (s *Store) Search(ctx context.Context, q store.Query) ([]store.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[q.Collection]
	if !ok {
		return nil, faults.NotFound("collection " + q.Collection)
	}
	if len(q.Vector) != coll.dimension {
		return nil, faults.InvalidArgument("query_vector",
			"length does not match collection dimension")
	}
	if q.Limit <= 0 {
		return nil, faults.InvalidArgument("limit", "must be positive")
	}

	results := make([]store.Result, 0, len(coll.points))
	for _, p := range coll.points {
		if !store.MatchesFilter(p.Payload, q.Filter) {
			continue
		}
		score := store.Cosine(q.Vector, p.Vector)
		if q.ScoreThreshold != nil && score < *q.ScoreThreshold {
			continue
		}
		results = append(results, store.Result{
			ID:      p.ID,
			Score:   score,
			Payload: copyPayload(p.Payload),
		})
	}
	return store.SortResults(results, q.Limit), nil
}

// Delete implements store.Store. Deleting a missing point succeeds.
func (s *Store) Delete(ctx context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		return faults.NotFound("collection " + name)
	}
	delete(coll.points, id)
	return nil
}

// Collections implements store.Store; output is sorted by name for
// stable listings.
func (s *Store) Collections(ctx context.Context) ([]store.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Collection, 0, len(s.collections))
	for name, coll := range s.collections {
		out = append(out, store.Collection{Name: name, Dimension: coll.dimension})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func copyPoint(p store.Point) store.Point {
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)
	return store.Point{ID: p.ID, Vector: vec, Payload: copyPayload(p.Payload)}
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
