// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weaviatestore backs the vector store contract with Weaviate.
//
// One Weaviate class per collection, named Fabric<CapitalizedName>, with
// the vectorizer disabled (vectors are supplied by the embedding engine).
// The collection name and dimension are recorded in the class description
// because Weaviate classes carry neither natively. Payloads are stored as
// one JSON text property, keeping collections schema-less; filtering and
// tie-breaking happen client-side over an over-fetched candidate set so
// ordering stays deterministic.
package weaviatestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/services/vectors/store"
)

const (
	classPrefix = "Fabric"

	// overFetchFactor widens the nearVector candidate set so client-side
	// filtering and tie-breaking still fill the requested limit.
	overFetchFactor = 4
	maxFetch        = 1000
)

// idNamespace seeds the deterministic point-id -> object-uuid mapping.
var idNamespace = uuid.MustParse("9f2c62e6-41d5-4d43-9d60-0e9d2a6c7f11")

// =============================================================================
// Store
// =============================================================================

// Store is the Weaviate-backed vector store.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is stateless per call.
type Store struct {
	client *weaviate.Client
}

// Config configures the Weaviate connection.
type Config struct {
	Host   string // host:port, e.g. "localhost:8080"
	Scheme string // "http" or "https"
	APIKey string // optional
}

// New connects to Weaviate. The connection is lazy; the first operation
// surfaces reachability problems as Transient.
func New(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, faults.InvalidArgument("host", "must not be empty")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}

	wcfg := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	if cfg.APIKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	return &Store{client: client}, nil
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

	className := classNameFor(name)
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return mapWeaviateError(err)
	}
	if exists {
		existing, err := s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
		if err != nil {
			return mapWeaviateError(err)
		}
		_, existingDim := parseDescription(existing.Description)
		if existingDim != dimension {
			return faults.ConfigConflict("collection " + name + " already exists with a different dimension")
		}
		return nil
	}

	class := &models.Class{
		Class:       className,
		Description: formatDescription(name, dimension),
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "point_id", DataType: []string{"text"}},
			{Name: "payload", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return mapWeaviateError(err)
	}
	return nil
}

// Upsert implements store.Store. Weaviate's batcher is last-write-wins on
// object ID, but duplicates are collapsed first so validation sees the
// batch the contract describes.
func (s *Store) Upsert(ctx context.Context, name string, points []store.Point) error {
	className := classNameFor(name)
	dimension, err := s.collectionDimension(ctx, className, name)
	if err != nil {
		return err
	}

	deduped := make(map[string]store.Point, len(points))
	order := make([]string, 0, len(points))
	for _, p := range points {
		if err := store.ValidatePoint(p, dimension); err != nil {
			return err
		}
		if _, seen := deduped[p.ID]; !seen {
			order = append(order, p.ID)
		}
		deduped[p.ID] = p
	}
	if len(order) == 0 {
		return nil
	}

	batcher := s.client.Batch().ObjectsBatcher()
	for _, id := range order {
		p := deduped[id]
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return faults.InvalidArgument("payload", "must be JSON-serializable")
		}
		batcher = batcher.WithObjects(&models.Object{
			Class: className,
			ID:    objectID(name, p.ID),
			Properties: map[string]any{
				"point_id": p.ID,
				"payload":  string(payloadJSON),
			},
			Vector: models.C11yVector(p.Vector),
		})
	}

	resp, err := batcher.Do(ctx)
	if err != nil {
		return mapWeaviateError(err)
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return faults.Transient("weaviate batch write failed: "+obj.Result.Errors.Error[0].Message, nil)
		}
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, name, id string) (store.Point, error) {
	className := classNameFor(name)
	if _, err := s.collectionDimension(ctx, className, name); err != nil {
		return store.Point{}, err
	}

	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(className).
		WithID(string(objectID(name, id))).
		WithVector().
		Do(ctx)
	if err != nil {
		mapped := mapWeaviateError(err)
		if faults.KindOf(mapped) == faults.KindNotFound {
			return store.Point{}, faults.NotFound("point " + id)
		}
		return store.Point{}, mapped
	}
	if len(objects) == 0 {
		return store.Point{}, faults.NotFound("point " + id)
	}

	obj := objects[0]
	payload, err := decodePayload(obj.Properties)
	if err != nil {
		return store.Point{}, err
	}
	return store.Point{
		ID:      id,
		Vector:  []float32(obj.Vector),
		Payload: payload,
	}, nil
}

// Search implements store.Store. Candidates come from nearVector; the
// payload filter, score threshold, ordering, and limit are applied
// client-side for exact contract semantics.
func (s *Store) Search(ctx context.Context, q store.Query) ([]store.Result, error) {
	className := classNameFor(q.Collection)
	dimension, err := s.collectionDimension(ctx, className, q.Collection)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != dimension {
		return nil, faults.InvalidArgument("query_vector", "length does not match collection dimension")
	}
	if q.Limit <= 0 {
		return nil, faults.InvalidArgument("limit", "must be positive")
	}

	fetch := q.Limit * overFetchFactor
	if len(q.Filter) > 0 && fetch < 100 {
		fetch = 100
	}
	if fetch > maxFetch {
		fetch = maxFetch
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)
	fields := []graphql.Field{
		{Name: "point_id"},
		{Name: "payload"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(fetch).
		Do(ctx)
	if err != nil {
		return nil, mapWeaviateError(err)
	}
	if len(result.Errors) > 0 {
		return nil, faults.Transient("weaviate search failed: "+result.Errors[0].Message, nil)
	}

	hits, err := parseSearchResponse(result.Data, className)
	if err != nil {
		return nil, err
	}

	results := make([]store.Result, 0, len(hits))
	for _, h := range hits {
		if !store.MatchesFilter(h.Payload, q.Filter) {
			continue
		}
		if q.ScoreThreshold != nil && h.Score < *q.ScoreThreshold {
			continue
		}
		results = append(results, h)
	}
	return store.SortResults(results, q.Limit), nil
}

// Delete implements store.Store; a 404 from Weaviate counts as success.
func (s *Store) Delete(ctx context.Context, name, id string) error {
	className := classNameFor(name)
	if _, err := s.collectionDimension(ctx, className, name); err != nil {
		return err
	}

	err := s.client.Data().Deleter().
		WithClassName(className).
		WithID(string(objectID(name, id))).
		Do(ctx)
	if err != nil {
		mapped := mapWeaviateError(err)
		if faults.KindOf(mapped) == faults.KindNotFound {
			return nil
		}
		return mapped
	}
	return nil
}

// Collections implements store.Store, recovering names and dimensions
// from the class descriptions.
func (s *Store) Collections(ctx context.Context) ([]store.Collection, error) {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, mapWeaviateError(err)
	}

	out := make([]store.Collection, 0, len(schema.Classes))
	for _, class := range schema.Classes {
		if !strings.HasPrefix(class.Class, classPrefix) {
			continue
		}
		name, dimension := parseDescription(class.Description)
		if name == "" {
			continue
		}
		out = append(out, store.Collection{Name: name, Dimension: dimension})
	}
	return out, nil
}

// =============================================================================
// Internals
// =============================================================================

// collectionDimension resolves a collection's dimension, or NotFound when
// the class is absent.
func (s *Store) collectionDimension(ctx context.Context, className, name string) (int, error) {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return 0, mapWeaviateError(err)
	}
	if !exists {
		return 0, faults.NotFound("collection " + name)
	}
	class, err := s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
	if err != nil {
		return 0, mapWeaviateError(err)
	}
	_, dimension := parseDescription(class.Description)
	if dimension <= 0 {
		return 0, faults.Internal("collection "+name+" has no recorded dimension", nil)
	}
	return dimension, nil
}

// classNameFor maps a collection name to its Weaviate class:
// "docs" -> "FabricDocs", "news-items" -> "FabricNewsItems".
func classNameFor(collection string) string {
	parts := strings.FieldsFunc(collection, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
	var b strings.Builder
	b.WriteString(classPrefix)
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// objectID derives the stable Weaviate object UUID for a point.
func objectID(collection, pointID string) strfmt.UUID {
	u := uuid.NewSHA1(idNamespace, []byte(collection+"/"+pointID))
	return strfmt.UUID(u.String())
}

func formatDescription(name string, dimension int) string {
	return "collection=" + name + ";dimension=" + strconv.Itoa(dimension)
}

// parseDescription reverses formatDescription; unknown formats yield
// ("", 0).
func parseDescription(desc string) (string, int) {
	var name string
	var dimension int
	for _, part := range strings.Split(desc, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "collection":
			name = kv[1]
		case "dimension":
			dimension, _ = strconv.Atoi(kv[1])
		}
	}
	return name, dimension
}

func decodePayload(properties any) (map[string]any, error) {
	props, ok := properties.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := props["payload"].(string)
	if !ok || raw == "" || raw == "null" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, faults.Internal("stored payload is not valid JSON", err)
	}
	return payload, nil
}

// parseSearchResponse walks the GraphQL Get response for className.
func parseSearchResponse(data map[string]models.JSONObject, className string) ([]store.Result, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	rows, ok := get[className].([]any)
	if !ok {
		return nil, nil
	}

	results := make([]store.Result, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		id, _ := obj["point_id"].(string)
		payload, err := decodePayload(map[string]any{"payload": obj["payload"]})
		if err != nil {
			return nil, err
		}

		var score float64
		if add, ok := obj["_additional"].(map[string]any); ok {
			if distance, ok := add["distance"].(float64); ok {
				// Weaviate cosine distance is 1 - similarity.
				score = 1 - distance
			}
		}
		results = append(results, store.Result{ID: id, Score: score, Payload: payload})
	}
	return results, nil
}

// mapWeaviateError normalizes client failures to the taxonomy: 404 is
// NotFound, 401/403 pass through, everything else network-shaped is
// Transient.
func mapWeaviateError(err error) error {
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		switch clientErr.StatusCode {
		case 404:
			return faults.NotFound("weaviate object")
		case 401:
			return faults.Unauthenticated("weaviate rejected credentials")
		case 403:
			return faults.Forbidden("weaviate denied access")
		case 422:
			return faults.InvalidArgument("request", clientErr.Msg)
		}
	}
	return faults.Transient("weaviate unavailable", err)
}
