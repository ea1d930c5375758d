// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis is the analysis service: fraud, nexus, connection, and
// violation pattern detection over the firm corpus.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/services/data"
)

// FirmSource supplies the firm corpus under analysis.
type FirmSource interface {
	Firms(ctx context.Context) ([]data.Firm, error)
}

// StaticSource serves a fixed firm slice. Used by tests and by deployments
// that analyze a submitted snapshot.
type StaticSource []data.Firm

func (s StaticSource) Firms(_ context.Context) ([]data.Firm, error) {
	return []data.Firm(s), nil
}

// dataServiceSource pulls the corpus from the data service through the
// redundancy pipeline, so a flapping data service is retried, broken, and
// finally degraded to an empty corpus rather than failing the analysis
// request outright.
type dataServiceSource struct {
	baseURL string
	manager *redundancy.Manager
	client  *http.Client
}

// NewDataServiceSource builds the remote firm source. manager must not be nil.
func NewDataServiceSource(baseURL string, manager *redundancy.Manager) FirmSource {
	return &dataServiceSource{
		baseURL: baseURL,
		manager: manager,
		client:  &http.Client{},
	}
}

func (s *dataServiceSource) Firms(ctx context.Context) ([]data.Firm, error) {
	return redundancy.Execute(ctx, s.manager, redundancy.Op[[]data.Firm]{
		Target:   "data",
		CacheKey: "analysis:firms",
		Primary:  s.fetch,
	})
}

func (s *dataServiceSource) fetch(ctx context.Context) ([]data.Firm, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/data/firms?page_size=100", nil)
	if err != nil {
		return nil, faults.Internal("building firms request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, faults.Transient("data service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Transient("reading data service response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, faults.Transient(fmt.Sprintf("data service returned %d", resp.StatusCode), nil)
	}

	var payload struct {
		Firms []data.Firm `json:"firms"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, faults.Internal("decoding firms payload", err)
	}
	return payload.Firms, nil
}
