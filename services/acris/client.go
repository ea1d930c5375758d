// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package acris is the ACRIS service: property-records search against the
// city's open-data API, routed through the redundancy pipeline because the
// upstream rate-limits and flaps.
package acris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
)

// Record is one ACRIS row; the upstream schema is loose, so rows stay maps.
type Record map[string]any

// Client searches ACRIS.
type Client interface {
	SearchBlockLot(ctx context.Context, boroughCode, block, lot string) ([]Record, error)
	SearchAddress(ctx context.Context, address, boroughCode string) ([]Record, error)
	SearchParty(ctx context.Context, partyName, documentType string) ([]Record, error)
	SearchDocument(ctx context.Context, documentID string) ([]Record, error)
}

// Open-data dataset ids: property legals, parties, and document master.
const (
	legalsDataset  = "8h5j-fqxa"
	partiesDataset = "636b-3b5g"
	masterDataset  = "bnx9-e6tj"
)

// DefaultBaseURL is the NYC open-data SODA endpoint.
const DefaultBaseURL = "https://data.cityofnewyork.us/resource"

// sodaClient implements Client over the SODA JSON API.
type sodaClient struct {
	baseURL string
	manager *redundancy.Manager
	client  *http.Client
}

// NewClient builds the open-data client. manager must not be nil; an empty
// baseURL selects the production endpoint.
func NewClient(baseURL string, manager *redundancy.Manager) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &sodaClient{
		baseURL: baseURL,
		manager: manager,
		client:  &http.Client{},
	}
}

var _ Client = (*sodaClient)(nil)

func (c *sodaClient) SearchBlockLot(ctx context.Context, boroughCode, block, lot string) ([]Record, error) {
	query := url.Values{}
	query.Set("borough", boroughCode)
	query.Set("block", block)
	query.Set("lot", lot)
	return c.search(ctx, legalsDataset, query)
}

func (c *sodaClient) SearchAddress(ctx context.Context, address, boroughCode string) ([]Record, error) {
	query := url.Values{}
	query.Set("$q", address)
	if boroughCode != "" {
		query.Set("borough", boroughCode)
	}
	return c.search(ctx, legalsDataset, query)
}

func (c *sodaClient) SearchParty(ctx context.Context, partyName, documentType string) ([]Record, error) {
	query := url.Values{}
	query.Set("$q", partyName)
	if documentType != "" {
		query.Set("doc_type", documentType)
	}
	return c.search(ctx, partiesDataset, query)
}

func (c *sodaClient) SearchDocument(ctx context.Context, documentID string) ([]Record, error) {
	query := url.Values{}
	query.Set("document_id", documentID)
	return c.search(ctx, masterDataset, query)
}

// search runs one dataset query through the pipeline; identical queries
// within the cache TTL are served locally.
func (c *sodaClient) search(ctx context.Context, dataset string, query url.Values) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/%s.json?%s", c.baseURL, dataset, query.Encode())
	return redundancy.Execute(ctx, c.manager, redundancy.Op[[]Record]{
		Target:   "acris-open-data",
		CacheKey: "acris:" + endpoint,
		Primary: func(ctx context.Context) ([]Record, error) {
			return c.fetch(ctx, endpoint)
		},
	})
}

func (c *sodaClient) fetch(ctx context.Context, endpoint string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, faults.Internal("building open-data request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, faults.Transient("open-data API unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Transient("reading open-data response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, faults.Unauthenticated("open-data API rejected credentials")
	case resp.StatusCode == http.StatusForbidden:
		return nil, faults.Forbidden("open-data API refused the request")
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, faults.Transient(fmt.Sprintf("open-data API returned %d", resp.StatusCode), nil)
	default:
		return nil, faults.Internal(fmt.Sprintf("open-data API returned %d", resp.StatusCode), nil)
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, faults.Internal("decoding open-data response", err)
	}
	return records, nil
}
