// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/RecordFabric/services/data"
)

func corpus() []data.Firm {
	return []data.Firm{
		{FirmID: "f-1", FirmName: "Alpha Realty", Address: "350 Fifth Avenue, Manhattan",
			PrincipalBroker: "J. Doe", LicenseNumber: "1234567", State: "NY"},
		{FirmID: "f-2", FirmName: "Beta Realty", Address: "350 Fifth Avenue, Manhattan",
			PrincipalBroker: "J. Doe", LicenseNumber: "1234567", State: "NY"},
		{FirmID: "f-3", FirmName: "Gamma Realty", Address: "9 Ninth Road, Queens",
			PrincipalBroker: "K. Roe", State: "NJ", Email: "not-an-email"},
	}
}

func newTestService(t *testing.T, firms []data.Firm) Service {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := New(Config{Source: StaticSource(firms)})
	require.NoError(t, err)
	return svc
}

func post(t *testing.T, svc Service, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func TestFraudPatterns(t *testing.T) {
	svc := newTestService(t, corpus())

	w := post(t, svc, "/analyze/fraud", gin.H{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results FraudReport `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results.SharedAddresses, 1)
	assert.Equal(t, []string{"f-1", "f-2"}, resp.Results.SharedAddresses[0].Firms)
	require.Len(t, resp.Results.DuplicateLicenses, 1)
	assert.Equal(t, "1234567", resp.Results.DuplicateLicenses[0].Key)
	assert.Equal(t, []string{"f-3"}, resp.Results.MissingLicenses)
	assert.Equal(t, 3, resp.Results.FirmsAnalyzed)
}

func TestNexusGroupsByBroker(t *testing.T) {
	svc := newTestService(t, corpus())

	w := post(t, svc, "/analyze/nexus", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []Cluster `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1, "only J. Doe steers two firms")
	assert.Equal(t, "j. doe", resp.Results[0].Key)
	assert.Equal(t, []string{"f-1", "f-2"}, resp.Results[0].Firms)
}

func TestConnectionsEdges(t *testing.T) {
	svc := newTestService(t, corpus())

	w := post(t, svc, "/analyze/connections", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []Connection `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// f-1 and f-2 share both the address and the broker.
	require.Len(t, resp.Results, 2)
	for _, edge := range resp.Results {
		assert.Equal(t, "f-1", edge.FirmA)
		assert.Equal(t, "f-2", edge.FirmB)
	}
}

func TestViolationsFlagBadFields(t *testing.T) {
	svc := newTestService(t, corpus())

	w := post(t, svc, "/analyze/violations", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []Violation `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "f-3", resp.Results[0].FirmID)
	assert.Equal(t, "email", resp.Results[0].Field)
}

func TestFiltersNarrowCorpus(t *testing.T) {
	svc := newTestService(t, corpus())

	w := post(t, svc, "/analyze/fraud", gin.H{"filters": gin.H{"state": "NJ"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results FraudReport `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Results.FirmsAnalyzed)
	assert.Empty(t, resp.Results.SharedAddresses)
}

func TestUnknownFilterRejected(t *testing.T) {
	svc := newTestService(t, corpus())
	w := post(t, svc, "/analyze/fraud", gin.H{"filters": gin.H{"borough": "Queens"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "filters.borough")
}

func TestAnalyzeAllCombinesReports(t *testing.T) {
	svc := newTestService(t, corpus())

	w := post(t, svc, "/analyze/all", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results map[string]json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	for _, key := range []string{"fraud", "nexus", "connections", "violations"} {
		assert.Contains(t, resp.Results, key)
	}
}

func TestRemoteSourceDegradesThroughPipeline(t *testing.T) {
	calls := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"firms":[{"firm_id":"f-9","firm_name":"Remote","address":"1 Far Street"}]}`))
	}))
	defer backend.Close()

	gin.SetMode(gin.TestMode)
	svc, err := New(Config{DataServiceURL: backend.URL})
	require.NoError(t, err)

	w := post(t, svc, "/analyze/fraud", gin.H{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results FraudReport `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Results.FirmsAnalyzed)

	// A second request is served from the pipeline cache.
	w = post(t, svc, "/analyze/fraud", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}
