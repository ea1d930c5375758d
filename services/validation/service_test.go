// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := New(Config{})
	require.NoError(t, err)
	return svc
}

func post(t *testing.T, svc Service, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func TestLicenseTooShortRejected(t *testing.T) {
	svc := newTestService(t)

	w := post(t, svc, "/validate/license", gin.H{"data": "12345"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "license_number")
	assert.Contains(t, w.Body.String(), "5 characters")
}

func TestLicenseAccepted(t *testing.T) {
	svc := newTestService(t)

	w := post(t, svc, "/validate/license", gin.H{"data": " 1234567 "})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Valid      bool   `json:"valid"`
		Normalized string `json:"normalized"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "1234567", resp.Normalized)
}

func TestLicenseDataMustBeString(t *testing.T) {
	svc := newTestService(t)
	w := post(t, svc, "/validate/license", gin.H{"data": 1234567})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "data")
}

func TestAddressRequiresStreetToken(t *testing.T) {
	svc := newTestService(t)

	w := post(t, svc, "/validate/address", gin.H{"data": "123 Nowhere Plaza 99999"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "address")

	w = post(t, svc, "/validate/address", gin.H{"data": "350 Fifth Avenue, Manhattan"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFirmReportAggregatesFindings(t *testing.T) {
	svc := newTestService(t)

	w := post(t, svc, "/validate/firm", gin.H{"data": gin.H{
		"firm_name":      "Acme Realty LLC",
		"address":        "short",
		"license_number": "12",
		"email":          "broker@acme-realty.com",
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		Valid      bool              `json:"valid"`
		Reasons    []string          `json:"reasons"`
		Normalized map[string]string `json:"normalized"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.Len(t, report.Reasons, 2, "address and license both flagged")
	assert.Equal(t, "Acme Realty LLC", report.Normalized["firm_name"])
	assert.Equal(t, "broker@acme-realty.com", report.Normalized["email"])
}

func TestFirmReportValid(t *testing.T) {
	svc := newTestService(t)

	w := post(t, svc, "/validate/firm", gin.H{"data": gin.H{
		"firm_name":      "Acme Realty LLC",
		"address":        "350 Fifth Avenue, Manhattan",
		"license_number": "1234567",
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		Valid   bool     `json:"valid"`
		Reasons []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Empty(t, report.Reasons)
}

func TestBatchCountsValidAndInvalid(t *testing.T) {
	svc := newTestService(t)

	w := post(t, svc, "/validate/batch", gin.H{
		"validation_type": "firm",
		"items": []gin.H{
			{"firm_name": "Good Firm", "license_number": "123456"},
			{"firm_name": "Bad Firm", "license_number": "1"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total   int `json:"total"`
		Valid   int `json:"valid"`
		Invalid int `json:"invalid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Valid)
	assert.Equal(t, 1, resp.Invalid)
}

func TestBatchRejectsEmptyItems(t *testing.T) {
	svc := newTestService(t)
	w := post(t, svc, "/validate/batch", gin.H{"validation_type": "firm", "items": []gin.H{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "items")
}
